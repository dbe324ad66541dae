package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowsentry/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// schema is the DDL for the service's tables. Execution log and scan
// history are append-only; settings and schedules hold one row per tenant.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS execution_log (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	status TEXT NOT NULL,
	execution_time_ms BIGINT NOT NULL,
	failed_action_id TEXT,
	failed_action_name TEXT,
	error_message TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_log_lookup
	ON execution_log (tenant_id, workflow_id, occurred_at);
CREATE TABLE IF NOT EXISTS scan_history (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	schedule_id TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	workflows_scanned INT NOT NULL,
	issues_found INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scan_history_tenant
	ON scan_history (tenant_id, started_at DESC);
CREATE TABLE IF NOT EXISTS alert_settings (
	tenant_id TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL,
	failure_threshold INT NOT NULL,
	time_window_hours INT NOT NULL,
	alert_on_critical BOOLEAN NOT NULL,
	alert_email TEXT,
	webhook_url TEXT,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS scan_schedules (
	tenant_id TEXT PRIMARY KEY,
	id UUID NOT NULL,
	enabled BOOLEAN NOT NULL,
	frequency TEXT NOT NULL,
	preferred_time TEXT NOT NULL,
	timezone TEXT NOT NULL,
	weekday INT NOT NULL,
	scan_scope TEXT NOT NULL,
	next_scan_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS health_scores (
	tenant_id TEXT NOT NULL,
	workflow_id TEXT NOT NULL,
	score INT NOT NULL,
	findings JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, workflow_id)
);
`

// EnsureSchema creates the service tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// AppendExecution appends one execution outcome to the log.
func (s *PostgresStore) AppendExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO execution_log (id, tenant_id, workflow_id, status, execution_time_ms,
			failed_action_id, failed_action_name, error_message, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.TenantID, rec.WorkflowID, rec.Status, rec.ExecutionTimeMs,
		rec.FailedActionID, rec.FailedActionName, rec.ErrorMessage, rec.OccurredAt)
	return err
}

// ListExecutions returns records for a workflow at or after since, ordered
// by occurrence time ascending.
func (s *PostgresStore) ListExecutions(ctx context.Context, tenantID, workflowID string, since time.Time) ([]models.ExecutionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, workflow_id, status, execution_time_ms,
			COALESCE(failed_action_id, ''), COALESCE(failed_action_name, ''),
			COALESCE(error_message, ''), occurred_at
		 FROM execution_log
		 WHERE tenant_id = $1 AND workflow_id = $2 AND occurred_at >= $3
		 ORDER BY occurred_at ASC`,
		tenantID, workflowID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.WorkflowID, &rec.Status,
			&rec.ExecutionTimeMs, &rec.FailedActionID, &rec.FailedActionName,
			&rec.ErrorMessage, &rec.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendScanHistory records the outcome of one scan run.
func (s *PostgresStore) AppendScanHistory(ctx context.Context, entry *models.ScanHistoryEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO scan_history (id, tenant_id, schedule_id, started_at, completed_at,
			status, workflows_scanned, issues_found)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TenantID, entry.ScheduleID, entry.StartedAt, entry.CompletedAt,
		entry.Status, entry.WorkflowsScanned, entry.IssuesFound)
	return err
}

// ListScanHistory returns the most recent entries for a tenant, newest
// first.
func (s *PostgresStore) ListScanHistory(ctx context.Context, tenantID string, limit int) ([]models.ScanHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, COALESCE(schedule_id, ''), started_at, completed_at,
			status, workflows_scanned, issues_found
		 FROM scan_history
		 WHERE tenant_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScanHistoryEntry
	for rows.Next() {
		var entry models.ScanHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.ScheduleID, &entry.StartedAt,
			&entry.CompletedAt, &entry.Status, &entry.WorkflowsScanned, &entry.IssuesFound); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// GetAlertSettings returns the tenant's alert configuration.
func (s *PostgresStore) GetAlertSettings(ctx context.Context, tenantID string) (*models.AlertSettings, error) {
	var settings models.AlertSettings
	err := s.db.QueryRow(ctx,
		`SELECT tenant_id, enabled, failure_threshold, time_window_hours, alert_on_critical,
			COALESCE(alert_email, ''), COALESCE(webhook_url, ''), updated_at
		 FROM alert_settings WHERE tenant_id = $1`,
		tenantID).Scan(&settings.TenantID, &settings.Enabled, &settings.FailureThreshold,
		&settings.TimeWindowHours, &settings.AlertOnCritical, &settings.AlertEmail,
		&settings.WebhookURL, &settings.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpsertAlertSettings replaces the tenant's alert configuration.
func (s *PostgresStore) UpsertAlertSettings(ctx context.Context, settings *models.AlertSettings) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO alert_settings (tenant_id, enabled, failure_threshold, time_window_hours,
			alert_on_critical, alert_email, webhook_url, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			failure_threshold = EXCLUDED.failure_threshold,
			time_window_hours = EXCLUDED.time_window_hours,
			alert_on_critical = EXCLUDED.alert_on_critical,
			alert_email = EXCLUDED.alert_email,
			webhook_url = EXCLUDED.webhook_url,
			updated_at = EXCLUDED.updated_at`,
		settings.TenantID, settings.Enabled, settings.FailureThreshold, settings.TimeWindowHours,
		settings.AlertOnCritical, settings.AlertEmail, settings.WebhookURL, settings.UpdatedAt)
	return err
}

// GetScanSchedule returns the tenant's scan schedule.
func (s *PostgresStore) GetScanSchedule(ctx context.Context, tenantID string) (*models.ScanSchedule, error) {
	schedule, err := scanSchedule(s.db.QueryRow(ctx,
		scheduleColumns+` FROM scan_schedules WHERE tenant_id = $1`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

const scheduleColumns = `SELECT tenant_id, id, enabled, frequency, preferred_time,
	timezone, weekday, scan_scope, next_scan_at, updated_at`

func scanSchedule(row pgx.Row) (*models.ScanSchedule, error) {
	var schedule models.ScanSchedule
	var weekday int
	err := row.Scan(&schedule.TenantID, &schedule.ID, &schedule.Enabled, &schedule.Frequency,
		&schedule.PreferredTime, &schedule.Timezone, &weekday, &schedule.ScanScope,
		&schedule.NextScanAt, &schedule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	schedule.Weekday = time.Weekday(weekday)
	return &schedule, nil
}

// UpsertScanSchedule replaces the tenant's scan schedule.
func (s *PostgresStore) UpsertScanSchedule(ctx context.Context, schedule *models.ScanSchedule) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO scan_schedules (tenant_id, id, enabled, frequency, preferred_time,
			timezone, weekday, scan_scope, next_scan_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant_id) DO UPDATE SET
			id = EXCLUDED.id,
			enabled = EXCLUDED.enabled,
			frequency = EXCLUDED.frequency,
			preferred_time = EXCLUDED.preferred_time,
			timezone = EXCLUDED.timezone,
			weekday = EXCLUDED.weekday,
			scan_scope = EXCLUDED.scan_scope,
			next_scan_at = EXCLUDED.next_scan_at,
			updated_at = EXCLUDED.updated_at`,
		schedule.TenantID, schedule.ID, schedule.Enabled, schedule.Frequency,
		schedule.PreferredTime, schedule.Timezone, int(schedule.Weekday), schedule.ScanScope,
		schedule.NextScanAt, schedule.UpdatedAt)
	return err
}

// DeleteScanSchedule removes the tenant's schedule. History is untouched.
func (s *PostgresStore) DeleteScanSchedule(ctx context.Context, tenantID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM scan_schedules WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrScheduleNotFound
	}
	return nil
}

// ListScanSchedules returns every tenant's schedule.
func (s *PostgresStore) ListScanSchedules(ctx context.Context) ([]models.ScanSchedule, error) {
	rows, err := s.db.Query(ctx, scheduleColumns+` FROM scan_schedules ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScanSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *schedule)
	}
	return out, rows.Err()
}

// SaveHealthScore stores the latest score for a workflow. Findings are
// persisted as JSONB to keep scan output diffable.
func (s *PostgresStore) SaveHealthScore(ctx context.Context, tenantID string, score *models.HealthScore) error {
	findings, err := json.Marshal(score.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO health_scores (tenant_id, workflow_id, score, findings, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, workflow_id) DO UPDATE SET
			score = EXCLUDED.score,
			findings = EXCLUDED.findings,
			computed_at = EXCLUDED.computed_at`,
		tenantID, score.WorkflowID, score.Score, findings, score.ComputedAt)
	return err
}

// GetHealthScore returns the latest stored score for a workflow.
func (s *PostgresStore) GetHealthScore(ctx context.Context, tenantID, workflowID string) (*models.HealthScore, error) {
	var score models.HealthScore
	var findings []byte
	err := s.db.QueryRow(ctx,
		`SELECT workflow_id, score, findings, computed_at
		 FROM health_scores WHERE tenant_id = $1 AND workflow_id = $2`,
		tenantID, workflowID).Scan(&score.WorkflowID, &score.Score, &findings, &score.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrScoreNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(findings, &score.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	return &score, nil
}

// CreateTenant adds a tenant.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (id, name, domain, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, tenant.Domain, tenant.CreatedAt, tenant.UpdatedAt)
	return err
}

// GetTenantByDomain looks a tenant up by domain.
func (s *PostgresStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM tenants WHERE domain = $1`,
		domain).Scan(&tenant.ID, &tenant.Name, &tenant.Domain, &tenant.CreatedAt, &tenant.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListTenants returns all tenants.
func (s *PostgresStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		var tenant models.Tenant
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.Domain,
			&tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}
