// Package repository defines the persistence contracts for the service and
// provides postgres and in-memory implementations.
package repository

import (
	"context"
	"time"

	"flowsentry/pkg/models"
)

// ExecutionLog is the append/query contract for per-execution outcomes.
// Appends must be safe for concurrent use; records are immutable once
// written.
type ExecutionLog interface {
	// AppendExecution appends one execution outcome to the log.
	AppendExecution(ctx context.Context, rec *models.ExecutionRecord) error
	// ListExecutions returns records for a workflow occurring at or after
	// since, ordered by occurrence time ascending.
	ListExecutions(ctx context.Context, tenantID, workflowID string, since time.Time) ([]models.ExecutionRecord, error)
}

// ScanHistory is the append/query contract for the scan audit trail.
type ScanHistory interface {
	// AppendScanHistory records the outcome of one scan run.
	AppendScanHistory(ctx context.Context, entry *models.ScanHistoryEntry) error
	// ListScanHistory returns the most recent entries for a tenant,
	// newest first, capped at limit.
	ListScanHistory(ctx context.Context, tenantID string, limit int) ([]models.ScanHistoryEntry, error)
}

// Settings stores the single active alert configuration per tenant.
// Upserting is a full overwrite, not a merge.
type Settings interface {
	GetAlertSettings(ctx context.Context, tenantID string) (*models.AlertSettings, error)
	UpsertAlertSettings(ctx context.Context, settings *models.AlertSettings) error
}

// Schedules stores at most one scan schedule per tenant. Deleting a
// schedule leaves scan history intact.
type Schedules interface {
	GetScanSchedule(ctx context.Context, tenantID string) (*models.ScanSchedule, error)
	UpsertScanSchedule(ctx context.Context, schedule *models.ScanSchedule) error
	DeleteScanSchedule(ctx context.Context, tenantID string) error
	// ListScanSchedules returns every tenant's schedule; the scheduler
	// tick scans these for due runs.
	ListScanSchedules(ctx context.Context) ([]models.ScanSchedule, error)
}

// Scores stores the latest computed health score per workflow.
type Scores interface {
	SaveHealthScore(ctx context.Context, tenantID string, score *models.HealthScore) error
	GetHealthScore(ctx context.Context, tenantID, workflowID string) (*models.HealthScore, error)
}

// Tenants manages tenant records.
type Tenants interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
}

// Store is the full persistence surface the service depends on.
type Store interface {
	ExecutionLog
	ScanHistory
	Settings
	Schedules
	Scores
	Tenants
}
