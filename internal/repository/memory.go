package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"flowsentry/pkg/models"
)

// MemoryStore is an in-memory implementation of the Store interface. It
// backs the unit tests and lets the server run without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	executions []models.ExecutionRecord
	history    []models.ScanHistoryEntry
	settings   map[string]models.AlertSettings
	schedules  map[string]models.ScanSchedule
	scores     map[string]models.HealthScore // tenantID + "/" + workflowID
	tenants    []models.Tenant
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:  make(map[string]models.AlertSettings),
		schedules: make(map[string]models.ScanSchedule),
		scores:    make(map[string]models.HealthScore),
	}
}

// AppendExecution appends one execution outcome to the log.
func (s *MemoryStore) AppendExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, *rec)
	return nil
}

// ListExecutions returns records for a workflow at or after since,
// ordered by occurrence time ascending.
func (s *MemoryStore) ListExecutions(ctx context.Context, tenantID, workflowID string, since time.Time) ([]models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ExecutionRecord
	for _, rec := range s.executions {
		if rec.TenantID != tenantID || rec.WorkflowID != workflowID {
			continue
		}
		if rec.OccurredAt.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// AppendScanHistory records the outcome of one scan run.
func (s *MemoryStore) AppendScanHistory(ctx context.Context, entry *models.ScanHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, *entry)
	return nil
}

// ListScanHistory returns the most recent entries for a tenant, newest
// first.
func (s *MemoryStore) ListScanHistory(ctx context.Context, tenantID string, limit int) ([]models.ScanHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ScanHistoryEntry
	for _, entry := range s.history {
		if entry.TenantID == tenantID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetAlertSettings returns the tenant's alert configuration.
func (s *MemoryStore) GetAlertSettings(ctx context.Context, tenantID string) (*models.AlertSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[tenantID]
	if !ok {
		return nil, models.ErrSettingsNotFound
	}
	return &settings, nil
}

// UpsertAlertSettings replaces the tenant's alert configuration.
func (s *MemoryStore) UpsertAlertSettings(ctx context.Context, settings *models.AlertSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.TenantID] = *settings
	return nil
}

// GetScanSchedule returns the tenant's scan schedule.
func (s *MemoryStore) GetScanSchedule(ctx context.Context, tenantID string) (*models.ScanSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[tenantID]
	if !ok {
		return nil, models.ErrScheduleNotFound
	}
	return &schedule, nil
}

// UpsertScanSchedule replaces the tenant's scan schedule.
func (s *MemoryStore) UpsertScanSchedule(ctx context.Context, schedule *models.ScanSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.TenantID] = *schedule
	return nil
}

// DeleteScanSchedule removes the tenant's schedule. History is untouched.
func (s *MemoryStore) DeleteScanSchedule(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[tenantID]; !ok {
		return models.ErrScheduleNotFound
	}
	delete(s.schedules, tenantID)
	return nil
}

// ListScanSchedules returns every tenant's schedule.
func (s *MemoryStore) ListScanSchedules(ctx context.Context) ([]models.ScanSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ScanSchedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

// SaveHealthScore stores the latest score for a workflow.
func (s *MemoryStore) SaveHealthScore(ctx context.Context, tenantID string, score *models.HealthScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[tenantID+"/"+score.WorkflowID] = *score
	return nil
}

// GetHealthScore returns the latest stored score for a workflow.
func (s *MemoryStore) GetHealthScore(ctx context.Context, tenantID, workflowID string) (*models.HealthScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.scores[tenantID+"/"+workflowID]
	if !ok {
		return nil, models.ErrScoreNotFound
	}
	return &score, nil
}

// CreateTenant adds a tenant.
func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = append(s.tenants, *tenant)
	return nil
}

// GetTenantByDomain looks a tenant up by domain.
func (s *MemoryStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tenant := range s.tenants {
		if tenant.Domain == domain {
			t := tenant
			return &t, nil
		}
	}
	return nil, models.ErrTenantNotFound
}

// ListTenants returns all tenants.
func (s *MemoryStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Tenant, len(s.tenants))
	copy(out, s.tenants)
	return out, nil
}
