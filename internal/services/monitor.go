// Package services implements the application-level operations exposed by
// the API layer. It coordinates the analyzer, metrics, alerting and
// scheduling subsystems over the persistence layer.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flowsentry/internal/alerting"
	"flowsentry/internal/logging"
	"flowsentry/internal/metrics"
	"flowsentry/internal/repository"
	"flowsentry/internal/scheduler"
	"flowsentry/pkg/models"
)

// MonitorService is the facade over the workflow health subsystems.
type MonitorService struct {
	store      repository.Store
	scheduler  *scheduler.Scheduler
	metrics    *metrics.Engine
	dispatcher *alerting.Dispatcher
	logger     *logging.Logger
}

// NewMonitorService wires the service over its collaborators.
func NewMonitorService(store repository.Store, sched *scheduler.Scheduler,
	metricsEngine *metrics.Engine, dispatcher *alerting.Dispatcher,
	logger *logging.Logger) *MonitorService {
	return &MonitorService{
		store:      store,
		scheduler:  sched,
		metrics:    metricsEngine,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RunScan triggers an on-demand scan for the tenant. Returns
// models.ErrScanInProgress when the tenant already has a scan in flight.
func (s *MonitorService) RunScan(ctx context.Context, tenantID string, scope models.ScanScope) (*models.ScanHistoryEntry, error) {
	if scope != "" && scope != models.ScopeAll && scope != models.ScopeActive {
		return nil, fmt.Errorf("%w: unknown scan scope %q", models.ErrValidation, scope)
	}
	return s.scheduler.RunScan(ctx, tenantID, scope)
}

// GetHealthScore returns the latest stored score for a workflow.
func (s *MonitorService) GetHealthScore(ctx context.Context, tenantID, workflowID string) (*models.HealthScore, error) {
	return s.store.GetHealthScore(ctx, tenantID, workflowID)
}

// GetFailureMetrics computes failure rate and trend for a workflow over the
// trailing window.
func (s *MonitorService) GetFailureMetrics(ctx context.Context, tenantID, workflowID string, windowHours int) (*models.FailureMetrics, error) {
	return s.metrics.ComputeFailureMetrics(ctx, tenantID, workflowID, windowHours)
}

// GetRecentFailures returns failed executions within the trailing window,
// oldest first.
func (s *MonitorService) GetRecentFailures(ctx context.Context, tenantID, workflowID string, hours int) ([]models.ExecutionRecord, error) {
	return s.metrics.RecentFailures(ctx, tenantID, workflowID, hours)
}

// RecordExecution appends one workflow execution outcome to the log.
func (s *MonitorService) RecordExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.TenantID == "" || rec.WorkflowID == "" {
		return fmt.Errorf("%w: tenant and workflow ids are required", models.ErrValidation)
	}
	switch rec.Status {
	case models.ExecutionSuccess, models.ExecutionFailed:
	default:
		return fmt.Errorf("%w: unknown execution status %q", models.ErrValidation, rec.Status)
	}
	if rec.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", models.ErrValidation)
	}
	return s.store.AppendExecution(ctx, rec)
}

// UpsertAlertSettings replaces the tenant's alert configuration in full.
func (s *MonitorService) UpsertAlertSettings(ctx context.Context, settings *models.AlertSettings) (*models.AlertSettings, error) {
	if settings.FailureThreshold < 0 {
		return nil, fmt.Errorf("%w: failure threshold must not be negative", models.ErrValidation)
	}
	if settings.TimeWindowHours <= 0 {
		settings.TimeWindowHours = 24
	}

	settings.UpdatedAt = s.now()
	if err := s.store.UpsertAlertSettings(ctx, settings); err != nil {
		return nil, err
	}
	s.logger.Info("alert settings updated", "tenant", settings.TenantID, "enabled", settings.Enabled)
	return settings, nil
}

// GetAlertSettings returns the tenant's alert configuration.
func (s *MonitorService) GetAlertSettings(ctx context.Context, tenantID string) (*models.AlertSettings, error) {
	return s.store.GetAlertSettings(ctx, tenantID)
}

// SendTestAlert exercises the tenant's configured channels without touching
// evaluation state or dedup windows.
func (s *MonitorService) SendTestAlert(ctx context.Context, tenantID string) ([]models.DispatchResult, error) {
	settings, err := s.store.GetAlertSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.SendTest(ctx, tenantID, settings), nil
}

// UpsertScanSchedule replaces the tenant's recurring scan definition. Any
// change recomputes the next run time from the new definition.
func (s *MonitorService) UpsertScanSchedule(ctx context.Context, schedule *models.ScanSchedule) (*models.ScanSchedule, error) {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.ScanScope == "" {
		schedule.ScanScope = models.ScopeAll
	}
	if schedule.ScanScope != models.ScopeAll && schedule.ScanScope != models.ScopeActive {
		return nil, fmt.Errorf("%w: unknown scan scope %q", models.ErrValidation, schedule.ScanScope)
	}

	next, err := scheduler.ComputeNextRun(schedule, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	schedule.NextScanAt = next
	schedule.UpdatedAt = s.now()

	if err := s.store.UpsertScanSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	s.logger.Info("scan schedule updated",
		"tenant", schedule.TenantID, "frequency", schedule.Frequency, "next_scan_at", schedule.NextScanAt)
	return schedule, nil
}

// GetScanSchedule returns the tenant's scan schedule.
func (s *MonitorService) GetScanSchedule(ctx context.Context, tenantID string) (*models.ScanSchedule, error) {
	return s.store.GetScanSchedule(ctx, tenantID)
}

// DeleteScanSchedule removes the tenant's recurring scan. Past scan history
// is retained.
func (s *MonitorService) DeleteScanSchedule(ctx context.Context, tenantID string) error {
	return s.store.DeleteScanSchedule(ctx, tenantID)
}

// GetScanHistory returns the tenant's most recent scans, newest first.
func (s *MonitorService) GetScanHistory(ctx context.Context, tenantID string, limit int) ([]models.ScanHistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListScanHistory(ctx, tenantID, limit)
}

// now delegates to the scheduler's clock so tests steering that clock see
// consistent timestamps across the service.
func (s *MonitorService) now() time.Time {
	return s.scheduler.Now()
}
