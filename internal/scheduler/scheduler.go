// Package scheduler owns recurring scan definitions and drives the
// analysis and alert-evaluation cycle.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowsentry/internal/alerting"
	"flowsentry/internal/analyzer"
	"flowsentry/internal/logging"
	"flowsentry/internal/metrics"
	"flowsentry/internal/obs"
	"flowsentry/internal/repository"
	"flowsentry/internal/source"
	"flowsentry/pkg/models"
)

// Options tunes the scheduler.
type Options struct {
	// TickInterval is how often due schedules are checked.
	TickInterval time.Duration
	// WorkflowTimeout bounds the analysis of a single workflow so one
	// pathological graph cannot stall a tenant's whole scan.
	WorkflowTimeout time.Duration
}

// Scheduler runs scans, on a recurring schedule and on demand. Scan
// execution is serialized per tenant; scans for different tenants run
// concurrently.
type Scheduler struct {
	store      repository.Store
	source     source.WorkflowSource
	engine     *analyzer.Engine
	metrics    *metrics.Engine
	dispatcher *alerting.Dispatcher
	logger     *logging.Logger
	opts       Options

	mu      sync.Mutex
	running map[string]bool

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// New creates a Scheduler.
func New(store repository.Store, src source.WorkflowSource, engine *analyzer.Engine,
	metricsEngine *metrics.Engine, dispatcher *alerting.Dispatcher,
	logger *logging.Logger, opts Options) *Scheduler {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.WorkflowTimeout <= 0 {
		opts.WorkflowTimeout = 5 * time.Second
	}
	return &Scheduler{
		store:      store,
		source:     src,
		engine:     engine,
		metrics:    metricsEngine,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
		running:    make(map[string]bool),
		Now:        time.Now,
	}
}

// Start runs the ticking loop until ctx is cancelled. Each tick checks
// every tenant's schedule and launches due scans.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	s.logger.Info("scan scheduler started", "tick_interval", s.opts.TickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan scheduler stopped")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue launches a scan for every enabled schedule whose next run time has
// passed. Tenants with a scan already running are skipped; their schedule
// fires again on a later tick.
func (s *Scheduler) runDue(ctx context.Context) {
	schedules, err := s.store.ListScanSchedules(ctx)
	if err != nil {
		s.logger.Error("failed to list scan schedules", "error", err)
		return
	}

	now := s.Now()
	for _, schedule := range schedules {
		if !schedule.Enabled || schedule.NextScanAt.After(now) {
			continue
		}
		schedule := schedule
		go func() {
			if _, err := s.runScheduled(ctx, &schedule); err != nil {
				if !errors.Is(err, models.ErrScanInProgress) {
					s.logger.Error("scheduled scan failed",
						"tenant", schedule.TenantID, "error", err)
				}
			}
		}()
	}
}

// runScheduled executes one due scheduled scan and advances NextScanAt.
func (s *Scheduler) runScheduled(ctx context.Context, schedule *models.ScanSchedule) (*models.ScanHistoryEntry, error) {
	if !s.acquire(schedule.TenantID) {
		return nil, models.ErrScanInProgress
	}
	defer s.release(schedule.TenantID)

	obs.ScansStarted.WithLabelValues("scheduled").Inc()
	entry := s.scan(ctx, schedule.TenantID, schedule.ID, schedule.ScanScope)

	// Advance the recurrence regardless of scan outcome; a failed run
	// must not freeze the schedule.
	next, err := ComputeNextRun(schedule, s.Now())
	if err != nil {
		s.logger.Error("failed to compute next run", "tenant", schedule.TenantID, "error", err)
	} else {
		schedule.NextScanAt = next
		schedule.UpdatedAt = s.Now()
		if err := s.store.UpsertScanSchedule(ctx, schedule); err != nil {
			s.logger.Error("failed to persist next run", "tenant", schedule.TenantID, "error", err)
		}
	}
	return entry, nil
}

// RunScan executes an on-demand scan for the tenant. A scan already in
// flight for the tenant yields ErrScanInProgress; the caller should retry
// later.
func (s *Scheduler) RunScan(ctx context.Context, tenantID string, scope models.ScanScope) (*models.ScanHistoryEntry, error) {
	if scope == "" {
		scope = models.ScopeAll
	}
	if !s.acquire(tenantID) {
		return nil, models.ErrScanInProgress
	}
	defer s.release(tenantID)

	obs.ScansStarted.WithLabelValues("manual").Inc()
	return s.scan(ctx, tenantID, "", scope), nil
}

func (s *Scheduler) acquire(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tenantID] {
		return false
	}
	s.running[tenantID] = true
	return true
}

func (s *Scheduler) release(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, tenantID)
}

// scan analyzes every in-scope workflow, persists scores and the history
// entry, and triggers alert evaluation. A scan runs to completion or
// failure; per-workflow errors never abort the tenant's scan.
func (s *Scheduler) scan(ctx context.Context, tenantID, scheduleID string, scope models.ScanScope) *models.ScanHistoryEntry {
	startedAt := s.Now()
	entry := &models.ScanHistoryEntry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		ScheduleID: scheduleID,
		StartedAt:  startedAt,
	}

	workflows, err := s.source.FetchWorkflows(ctx, tenantID, scope)
	if err != nil {
		s.logger.Error("workflow source fetch failed", "tenant", tenantID, "error", err)
		entry.Status = models.ScanFailed
		entry.CompletedAt = s.Now()
		s.appendHistory(ctx, entry)
		obs.ScansCompleted.WithLabelValues(string(models.ScanFailed)).Inc()
		return entry
	}

	var aggregate []models.Finding
	var scannedIDs []string
	analyzed, failed := 0, 0
	infraFailure := false

	for i := range workflows {
		wf := &workflows[i]
		findings, err := s.analyzeOne(ctx, wf)
		if err != nil {
			failed++
			s.logger.Warn("workflow analysis failed",
				"tenant", tenantID, "workflow", wf.ID, "error", err)
			continue
		}

		score := analyzer.Score(wf.ID, findings, s.Now())
		if err := s.store.SaveHealthScore(ctx, tenantID, &score); err != nil {
			// Persistence failures are infrastructure-level: stop the
			// loop and record the scan as failed/partial.
			s.logger.Error("failed to persist health score",
				"tenant", tenantID, "workflow", wf.ID, "error", err)
			infraFailure = true
			break
		}

		analyzed++
		scannedIDs = append(scannedIDs, wf.ID)
		aggregate = append(aggregate, findings...)
		for _, f := range findings {
			obs.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
		}
	}

	entry.WorkflowsScanned = analyzed
	entry.IssuesFound = len(aggregate)
	entry.CompletedAt = s.Now()
	entry.Status = scanStatus(analyzed, failed, len(workflows), infraFailure)

	s.appendHistory(ctx, entry)
	obs.ScansCompleted.WithLabelValues(string(entry.Status)).Inc()

	s.logger.Info("scan completed",
		"tenant", tenantID,
		"status", entry.Status,
		"workflows_scanned", entry.WorkflowsScanned,
		"issues_found", entry.IssuesFound,
	)

	if !infraFailure {
		s.evaluateAlerts(ctx, tenantID, scannedIDs, aggregate)
	}
	return entry
}

// analyzeOne bounds one workflow's analysis with the per-workflow timeout.
func (s *Scheduler) analyzeOne(ctx context.Context, wf *models.WorkflowGraph) ([]models.Finding, error) {
	wfCtx, cancel := context.WithTimeout(ctx, s.opts.WorkflowTimeout)
	defer cancel()
	return s.engine.Analyze(wfCtx, wf)
}

func scanStatus(analyzed, failed, total int, infraFailure bool) models.ScanStatus {
	switch {
	case infraFailure && analyzed > 0:
		return models.ScanPartial
	case infraFailure:
		return models.ScanFailed
	case total > 0 && analyzed == 0 && failed > 0:
		return models.ScanFailed
	case failed > 0:
		return models.ScanPartial
	default:
		return models.ScanSuccess
	}
}

func (s *Scheduler) appendHistory(ctx context.Context, entry *models.ScanHistoryEntry) {
	if err := s.store.AppendScanHistory(ctx, entry); err != nil {
		s.logger.Error("failed to append scan history",
			"tenant", entry.TenantID, "error", err)
	}
}

// evaluateAlerts consults the tenant's settings against the scan's
// aggregate findings and each scanned workflow's failure metrics, and
// dispatches when warranted. Dispatch failures are logged and counted,
// never escalated.
func (s *Scheduler) evaluateAlerts(ctx context.Context, tenantID string, workflowIDs []string, findings []models.Finding) {
	settings, err := s.store.GetAlertSettings(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, models.ErrSettingsNotFound) {
			s.logger.Error("failed to load alert settings", "tenant", tenantID, "error", err)
		}
		return
	}
	if !settings.Enabled {
		return
	}

	// Critical findings alone can fire; the failure threshold is checked
	// per workflow over the configured window.
	decision := alerting.Evaluate(settings, nil, findings)
	for _, workflowID := range workflowIDs {
		if decision.ShouldFire {
			break
		}
		m, err := s.metrics.ComputeFailureMetrics(ctx, tenantID, workflowID, settings.TimeWindowHours)
		if err != nil {
			s.logger.Error("failed to compute failure metrics",
				"tenant", tenantID, "workflow", workflowID, "error", err)
			continue
		}
		decision = alerting.Evaluate(settings, m, nil)
	}
	if !decision.ShouldFire {
		return
	}

	obs.AlertsFired.Inc()
	results := s.dispatcher.Dispatch(ctx, tenantID, decision, settings)
	for _, r := range results {
		if !r.Success {
			obs.DispatchFailures.WithLabelValues(string(r.Channel)).Inc()
		}
	}
}
