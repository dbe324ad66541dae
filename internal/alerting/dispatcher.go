package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flowsentry/internal/logging"
	"flowsentry/pkg/models"
)

// DispatcherOptions tunes deduplication.
type DispatcherOptions struct {
	// Cooldown suppresses identical (tenant, reason) alerts after a
	// successful delivery.
	Cooldown time.Duration
	// MaxBackoff caps the doubling suppression window while the same
	// condition keeps firing.
	MaxBackoff time.Duration
}

type dedupEntry struct {
	lastSent time.Time
	backoff  time.Duration
}

// Dispatcher fans an alert out to the tenant's configured channels.
// Channels are attempted independently; a failing channel never blocks the
// other, and delivery failures are reported in the results, never escalated.
type Dispatcher struct {
	email   Notifier
	webhook Notifier
	opts    DispatcherOptions
	logger  *logging.Logger

	mu    sync.Mutex
	dedup map[string]dedupEntry

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewDispatcher creates a Dispatcher over the given channel notifiers.
func NewDispatcher(email, webhook Notifier, opts DispatcherOptions, logger *logging.Logger) *Dispatcher {
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Hour
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 24 * time.Hour
	}
	return &Dispatcher{
		email:   email,
		webhook: webhook,
		opts:    opts,
		logger:  logger,
		dedup:   make(map[string]dedupEntry),
		Now:     time.Now,
	}
}

// Dispatch sends the alert decision over every configured channel. Repeated
// firings for the same (tenant, reason) are suppressed within the current
// backoff window so unchanged state does not cause alert storms.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, decision models.AlertDecision, settings *models.AlertSettings) []models.DispatchResult {
	if !decision.ShouldFire {
		return nil
	}
	if d.suppressed(tenantID, decision.Reason) {
		d.logger.Debug("alert suppressed by dedup window", "tenant", tenantID, "reason", decision.Reason)
		return nil
	}

	alert := Alert{
		TenantID: tenantID,
		Subject:  "Workflow health alert",
		Body:     decision.Reason,
		Reason:   decision.Reason,
		FiredAt:  d.Now(),
	}

	results := d.deliver(ctx, alert, settings)
	for _, r := range results {
		if r.Success {
			d.recordSent(tenantID, decision.Reason)
			break
		}
	}
	return results
}

// SendTest bypasses evaluation and dedup entirely and exercises the
// configured channels directly, for configuration validation.
func (d *Dispatcher) SendTest(ctx context.Context, tenantID string, settings *models.AlertSettings) []models.DispatchResult {
	alert := Alert{
		TenantID: tenantID,
		Subject:  "Test alert",
		Body:     "This is a test alert confirming your notification settings.",
		Reason:   "test alert requested",
		Test:     true,
		FiredAt:  d.Now(),
	}
	return d.deliver(ctx, alert, settings)
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert, settings *models.AlertSettings) []models.DispatchResult {
	type attempt struct {
		notifier Notifier
		target   string
	}
	var attempts []attempt
	if settings.AlertEmail != "" && d.email != nil {
		attempts = append(attempts, attempt{d.email, settings.AlertEmail})
	}
	if settings.WebhookURL != "" && d.webhook != nil {
		attempts = append(attempts, attempt{d.webhook, settings.WebhookURL})
	}
	if len(attempts) == 0 {
		return []models.DispatchResult{{
			Channel: "none",
			Success: false,
			Error:   "no alert channels configured",
		}}
	}

	results := make([]models.DispatchResult, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			result := models.DispatchResult{Channel: a.notifier.Channel(), Success: true}
			if err := a.notifier.Send(ctx, a.target, alert); err != nil {
				result.Success = false
				result.Error = err.Error()
				d.logger.Warn("alert delivery failed",
					"channel", a.notifier.Channel(), "tenant", alert.TenantID, "error", err)
			}
			results[i] = result
		}(i, a)
	}
	wg.Wait()
	return results
}

func dedupKey(tenantID, reason string) string {
	return fmt.Sprintf("%s|%s", tenantID, reason)
}

func (d *Dispatcher) suppressed(tenantID, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.dedup[dedupKey(tenantID, reason)]
	if !ok {
		return false
	}
	return d.Now().Before(entry.lastSent.Add(entry.backoff))
}

func (d *Dispatcher) recordSent(tenantID, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey(tenantID, reason)
	entry, ok := d.dedup[key]
	if !ok {
		entry = dedupEntry{backoff: d.opts.Cooldown}
	} else {
		entry.backoff *= 2
		if entry.backoff > d.opts.MaxBackoff {
			entry.backoff = d.opts.MaxBackoff
		}
	}
	entry.lastSent = d.Now()
	d.dedup[key] = entry
}
