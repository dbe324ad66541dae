// Package metrics computes failure rates and trends from the execution
// log. Computation is read-only and snapshot-based; it never locks the log.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flowsentry/internal/repository"
	"flowsentry/pkg/models"
)

// Options tunes the metrics engine.
type Options struct {
	// TrendMarginPct is the relative margin, in percentage points, by
	// which the second half-window's failure rate must differ from the
	// first half's before the trend leaves "stable". This is a tunable
	// heuristic, not a statistical test.
	TrendMarginPct float64
	// CacheTTL bounds how long a computed metrics snapshot is reused.
	CacheTTL time.Duration
}

// Engine derives FailureMetrics from execution records on demand.
type Engine struct {
	log   repository.ExecutionLog
	cache Cache
	opts  Options

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// New creates a metrics Engine. A nil cache disables memoization.
func New(log repository.ExecutionLog, cache Cache, opts Options) *Engine {
	if cache == nil {
		cache = NopCache{}
	}
	if opts.TrendMarginPct <= 0 {
		opts.TrendMarginPct = 10
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &Engine{log: log, cache: cache, opts: opts, Now: time.Now}
}

// ComputeFailureMetrics computes the failure rate and trend for a workflow
// over the trailing windowHours.
func (e *Engine) ComputeFailureMetrics(ctx context.Context, tenantID, workflowID string, windowHours int) (*models.FailureMetrics, error) {
	if windowHours <= 0 {
		windowHours = 24
	}

	key := fmt.Sprintf("metrics:%s:%s:%d", tenantID, workflowID, windowHours)
	if raw, ok := e.cache.Get(key); ok {
		var cached models.FailureMetrics
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	windowEnd := e.Now()
	windowStart := windowEnd.Add(-time.Duration(windowHours) * time.Hour)

	records, err := e.log.ListExecutions(ctx, tenantID, workflowID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}

	total, failed := 0, 0
	midpoint := windowStart.Add(windowEnd.Sub(windowStart) / 2)
	var firstTotal, firstFailed, secondTotal, secondFailed int

	for _, rec := range records {
		total++
		isFailed := rec.Status == models.ExecutionFailed
		if isFailed {
			failed++
		}
		if rec.OccurredAt.Before(midpoint) {
			firstTotal++
			if isFailed {
				firstFailed++
			}
		} else {
			secondTotal++
			if isFailed {
				secondFailed++
			}
		}
	}

	m := &models.FailureMetrics{
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		TotalExecutions:  total,
		FailedExecutions: failed,
		FailureRatePct:   ratePct(failed, total),
		Trend:            e.trend(firstFailed, firstTotal, secondFailed, secondTotal),
	}

	if raw, err := json.Marshal(m); err == nil {
		e.cache.Set(key, raw, e.opts.CacheTTL)
	}
	return m, nil
}

// RecentFailures returns the failed executions for a workflow within the
// trailing window, oldest first.
func (e *Engine) RecentFailures(ctx context.Context, tenantID, workflowID string, hours int) ([]models.ExecutionRecord, error) {
	if hours <= 0 {
		hours = 24
	}
	since := e.Now().Add(-time.Duration(hours) * time.Hour)

	records, err := e.log.ListExecutions(ctx, tenantID, workflowID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}

	failures := make([]models.ExecutionRecord, 0)
	for _, rec := range records {
		if rec.Status == models.ExecutionFailed {
			failures = append(failures, rec)
		}
	}
	return failures, nil
}

// ratePct is 0 for an empty window, never NaN.
func ratePct(failed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total) * 100
}

// trend compares the failure rate of the second half-window against the
// first. The margin keeps noise from flapping the classification.
func (e *Engine) trend(firstFailed, firstTotal, secondFailed, secondTotal int) models.Trend {
	firstRate := ratePct(firstFailed, firstTotal)
	secondRate := ratePct(secondFailed, secondTotal)

	switch {
	case secondRate-firstRate > e.opts.TrendMarginPct:
		return models.TrendWorsening
	case firstRate-secondRate > e.opts.TrendMarginPct:
		return models.TrendImproving
	default:
		return models.TrendStable
	}
}
