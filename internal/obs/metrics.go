// Package obs exposes operational counters for the service.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansStarted counts scan runs by trigger ("scheduled" or "manual").
	ScansStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowsentry_scans_started_total",
		Help: "Number of scans started, by trigger.",
	}, []string{"trigger"})

	// ScansCompleted counts finished scans by terminal status.
	ScansCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowsentry_scans_completed_total",
		Help: "Number of scans finished, by status.",
	}, []string{"status"})

	// FindingsTotal counts findings emitted, by severity.
	FindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowsentry_findings_total",
		Help: "Number of findings produced by scans, by severity.",
	}, []string{"severity"})

	// AlertsFired counts alert decisions that fired.
	AlertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowsentry_alerts_fired_total",
		Help: "Number of alerts that fired.",
	})

	// DispatchFailures counts channel-level delivery failures.
	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowsentry_dispatch_failures_total",
		Help: "Number of alert delivery failures, by channel.",
	}, []string{"channel"})
)
