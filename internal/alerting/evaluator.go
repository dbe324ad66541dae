// Package alerting decides when alerts fire and delivers them over the
// configured channels.
package alerting

import (
	"fmt"

	"flowsentry/pkg/models"
)

// Evaluate compares metrics and scan findings against the tenant's alert
// settings. Idempotent and side-effect-free; deduplication of repeated
// firings is the dispatcher's job.
func Evaluate(settings *models.AlertSettings, m *models.FailureMetrics, findings []models.Finding) models.AlertDecision {
	if settings == nil || !settings.Enabled {
		return models.AlertDecision{Reason: "alerting disabled"}
	}

	if m != nil && settings.FailureThreshold > 0 && m.FailedExecutions >= settings.FailureThreshold {
		return models.AlertDecision{
			ShouldFire: true,
			Reason: fmt.Sprintf("%d failed executions in the last %dh (threshold %d, trend %s)",
				m.FailedExecutions, settings.TimeWindowHours, settings.FailureThreshold, m.Trend),
		}
	}

	if settings.AlertOnCritical {
		for _, f := range findings {
			if f.Severity == models.SeverityCritical {
				return models.AlertDecision{
					ShouldFire: true,
					Reason:     fmt.Sprintf("critical finding %s at node %s: %s", f.RuleID, f.NodeID, f.Description),
				}
			}
		}
	}

	return models.AlertDecision{Reason: "no threshold crossed"}
}
