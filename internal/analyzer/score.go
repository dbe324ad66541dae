package analyzer

import (
	"time"

	"flowsentry/pkg/models"
)

// Score aggregates findings into a 0-100 health score. Pure function:
// score = max(0, 100 - sum of points deducted), clamped to [0,100].
func Score(workflowID string, findings []models.Finding, now time.Time) models.HealthScore {
	total := 0
	for _, f := range findings {
		total += f.PointsDeducted
	}
	score := 100 - total
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return models.HealthScore{
		WorkflowID: workflowID,
		Score:      score,
		Findings:   findings,
		ComputedAt: now,
	}
}
