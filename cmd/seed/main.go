// Seed populates the database with a demo tenant, alert settings, a scan
// schedule and a synthetic execution history, so the service has something
// to scan and score out of the box.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowsentry/internal/config"
	"flowsentry/internal/logging"
	"flowsentry/internal/repository"
	"flowsentry/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// 1. Ensure the demo tenant exists.
	domain := "localhost"
	tenant, err := store.GetTenantByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default tenant", "domain", domain)
		now := time.Now()
		tenant = &models.Tenant{
			ID:        uuid.New().String(),
			Name:      "Local Dev Tenant",
			Domain:    domain,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateTenant(ctx, tenant); err != nil {
			log.Fatalf("Failed to create tenant: %v", err)
		}
	} else {
		logger.Info("Found existing tenant", "id", tenant.ID)
	}

	// 2. Alert settings: threshold alerting with criticals enabled.
	if err := store.UpsertAlertSettings(ctx, &models.AlertSettings{
		TenantID:         tenant.ID,
		Enabled:          true,
		FailureThreshold: 3,
		TimeWindowHours:  24,
		AlertOnCritical:  true,
		WebhookURL:       "https://hooks.example.com/flowsentry-demo",
		UpdatedAt:        time.Now(),
	}); err != nil {
		log.Fatalf("Failed to seed alert settings: %v", err)
	}
	logger.Info("Seeded alert settings", "tenant", tenant.ID)

	// 3. A daily scan schedule.
	if err := store.UpsertScanSchedule(ctx, &models.ScanSchedule{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		Enabled:       true,
		Frequency:     models.FrequencyDaily,
		PreferredTime: "03:00",
		Timezone:      "UTC",
		ScanScope:     models.ScopeAll,
		NextScanAt:    time.Now().Add(time.Minute),
		UpdatedAt:     time.Now(),
	}); err != nil {
		log.Fatalf("Failed to seed scan schedule: %v", err)
	}
	logger.Info("Seeded scan schedule", "tenant", tenant.ID)

	// 4. A synthetic execution history: one workflow trending toward
	// failure so metrics and alerts have something to chew on.
	now := time.Now()
	executions := []struct {
		workflowID string
		status     models.ExecutionStatus
		age        time.Duration
		errMsg     string
	}{
		{"wf-welcome-sequence", models.ExecutionSuccess, 20 * time.Hour, ""},
		{"wf-welcome-sequence", models.ExecutionSuccess, 16 * time.Hour, ""},
		{"wf-welcome-sequence", models.ExecutionFailed, 6 * time.Hour, "webhook timed out"},
		{"wf-welcome-sequence", models.ExecutionFailed, 4 * time.Hour, "webhook timed out"},
		{"wf-welcome-sequence", models.ExecutionFailed, 2 * time.Hour, "webhook timed out"},
		{"wf-lead-nurture", models.ExecutionSuccess, 12 * time.Hour, ""},
		{"wf-lead-nurture", models.ExecutionSuccess, 3 * time.Hour, ""},
	}

	for _, e := range executions {
		rec := &models.ExecutionRecord{
			ID:              uuid.New().String(),
			TenantID:        tenant.ID,
			WorkflowID:      e.workflowID,
			Status:          e.status,
			ExecutionTimeMs: 850,
			ErrorMessage:    e.errMsg,
			OccurredAt:      now.Add(-e.age),
		}
		if e.errMsg != "" {
			rec.FailedActionID = "a-send-webhook"
			rec.FailedActionName = "Send webhook"
		}
		if err := store.AppendExecution(ctx, rec); err != nil {
			log.Printf("Failed to seed execution for %s: %v", e.workflowID, err)
		}
	}
	logger.Info("Seeded execution history", "records", len(executions))

	logger.Info("Seeding complete!")
}
