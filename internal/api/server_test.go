package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsentry/internal/alerting"
	"flowsentry/internal/analyzer"
	"flowsentry/internal/logging"
	"flowsentry/internal/metrics"
	"flowsentry/internal/repository"
	"flowsentry/internal/scheduler"
	"flowsentry/internal/services"
	"flowsentry/internal/source"
	"flowsentry/pkg/models"
)

func newTestServer(t *testing.T, workflows map[string][]models.WorkflowGraph) *echo.Echo {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := logging.NewNopLogger()
	dispatcher := alerting.NewDispatcher(nil, nil, alerting.DispatcherOptions{}, logger)
	metricsEngine := metrics.New(store, metrics.NopCache{}, metrics.Options{})
	sched := scheduler.New(store, &source.StaticSource{Workflows: workflows},
		analyzer.NewEngine(analyzer.Options{}), metricsEngine, dispatcher, logger, scheduler.Options{})
	svc := services.NewMonitorService(store, sched, metricsEngine, dispatcher, logger)

	e := echo.New()
	NewServer(svc, logger).RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "flowsentry", status.Service)
}

func TestRunScanEndpoint(t *testing.T) {
	e := newTestServer(t, map[string][]models.WorkflowGraph{
		"acme": {{
			ID:   "wf-1",
			Name: "Onboarding",
			Nodes: []models.Node{
				{ID: "t", Kind: models.NodeKindTrigger, Attributes: map[string]any{
					"trigger_type": "signup", "description": "on signup",
				}},
			},
		}},
	})

	rec := doJSON(e, http.MethodPost, "/api/v1/tenants/acme/scans", `{"scope":"all"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var entry models.ScanHistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, models.ScanSuccess, entry.Status)
	assert.Equal(t, 1, entry.WorkflowsScanned)

	// The run shows up in history.
	rec = doJSON(e, http.MethodGet, "/api/v1/tenants/acme/scans?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.ScanHistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, entry.ID, history[0].ID)

	// And the workflow now has a score.
	rec = doJSON(e, http.MethodGet, "/api/v1/tenants/acme/workflows/wf-1/score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var score models.HealthScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &score))
	assert.Equal(t, 100, score.Score)
}

func TestRunScanEndpoint_InvalidScope(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/tenants/acme/scans", `{"scope":"everything"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")

	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "Invalid request", p.Title)
}

func TestGetHealthScore_NotFound(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/tenants/acme/workflows/ghost/score", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Not found", p.Title)
}

func TestRecordExecutionEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	body := fmt.Sprintf(`{"workflow_id":"wf-1","status":"failed","occurred_at":%q}`,
		time.Now().Add(-time.Hour).Format(time.RFC3339))
	rec := doJSON(e, http.MethodPost, "/api/v1/tenants/acme/executions", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var stored models.ExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, "acme", stored.TenantID)
	assert.NotEmpty(t, stored.ID)

	// Unknown status is rejected up front.
	rec = doJSON(e, http.MethodPost, "/api/v1/tenants/acme/executions",
		`{"workflow_id":"wf-1","status":"crashed","occurred_at":"2026-08-24T10:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The record feeds the metrics endpoints.
	rec = doJSON(e, http.MethodGet, "/api/v1/tenants/acme/workflows/wf-1/metrics?window_hours=24", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m models.FailureMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 1, m.TotalExecutions)
	assert.Equal(t, 1, m.FailedExecutions)

	rec = doJSON(e, http.MethodGet, "/api/v1/tenants/acme/workflows/wf-1/failures?hours=24", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var failures []models.ExecutionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failures))
	assert.Len(t, failures, 1)
}

func TestAlertSettingsEndpoints(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodGet, "/api/v1/tenants/acme/alert-settings", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodPut, "/api/v1/tenants/acme/alert-settings",
		`{"enabled":true,"failure_threshold":3,"alert_on_critical":true,"alert_email":"ops@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/tenants/acme/alert-settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var settings models.AlertSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "acme", settings.TenantID)
	assert.Equal(t, 3, settings.FailureThreshold)
	assert.Equal(t, 24, settings.TimeWindowHours)

	rec = doJSON(e, http.MethodPut, "/api/v1/tenants/acme/alert-settings",
		`{"enabled":true,"failure_threshold":-2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendTestAlertEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/v1/tenants/acme/alerts/test", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(e, http.MethodPut, "/api/v1/tenants/acme/alert-settings", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/tenants/acme/alerts/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []models.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestScanScheduleEndpoints(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPut, "/api/v1/tenants/acme/schedule",
		`{"enabled":true,"frequency":"daily","preferred_time":"02:00","timezone":"UTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var schedule models.ScanSchedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedule))
	assert.NotEmpty(t, schedule.ID)
	assert.True(t, schedule.NextScanAt.After(time.Now()))

	rec = doJSON(e, http.MethodGet, "/api/v1/tenants/acme/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPut, "/api/v1/tenants/acme/schedule",
		`{"enabled":true,"frequency":"hourly","preferred_time":"02:00","timezone":"UTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/tenants/acme/schedule", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/tenants/acme/schedule", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
