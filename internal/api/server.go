// Package api contains the HTTP handlers for the workflow health service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowsentry/internal/logging"
	"flowsentry/internal/services"
	"flowsentry/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	svc    *services.MonitorService
	logger *logging.Logger
}

// NewServer creates a new Server.
func NewServer(svc *services.MonitorService, logger *logging.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// RegisterRoutes mounts all handlers on the echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1/tenants/:tenant")
	v1.POST("/scans", s.RunScan)
	v1.GET("/scans", s.GetScanHistory)
	v1.POST("/executions", s.RecordExecution)
	v1.GET("/workflows/:workflow/score", s.GetHealthScore)
	v1.GET("/workflows/:workflow/metrics", s.GetFailureMetrics)
	v1.GET("/workflows/:workflow/failures", s.GetRecentFailures)
	v1.GET("/alert-settings", s.GetAlertSettings)
	v1.PUT("/alert-settings", s.UpsertAlertSettings)
	v1.POST("/alerts/test", s.SendTestAlert)
	v1.GET("/schedule", s.GetScanSchedule)
	v1.PUT("/schedule", s.UpsertScanSchedule)
	v1.DELETE("/schedule", s.DeleteScanSchedule)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "flowsentry",
		Version:   "1.0.0",
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problem writes an RFC 7807 Problem Details JSON error response.
func problem(c echo.Context, status int, title, detail string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeServiceError maps the service error taxonomy to problem responses.
func (s *Server) writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return problem(c, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, models.ErrScanInProgress):
		return problem(c, http.StatusConflict, "Scan in progress", err.Error())
	case errors.Is(err, models.ErrScoreNotFound),
		errors.Is(err, models.ErrSettingsNotFound),
		errors.Is(err, models.ErrScheduleNotFound),
		errors.Is(err, models.ErrTenantNotFound):
		return problem(c, http.StatusNotFound, "Not found", err.Error())
	default:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return problem(c, http.StatusInternalServerError, "Internal error", "an internal error occurred")
	}
}
