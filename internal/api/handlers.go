package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"flowsentry/pkg/models"
)

// RunScanRequest selects the scope of an on-demand scan.
type RunScanRequest struct {
	Scope models.ScanScope `json:"scope"`
}

// RunScan triggers an on-demand scan for the tenant.
// (POST /api/v1/tenants/{tenant}/scans)
func (s *Server) RunScan(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := c.Param("tenant")

	var req RunScanRequest
	if err := c.Bind(&req); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", "invalid request body: "+err.Error())
	}

	entry, err := s.svc.RunScan(ctx, tenantID, req.Scope)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// GetScanHistory returns the tenant's recent scans, newest first.
// (GET /api/v1/tenants/{tenant}/scans)
func (s *Server) GetScanHistory(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := c.Param("tenant")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	history, err := s.svc.GetScanHistory(ctx, tenantID, limit)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// RecordExecution appends one workflow execution outcome.
// (POST /api/v1/tenants/{tenant}/executions)
func (s *Server) RecordExecution(c echo.Context) error {
	ctx := c.Request().Context()

	var rec models.ExecutionRecord
	if err := c.Bind(&rec); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", "invalid request body: "+err.Error())
	}
	rec.TenantID = c.Param("tenant")

	if err := s.svc.RecordExecution(ctx, &rec); err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// GetHealthScore returns the latest score for a workflow.
// (GET /api/v1/tenants/{tenant}/workflows/{workflow}/score)
func (s *Server) GetHealthScore(c echo.Context) error {
	ctx := c.Request().Context()

	score, err := s.svc.GetHealthScore(ctx, c.Param("tenant"), c.Param("workflow"))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, score)
}

// GetFailureMetrics returns failure rate and trend over the trailing window.
// (GET /api/v1/tenants/{tenant}/workflows/{workflow}/metrics)
func (s *Server) GetFailureMetrics(c echo.Context) error {
	ctx := c.Request().Context()
	windowHours, _ := strconv.Atoi(c.QueryParam("window_hours"))

	m, err := s.svc.GetFailureMetrics(ctx, c.Param("tenant"), c.Param("workflow"), windowHours)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// GetRecentFailures returns failed executions in the trailing window,
// oldest first.
// (GET /api/v1/tenants/{tenant}/workflows/{workflow}/failures)
func (s *Server) GetRecentFailures(c echo.Context) error {
	ctx := c.Request().Context()
	hours, _ := strconv.Atoi(c.QueryParam("hours"))

	failures, err := s.svc.GetRecentFailures(ctx, c.Param("tenant"), c.Param("workflow"), hours)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, failures)
}

// GetAlertSettings returns the tenant's alert configuration.
// (GET /api/v1/tenants/{tenant}/alert-settings)
func (s *Server) GetAlertSettings(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := s.svc.GetAlertSettings(ctx, c.Param("tenant"))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// UpsertAlertSettings replaces the tenant's alert configuration in full.
// (PUT /api/v1/tenants/{tenant}/alert-settings)
func (s *Server) UpsertAlertSettings(c echo.Context) error {
	ctx := c.Request().Context()

	var settings models.AlertSettings
	if err := c.Bind(&settings); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", "invalid request body: "+err.Error())
	}
	settings.TenantID = c.Param("tenant")

	stored, err := s.svc.UpsertAlertSettings(ctx, &settings)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, stored)
}

// SendTestAlert exercises the tenant's configured channels.
// (POST /api/v1/tenants/{tenant}/alerts/test)
func (s *Server) SendTestAlert(c echo.Context) error {
	ctx := c.Request().Context()

	results, err := s.svc.SendTestAlert(ctx, c.Param("tenant"))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}

// GetScanSchedule returns the tenant's recurring scan definition.
// (GET /api/v1/tenants/{tenant}/schedule)
func (s *Server) GetScanSchedule(c echo.Context) error {
	ctx := c.Request().Context()

	schedule, err := s.svc.GetScanSchedule(ctx, c.Param("tenant"))
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, schedule)
}

// UpsertScanSchedule replaces the tenant's recurring scan definition.
// (PUT /api/v1/tenants/{tenant}/schedule)
func (s *Server) UpsertScanSchedule(c echo.Context) error {
	ctx := c.Request().Context()

	var schedule models.ScanSchedule
	if err := c.Bind(&schedule); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid request", "invalid request body: "+err.Error())
	}
	schedule.TenantID = c.Param("tenant")

	stored, err := s.svc.UpsertScanSchedule(ctx, &schedule)
	if err != nil {
		return s.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, stored)
}

// DeleteScanSchedule removes the tenant's recurring scan.
// (DELETE /api/v1/tenants/{tenant}/schedule)
func (s *Server) DeleteScanSchedule(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.svc.DeleteScanSchedule(ctx, c.Param("tenant")); err != nil {
		return s.writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
