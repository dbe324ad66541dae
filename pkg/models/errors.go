package models

import "errors"

// Error taxonomy for the core. Per-workflow and per-channel failures stay
// contained; only infrastructure failures escalate a whole scan.
var (
	// ErrInvalidGraph marks a workflow graph whose edges reference
	// missing nodes. Analysis of that workflow aborts; the scan continues.
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrScanInProgress rejects an on-demand scan while one is already
	// running for the tenant. Callers should retry later.
	ErrScanInProgress = errors.New("scan already in progress for tenant")

	// ErrScheduleNotFound is returned for operations against a tenant
	// with no scan schedule.
	ErrScheduleNotFound = errors.New("scan schedule not found")

	// ErrSettingsNotFound is returned when a tenant has no alert
	// settings configured.
	ErrSettingsNotFound = errors.New("alert settings not found")

	// ErrScoreNotFound is returned when no scan has scored the workflow
	// yet.
	ErrScoreNotFound = errors.New("health score not found")

	// ErrTenantNotFound is returned for lookups of unknown tenants.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrValidation marks a request rejected before it touched any state.
	// Wrap it with the specific field problem.
	ErrValidation = errors.New("validation failed")
)
