// Package models defines the domain models for the workflow health service.
package models

import (
	"time"
)

// NodeKind classifies a workflow node.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
	NodeKindDelay     NodeKind = "delay"
)

// Node is a single step in a workflow graph.
type Node struct {
	ID         string         `json:"id"`
	Kind       NodeKind       `json:"kind"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// WorkflowGraph is the typed representation of an automation workflow as
// fetched from the workflow source. Graphs are never persisted; only the
// findings and scores derived from them are.
type WorkflowGraph struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Severity classifies the impact of a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is a single detected defect in a workflow graph. Findings are
// immutable once produced.
type Finding struct {
	RuleID         string   `json:"rule_id"`
	Severity       Severity `json:"severity"`
	NodeID         string   `json:"node_id,omitempty"`
	Description    string   `json:"description"`
	PointsDeducted int      `json:"points_deducted"`
}

// HealthScore aggregates a workflow's findings into a 0-100 score.
type HealthScore struct {
	WorkflowID string    `json:"workflow_id"`
	Score      int       `json:"score"`
	Findings   []Finding `json:"findings"`
	ComputedAt time.Time `json:"computed_at"`
}

// ExecutionStatus is the outcome of a single workflow execution.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ExecutionRecord is one observed workflow execution outcome. Records are
// append-only and immutable once written.
type ExecutionRecord struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	WorkflowID       string          `json:"workflow_id"`
	Status           ExecutionStatus `json:"status"`
	ExecutionTimeMs  int64           `json:"execution_time_ms"`
	FailedActionID   string          `json:"failed_action_id,omitempty"`
	FailedActionName string          `json:"failed_action_name,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// Trend classifies the direction of the recent failure rate relative to an
// earlier sub-window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
)

// FailureMetrics is derived from execution records on demand and never
// stored.
type FailureMetrics struct {
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
	TotalExecutions  int       `json:"total_executions"`
	FailedExecutions int       `json:"failed_executions"`
	FailureRatePct   float64   `json:"failure_rate_pct"`
	Trend            Trend     `json:"trend"`
}

// AlertSettings is the per-tenant alert configuration. One active
// configuration per tenant; replacing settings is a full overwrite.
type AlertSettings struct {
	TenantID         string    `json:"tenant_id"`
	Enabled          bool      `json:"enabled"`
	FailureThreshold int       `json:"failure_threshold"`
	TimeWindowHours  int       `json:"time_window_hours"`
	AlertOnCritical  bool      `json:"alert_on_critical"`
	AlertEmail       string    `json:"alert_email,omitempty"`
	WebhookURL       string    `json:"webhook_url,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ScanFrequency is how often a recurring scan runs.
type ScanFrequency string

const (
	FrequencyDaily  ScanFrequency = "daily"
	FrequencyWeekly ScanFrequency = "weekly"
)

// ScanScope selects which workflows a scan covers.
type ScanScope string

const (
	ScopeAll    ScanScope = "all"
	ScopeActive ScanScope = "active"
)

// ScanSchedule is a tenant's recurring scan definition. At most one active
// schedule exists per tenant.
type ScanSchedule struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	Enabled       bool          `json:"enabled"`
	Frequency     ScanFrequency `json:"frequency"`
	PreferredTime string        `json:"preferred_time"` // "HH:MM" local time
	Timezone      string        `json:"timezone"`       // IANA name
	Weekday       time.Weekday  `json:"weekday"`        // weekly schedules only
	ScanScope     ScanScope     `json:"scan_scope"`
	NextScanAt    time.Time     `json:"next_scan_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ScanStatus is the terminal outcome of one scan run.
type ScanStatus string

const (
	ScanSuccess ScanStatus = "success"
	ScanPartial ScanStatus = "partial"
	ScanFailed  ScanStatus = "failed"
)

// ScanHistoryEntry is one row of the append-only scan audit trail.
type ScanHistoryEntry struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	ScheduleID       string     `json:"schedule_id,omitempty"` // empty for on-demand runs
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      time.Time  `json:"completed_at"`
	Status           ScanStatus `json:"status"`
	WorkflowsScanned int        `json:"workflows_scanned"`
	IssuesFound      int        `json:"issues_found"`
}

// AlertDecision is the evaluator's verdict on whether an alert should fire.
type AlertDecision struct {
	ShouldFire bool   `json:"should_fire"`
	Reason     string `json:"reason"`
}

// AlertChannel identifies a delivery channel.
type AlertChannel string

const (
	ChannelEmail   AlertChannel = "email"
	ChannelWebhook AlertChannel = "webhook"
)

// DispatchResult reports the outcome of one channel's delivery attempt.
// Delivery failures are carried here, never escalated.
type DispatchResult struct {
	Channel AlertChannel `json:"channel"`
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
}
