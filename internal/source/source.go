// Package source fetches workflow graphs from the automation platform.
// The platform's API semantics are out of scope; the core only depends on
// the WorkflowSource contract.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"flowsentry/pkg/models"
)

// WorkflowSource returns the workflow graphs in scope for a tenant. Graphs
// are fetched fresh per scan and never persisted.
type WorkflowSource interface {
	FetchWorkflows(ctx context.Context, tenantID string, scope models.ScanScope) ([]models.WorkflowGraph, error)
}

// HTTPSourceConfig configures the HTTP workflow source client.
type HTTPSourceConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
}

// HTTPSource fetches workflow graphs from an HTTP endpoint exposing
// GET {base}/tenants/{tenant}/workflows?scope={scope}.
type HTTPSource struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPSource creates an HTTPSource with retries and timeouts applied to
// its client.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime)
	return &HTTPSource{client: client, baseURL: cfg.BaseURL}
}

// FetchWorkflows returns the tenant's workflow graphs.
func (s *HTTPSource) FetchWorkflows(ctx context.Context, tenantID string, scope models.ScanScope) ([]models.WorkflowGraph, error) {
	var workflows []models.WorkflowGraph
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("scope", string(scope)).
		SetResult(&workflows).
		Get(fmt.Sprintf("%s/tenants/%s/workflows", s.baseURL, tenantID))
	if err != nil {
		return nil, fmt.Errorf("workflow source unreachable: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("workflow source returned status %d", resp.StatusCode())
	}
	return workflows, nil
}

// StaticSource serves a fixed set of graphs per tenant. Used by the seed
// command and in tests.
type StaticSource struct {
	Workflows map[string][]models.WorkflowGraph
	// Inactive marks workflow ids excluded from the "active" scope.
	Inactive map[string]bool
}

// FetchWorkflows returns the configured graphs for the tenant, filtered by
// scope.
func (s *StaticSource) FetchWorkflows(ctx context.Context, tenantID string, scope models.ScanScope) ([]models.WorkflowGraph, error) {
	graphs := s.Workflows[tenantID]
	if scope != models.ScopeActive {
		return graphs, nil
	}
	var active []models.WorkflowGraph
	for _, g := range graphs {
		if !s.Inactive[g.ID] {
			active = append(active, g)
		}
	}
	return active, nil
}
