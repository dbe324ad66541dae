// Package analyzer inspects workflow graphs for structural defects and
// scores workflow health from the resulting findings.
package analyzer

import (
	"context"
	"fmt"
	"sort"

	"flowsentry/pkg/models"
)

// detector is one independent, stateless rule. Detectors never observe each
// other's output, so each one can be unit tested in isolation and the
// engine's result is a plain concatenation. Detectors must observe ctx so
// the per-workflow deadline binds inside a rule, not just between rules.
type detector struct {
	id    string
	check func(ctx context.Context, g *graph) []models.Finding
}

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	// SeverityPoints maps severity to points deducted per finding.
	SeverityPoints map[models.Severity]int
	// DeprecatedIntegrations is the denylist consulted by the
	// deprecated-API rule, keyed by integration name.
	DeprecatedIntegrations map[string]string
}

// DefaultSeverityPoints is used when no scoring table is configured.
var DefaultSeverityPoints = map[models.Severity]int{
	models.SeverityCritical: 25,
	models.SeverityHigh:     15,
	models.SeverityMedium:   10,
	models.SeverityLow:      3,
}

// Engine runs an ordered set of detectors over a workflow graph.
type Engine struct {
	detectors []detector
	points    map[models.Severity]int
}

// NewEngine creates an Engine with the full rule set registered in a fixed
// order. Detector order is part of the contract: scan output must be
// diffable across runs.
func NewEngine(opts Options) *Engine {
	points := opts.SeverityPoints
	if points == nil {
		points = DefaultSeverityPoints
	}
	denylist := opts.DeprecatedIntegrations
	if denylist == nil {
		denylist = defaultDeprecatedIntegrations
	}

	e := &Engine{points: points}
	e.detectors = []detector{
		{id: ruleCycle, check: detectCycles},
		{id: ruleTriggerConflict, check: detectTriggerConflicts},
		{id: ruleMissingErrorHandling, check: detectMissingErrorHandling},
		{id: ruleHardcodedValue, check: detectHardcodedValues},
		{id: ruleDeprecatedAPI, check: deprecatedAPIDetector(denylist)},
		{id: ruleLongChain, check: detectLongChains},
		{id: ruleMissingDescription, check: detectMissingDescriptions},
	}
	return e
}

// Analyze validates the graph and runs every detector, returning the
// concatenated findings ordered by rule execution order, then node id.
// A malformed graph aborts analysis for that workflow only.
func (e *Engine) Analyze(ctx context.Context, wf *models.WorkflowGraph) ([]models.Finding, error) {
	g, err := indexGraph(wf)
	if err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0)
	for _, d := range e.detectors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis of workflow %s aborted: %w", wf.ID, err)
		}
		results := d.check(ctx, g)
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].NodeID < results[j].NodeID
		})
		for i := range results {
			results[i].PointsDeducted = e.points[results[i].Severity]
		}
		findings = append(findings, results...)
	}
	// A detector that observed cancellation returns partial output; the
	// result would be misleading, so the whole analysis reports the abort.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis of workflow %s aborted: %w", wf.ID, err)
	}
	return findings, nil
}

// graph is an indexed, read-only view of a workflow graph built once per
// analysis and shared by all detectors.
type graph struct {
	wf       *models.WorkflowGraph
	nodes    map[string]*models.Node
	outgoing map[string][]models.Edge
	triggers []*models.Node
}

// indexGraph validates edge endpoints and builds the adjacency index.
func indexGraph(wf *models.WorkflowGraph) (*graph, error) {
	g := &graph{
		wf:       wf,
		nodes:    make(map[string]*models.Node, len(wf.Nodes)),
		outgoing: make(map[string][]models.Edge),
	}
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		g.nodes[n.ID] = n
		if n.Kind == models.NodeKindTrigger {
			g.triggers = append(g.triggers, n)
		}
	}
	for _, edge := range wf.Edges {
		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, fmt.Errorf("%w: edge %s references missing source node %s",
				models.ErrInvalidGraph, edge.ID, edge.Source)
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, fmt.Errorf("%w: edge %s references missing target node %s",
				models.ErrInvalidGraph, edge.ID, edge.Target)
		}
		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}
	return g, nil
}

// stringAttr reads a node attribute as a string, returning "" when the
// attribute is absent or not a string.
func stringAttr(n *models.Node, key string) string {
	v, ok := n.Attributes[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func hasAttr(n *models.Node, keys ...string) bool {
	for _, key := range keys {
		if _, ok := n.Attributes[key]; ok {
			return true
		}
	}
	return false
}
