package analyzer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsentry/pkg/models"
)

func node(id string, kind models.NodeKind, attrs map[string]any) models.Node {
	if attrs == nil {
		attrs = map[string]any{}
	}
	if _, ok := attrs["description"]; !ok {
		attrs["description"] = "described"
	}
	return models.Node{ID: id, Kind: kind, Attributes: attrs}
}

func edge(id, source, target string) models.Edge {
	return models.Edge{ID: id, Source: source, Target: target}
}

// chainWorkflow builds trigger -> a1 -> a2 -> ... -> aN, all actions with
// retry configured so only the rules under test fire.
func chainWorkflow(actions int) *models.WorkflowGraph {
	wf := &models.WorkflowGraph{ID: "wf-chain", Name: "Chain"}
	wf.Nodes = append(wf.Nodes, node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "contact_created"}))
	prev := "t1"
	for i := 1; i <= actions; i++ {
		id := fmt.Sprintf("a%02d", i)
		wf.Nodes = append(wf.Nodes, node(id, models.NodeKindAction, map[string]any{"retry": 3}))
		wf.Edges = append(wf.Edges, edge(fmt.Sprintf("e%02d", i), prev, id))
		prev = id
	}
	return wf
}

func findByRule(findings []models.Finding, ruleID string) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.RuleID == ruleID {
			out = append(out, f)
		}
	}
	return out
}

func TestAnalyze_InvalidGraph(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID:    "wf-bad",
		Nodes: []models.Node{node("t1", models.NodeKindTrigger, nil)},
		Edges: []models.Edge{edge("e1", "t1", "ghost")},
	}

	engine := NewEngine(Options{})
	_, err := engine.Analyze(context.Background(), wf)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidGraph)
}

func TestAnalyze_CycleDetection(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf-cycle",
		Nodes: []models.Node{
			node("t1", models.NodeKindTrigger, nil),
			node("a1", models.NodeKindAction, map[string]any{"retry": 1}),
			node("a2", models.NodeKindAction, map[string]any{"retry": 1}),
		},
		Edges: []models.Edge{
			edge("e1", "t1", "a1"),
			edge("e2", "a1", "a2"),
			edge("e3", "a2", "a1"), // back-edge
		},
	}

	engine := NewEngine(Options{})
	findings, err := engine.Analyze(context.Background(), wf)
	require.NoError(t, err)

	cycles := findByRule(findings, "infinite-loop")
	require.Len(t, cycles, 1)
	assert.Equal(t, models.SeverityCritical, cycles[0].Severity)
	assert.Equal(t, "a1", cycles[0].NodeID)
}

func TestAnalyze_DAGHasNoCycleFinding(t *testing.T) {
	wf := chainWorkflow(3)
	// Add a diamond: two paths converging on the same node is not a cycle.
	wf.Nodes = append(wf.Nodes, node("a99", models.NodeKindAction, map[string]any{"retry": 1}))
	wf.Edges = append(wf.Edges,
		edge("d1", "a01", "a99"),
		edge("d2", "a99", "a03"),
	)

	engine := NewEngine(Options{})
	findings, err := engine.Analyze(context.Background(), wf)
	require.NoError(t, err)

	assert.Empty(t, findByRule(findings, "infinite-loop"))
}

func TestAnalyze_TriggerConflicts(t *testing.T) {
	t.Run("same type no filters is high", func(t *testing.T) {
		wf := &models.WorkflowGraph{
			ID: "wf",
			Nodes: []models.Node{
				node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted"}),
				node("t2", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted"}),
			},
		}
		findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
		require.NoError(t, err)

		conflicts := findByRule(findings, "trigger-conflict")
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.SeverityHigh, conflicts[0].Severity)
	})

	t.Run("same type same filter is medium", func(t *testing.T) {
		wf := &models.WorkflowGraph{
			ID: "wf",
			Nodes: []models.Node{
				node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted", "event_filter": "newsletter"}),
				node("t2", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted", "event_filter": "newsletter"}),
			},
		}
		findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
		require.NoError(t, err)

		conflicts := findByRule(findings, "trigger-conflict")
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.SeverityMedium, conflicts[0].Severity)
	})

	t.Run("disjoint filters do not conflict", func(t *testing.T) {
		wf := &models.WorkflowGraph{
			ID: "wf",
			Nodes: []models.Node{
				node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted", "event_filter": "newsletter"}),
				node("t2", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted", "event_filter": "signup"}),
			},
		}
		findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
		require.NoError(t, err)
		assert.Empty(t, findByRule(findings, "trigger-conflict"))
	})

	t.Run("different types do not conflict", func(t *testing.T) {
		wf := &models.WorkflowGraph{
			ID: "wf",
			Nodes: []models.Node{
				node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "form_submitted"}),
				node("t2", models.NodeKindTrigger, map[string]any{"trigger_type": "contact_created"}),
			},
		}
		findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
		require.NoError(t, err)
		assert.Empty(t, findByRule(findings, "trigger-conflict"))
	})
}

func TestAnalyze_MissingErrorHandling(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf",
		Nodes: []models.Node{
			node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "x"}),
			node("bare", models.NodeKindAction, nil),
			node("retried", models.NodeKindAction, map[string]any{"retry": 3}),
			node("fallback", models.NodeKindAction, nil),
			node("handler", models.NodeKindAction, map[string]any{"retry": 1}),
		},
		Edges: []models.Edge{
			edge("e1", "t1", "bare"),
			edge("e2", "bare", "retried"),
			edge("e3", "retried", "fallback"),
			{ID: "e4", Source: "fallback", Target: "handler", Label: "failure"},
		},
	}

	findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
	require.NoError(t, err)

	missing := findByRule(findings, "missing-error-handling")
	require.Len(t, missing, 1)
	assert.Equal(t, "bare", missing[0].NodeID)
	assert.Equal(t, models.SeverityHigh, missing[0].Severity)
}

func TestAnalyze_HardcodedValues(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf",
		Nodes: []models.Node{
			node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "x"}),
			node("local", models.NodeKindAction, map[string]any{
				"retry":       1,
				"webhook_url": "http://localhost:3000/hook",
			}),
			node("staging", models.NodeKindAction, map[string]any{
				"retry":    1,
				"endpoint": "https://staging.example.com/api",
			}),
			node("clean", models.NodeKindAction, map[string]any{
				"retry":    1,
				"endpoint": "https://api.example.com/v2",
			}),
		},
	}

	findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
	require.NoError(t, err)

	hardcoded := findByRule(findings, "hardcoded-value")
	require.Len(t, hardcoded, 2)
	assert.Equal(t, "local", hardcoded[0].NodeID)
	assert.Equal(t, models.SeverityCritical, hardcoded[0].Severity)
	assert.Equal(t, "staging", hardcoded[1].NodeID)
	assert.Equal(t, models.SeverityMedium, hardcoded[1].Severity)
}

func TestAnalyze_DeprecatedAPI(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf",
		Nodes: []models.Node{
			node("a1", models.NodeKindAction, map[string]any{"retry": 1, "integration": "legacy-email-v1"}),
			node("a2", models.NodeKindAction, map[string]any{"retry": 1, "integration": "crm-sync"}),
		},
	}

	findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
	require.NoError(t, err)

	deprecated := findByRule(findings, "deprecated-api")
	require.Len(t, deprecated, 1)
	assert.Equal(t, "a1", deprecated[0].NodeID)
	assert.Equal(t, models.SeverityMedium, deprecated[0].Severity)
}

func TestAnalyze_LongChain(t *testing.T) {
	t.Run("eleven actions yields exactly one finding", func(t *testing.T) {
		findings, err := NewEngine(Options{}).Analyze(context.Background(), chainWorkflow(11))
		require.NoError(t, err)

		long := findByRule(findings, "long-chain-without-checkpoint")
		require.Len(t, long, 1)
		assert.Equal(t, models.SeverityLow, long[0].Severity)
	})

	t.Run("condition at position five suppresses it", func(t *testing.T) {
		wf := chainWorkflow(11)
		// Rewire a05 -> cond -> a06.
		wf.Nodes = append(wf.Nodes, node("cond", models.NodeKindCondition, nil))
		for i, e := range wf.Edges {
			if e.Source == "a05" && e.Target == "a06" {
				wf.Edges[i].Target = "cond"
			}
		}
		wf.Edges = append(wf.Edges, edge("ec", "cond", "a06"))

		findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
		require.NoError(t, err)
		assert.Empty(t, findByRule(findings, "long-chain-without-checkpoint"))
	})

	t.Run("very long chain escalates to medium", func(t *testing.T) {
		findings, err := NewEngine(Options{}).Analyze(context.Background(), chainWorkflow(16))
		require.NoError(t, err)

		long := findByRule(findings, "long-chain-without-checkpoint")
		require.Len(t, long, 1)
		assert.Equal(t, models.SeverityMedium, long[0].Severity)
	})

	t.Run("ten actions is within budget", func(t *testing.T) {
		findings, err := NewEngine(Options{}).Analyze(context.Background(), chainWorkflow(10))
		require.NoError(t, err)
		assert.Empty(t, findByRule(findings, "long-chain-without-checkpoint"))
	})
}

func TestAnalyze_MissingDescription(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf",
		Nodes: []models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Attributes: map[string]any{"trigger_type": "x"}},
			node("a1", models.NodeKindAction, map[string]any{"retry": 1}),
		},
	}

	findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
	require.NoError(t, err)

	style := findByRule(findings, "missing-description")
	require.Len(t, style, 1)
	assert.Equal(t, "t1", style[0].NodeID)
	assert.Equal(t, models.SeverityLow, style[0].Severity)
}

func TestAnalyze_DeterministicOrdering(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf",
		Nodes: []models.Node{
			{ID: "b", Kind: models.NodeKindAction},
			{ID: "a", Kind: models.NodeKindAction},
			{ID: "c", Kind: models.NodeKindTrigger},
		},
	}

	engine := NewEngine(Options{})
	first, err := engine.Analyze(context.Background(), wf)
	require.NoError(t, err)
	second, err := engine.Analyze(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Within a rule, findings are ordered by node id.
	missing := findByRule(first, "missing-error-handling")
	require.Len(t, missing, 2)
	assert.Equal(t, "a", missing[0].NodeID)
	assert.Equal(t, "b", missing[1].NodeID)
}

func TestAnalyze_ConfiguredPoints(t *testing.T) {
	wf := &models.WorkflowGraph{
		ID: "wf",
		Nodes: []models.Node{
			node("a1", models.NodeKindAction, nil), // missing error handling -> high
		},
	}

	engine := NewEngine(Options{
		SeverityPoints: map[models.Severity]int{models.SeverityHigh: 20},
	})
	findings, err := engine.Analyze(context.Background(), wf)
	require.NoError(t, err)

	missing := findByRule(findings, "missing-error-handling")
	require.Len(t, missing, 1)
	assert.Equal(t, 20, missing[0].PointsDeducted)
}

func TestAnalyze_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(Options{}).Analyze(ctx, chainWorkflow(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// diamondWorkflow builds a chain of n reconverging diamonds:
// prev -> (bAi | bBi) -> ji, all actions. Path count is 2^n, so anything
// enumerating root-to-leaf paths never finishes for large n.
func diamondWorkflow(n int) *models.WorkflowGraph {
	wf := &models.WorkflowGraph{ID: "wf-diamonds", Name: "Diamonds"}
	wf.Nodes = append(wf.Nodes, node("t1", models.NodeKindTrigger, map[string]any{"trigger_type": "contact_created"}))
	prev := "t1"
	for i := 1; i <= n; i++ {
		branchA := fmt.Sprintf("bA%03d", i)
		branchB := fmt.Sprintf("bB%03d", i)
		join := fmt.Sprintf("j%03d", i)
		wf.Nodes = append(wf.Nodes,
			node(branchA, models.NodeKindAction, map[string]any{"retry": 1}),
			node(branchB, models.NodeKindAction, map[string]any{"retry": 1}),
			node(join, models.NodeKindAction, map[string]any{"retry": 1}),
		)
		wf.Edges = append(wf.Edges,
			edge(fmt.Sprintf("ea%03d", i), prev, branchA),
			edge(fmt.Sprintf("eb%03d", i), prev, branchB),
			edge(fmt.Sprintf("ec%03d", i), branchA, join),
			edge(fmt.Sprintf("ed%03d", i), branchB, join),
		)
		prev = join
	}
	return wf
}

func TestAnalyze_ReconvergingGraphIsPolynomial(t *testing.T) {
	// 40 diamonds is ~2^40 root-to-leaf paths; only a memoized walk
	// finishes. The per-workflow scan timeout is 5s, so stay well inside.
	wf := diamondWorkflow(40)

	start := time.Now()
	findings, err := NewEngine(Options{}).Analyze(context.Background(), wf)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	long := findByRule(findings, "long-chain-without-checkpoint")
	require.Len(t, long, 1)
	assert.Equal(t, models.SeverityMedium, long[0].Severity)
	// Every path runs branch+join per diamond with no conditions.
	assert.Equal(t, "j040", long[0].NodeID)
	assert.Contains(t, long[0].Description, "80 sequential")
}

func TestDetectLongChains_StopsOnCancelledContext(t *testing.T) {
	g, err := indexGraph(diamondWorkflow(40))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The deadline binds inside the detector, not just between detectors.
	assert.Empty(t, detectLongChains(ctx, g))
}
