package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"flowsentry/pkg/models"
)

// Rule identifiers. These appear in persisted findings, so they are stable
// API and must not be renamed.
const (
	ruleCycle                = "infinite-loop"
	ruleTriggerConflict      = "trigger-conflict"
	ruleMissingErrorHandling = "missing-error-handling"
	ruleHardcodedValue       = "hardcoded-value"
	ruleDeprecatedAPI        = "deprecated-api"
	ruleLongChain            = "long-chain-without-checkpoint"
	ruleMissingDescription   = "missing-description"
)

// detectCycles runs a depth-first traversal from every trigger node. A
// back-edge to a node still on the traversal stack means executions can
// loop forever. Pure reachability; no execution semantics assumed.
func detectCycles(_ context.Context, g *graph) []models.Finding {
	var findings []models.Finding
	reported := make(map[string]bool)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		for _, edge := range g.outgoing[id] {
			if onStack[edge.Target] {
				if !reported[edge.Target] {
					reported[edge.Target] = true
					findings = append(findings, models.Finding{
						RuleID:   ruleCycle,
						Severity: models.SeverityCritical,
						NodeID:   edge.Target,
						Description: fmt.Sprintf(
							"edge %s from node %s loops back to node %s; executions entering this path never terminate",
							edge.ID, edge.Source, edge.Target),
					})
				}
				continue
			}
			if !visited[edge.Target] {
				visit(edge.Target)
			}
		}
		onStack[id] = false
	}

	for _, trigger := range g.triggers {
		if !visited[trigger.ID] {
			visit(trigger.ID)
		}
	}
	return findings
}

// detectTriggerConflicts flags pairs of trigger nodes that can both fire
// for the same event. Two triggers of the same type with no event filter on
// either side overlap on every event (high); matching types with filters
// present still overlap on filtered events (medium).
func detectTriggerConflicts(_ context.Context, g *graph) []models.Finding {
	var findings []models.Finding

	triggers := make([]*models.Node, len(g.triggers))
	copy(triggers, g.triggers)
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].ID < triggers[j].ID })

	for i := 0; i < len(triggers); i++ {
		for j := i + 1; j < len(triggers); j++ {
			a, b := triggers[i], triggers[j]
			typeA := stringAttr(a, "trigger_type")
			typeB := stringAttr(b, "trigger_type")
			if typeA == "" || typeA != typeB {
				continue
			}

			filterA := stringAttr(a, "event_filter")
			filterB := stringAttr(b, "event_filter")

			severity := models.SeverityMedium
			if filterA == "" && filterB == "" {
				// Neither trigger narrows the event stream; every
				// matching event starts both paths.
				severity = models.SeverityHigh
			} else if filterA != "" && filterB != "" && filterA != filterB {
				continue
			}

			findings = append(findings, models.Finding{
				RuleID:   ruleTriggerConflict,
				Severity: severity,
				NodeID:   b.ID,
				Description: fmt.Sprintf(
					"triggers %s and %s both fire on %q events; the same event starts both paths",
					a.ID, b.ID, typeA),
			})
		}
	}
	return findings
}

// failurePathLabels are edge labels recognized as an attached failure path.
var failurePathLabels = map[string]bool{
	"failure":  true,
	"error":    true,
	"on_error": true,
	"fallback": true,
}

// detectMissingErrorHandling flags action nodes that have neither a
// failure-path edge nor a retry attribute. A single failing call in such a
// node silently ends the execution.
func detectMissingErrorHandling(_ context.Context, g *graph) []models.Finding {
	var findings []models.Finding
	for i := range g.wf.Nodes {
		n := &g.wf.Nodes[i]
		if n.Kind != models.NodeKindAction {
			continue
		}
		if hasAttr(n, "retry", "retries", "retry_count") {
			continue
		}
		hasFailurePath := false
		for _, edge := range g.outgoing[n.ID] {
			if failurePathLabels[strings.ToLower(edge.Label)] {
				hasFailurePath = true
				break
			}
		}
		if hasFailurePath {
			continue
		}
		findings = append(findings, models.Finding{
			RuleID:   ruleMissingErrorHandling,
			Severity: models.SeverityHigh,
			NodeID:   n.ID,
			Description: fmt.Sprintf(
				"action %s has no failure-path edge and no retry configuration", n.ID),
		})
	}
	return findings
}

// localhostMarkers identify values that can only work on a developer
// machine.
var localhostMarkers = []string{"localhost", "127.0.0.1", "0.0.0.0"}

// environmentMarkers identify values tied to a non-production environment.
var environmentMarkers = []string{"staging.", "dev.", ".local", ".internal"}

// detectHardcodedValues flags action nodes whose attributes embed
// environment-specific literals. A localhost endpoint is critical: it fails
// the moment the workflow runs outside the author's machine.
func detectHardcodedValues(_ context.Context, g *graph) []models.Finding {
	var findings []models.Finding
	for i := range g.wf.Nodes {
		n := &g.wf.Nodes[i]
		if n.Kind != models.NodeKindAction {
			continue
		}

		keys := make([]string, 0, len(n.Attributes))
		for k := range n.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value, ok := n.Attributes[key].(string)
			if !ok {
				continue
			}
			lower := strings.ToLower(value)

			if containsAny(lower, localhostMarkers) {
				findings = append(findings, models.Finding{
					RuleID:   ruleHardcodedValue,
					Severity: models.SeverityCritical,
					NodeID:   n.ID,
					Description: fmt.Sprintf(
						"action %s attribute %q points at a local address (%s)", n.ID, key, value),
				})
				continue
			}
			if strings.HasPrefix(lower, "http") && containsAny(lower, environmentMarkers) {
				findings = append(findings, models.Finding{
					RuleID:   ruleHardcodedValue,
					Severity: models.SeverityMedium,
					NodeID:   n.ID,
					Description: fmt.Sprintf(
						"action %s attribute %q hardcodes an environment-specific URL (%s)", n.ID, key, value),
				})
			}
		}
	}
	return findings
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// defaultDeprecatedIntegrations is the built-in denylist for the
// deprecated-API rule; the value explains the replacement.
var defaultDeprecatedIntegrations = map[string]string{
	"legacy-email-v1": "replaced by the v3 transactional email integration",
	"webhooks-v1":     "replaced by webhooks-v2 with signed payloads",
	"crm-sync-beta":   "retired; use crm-sync",
}

// deprecatedAPIDetector builds the rule from the configured denylist.
func deprecatedAPIDetector(denylist map[string]string) func(ctx context.Context, g *graph) []models.Finding {
	return func(_ context.Context, g *graph) []models.Finding {
		var findings []models.Finding
		for i := range g.wf.Nodes {
			n := &g.wf.Nodes[i]
			if n.Kind != models.NodeKindAction {
				continue
			}
			integration := stringAttr(n, "integration")
			if integration == "" {
				continue
			}
			key := integration
			if version := stringAttr(n, "api_version"); version != "" {
				key = integration + "@" + version
			}
			note, deprecated := denylist[key]
			if !deprecated {
				note, deprecated = denylist[integration]
			}
			if !deprecated {
				continue
			}
			findings = append(findings, models.Finding{
				RuleID:   ruleDeprecatedAPI,
				Severity: models.SeverityMedium,
				NodeID:   n.ID,
				Description: fmt.Sprintf(
					"action %s uses deprecated integration %q: %s", n.ID, integration, note),
			})
		}
		return findings
	}
}

// Chain-length thresholds for the checkpoint rule.
const (
	longChainThreshold = 10
	longChainSevere    = 15
)

// detectLongChains flags runs of more than longChainThreshold sequential
// Action/Delay nodes with no intervening Condition node. Long unchecked
// chains make mid-flight failures expensive to diagnose. One finding is
// emitted per graph, for the longest offending run.
func detectLongChains(ctx context.Context, g *graph) []models.Finding {
	maxRun := 0
	maxRunEnd := ""

	// Walk from each trigger, tracking the current run of Action/Delay
	// nodes since the last Condition. best[id] records the largest run
	// already propagated through a node; a node is re-expanded only when
	// reached with a strictly larger run, so reconverging graphs cost
	// O(nodes * edges) instead of one walk per root-to-leaf path. The
	// on-path guard bounds traversal on cyclic graphs, which the cycle
	// rule reports separately.
	best := make(map[string]int)
	onPath := make(map[string]bool)

	var walk func(id string, run int)
	walk = func(id string, run int) {
		if ctx.Err() != nil || onPath[id] {
			return
		}

		node := g.nodes[id]
		switch node.Kind {
		case models.NodeKindAction, models.NodeKindDelay:
			run++
		case models.NodeKindCondition:
			run = 0
		}
		if prev, seen := best[id]; seen && run <= prev {
			return
		}
		best[id] = run
		if run > maxRun {
			maxRun = run
			maxRunEnd = id
		}

		onPath[id] = true
		for _, edge := range g.outgoing[id] {
			walk(edge.Target, run)
		}
		onPath[id] = false
	}

	for _, trigger := range g.triggers {
		walk(trigger.ID, 0)
	}
	if ctx.Err() != nil {
		return nil
	}

	if maxRun <= longChainThreshold {
		return nil
	}
	severity := models.SeverityLow
	if maxRun > longChainSevere {
		severity = models.SeverityMedium
	}
	return []models.Finding{{
		RuleID:   ruleLongChain,
		Severity: severity,
		NodeID:   maxRunEnd,
		Description: fmt.Sprintf(
			"%d sequential action/delay nodes without a condition checkpoint (ending at node %s)",
			maxRun, maxRunEnd),
	}}
}

// detectMissingDescriptions flags nodes without a human-readable
// description. Style defect, not functional.
func detectMissingDescriptions(_ context.Context, g *graph) []models.Finding {
	var findings []models.Finding
	for i := range g.wf.Nodes {
		n := &g.wf.Nodes[i]
		if strings.TrimSpace(stringAttr(n, "description")) != "" {
			continue
		}
		findings = append(findings, models.Finding{
			RuleID:      ruleMissingDescription,
			Severity:    models.SeverityLow,
			NodeID:      n.ID,
			Description: fmt.Sprintf("node %s has no description", n.ID),
		})
	}
	return findings
}
