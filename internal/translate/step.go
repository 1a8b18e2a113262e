package translate

import (
	"fmt"

	"github.com/rendis/canvasflow/internal/edges"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

const unknownType = "Unknown"

// materialize converts a node into a step at the given order. Missing labels
// and type tags are reported but the step is still emitted with fallbacks.
func materialize(n schema.Node, order int, out []schema.Edge, result *schema.ValidationResult) schema.Step {
	typ := string(n.Kind)
	switch {
	case n.Kind == "":
		typ = unknownType
		result.AddError(graph.NodePath(n.ID), schema.ErrCodeMissingType,
			fmt.Sprintf("node %s is missing a type", n.ID))
	case !n.Kind.Known():
		result.AddError(graph.NodePath(n.ID), schema.ErrCodeUnknownType,
			fmt.Sprintf("node %s has unknown type %q", n.ID, n.Kind))
	}

	name := n.Label
	if name == "" {
		name = fmt.Sprintf("%s %s", typ, n.ID)
		result.AddError(graph.NodePath(n.ID), schema.ErrCodeMissingLabel,
			fmt.Sprintf("node %s is missing a label", n.ID))
	}

	cfg := schema.CloneConfig(n.Config)
	if cfg == nil {
		cfg = map[string]any{}
	}

	step := schema.Step{
		Name:        name,
		Order:       order,
		Type:        typ,
		Description: n.Description,
		NodeID:      n.ID,
		Config:      cfg,
	}

	if edges.IsBranching(n.Kind) {
		step.Branches = branches(n, out)
		list := make([]any, 0, len(step.Branches))
		for _, b := range step.Branches {
			list = append(list, map[string]any{
				"conditionLabel": b.ConditionLabel,
				"conditionKind":  string(b.ConditionKind),
				"targetNodeId":   b.TargetNodeID,
			})
		}
		step.Config[schema.ConfigBranches] = list
	}
	return step
}

// branches lists a branching node's outgoing edges in edge order. Edges
// drawn without metadata fall back to what the assigner would give them.
func branches(n schema.Node, out []schema.Edge) []schema.Branch {
	list := make([]schema.Branch, 0, len(out))
	for _, e := range out {
		data := e.Data
		if data == (schema.EdgeData{}) {
			data = edges.Assign(n, e)
		}
		list = append(list, schema.Branch{
			ConditionLabel: data.Label,
			ConditionKind:  data.ConditionKind,
			TargetNodeID:   e.Target,
		})
	}
	return list
}

// checkBranchCoverage warns when a Decision lacks a true or false edge, or an
// Approval lacks an approved or rejected edge.
func checkBranchCoverage(n schema.Node, out []schema.Edge, result *schema.ValidationResult) {
	var want []string
	switch n.Kind {
	case schema.KindDecision:
		want = []string{schema.PortTrue, schema.PortFalse}
	case schema.KindApproval:
		want = []string{schema.PortApproved, schema.PortRejected}
	default:
		return
	}

	ports := make(map[string]bool, len(out))
	for _, e := range out {
		ports[e.SourcePort] = true
	}
	for _, p := range want {
		if !ports[p] {
			result.AddWarning(graph.NodePath(n.ID), schema.ErrCodeBranchCoverage,
				fmt.Sprintf("%s node %s has no %q branch", n.Kind, n.ID, p))
		}
	}
}
