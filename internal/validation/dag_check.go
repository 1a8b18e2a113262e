package validation

import (
	"fmt"

	"github.com/rendis/canvasflow/internal/edges"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// validateWiring checks how nodes are connected, as opposed to what they
// are configured with. Every finding is a warning: translation already
// reports the structural errors.
func validateWiring(idx *graph.Index) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, n := range idx.Nodes {
		path := graph.NodePath(n.ID)
		switch n.Kind {
		case schema.KindStart:
			if in := idx.InDegree(n.ID); in > 0 {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("start node %s has %d incoming edge(s)", n.ID, in))
			}
		case schema.KindEnd:
			if out := idx.OutDegree(n.ID); out > 0 {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("end node %s has %d outgoing edge(s) that are never followed", n.ID, out))
			}
		case schema.KindParallelSplit:
			if out := idx.OutDegree(n.ID); out < 2 {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("parallel split %s has %d outgoing edge(s); expected at least 2", n.ID, out))
			}
		case schema.KindParallelJoin:
			if in := idx.InDegree(n.ID); in < 2 {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("parallel join %s has %d incoming edge(s); expected at least 2", n.ID, in))
			}
		}

		if !edges.IsBranching(n.Kind) {
			continue
		}
		for _, e := range idx.Outgoing[n.ID] {
			if edges.Stale(n, e) {
				result.AddWarning(graph.EdgePath(e.ID), schema.ErrCodeValidation,
					fmt.Sprintf("edge %s has branch data that does not match %s node %s; reassign edges", e.ID, n.Kind, n.ID))
			}
		}
	}
	return result
}
