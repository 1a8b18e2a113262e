package graph

import (
	"fmt"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// StartCandidates returns, in node order, every Start-kind node plus every
// node with no incoming edges and at least one outgoing edge.
func (ix *Index) StartCandidates() []string {
	var out []string
	for _, n := range ix.Nodes {
		if n.Kind == schema.KindStart || (ix.InDegree(n.ID) == 0 && ix.OutDegree(n.ID) > 0) {
			out = append(out, n.ID)
		}
	}
	return out
}

// ResolveStart picks the entry node. With several candidates the first one
// is returned alongside the error so translation can keep going.
func ResolveStart(ix *Index) (string, *schema.ValidationResult) {
	result := &schema.ValidationResult{}
	candidates := ix.StartCandidates()

	switch len(candidates) {
	case 0:
		result.AddError("/", schema.ErrCodeMissingStart, "no start node found")
		return "", result
	case 1:
		return candidates[0], result
	default:
		result.AddError("/", schema.ErrCodeMultipleStart,
			fmt.Sprintf("multiple start nodes found: %s", strings.Join(candidates, ", ")))
		return candidates[0], result
	}
}

// ResolveEnds returns the terminal nodes: no outgoing edges and not a Start.
// A graph of more than one node without any is reported, non-fatally.
func ResolveEnds(ix *Index) ([]string, *schema.ValidationResult) {
	result := &schema.ValidationResult{}
	var ends []string
	for _, n := range ix.Nodes {
		if n.Kind != schema.KindStart && ix.OutDegree(n.ID) == 0 {
			ends = append(ends, n.ID)
		}
	}
	if len(ends) == 0 && len(ix.Nodes) > 1 {
		result.AddError("/", schema.ErrCodeMissingEnd, "no end node(s) found")
	}
	return ends, result
}
