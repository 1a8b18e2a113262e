// Package graph indexes an authored node/edge graph and resolves its entry
// and terminal nodes.
package graph

import (
	"fmt"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Index holds the adjacency structures of a graph. Edge order within each
// node's sequence follows the input edge order, so traversals over an Index
// are reproducible for identical input.
type Index struct {
	Nodes    []schema.Node            // unique nodes in input order
	Outgoing map[string][]schema.Edge // node ID → edges leaving it
	Incoming map[string][]schema.Edge // node ID → edges entering it

	byID map[string]int
}

// Build indexes nodes and edges. Edges whose source or target does not exist
// are excluded from both maps and reported. Duplicate node IDs keep the
// first occurrence.
func Build(nodes []schema.Node, edges []schema.Edge) (*Index, *schema.ValidationResult) {
	result := &schema.ValidationResult{}
	idx := &Index{
		Nodes:    make([]schema.Node, 0, len(nodes)),
		Outgoing: make(map[string][]schema.Edge, len(nodes)),
		Incoming: make(map[string][]schema.Edge, len(nodes)),
		byID:     make(map[string]int, len(nodes)),
	}

	for i, n := range nodes {
		if n.ID == "" {
			result.AddError(fmt.Sprintf("nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("node at index %d has an empty id", i))
			continue
		}
		if _, dup := idx.byID[n.ID]; dup {
			result.AddError(NodePath(n.ID), schema.ErrCodeDuplicateNode,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		idx.byID[n.ID] = len(idx.Nodes)
		idx.Nodes = append(idx.Nodes, n)
	}

	for _, e := range edges {
		missing := ""
		switch {
		case !idx.Has(e.Source):
			missing = e.Source
		case !idx.Has(e.Target):
			missing = e.Target
		}
		if missing != "" || e.Source == "" || e.Target == "" {
			result.AddError(EdgePath(e.ID), schema.ErrCodeDanglingEdge,
				fmt.Sprintf("edge %q references nonexistent node %q", e.ID, missing))
			continue
		}
		idx.Outgoing[e.Source] = append(idx.Outgoing[e.Source], e)
		idx.Incoming[e.Target] = append(idx.Incoming[e.Target], e)
	}

	return idx, result
}

// Has reports whether a node with the given ID was indexed.
func (ix *Index) Has(id string) bool {
	_, ok := ix.byID[id]
	return ok
}

// Node returns the indexed node with the given ID.
func (ix *Index) Node(id string) (schema.Node, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return schema.Node{}, false
	}
	return ix.Nodes[i], true
}

// OutDegree returns the number of indexed edges leaving id.
func (ix *Index) OutDegree(id string) int { return len(ix.Outgoing[id]) }

// InDegree returns the number of indexed edges entering id.
func (ix *Index) InDegree(id string) int { return len(ix.Incoming[id]) }

// NodePath is the ValidationIssue path of a node.
func NodePath(id string) string { return fmt.Sprintf("nodes[%s]", id) }

// EdgePath is the ValidationIssue path of an edge.
func EdgePath(id string) string { return fmt.Sprintf("edges[%s]", id) }
