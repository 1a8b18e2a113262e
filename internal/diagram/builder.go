package diagram

import (
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/internal/preview"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Options selects the overlays drawn on top of the bare graph.
type Options struct {
	// Translation numbers nodes by step order and flags nodes with issues.
	Translation *schema.TranslationResult
	// Path highlights the nodes and edges of a preview run.
	Path *preview.Path
}

// Build converts a graph into a DiagramModel. Edges that reference missing
// nodes are left out, as are duplicate node IDs after the first.
func Build(g schema.Graph, opts Options) (*DiagramModel, error) {
	if len(g.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph has no nodes to draw")
	}

	idx, _ := graph.Build(g.Nodes, g.Edges)
	model := &DiagramModel{Title: g.Name}

	byID := make(map[string]*Node, len(idx.Nodes))
	for _, n := range idx.Nodes {
		node := &Node{ID: n.ID, Label: nodeLabel(n), Kind: n.Kind}
		byID[n.ID] = node
		model.Nodes = append(model.Nodes, node)
	}

	for _, n := range idx.Nodes {
		for _, e := range idx.Outgoing[n.ID] {
			model.Edges = append(model.Edges, &Edge{
				ID:    e.ID,
				From:  e.Source,
				To:    e.Target,
				Label: edgeLabel(e),
			})
		}
	}

	model.Levels = levels(idx)

	if opts.Translation != nil {
		overlayTranslation(byID, opts.Translation)
	}
	if opts.Path != nil {
		overlayPath(model, byID, opts.Path)
	}
	return model, nil
}

// levels groups nodes by breadth-first distance from the start candidates.
// Nodes the walk never reaches share a trailing level.
func levels(idx *graph.Index) [][]string {
	roots := idx.StartCandidates()
	if len(roots) == 0 {
		roots = []string{idx.Nodes[0].ID}
	}

	depth := make(map[string]int, len(idx.Nodes))
	queue := make([]string, 0, len(idx.Nodes))
	for _, r := range roots {
		if _, seen := depth[r]; !seen {
			depth[r] = 0
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range idx.Outgoing[id] {
			if _, seen := depth[e.Target]; seen {
				continue
			}
			depth[e.Target] = depth[id] + 1
			queue = append(queue, e.Target)
		}
	}

	maxDepth := -1
	for _, d := range depth {
		maxDepth = max(maxDepth, d)
	}
	out := make([][]string, maxDepth+1)
	var unreached []string
	for _, n := range idx.Nodes {
		d, ok := depth[n.ID]
		if !ok {
			unreached = append(unreached, n.ID)
			continue
		}
		out[d] = append(out[d], n.ID)
	}
	if len(unreached) > 0 {
		out = append(out, unreached)
	}
	return out
}

func overlayTranslation(byID map[string]*Node, res *schema.TranslationResult) {
	for _, step := range res.Steps {
		if n, ok := byID[step.NodeID]; ok {
			n.Step = step.Order + 1
		}
	}

	byPath := make(map[string]*Node, len(byID))
	for id, n := range byID {
		byPath[graph.NodePath(id)] = n
	}
	for _, issue := range res.Issues {
		n, ok := byPath[issue.Path]
		if !ok {
			continue
		}
		if n.Issue == nil || (n.Issue.Severity == schema.SeverityWarning && issue.Severity == schema.SeverityError) {
			n.Issue = &Issue{Severity: issue.Severity, Message: issue.Message}
		}
	}
}

func overlayPath(model *DiagramModel, byID map[string]*Node, p *preview.Path) {
	taken := make(map[string]bool, len(p.Visits))
	for _, v := range p.Visits {
		if n, ok := byID[v.NodeID]; ok {
			n.Visited = true
		}
		if v.Via != "" {
			taken[v.Via] = true
		}
	}
	for _, e := range model.Edges {
		e.Taken = e.ID != "" && taken[e.ID]
	}
}

func nodeLabel(n schema.Node) string {
	switch {
	case n.Label != "":
		return n.Label
	case n.Kind == schema.KindStart || n.Kind == schema.KindEnd:
		return string(n.Kind)
	default:
		return n.ID
	}
}

func edgeLabel(e schema.Edge) string {
	if e.Data.Label != "" {
		return e.Data.Label
	}
	return e.SourcePort
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
