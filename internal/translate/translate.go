// Package translate turns an authored workflow graph into the ordered step
// list consumed by the execution engine.
//
// Translation is a single depth-first pass over an explicit worklist. The
// same pass validates each node it visits, so the caller receives steps and
// every structural problem in one result. Translate never mutates its input
// and holds no state between calls.
package translate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// notMaterialized marks visited nodes that produce no step (Start, End).
const notMaterialized = -1

// Translate indexes g, resolves its entry node and linearizes every node
// reachable from it. Structural problems are accumulated into the result;
// only a graph without any start candidate yields no steps.
func Translate(g schema.Graph) *schema.TranslationResult {
	idx, result := graph.Build(g.Nodes, g.Edges)

	start, startIssues := graph.ResolveStart(idx)
	result.Merge(startIssues)

	_, endIssues := graph.ResolveEnds(idx)
	result.Merge(endIssues)

	if start == "" {
		return schema.NewTranslationResult(nil, result)
	}

	steps, problems, _ := linearize(idx, start)
	result.Merge(problems)
	return schema.NewTranslationResult(steps, result)
}

// frame is one worklist entry: the node to visit and the node IDs on the
// traversal branch that led to it, start included.
type frame struct {
	id   string
	path []string
}

// linearize assigns a dense order to every reachable non-terminal node.
//
// Outgoing edges are pushed in reverse so the first-listed edge is explored
// first. A node with several reachable predecessors is held back until all
// of them have been expanded, which places a join after every branch that
// feeds it. Nodes that can never satisfy that (their predecessors sit on a
// cycle through them) are released once the worklist drains.
func linearize(idx *graph.Index, start string) ([]schema.Step, *schema.ValidationResult, map[string]int) {
	result := &schema.ValidationResult{}
	visitOrder := make(map[string]int, len(idx.Nodes))
	pending := pendingPredecessors(idx, start)
	steps := make([]schema.Step, 0, len(idx.Nodes))
	counter := 0

	stack := []frame{{id: start, path: []string{start}}}
	var deferred []frame
	held := make(map[string]bool)

	for len(stack) > 0 || len(deferred) > 0 {
		if len(stack) == 0 {
			f := deferred[0]
			deferred = deferred[1:]
			if _, done := visitOrder[f.id]; done {
				continue
			}
			stack = append(stack, f)
			pending[f.id] = 0
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, done := visitOrder[f.id]; done {
			continue
		}
		n, _ := idx.Node(f.id)

		if n.Kind != schema.KindStart && pending[f.id] > 0 {
			if !held[f.id] {
				held[f.id] = true
				deferred = append(deferred, f)
			}
			continue
		}

		out := idx.Outgoing[f.id]
		switch n.Kind {
		case schema.KindStart, schema.KindEnd:
			visitOrder[f.id] = notMaterialized
		default:
			steps = append(steps, materialize(n, counter, out, result))
			visitOrder[f.id] = counter
			counter++
		}

		if len(out) == 0 && n.Kind != schema.KindEnd {
			result.AddError(graph.NodePath(n.ID), schema.ErrCodeDeadEnd,
				fmt.Sprintf("path terminates unexpectedly at node %s", describe(n)))
		}
		checkBranchCoverage(n, out, result)

		for _, e := range out {
			if e.Target != f.id {
				pending[e.Target]--
			}
		}
		for i := len(out) - 1; i >= 0; i-- {
			target := out[i].Target
			if contains(f.path, target) {
				cycle := append(append([]string{}, f.path[indexOf(f.path, target):]...), target)
				result.AddError(graph.NodePath(target), schema.ErrCodeCycleDetected,
					fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")))
				continue
			}
			path := make([]string, len(f.path), len(f.path)+1)
			copy(path, f.path)
			stack = append(stack, frame{id: target, path: append(path, target)})
		}
	}

	for _, n := range idx.Nodes {
		if _, ok := visitOrder[n.ID]; ok || n.Kind == schema.KindEnd {
			continue
		}
		result.AddError(graph.NodePath(n.ID), schema.ErrCodeUnreachable,
			fmt.Sprintf("node %s is disconnected or unreachable from the start node", describe(n)))
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps, result, visitOrder
}

// pendingPredecessors counts, for every node reachable from start, the
// incoming edges whose source is also reachable. Self-loops are ignored.
func pendingPredecessors(idx *graph.Index, start string) map[string]int {
	reachable := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range idx.Outgoing[id] {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}

	pending := make(map[string]int, len(reachable))
	for id := range reachable {
		for _, e := range idx.Incoming[id] {
			if e.Source != id && reachable[e.Source] {
				pending[id]++
			}
		}
	}
	return pending
}

func describe(n schema.Node) string {
	if n.Label == "" {
		return n.ID
	}
	return fmt.Sprintf("%s (%q)", n.ID, n.Label)
}

func contains(path []string, id string) bool {
	return indexOf(path, id) >= 0
}

func indexOf(path []string, id string) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return -1
}
