// Package diagram renders an authored graph, optionally overlaid with its
// translated program and a preview path, as Mermaid, ASCII or PNG.
package diagram

import (
	"strconv"

	"github.com/rendis/canvasflow/pkg/schema"
)

// DiagramModel is the intermediate representation consumed by every renderer.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []*Edge
	Levels [][]string // node IDs grouped by distance from the start node
}

// Node is one canvas vertex.
type Node struct {
	ID    string
	Label string
	Kind  schema.NodeKind
	// Step is the 1-based position of the node's step in the program, or 0
	// when the node produced no step.
	Step    int
	Issue   *Issue
	Visited bool
}

// Issue is the most severe validation problem reported for a node.
type Issue struct {
	Severity schema.ValidationSeverity
	Message  string
}

// Edge is a directed connection labelled with its branch text.
type Edge struct {
	ID    string
	From  string
	To    string
	Label string
	Taken bool
}

// DisplayLabel returns the label shown inside the node's shape, prefixed with
// its step number when it has one.
func (n *Node) DisplayLabel() string {
	label := firstLine(n.Label)
	if n.Step > 0 {
		return strconv.Itoa(n.Step) + ". " + label
	}
	return label
}
