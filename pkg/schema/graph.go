package schema

// Graph is the ordered node/edge snapshot an editing session hands to the
// translator. Order is significant: it breaks ties during traversal.
type Graph struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// NodeKind enumerates the typed vertices a user can place on the canvas.
type NodeKind string

const (
	KindStart         NodeKind = "Start"
	KindTask          NodeKind = "Task"
	KindDecision      NodeKind = "Decision"
	KindApproval      NodeKind = "Approval"
	KindAutomatedTask NodeKind = "AutomatedTask"
	KindTimer         NodeKind = "Timer"
	KindNotification  NodeKind = "Notification"
	KindParallelSplit NodeKind = "ParallelSplit"
	KindParallelJoin  NodeKind = "ParallelJoin"
	KindSubWorkflow   NodeKind = "SubWorkflow"
	KindEnd           NodeKind = "End"
)

var nodeKinds = map[NodeKind]bool{
	KindStart:         true,
	KindTask:          true,
	KindDecision:      true,
	KindApproval:      true,
	KindAutomatedTask: true,
	KindTimer:         true,
	KindNotification:  true,
	KindParallelSplit: true,
	KindParallelJoin:  true,
	KindSubWorkflow:   true,
	KindEnd:           true,
}

// Known reports whether k is one of the recognized node kinds.
func (k NodeKind) Known() bool {
	return nodeKinds[k]
}

// NodeKinds returns every recognized kind in palette order.
func NodeKinds() []NodeKind {
	return []NodeKind{
		KindStart, KindTask, KindDecision, KindApproval, KindAutomatedTask,
		KindTimer, KindNotification, KindParallelSplit, KindParallelJoin,
		KindSubWorkflow, KindEnd,
	}
}

// Node is a typed vertex of the authored graph. Kind holds the editor's
// type tag verbatim, so it may be empty or an unrecognized string.
type Node struct {
	ID          string         `json:"id"`
	Kind        NodeKind       `json:"type,omitempty"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	n.Config = CloneConfig(n.Config)
	return n
}

// Port names a connection point on a branching node.
const (
	PortTrue     = "true"
	PortFalse    = "false"
	PortApproved = "approved"
	PortRejected = "rejected"
)

// ConditionKind is the branch selector attached to an edge.
type ConditionKind string

const (
	ConditionUnset    ConditionKind = ""
	ConditionDefault  ConditionKind = "default"
	ConditionTrue     ConditionKind = "true"
	ConditionFalse    ConditionKind = "false"
	ConditionApproved ConditionKind = "approved"
	ConditionRejected ConditionKind = "rejected"
)

// Edge is a directed connection between two nodes.
type Edge struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	SourcePort string   `json:"sourcePort,omitempty"`
	Data       EdgeData `json:"data"`
}

// EdgeData is the branch metadata renderers and the translator agree on.
type EdgeData struct {
	ConditionKind       ConditionKind `json:"conditionKind,omitempty"`
	ConditionExpression string        `json:"conditionExpression"`
	Label               string        `json:"label,omitempty"`
}

// Clone returns a deep copy of the graph. Translation callers snapshot with
// this before handing a graph that is still being edited.
func (g Graph) Clone() Graph {
	out := Graph{Name: g.Name, Description: g.Description}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if g.Edges != nil {
		out.Edges = make([]Edge, len(g.Edges))
		copy(out.Edges, g.Edges)
	}
	return out
}

// Node returns the first node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// CloneConfig deep-copies a JSON-shaped configuration map.
func CloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneConfig(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
