// Package preview walks an authored graph against sample data to show which
// path a run would take, without executing anything.
package preview

import (
	"context"
	"fmt"

	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Sample data keys read outside the input namespace.
const (
	// KeyApprovals maps Approval node IDs to "approved"/"rejected" or a bool.
	KeyApprovals = "approvals"
	// KeyOutputs maps AutomatedTask node IDs to a sample action result.
	KeyOutputs = "outputs"
)

// InputValidator checks sample inputs against a Start node's inputSchema.
type InputValidator interface {
	ValidateInput(input map[string]any, inputSchema any) error
}

// Options configures a Trace. Engines may be nil, in which case every
// Decision follows its default edge.
type Options struct {
	Engines   *expressions.Registry
	Inputs    InputValidator
	Workflow  map[string]any
	MaxVisits int // 0 means the node count
}

// Visit is one node the simulated run passes through.
type Visit struct {
	NodeID   string            `json:"node_id"`
	Kind     schema.NodeKind   `json:"type"`
	Label    string            `json:"label,omitempty"`
	Via      string            `json:"via,omitempty"`
	Branch   string            `json:"branch,omitempty"`
	Output   any               `json:"output,omitempty"`
	Rendered map[string]string `json:"rendered,omitempty"`
}

// Path is the outcome of a Trace.
type Path struct {
	Visits    []Visit  `json:"visits"`
	Ends      []string `json:"ends"`
	Truncated bool     `json:"truncated,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// NodeIDs returns the visited node IDs in visit order.
func (p *Path) NodeIDs() []string {
	ids := make([]string, len(p.Visits))
	for i, v := range p.Visits {
		ids[i] = v.NodeID
	}
	return ids
}

type arrival struct {
	id  string
	via string
}

type tracer struct {
	ctx   context.Context
	idx   *graph.Index
	opts  Options
	data  map[string]any
	scope *expressions.Scope
	path  *Path
}

// Trace walks g from its start node using data as the run's inputs.
// Decisions evaluate their condition, Approvals read data["approvals"],
// ParallelSplits fan out to every branch, ParallelJoins wait for every
// reachable branch to arrive and all other kinds follow their first edge. The walk stops after MaxVisits visits so cyclic graphs stay
// finite.
func Trace(ctx context.Context, g schema.Graph, data map[string]any, opts Options) (*Path, error) {
	idx, _ := graph.Build(g.Nodes, g.Edges)
	start, vr := graph.ResolveStart(idx)
	if start == "" {
		return nil, schema.NewError(schema.ErrCodeMissingStart, vr.Errors[0].Message)
	}

	inputs := inputsOf(data)
	if err := checkInputs(idx, start, inputs, opts.Inputs); err != nil {
		return nil, err
	}

	if opts.MaxVisits <= 0 {
		opts.MaxVisits = len(g.Nodes)
	}
	t := &tracer{
		ctx:   ctx,
		idx:   idx,
		opts:  opts,
		data:  data,
		scope: expressions.NewScope(inputs, opts.Workflow),
		path:  &Path{Visits: []Visit{}, Ends: []string{}},
	}
	if err := t.walk(start); err != nil {
		return nil, err
	}
	return t.path, nil
}

func (t *tracer) walk(start string) error {
	queue := []arrival{{id: start}}
	pending := joinArrivals(t.idx, start)
	joined := make(map[string]bool)
	var held []arrival

	for len(queue) > 0 || len(held) > 0 {
		if err := t.ctx.Err(); err != nil {
			return err
		}
		if len(queue) == 0 {
			// Branches that were never taken or loop back through the join
			// cannot arrive; release whatever is still waiting.
			queue, held = held, nil
			for _, h := range queue {
				pending[h.id] = 0
			}
		}
		a := queue[0]
		queue = queue[1:]

		n, ok := t.idx.Node(a.id)
		if !ok {
			t.warnf("edge %s points at missing node %s", a.via, a.id)
			continue
		}
		if n.Kind == schema.KindParallelJoin {
			if joined[n.ID] {
				continue
			}
			if pending[n.ID]--; pending[n.ID] > 0 {
				held = holdJoin(held, a)
				continue
			}
			held = releaseJoin(held, n.ID)
			joined[n.ID] = true
		}
		if len(t.path.Visits) >= t.opts.MaxVisits {
			t.path.Truncated = true
			t.warnf("stopped after %d visits; the graph likely loops through %s", t.opts.MaxVisits, n.ID)
			return nil
		}

		v := Visit{NodeID: n.ID, Kind: n.Kind, Label: n.Label, Via: a.via}
		next := t.step(n, &v)
		t.path.Visits = append(t.path.Visits, v)

		if n.Kind == schema.KindEnd {
			t.path.Ends = append(t.path.Ends, n.ID)
			continue
		}
		if len(t.idx.Outgoing[n.ID]) == 0 {
			t.warnf("path stops at %s, which has no outgoing edges", n.ID)
			continue
		}
		for _, e := range next {
			queue = append(queue, arrival{id: e.Target, via: e.ID})
		}
	}
	return nil
}

// joinArrivals counts, for every ParallelJoin reachable from start, the
// incoming edges whose source is also reachable.
func joinArrivals(idx *graph.Index, start string) map[string]int {
	reachable := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range idx.Outgoing[id] {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				stack = append(stack, e.Target)
			}
		}
	}

	counts := make(map[string]int)
	for id := range reachable {
		n, ok := idx.Node(id)
		if !ok || n.Kind != schema.KindParallelJoin {
			continue
		}
		for _, e := range idx.Incoming[id] {
			if reachable[e.Source] {
				counts[id]++
			}
		}
	}
	return counts
}

// holdJoin parks a join arrival, keeping the latest edge it came through.
func holdJoin(held []arrival, a arrival) []arrival {
	for i := range held {
		if held[i].id == a.id {
			held[i].via = a.via
			return held
		}
	}
	return append(held, a)
}

func releaseJoin(held []arrival, id string) []arrival {
	out := held[:0]
	for _, h := range held {
		if h.id != id {
			out = append(out, h)
		}
	}
	return out
}

// step records per-kind effects on v and returns the edges to follow.
func (t *tracer) step(n schema.Node, v *Visit) []schema.Edge {
	out := t.idx.Outgoing[n.ID]
	switch n.Kind {
	case schema.KindDecision:
		e, label := t.decide(n, out)
		v.Branch = label
		return edgeList(e)
	case schema.KindApproval:
		e, label := t.approve(n, out)
		v.Branch = label
		return edgeList(e)
	case schema.KindParallelSplit:
		return out
	case schema.KindAutomatedTask:
		v.Output = t.runTask(n)
	case schema.KindNotification:
		v.Rendered = t.render(n)
	}
	if len(out) == 0 {
		return nil
	}
	return out[:1]
}

// decide evaluates the Decision condition and picks the matching edge,
// falling back to the default path when the condition cannot be evaluated.
func (t *tracer) decide(n schema.Node, out []schema.Edge) (*schema.Edge, string) {
	var cfg schema.DecisionConfig
	_ = schema.DecodeConfig(n.Config, &cfg)

	expression := cfg.ConditionExpression
	if expression == "" {
		for _, e := range out {
			if e.Data.ConditionKind != schema.ConditionDefault && e.Data.ConditionExpression != "" {
				expression = e.Data.ConditionExpression
				break
			}
		}
	}

	if t.opts.Engines != nil && expression != "" {
		outcome, err := t.evaluate(cfg.ExpressionLanguage, expression)
		if err == nil {
			if e := branchEdge(out, portFor(outcome)); e != nil {
				return e, labelOf(*e)
			}
			t.warnf("decision %s evaluated %t but has no matching edge", n.ID, outcome)
		} else {
			t.warnf("decision %s: %s", n.ID, err.Error())
		}
	}

	e := defaultEdge(out, cfg.DefaultPath)
	if e == nil {
		return nil, ""
	}
	return e, labelOf(*e)
}

func (t *tracer) evaluate(language, expression string) (bool, error) {
	engine, err := t.opts.Engines.Get(language)
	if err != nil {
		return false, err
	}
	res, err := engine.Evaluate(t.ctx, expression, t.scope.Data())
	if err != nil {
		return false, err
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, not a boolean", expression, res)
	}
	return b, nil
}

// approve reads the sample approval outcome for n.
func (t *tracer) approve(n schema.Node, out []schema.Edge) (*schema.Edge, string) {
	port := ""
	approvals, _ := t.data[KeyApprovals].(map[string]any)
	switch val := approvals[n.ID].(type) {
	case bool:
		port = schema.PortRejected
		if val {
			port = schema.PortApproved
		}
	case string:
		port = val
	}

	if port == "" {
		t.warnf("no approval outcome for %s; following its first edge", n.ID)
	} else if e := branchEdge(out, port); e != nil {
		return e, labelOf(*e)
	} else {
		t.warnf("approval %s has no %q edge; following its first edge", n.ID, port)
	}
	if len(out) == 0 {
		return nil, ""
	}
	return &out[0], labelOf(out[0])
}

// runTask records the sample output of an AutomatedTask, reshaped by its
// outputMapping when one is configured.
func (t *tracer) runTask(n schema.Node) any {
	outputs, _ := t.data[KeyOutputs].(map[string]any)
	raw, ok := outputs[n.ID]
	if !ok {
		return nil
	}

	var cfg schema.AutomatedTaskConfig
	_ = schema.DecodeConfig(n.Config, &cfg)
	result := raw
	if cfg.OutputMapping != "" && t.opts.Engines != nil {
		obj, isObj := raw.(map[string]any)
		if !isObj {
			obj = map[string]any{"result": raw}
		}
		mapped, err := t.opts.Engines.JQ().Evaluate(t.ctx, cfg.OutputMapping, obj)
		if err != nil {
			t.warnf("task %s outputMapping: %s", n.ID, err.Error())
		} else {
			result = mapped
		}
	}
	t.scope.SetOutput(n.ID, result)
	return result
}

// render interpolates a Notification's subject and template.
func (t *tracer) render(n schema.Node) map[string]string {
	var cfg schema.NotificationConfig
	_ = schema.DecodeConfig(n.Config, &cfg)

	rendered := map[string]string{}
	for _, f := range []struct{ key, text string }{
		{"subject", cfg.Subject},
		{"template", cfg.Template},
	} {
		if f.text == "" {
			continue
		}
		s, err := expressions.Interpolate(f.text, t.scope)
		if err != nil {
			t.warnf("notification %s %s: %s", n.ID, f.key, errorMessage(err))
			continue
		}
		rendered[f.key] = s
	}
	if len(rendered) == 0 {
		return nil
	}
	return rendered
}

func (t *tracer) warnf(format string, args ...any) {
	t.path.Warnings = append(t.path.Warnings, fmt.Sprintf(format, args...))
}

// --- Helpers ---

func inputsOf(data map[string]any) map[string]any {
	inputs := make(map[string]any, len(data))
	for k, v := range data {
		if k == KeyApprovals || k == KeyOutputs {
			continue
		}
		inputs[k] = v
	}
	return inputs
}

func checkInputs(idx *graph.Index, start string, inputs map[string]any, v InputValidator) error {
	if v == nil {
		return nil
	}
	n, _ := idx.Node(start)
	var cfg schema.StartConfig
	if err := schema.DecodeConfig(n.Config, &cfg); err != nil || cfg.InputSchema == nil {
		return nil
	}
	return v.ValidateInput(inputs, cfg.InputSchema)
}

func portFor(outcome bool) string {
	if outcome {
		return schema.PortTrue
	}
	return schema.PortFalse
}

// branchEdge finds the edge leaving through port, by source port first and
// then by assigned condition kind.
func branchEdge(out []schema.Edge, port string) *schema.Edge {
	for i := range out {
		if out[i].SourcePort == port {
			return &out[i]
		}
	}
	for i := range out {
		if string(out[i].Data.ConditionKind) == port {
			return &out[i]
		}
	}
	return nil
}

func defaultEdge(out []schema.Edge, defaultPath string) *schema.Edge {
	if defaultPath != "" {
		if e := branchEdge(out, defaultPath); e != nil {
			return e
		}
	}
	for i := range out {
		if out[i].Data.ConditionKind == schema.ConditionDefault {
			return &out[i]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return &out[0]
}

func edgeList(e *schema.Edge) []schema.Edge {
	if e == nil {
		return nil
	}
	return []schema.Edge{*e}
}

func labelOf(e schema.Edge) string {
	if e.Data.Label != "" {
		return e.Data.Label
	}
	if e.SourcePort != "" {
		return e.SourcePort
	}
	return e.Target
}

func errorMessage(err error) string {
	if ce, ok := err.(*schema.CanvasError); ok {
		return ce.Message
	}
	return err.Error()
}
