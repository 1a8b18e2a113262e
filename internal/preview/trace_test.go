package preview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/internal/edges"
	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/validation"
	"github.com/rendis/canvasflow/pkg/schema"
)

// --- Helpers ---

func newEngines(t *testing.T) *expressions.Registry {
	t.Helper()
	r, err := expressions.NewRegistry("")
	require.NoError(t, err)
	return r
}

func node(id string, kind schema.NodeKind, cfg map[string]any) schema.Node {
	return schema.Node{ID: id, Kind: kind, Label: id, Config: cfg}
}

// wire builds edges and assigns branch data the way the editor does.
func wire(nodes []schema.Node, specs ...[3]string) []schema.Edge {
	byID := make(map[string]schema.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := make([]schema.Edge, 0, len(specs))
	for i, s := range specs {
		e := schema.Edge{ID: "e" + string(rune('a'+i)), Source: s[0], Target: s[1], SourcePort: s[2]}
		e.Data = edges.Assign(byID[s[0]], e)
		out = append(out, e)
	}
	return out
}

// approvalFlow: start -> decision(amount > 500) -true-> approval -approved-> notify -> end1
// approval -rejected-> end2, decision -false (default)-> task -> end3.
func approvalFlow(decisionCfg map[string]any) schema.Graph {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("d", schema.KindDecision, decisionCfg),
		node("a", schema.KindApproval, nil),
		node("n", schema.KindNotification, map[string]any{"subject": "Approved ${{inputs.amount}}"}),
		node("t", schema.KindTask, nil),
		node("end1", schema.KindEnd, nil),
		node("end2", schema.KindEnd, nil),
		node("end3", schema.KindEnd, nil),
	}
	return schema.Graph{Nodes: nodes, Edges: wire(nodes,
		[3]string{"s", "d", ""},
		[3]string{"d", "a", schema.PortTrue},
		[3]string{"d", "t", schema.PortFalse},
		[3]string{"a", "n", schema.PortApproved},
		[3]string{"a", "end2", schema.PortRejected},
		[3]string{"n", "end1", ""},
		[3]string{"t", "end3", ""},
	)}
}

var exprDecision = map[string]any{"conditionExpression": "amount > 500", "defaultPath": "false"}

// --- Decisions ---

func TestTrace_DecisionTrueAndApproved(t *testing.T) {
	path, err := Trace(context.Background(), approvalFlow(exprDecision), map[string]any{
		"amount":    1000,
		"approvals": map[string]any{"a": "approved"},
	}, Options{Engines: newEngines(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"s", "d", "a", "n", "end1"}, path.NodeIDs())
	assert.Equal(t, []string{"end1"}, path.Ends)
	assert.Equal(t, "True", path.Visits[1].Branch)
	assert.Equal(t, "Approved", path.Visits[2].Branch)
	assert.Equal(t, "eb", path.Visits[2].Via)
	assert.Equal(t, map[string]string{"subject": "Approved 1000"}, path.Visits[3].Rendered)
	assert.Empty(t, path.Warnings)
}

func TestTrace_DecisionFalse(t *testing.T) {
	path, err := Trace(context.Background(), approvalFlow(exprDecision),
		map[string]any{"amount": 10}, Options{Engines: newEngines(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"s", "d", "t", "end3"}, path.NodeIDs())
	assert.Equal(t, "False (Default)", path.Visits[1].Branch)
}

func TestTrace_DecisionCEL(t *testing.T) {
	cfg := map[string]any{"conditionExpression": "inputs.amount > 500", "expressionLanguage": "cel"}
	path, err := Trace(context.Background(), approvalFlow(cfg),
		map[string]any{"amount": 900, "approvals": map[string]any{"a": false}}, Options{Engines: newEngines(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"s", "d", "a", "end2"}, path.NodeIDs())
	assert.Equal(t, "Rejected", path.Visits[2].Branch)
}

func TestTrace_DecisionWithoutEnginesTakesDefault(t *testing.T) {
	path, err := Trace(context.Background(), approvalFlow(exprDecision),
		map[string]any{"amount": 1000}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "d", "t", "end3"}, path.NodeIDs())
}

func TestTrace_NonBooleanConditionFallsBack(t *testing.T) {
	cfg := map[string]any{"conditionExpression": "amount + 1", "defaultPath": "false"}
	path, err := Trace(context.Background(), approvalFlow(cfg),
		map[string]any{"amount": 1}, Options{Engines: newEngines(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"s", "d", "t", "end3"}, path.NodeIDs())
	require.Len(t, path.Warnings, 1)
	assert.Contains(t, path.Warnings[0], "not a boolean")
}

// --- Approvals ---

func TestTrace_MissingApprovalOutcome(t *testing.T) {
	path, err := Trace(context.Background(), approvalFlow(exprDecision),
		map[string]any{"amount": 1000}, Options{Engines: newEngines(t)})
	require.NoError(t, err)

	assert.Equal(t, []string{"s", "d", "a", "n", "end1"}, path.NodeIDs())
	require.Len(t, path.Warnings, 1)
	assert.Contains(t, path.Warnings[0], "no approval outcome for a")
}

// --- Fan-out and loops ---

func TestTrace_ParallelVisitsAllBranchesAndJoinsOnce(t *testing.T) {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("p", schema.KindParallelSplit, nil),
		node("b1", schema.KindTask, nil),
		node("b2", schema.KindTask, nil),
		node("j", schema.KindParallelJoin, nil),
		node("e", schema.KindEnd, nil),
	}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes,
		[3]string{"s", "p", ""},
		[3]string{"p", "b1", ""},
		[3]string{"p", "b2", ""},
		[3]string{"b1", "j", ""},
		[3]string{"b2", "j", ""},
		[3]string{"j", "e", ""},
	)}

	path, err := Trace(context.Background(), g, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "p", "b1", "b2", "j", "e"}, path.NodeIDs())
	assert.False(t, path.Truncated)
}

func TestTrace_JoinWaitsForLongestBranch(t *testing.T) {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("p", schema.KindParallelSplit, nil),
		node("a1", schema.KindTask, nil),
		node("a2", schema.KindTask, nil),
		node("a3", schema.KindTask, nil),
		node("b1", schema.KindTask, nil),
		node("j", schema.KindParallelJoin, nil),
		node("e", schema.KindEnd, nil),
	}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes,
		[3]string{"s", "p", ""},
		[3]string{"p", "a1", ""},
		[3]string{"p", "b1", ""},
		[3]string{"a1", "a2", ""},
		[3]string{"a2", "a3", ""},
		[3]string{"a3", "j", ""},
		[3]string{"b1", "j", ""},
		[3]string{"j", "e", ""},
	)}

	path, err := Trace(context.Background(), g, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "p", "a1", "b1", "a2", "a3", "j", "e"}, path.NodeIDs())
	assert.Equal(t, "ef", path.Visits[6].Via, "join is entered through the last branch to arrive")
	assert.False(t, path.Truncated)
}

func TestTrace_JoinReleasedWhenBranchLeaves(t *testing.T) {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("p", schema.KindParallelSplit, nil),
		node("t", schema.KindTask, nil),
		node("ap", schema.KindApproval, nil),
		node("j", schema.KindParallelJoin, nil),
		node("stop", schema.KindEnd, nil),
		node("e", schema.KindEnd, nil),
	}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes,
		[3]string{"s", "p", ""},
		[3]string{"p", "t", ""},
		[3]string{"p", "ap", ""},
		[3]string{"t", "j", ""},
		[3]string{"ap", "j", schema.PortApproved},
		[3]string{"ap", "stop", schema.PortRejected},
		[3]string{"j", "e", ""},
	)}
	data := map[string]any{KeyApprovals: map[string]any{"ap": "rejected"}}

	path, err := Trace(context.Background(), g, data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "p", "t", "ap", "stop", "j", "e"}, path.NodeIDs())
	assert.Equal(t, []string{"stop", "e"}, path.Ends)
}

func TestTrace_CycleIsBounded(t *testing.T) {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("a", schema.KindTask, nil),
		node("b", schema.KindTask, nil),
		node("e", schema.KindEnd, nil),
	}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes,
		[3]string{"s", "a", ""},
		[3]string{"a", "b", ""},
		[3]string{"b", "a", ""},
	)}

	path, err := Trace(context.Background(), g, nil, Options{})
	require.NoError(t, err)
	assert.True(t, path.Truncated)
	assert.Equal(t, []string{"s", "a", "b", "a"}, path.NodeIDs())
	assert.Empty(t, path.Ends)
}

func TestTrace_DeadEndWarns(t *testing.T) {
	nodes := []schema.Node{node("s", schema.KindStart, nil), node("t", schema.KindTask, nil)}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes, [3]string{"s", "t", ""})}

	path, err := Trace(context.Background(), g, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "t"}, path.NodeIDs())
	require.Len(t, path.Warnings, 1)
	assert.Contains(t, path.Warnings[0], "no outgoing edges")
}

// --- Tasks and notifications ---

func TestTrace_TaskOutputFeedsNotification(t *testing.T) {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("t", schema.KindAutomatedTask, map[string]any{"action": "crm.lookup", "outputMapping": ".body"}),
		node("n", schema.KindNotification, map[string]any{
			"subject":  "Order ${{inputs.orderId}}",
			"template": "Tier: ${{steps.t.tier}}",
		}),
		node("e", schema.KindEnd, nil),
	}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes,
		[3]string{"s", "t", ""},
		[3]string{"t", "n", ""},
		[3]string{"n", "e", ""},
	)}

	path, err := Trace(context.Background(), g, map[string]any{
		"orderId": "A1",
		"outputs": map[string]any{"t": map[string]any{"status": 200, "body": map[string]any{"tier": "gold"}}},
	}, Options{Engines: newEngines(t)})
	require.NoError(t, err)

	require.Len(t, path.Visits, 4)
	assert.Equal(t, map[string]any{"tier": "gold"}, path.Visits[1].Output)
	assert.Equal(t, map[string]string{
		"subject":  "Order A1",
		"template": "Tier: gold",
	}, path.Visits[2].Rendered)
}

func TestTrace_UnresolvedReferenceWarns(t *testing.T) {
	nodes := []schema.Node{
		node("s", schema.KindStart, nil),
		node("n", schema.KindNotification, map[string]any{"subject": "Hi ${{inputs.name}}"}),
		node("e", schema.KindEnd, nil),
	}
	g := schema.Graph{Nodes: nodes, Edges: wire(nodes, [3]string{"s", "n", ""}, [3]string{"n", "e", ""})}

	path, err := Trace(context.Background(), g, nil, Options{})
	require.NoError(t, err)
	assert.Nil(t, path.Visits[1].Rendered)
	require.Len(t, path.Warnings, 1)
	assert.Contains(t, path.Warnings[0], "notification n subject")
}

// --- Inputs and errors ---

func TestTrace_ValidatesInputSchema(t *testing.T) {
	v, err := validation.NewWorkflowValidator(nil, nil)
	require.NoError(t, err)

	g := approvalFlow(exprDecision)
	g.Nodes[0].Config = map[string]any{"inputSchema": map[string]any{
		"type":     "object",
		"required": []any{"amount"},
	}}

	_, err = Trace(context.Background(), g, map[string]any{"approvals": map[string]any{}}, Options{Inputs: v})
	require.Error(t, err)

	_, err = Trace(context.Background(), g, map[string]any{"amount": 3}, Options{Inputs: v})
	require.NoError(t, err)
}

func TestTrace_NoStart(t *testing.T) {
	_, err := Trace(context.Background(), schema.Graph{}, nil, Options{})
	require.Error(t, err)
	var ce *schema.CanvasError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, schema.ErrCodeMissingStart, ce.Code)
}

func TestTrace_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Trace(ctx, approvalFlow(exprDecision), nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
