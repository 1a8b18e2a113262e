package canvas

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/internal/translate"
	"github.com/rendis/canvasflow/pkg/schema"
)

func decisionSession(t *testing.T, opts ...Option) (*Session, schema.Edge, schema.Edge) {
	t.Helper()
	g := schema.Graph{Nodes: []schema.Node{
		{ID: "s", Kind: schema.KindStart, Label: "Start"},
		{ID: "d", Kind: schema.KindDecision, Label: "Big order?", Config: map[string]any{
			"conditionExpression": "amount > 500",
			"defaultPath":         "false",
		}},
		{ID: "a", Kind: schema.KindTask, Label: "Review"},
		{ID: "e", Kind: schema.KindEnd, Label: "End"},
	}}
	s := NewSession(g, opts...)
	ctx := context.Background()

	_, err := s.Connect(ctx, "s", "d", "")
	require.NoError(t, err)
	trueEdge, err := s.Connect(ctx, "d", "a", schema.PortTrue)
	require.NoError(t, err)
	falseEdge, err := s.Connect(ctx, "d", "e", schema.PortFalse)
	require.NoError(t, err)
	_, err = s.Connect(ctx, "a", "e", "")
	require.NoError(t, err)
	return s, trueEdge, falseEdge
}

func edgeByID(t *testing.T, g schema.Graph, id string) schema.Edge {
	t.Helper()
	for _, e := range g.Edges {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("edge %s not found", id)
	return schema.Edge{}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var ce *schema.CanvasError
	require.True(t, errors.As(err, &ce), "expected CanvasError, got %v", err)
	assert.Equal(t, code, ce.Code)
}

// --- Connect ---

func TestConnect_AssignsBranchData(t *testing.T) {
	_, trueEdge, falseEdge := decisionSession(t)

	assert.NotEmpty(t, trueEdge.ID)
	assert.NotEqual(t, trueEdge.ID, falseEdge.ID)

	assert.Equal(t, schema.ConditionTrue, trueEdge.Data.ConditionKind)
	assert.Equal(t, "amount > 500", trueEdge.Data.ConditionExpression)
	assert.Equal(t, "True", trueEdge.Data.Label)

	assert.Equal(t, schema.ConditionDefault, falseEdge.Data.ConditionKind)
	assert.Empty(t, falseEdge.Data.ConditionExpression)
	assert.Equal(t, "False (Default)", falseEdge.Data.Label)
}

func TestConnect_PlainSourceHasNoData(t *testing.T) {
	s := NewSession(schema.Graph{Nodes: []schema.Node{{ID: "a", Kind: schema.KindTask}, {ID: "b", Kind: schema.KindTask}}})
	e, err := s.Connect(context.Background(), "a", "b", "")
	require.NoError(t, err)
	assert.Equal(t, schema.EdgeData{}, e.Data)
}

func TestConnect_UnknownNode(t *testing.T) {
	s := NewSession(schema.Graph{Nodes: []schema.Node{{ID: "a", Kind: schema.KindTask}}})

	_, err := s.Connect(context.Background(), "a", "ghost", "")
	assertCode(t, err, schema.ErrCodeNotFound)

	_, err = s.Connect(context.Background(), "ghost", "a", "")
	assertCode(t, err, schema.ErrCodeNotFound)
	assert.Empty(t, s.Snapshot().Edges)
}

// --- Reactive relabel ---

func TestUpdateNodeConfig_RelabelsOutgoingEdges(t *testing.T) {
	s, trueEdge, falseEdge := decisionSession(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateNodeConfig(ctx, "d", map[string]any{
		"defaultPath":   "true",
		"truePathLabel": "Yes",
	}))

	g := s.Snapshot()
	got := edgeByID(t, g, trueEdge.ID)
	assert.Equal(t, schema.ConditionDefault, got.Data.ConditionKind)
	assert.Equal(t, "Yes (Default)", got.Data.Label)
	assert.Empty(t, got.Data.ConditionExpression)

	got = edgeByID(t, g, falseEdge.ID)
	assert.Equal(t, schema.ConditionFalse, got.Data.ConditionKind)
	assert.Equal(t, "amount > 500", got.Data.ConditionExpression)
	assert.Equal(t, "False", got.Data.Label)
}

func TestUpdateNodeConfig_ExpressionPropagates(t *testing.T) {
	s, trueEdge, _ := decisionSession(t)

	require.NoError(t, s.UpdateNodeConfig(context.Background(), "d", map[string]any{"conditionExpression": "amount > 900"}))
	assert.Equal(t, "amount > 900", edgeByID(t, s.Snapshot(), trueEdge.ID).Data.ConditionExpression)
}

func TestUpdateNodeConfig_NilDeletesKey(t *testing.T) {
	s, trueEdge, falseEdge := decisionSession(t)

	require.NoError(t, s.UpdateNodeConfig(context.Background(), "d", map[string]any{"defaultPath": nil}))

	g := s.Snapshot()
	d, _ := g.Node("d")
	assert.NotContains(t, d.Config, "defaultPath")
	assert.Equal(t, schema.ConditionTrue, edgeByID(t, g, trueEdge.ID).Data.ConditionKind)
	assert.Equal(t, schema.ConditionFalse, edgeByID(t, g, falseEdge.ID).Data.ConditionKind)
	assert.Equal(t, "False", edgeByID(t, g, falseEdge.ID).Data.Label)
}

func TestUpdateNodeConfig_UnknownNode(t *testing.T) {
	s := NewSession(schema.Graph{})
	assertCode(t, s.UpdateNodeConfig(context.Background(), "x", map[string]any{"a": 1}), schema.ErrCodeNotFound)
}

func TestRelabelAll_RepairsStaleEdges(t *testing.T) {
	g := schema.Graph{
		Nodes: []schema.Node{
			{ID: "ap", Kind: schema.KindApproval, Label: "Manager", Config: map[string]any{"approvedLabel": "OK"}},
			{ID: "x", Kind: schema.KindTask, Label: "X"},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "ap", Target: "x", SourcePort: schema.PortApproved, Data: schema.EdgeData{Label: "stale"}},
			{ID: "e2", Source: "ap", Target: "x", SourcePort: schema.PortRejected},
		},
	}
	s := NewSession(g)

	changed := s.RelabelAll(context.Background())
	assert.Equal(t, []string{"e1", "e2"}, changed)

	snap := s.Snapshot()
	assert.Equal(t, "OK", snap.Edges[0].Data.Label)
	assert.Equal(t, "Rejected", snap.Edges[1].Data.Label)
	assert.Empty(t, s.RelabelAll(context.Background()))

	assert.Equal(t, "stale", g.Edges[0].Data.Label, "input graph untouched")
}

// --- Nodes ---

func TestAddNode(t *testing.T) {
	s := NewSession(schema.Graph{})
	ctx := context.Background()

	id, err := s.AddNode(ctx, schema.Node{Kind: schema.KindTask, Label: "Generated"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	id2, err := s.AddNode(ctx, schema.Node{ID: "fixed", Kind: schema.KindTask})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id2)

	_, err = s.AddNode(ctx, schema.Node{ID: "fixed", Kind: schema.KindEnd})
	assertCode(t, err, schema.ErrCodeConflict)

	assert.Len(t, s.Snapshot().Nodes, 2)
}

func TestRemoveNode_DropsIncidentEdges(t *testing.T) {
	s, _, _ := decisionSession(t)

	require.NoError(t, s.RemoveNode(context.Background(), "a"))
	g := s.Snapshot()
	_, ok := g.Node("a")
	assert.False(t, ok)
	for _, e := range g.Edges {
		assert.NotEqual(t, "a", e.Source)
		assert.NotEqual(t, "a", e.Target)
	}
	assert.Len(t, g.Edges, 2)

	assertCode(t, s.RemoveNode(context.Background(), "a"), schema.ErrCodeNotFound)
}

func TestDisconnect(t *testing.T) {
	s, trueEdge, _ := decisionSession(t)

	require.NoError(t, s.Disconnect(context.Background(), trueEdge.ID))
	assert.Len(t, s.Snapshot().Edges, 3)
	assertCode(t, s.Disconnect(context.Background(), trueEdge.ID), schema.ErrCodeNotFound)
}

func TestUpdateNodeLabel(t *testing.T) {
	s, _, _ := decisionSession(t)
	require.NoError(t, s.UpdateNodeLabel(context.Background(), "a", "Manual review"))
	n, _ := s.Snapshot().Node("a")
	assert.Equal(t, "Manual review", n.Label)
}

func TestSnapshot_IsIndependent(t *testing.T) {
	s, _, _ := decisionSession(t)
	g := s.Snapshot()
	g.Nodes[1].Config["defaultPath"] = "true"
	g.Edges = nil

	again := s.Snapshot()
	d, _ := again.Node("d")
	assert.Equal(t, "false", d.Config["defaultPath"])
	assert.Len(t, again.Edges, 4)
}

func TestSession_SnapshotTranslates(t *testing.T) {
	s, _, _ := decisionSession(t)

	res := translate.Translate(s.Snapshot())
	assert.Empty(t, res.Errors)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "d", res.Steps[0].NodeID)
	require.Len(t, res.Steps[0].Branches, 2)
	assert.Equal(t, "False (Default)", res.Steps[0].Branches[1].ConditionLabel)
}

// --- Events ---

func TestSession_PublishesEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	ctx := logging.WithWorkflowID(context.Background(), "wf-1")

	s := NewSession(schema.Graph{}, WithHub(hub), WithID("sess-1"))
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	defer cancel()

	_, err = s.AddNode(ctx, schema.Node{ID: "d", Kind: schema.KindDecision, Label: "D"})
	require.NoError(t, err)
	_, err = s.AddNode(ctx, schema.Node{ID: "t", Kind: schema.KindTask, Label: "T"})
	require.NoError(t, err)
	_, err = s.Connect(ctx, "d", "t", schema.PortTrue)
	require.NoError(t, err)
	require.NoError(t, s.UpdateNodeConfig(ctx, "d", map[string]any{"truePathLabel": "Yes"}))

	var got []streaming.StreamEvent
	for len(got) < 5 {
		select {
		case evt := <-ch:
			got = append(got, evt)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	types := make([]string, len(got))
	for i, e := range got {
		types[i] = e.EventType
		assert.Equal(t, "sess-1", e.SessionID)
		assert.Equal(t, "wf-1", e.WorkflowID)
	}
	assert.Equal(t, []string{
		schema.EventNodeAdded, schema.EventNodeAdded, schema.EventEdgeAssigned,
		schema.EventNodeUpdated, schema.EventEdgesRelabeled,
	}, types)
	assert.Equal(t, "d", got[4].NodeID)
}
