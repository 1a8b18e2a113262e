package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeKind_Known(t *testing.T) {
	for _, k := range NodeKinds() {
		assert.True(t, k.Known(), "kind %s", k)
	}
	assert.False(t, NodeKind("").Known())
	assert.False(t, NodeKind("condition").Known())
	assert.Len(t, NodeKinds(), 11)
}

func TestGraph_CloneIsDeep(t *testing.T) {
	g := Graph{
		Nodes: []Node{{
			ID:   "d1",
			Kind: KindDecision,
			Config: map[string]any{
				"defaultPath": "false",
				"nested":      map[string]any{"a": []any{"x"}},
			},
		}},
		Edges: []Edge{{ID: "e1", Source: "d1", Target: "t1", SourcePort: PortTrue}},
	}

	c := g.Clone()
	c.Nodes[0].Config["defaultPath"] = "true"
	c.Nodes[0].Config["nested"].(map[string]any)["a"].([]any)[0] = "y"
	c.Edges[0].Data.Label = "changed"

	assert.Equal(t, "false", g.Nodes[0].Config["defaultPath"])
	assert.Equal(t, "x", g.Nodes[0].Config["nested"].(map[string]any)["a"].([]any)[0])
	assert.Empty(t, g.Edges[0].Data.Label)
}

func TestGraph_Node(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "a"}, {ID: "b", Label: "B"}}}
	n, ok := g.Node("b")
	require.True(t, ok)
	assert.Equal(t, "B", n.Label)

	_, ok = g.Node("zzz")
	assert.False(t, ok)
}

func TestDecodeConfig(t *testing.T) {
	var cfg DecisionConfig
	err := DecodeConfig(map[string]any{
		"conditionExpression": "amount > 500",
		"defaultPath":         "false",
		"truePathLabel":       "Yes",
	}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "amount > 500", cfg.ConditionExpression)
	assert.Equal(t, "false", cfg.DefaultPath)
	assert.Equal(t, "Yes", cfg.TruePathLabel)

	var timer TimerConfig
	require.NoError(t, DecodeConfig(nil, &timer))
	assert.Empty(t, timer.Duration)

	var notif NotificationConfig
	err = DecodeConfig(map[string]any{"recipients": "not-a-list"}, &notif)
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	cfg := map[string]any{"a": "x", "b": 3}
	assert.Equal(t, "x", ConfigString(cfg, "a"))
	assert.Empty(t, ConfigString(cfg, "b"))
	assert.Empty(t, ConfigString(nil, "a"))
}
