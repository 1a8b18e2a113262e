package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_WireFormat(t *testing.T) {
	step := Step{
		Name:   "Review",
		Type:   string(KindDecision),
		NodeID: "d1",
		Config: map[string]any{},
		Branches: []Branch{
			{ConditionLabel: "Yes", ConditionKind: ConditionTrue, TargetNodeID: "t1"},
		},
	}

	raw, err := json.Marshal(step)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "Review",
		"order": 0,
		"type": "Decision",
		"description": "",
		"nodeId": "d1",
		"config": {},
		"branches": [{"conditionLabel": "Yes", "conditionKind": "true", "targetNodeId": "t1"}]
	}`, string(raw))
}
