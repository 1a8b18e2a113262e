package expressions

import "encoding/json"

// Scope is the data a preview run evaluates expressions against.
// Outputs are keyed by node ID and are recorded as steps complete.
type Scope struct {
	Inputs   map[string]any
	Outputs  map[string]any
	Workflow map[string]any
}

// NewScope deep-copies inputs and workflow metadata so a trace never writes
// through to the caller's maps.
func NewScope(inputs, workflow map[string]any) *Scope {
	return &Scope{
		Inputs:   deepCopyMap(inputs),
		Outputs:  map[string]any{},
		Workflow: deepCopyMap(workflow),
	}
}

// SetOutput records a node's output. Later writes for the same node win.
func (s *Scope) SetOutput(nodeID string, output any) {
	s.Outputs[nodeID] = deepCopyAny(output)
}

// Data flattens the scope into the map handed to an Engine. The namespaces
// are inputs, steps and workflow; input keys are also exposed at the top
// level for engines that resolve bare identifiers.
func (s *Scope) Data() map[string]any {
	data := make(map[string]any, len(s.Inputs)+3)
	for k, v := range s.Inputs {
		data[k] = v
	}
	data["inputs"] = orEmpty(s.Inputs)
	data["steps"] = orEmpty(s.Outputs)
	data["workflow"] = orEmpty(s.Workflow)
	return data
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// --- Deep copy utilities ---

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies maps and slices. Primitives are
// returned as-is.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
