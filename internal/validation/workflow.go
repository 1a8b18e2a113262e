package validation

import (
	"encoding/json"

	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (per-kind node config)
// 3. Wiring (degrees, stale branch data)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	engines    *expressions.Registry
	actions    ActionLookup
}

// NewWorkflowValidator creates a WorkflowValidator. engines may be nil to
// skip expression compilation; lookup may be nil to skip action existence
// checks.
func NewWorkflowValidator(engines *expressions.Registry, lookup ActionLookup) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		engines:    engines,
		actions:    lookup,
	}, nil
}

// Validate runs the pipeline over a decoded graph. Structural errors
// short-circuit the later stages.
func (wv *WorkflowValidator) Validate(g schema.Graph) *schema.ValidationResult {
	result := issuesFromError(wv.jsonSchema.ValidateGraph(g))
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(g, wv.engines, wv.actions, wv.jsonSchema))

	idx, _ := graph.Build(g.Nodes, g.Edges)
	result.Merge(validateWiring(idx))
	return result
}

// ValidateDocument checks raw JSON against the graph schema, decodes it and
// runs the remaining stages. The returned graph is zero when the document
// is structurally invalid.
func (wv *WorkflowValidator) ValidateDocument(raw []byte) (schema.Graph, *schema.ValidationResult) {
	result := issuesFromError(wv.jsonSchema.ValidateDocument(raw))
	if !result.Valid() {
		return schema.Graph{}, result
	}

	var g schema.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		result.AddError("/", schema.ErrCodeValidation, "cannot decode graph: "+err.Error())
		return schema.Graph{}, result
	}
	return g, wv.Validate(g)
}

// ValidateInput checks preview data against a Start node's inputSchema.
func (wv *WorkflowValidator) ValidateInput(input map[string]any, inputSchema any) error {
	return wv.jsonSchema.ValidateInput(input, inputSchema)
}

var _ Validator = (*WorkflowValidator)(nil)

// issuesFromError converts a JSON Schema CanvasError into one issue per
// violation.
func issuesFromError(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	ce, ok := err.(*schema.CanvasError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := ce.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, ce.Message)
	return result
}
