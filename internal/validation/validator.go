// Package validation checks authored graphs beyond what translation
// reports: document shape, per-kind node configuration and wiring hints.
package validation

import "github.com/rendis/canvasflow/pkg/schema"

// Validator checks a workflow graph before it is saved or previewed.
// Uses JSON Schema Draft 2020-12 for the document shape.
type Validator interface {
	Validate(g schema.Graph) *schema.ValidationResult
	ValidateDocument(raw []byte) (schema.Graph, *schema.ValidationResult)
}

// ActionLookup reports whether an AutomatedTask action name is known to the
// execution engine.
type ActionLookup interface {
	Has(name string) bool
}

// ParamsSchemas is implemented by ActionLookups that also know the JSON
// Schema each action expects for its params.
type ParamsSchemas interface {
	ParamsSchema(name string) any
}

// ActionSet is an ActionLookup backed by a fixed list of names.
type ActionSet map[string]bool

// NewActionSet builds an ActionSet from names.
func NewActionSet(names ...string) ActionSet {
	s := make(ActionSet, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Has reports whether name is in the set.
func (s ActionSet) Has(name string) bool {
	return s[name]
}
