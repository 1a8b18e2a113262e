package expressions

import (
	"context"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Engine checks and evaluates expressions authored on canvas nodes.
// Three implementations: CEL and Expr (Decision conditions), GoJQ (task
// input/output mappings).
type Engine interface {
	Name() string
	// Check compiles the expression without evaluating it.
	Check(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Language names accepted in a Decision's expressionLanguage config key.
const (
	LanguageCEL  = "cel"
	LanguageExpr = "expr"
	LanguageJQ   = "jq"
)

// Registry holds one engine per language plus the default used when a node
// does not name one.
type Registry struct {
	engines  map[string]Engine
	fallback string
}

// NewRegistry builds every engine. defaultLanguage selects the engine for
// nodes without an expressionLanguage; empty means expr.
func NewRegistry(defaultLanguage string) (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	if defaultLanguage == "" {
		defaultLanguage = LanguageExpr
	}
	r := &Registry{
		engines: map[string]Engine{
			LanguageCEL:  celEngine,
			LanguageExpr: NewExprEngine(),
			LanguageJQ:   NewGoJQEngine(),
		},
		fallback: strings.ToLower(defaultLanguage),
	}
	if _, ok := r.engines[r.fallback]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"unknown expression engine %q; available: cel, expr, jq", defaultLanguage)
	}
	return r, nil
}

// Get returns the engine for language, or the default engine when language
// is empty.
func (r *Registry) Get(language string) (Engine, error) {
	if language == "" {
		language = r.fallback
	}
	e, ok := r.engines[strings.ToLower(language)]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown expression language %q", language).
			WithDetails(map[string]any{"language": language})
	}
	return e, nil
}

// Default returns the engine used for nodes without an expressionLanguage.
func (r *Registry) Default() Engine {
	return r.engines[r.fallback]
}

// JQ returns the mapping engine.
func (r *Registry) JQ() Engine {
	return r.engines[LanguageJQ]
}
