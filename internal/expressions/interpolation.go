package expressions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// Interpolate resolves ${{...}} references in a Notification subject or
// template. Supported paths are inputs.<name>, steps.<nodeID>[.<field>...]
// and workflow.<name>.
func Interpolate(template string, scope *Scope) (string, error) {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "${{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}
		result.WriteString(template[i : i+idx])
		start := i + idx + 3

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeExpression, "unclosed ${{ expression")
		}
		end += start

		ref := strings.TrimSpace(template[start:end])
		if ref == "" {
			return "", schema.NewError(schema.ErrCodeExpression, "empty variable reference: ${{  }}")
		}
		if strings.Contains(ref, "${{") {
			return "", schema.NewError(schema.ErrCodeExpression,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		val, err := resolveRef(ref, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(inline(val))
		i = end + 2
	}
	return result.String(), nil
}

// References lists the ${{...}} paths in template without resolving them.
func References(template string) []string {
	var refs []string
	rest := template
	for {
		idx := strings.Index(rest, "${{")
		if idx == -1 {
			return refs
		}
		rest = rest[idx+3:]
		end := strings.Index(rest, "}}")
		if end == -1 {
			return refs
		}
		refs = append(refs, strings.TrimSpace(rest[:end]))
		rest = rest[end+2:]
	}
}

func resolveRef(ref string, scope *Scope) (any, error) {
	parts := strings.Split(ref, ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"invalid reference %q: expected <namespace>.<name>", ref)
	}

	var root map[string]any
	switch parts[0] {
	case "inputs":
		root = scope.Inputs
	case "steps":
		root = scope.Outputs
	case "workflow":
		root = scope.Workflow
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown namespace %q in ${{%s}}; available: inputs, steps, workflow", parts[0], ref).
			WithDetails(map[string]any{"expression": ref})
	}

	var cur any = root
	for _, key := range parts[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot resolve %q: %q is not an object", ref, key)
		}
		v, ok := m[key]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"cannot resolve %q: %q not found", ref, key).
				WithDetails(map[string]any{"expression": ref})
		}
		cur = v
	}
	return cur, nil
}

// inline renders strings verbatim and everything else as JSON.
func inline(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
