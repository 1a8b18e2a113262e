package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/canvasflow/internal/translate"
	"github.com/rendis/canvasflow/pkg/schema"
)

func TestRenderMermaidLinear(t *testing.T) {
	model, err := Build(linearGraph(), Options{})
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% Onboarding")
	assert.Contains(t, out, `start(("Start"))`)
	assert.Contains(t, out, `collect["Collect documents"]`)
	assert.Contains(t, out, `welcome>"Send welcome"]`)
	assert.Contains(t, out, `end_((("End")))`)
	assert.Contains(t, out, "start --> collect")
	assert.Contains(t, out, "welcome --> end_")
}

func TestRenderMermaidShapesAndLabels(t *testing.T) {
	model, err := Build(decisionGraph(), Options{})
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, `check{"Over limit?"}`)
	assert.Contains(t, out, `review{{"Manager review"}}`)
	assert.Contains(t, out, `pay[/"Pay out"/]`)
	assert.Contains(t, out, "check -->|True| review")
	assert.Contains(t, out, "check -->|False (Default)| pay")
}

func TestRenderMermaidStepNumbers(t *testing.T) {
	g := linearGraph()
	model, err := Build(g, Options{Translation: translate.Translate(g)})
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, `collect["1. Collect documents"]`)
}

func TestRenderMermaidOverlayClasses(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{
			{ID: "a", Label: "A", Kind: schema.KindTask, Issue: &Issue{Severity: schema.SeverityError, Message: "x"}},
			{ID: "b", Label: "B", Kind: schema.KindTask, Issue: &Issue{Severity: schema.SeverityWarning, Message: "y"}},
			{ID: "c", Label: "C", Kind: schema.KindTask, Visited: true},
			{ID: "d", Label: "D", Kind: schema.KindTask},
		},
		Edges: []*Edge{{ID: "e1", From: "a", To: "c", Taken: true}},
	}

	out := RenderMermaid(model)
	assert.Contains(t, out, "class a invalid")
	assert.Contains(t, out, "class b warning")
	assert.Contains(t, out, "class c visited")
	assert.NotContains(t, out, "class d ")
	assert.Contains(t, out, "a ==> c")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "node_1_a_b", mermaidSafeID("node-1.a b"))
	assert.Equal(t, "end_", mermaidSafeID("end"))
	assert.Equal(t, "End", mermaidSafeID("End"))
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "say #quot;hi#quot; #124; bye", mermaidEscapeLabel(`say "hi" | bye`))
}
