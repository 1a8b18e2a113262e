package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.Taken {
			arrow = "==>"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s %s%s %s\n",
			mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef invalid fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef visited fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef unordered fill:#6b6b6b,stroke:#4a4a4a,color:#fff,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if cls := mermaidClass(node); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.DisplayLabel())

	switch node.Kind {
	case schema.KindDecision:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.KindApproval:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case schema.KindTimer:
		return fmt.Sprintf("%s([%q])", id, label)
	case schema.KindParallelSplit, schema.KindParallelJoin, schema.KindSubWorkflow:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case schema.KindAutomatedTask:
		return fmt.Sprintf("%s[/%q/]", id, label)
	case schema.KindNotification:
		return fmt.Sprintf("%s>%q]", id, label)
	case schema.KindStart:
		return fmt.Sprintf("%s((%q))", id, label)
	case schema.KindEnd:
		return fmt.Sprintf("%s(((%q)))", id, label)
	default: // Task and unknown kinds
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores. A bare "end" is a
// Mermaid keyword and gets a trailing underscore.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	safe := r.Replace(id)
	if safe == "end" {
		return safe + "_"
	}
	return safe
}

// mermaidEscapeLabel neutralizes characters Mermaid treats as syntax inside
// quoted and edge labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;")
	return r.Replace(s)
}

// mermaidClass picks the overlay class for a node. Issues win over the
// preview highlight.
func mermaidClass(node *Node) string {
	switch {
	case node.Issue != nil && node.Issue.Severity == schema.SeverityError:
		return "invalid"
	case node.Issue != nil:
		return "warning"
	case node.Visited:
		return "visited"
	default:
		return ""
	}
}
