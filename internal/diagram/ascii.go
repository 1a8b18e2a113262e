package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

// issueTag returns a short ASCII indicator for a node overlay.
func issueTag(node *Node) string {
	switch {
	case node.Issue != nil && node.Issue.Severity == schema.SeverityError:
		return "[ERR]"
	case node.Issue != nil:
		return "[WARN]"
	case node.Visited:
		return "[*]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters, followed by a
// listing of labelled branches.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var branches []*Edge
	for _, e := range model.Edges {
		if e.Label != "" {
			branches = append(branches, e)
		}
	}
	if len(branches) > 0 {
		b.WriteString("\n--- branches ---\n")
		for _, e := range branches {
			marker := " "
			if e.Taken {
				marker = "*"
			}
			b.WriteString(fmt.Sprintf("  %s %s ─[%s]→ %s\n", marker, e.From, e.Label, e.To))
		}
	}

	var issues []*Node
	for _, n := range model.Nodes {
		if n.Issue != nil {
			issues = append(issues, n)
		}
	}
	if len(issues) > 0 {
		b.WriteString("\n--- issues ---\n")
		for _, n := range issues {
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", issueTag(n), n.ID, n.Issue.Message))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{node.DisplayLabel()}
	if node.Kind != "" && node.Kind != schema.KindStart && node.Kind != schema.KindEnd {
		contentLines = append(contentLines, "<"+string(node.Kind)+">")
	}
	if tag := issueTag(node); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len(line))
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
