package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/canvasflow/pkg/schema"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.DisplayLabel())
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName(edge.ID, fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s: %w", edge.ID, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Taken {
			e.SetStyle(cgraph.BoldEdgeStyle)
			e.SetColor("#1a5276")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and overlays.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case schema.KindDecision:
		gvNode.SetShape(cgraph.DiamondShape)
	case schema.KindApproval:
		gvNode.SetShape(cgraph.HexagonShape)
	case schema.KindTimer:
		gvNode.SetShape(cgraph.EllipseShape)
	case schema.KindAutomatedTask:
		gvNode.SetShape(cgraph.ParallelogramShape)
	case schema.KindNotification:
		gvNode.SetShape(cgraph.NoteShape)
	case schema.KindParallelSplit, schema.KindParallelJoin:
		gvNode.SetShape(cgraph.InvTrapeziumShape)
	case schema.KindSubWorkflow:
		gvNode.SetShape(cgraph.Box3DShape)
	case schema.KindStart:
		gvNode.SetShape(cgraph.CircleShape)
	case schema.KindEnd:
		gvNode.SetShape(cgraph.DoubleCircleShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	switch {
	case node.Issue != nil && node.Issue.Severity == schema.SeverityError:
		fill(gvNode, "#8b1a1a", "white")
	case node.Issue != nil:
		fill(gvNode, "#b7791a", "white")
	case node.Visited:
		fill(gvNode, "#1a5276", "white")
	}
}

func fill(gvNode *cgraph.Node, color, font string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	gvNode.SetFillColor(color)
	gvNode.SetFontColor(font)
}
