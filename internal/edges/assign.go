// Package edges computes branch metadata for edges leaving branching nodes.
// It is the only writer of EdgeData for Decision and Approval sources.
package edges

import (
	"strings"

	"github.com/rendis/canvasflow/pkg/schema"
)

const (
	defaultSuffix = " (Default)"

	defaultTrueLabel     = "True"
	defaultFalseLabel    = "False"
	defaultApprovedLabel = "Approved"
	defaultRejectedLabel = "Rejected"
	nextLabel            = "Next"
	fallbackLabel        = "Default"
)

// IsBranching reports whether edges leaving a node of this kind carry
// branch metadata.
func IsBranching(kind schema.NodeKind) bool {
	return kind == schema.KindDecision || kind == schema.KindApproval
}

// Assign computes the branch metadata for an edge leaving source.
// Inconsistent configurations are not reported here.
func Assign(source schema.Node, edge schema.Edge) schema.EdgeData {
	switch source.Kind {
	case schema.KindDecision:
		return assignDecision(source.Config, edge.SourcePort)
	case schema.KindApproval:
		return assignApproval(source.Config, edge.SourcePort)
	default:
		return schema.EdgeData{}
	}
}

// Relabel returns a copy of edges where every edge leaving source has its
// data recomputed from source's current config. Other edges are copied as-is.
func Relabel(source schema.Node, edges []schema.Edge) []schema.Edge {
	out := make([]schema.Edge, len(edges))
	for i, e := range edges {
		if e.Source == source.ID {
			e.Data = Assign(source, e)
		}
		out[i] = e
	}
	return out
}

// Stale reports whether an edge's stored data differs from what Assign
// would produce for the given source.
func Stale(source schema.Node, edge schema.Edge) bool {
	return edge.Data != Assign(source, edge)
}

func assignDecision(cfg map[string]any, port string) schema.EdgeData {
	var dc schema.DecisionConfig
	if err := schema.DecodeConfig(cfg, &dc); err != nil {
		// Partially typed configs still yield labels from the string fields.
		dc = schema.DecisionConfig{
			ConditionExpression: schema.ConfigString(cfg, schema.ConfigConditionExpression),
			DefaultPath:         schema.ConfigString(cfg, schema.ConfigDefaultPath),
			TruePathLabel:       schema.ConfigString(cfg, schema.ConfigTruePathLabel),
			FalsePathLabel:      schema.ConfigString(cfg, schema.ConfigFalsePathLabel),
		}
	}

	var label string
	switch port {
	case schema.PortTrue:
		label = orDefault(dc.TruePathLabel, defaultTrueLabel)
	case schema.PortFalse:
		label = orDefault(dc.FalsePathLabel, defaultFalseLabel)
	default:
		return schema.EdgeData{
			ConditionKind: schema.ConditionDefault,
			Label:         fallbackLabel,
		}
	}

	if port == dc.DefaultPath {
		if !strings.HasSuffix(label, defaultSuffix) {
			label += defaultSuffix
		}
		return schema.EdgeData{
			ConditionKind: schema.ConditionDefault,
			Label:         label,
		}
	}

	return schema.EdgeData{
		ConditionKind:       schema.ConditionKind(port),
		ConditionExpression: dc.ConditionExpression,
		Label:               label,
	}
}

func assignApproval(cfg map[string]any, port string) schema.EdgeData {
	switch port {
	case schema.PortApproved:
		return schema.EdgeData{
			ConditionKind: schema.ConditionApproved,
			Label:         orDefault(schema.ConfigString(cfg, "approvedLabel"), defaultApprovedLabel),
		}
	case schema.PortRejected:
		return schema.EdgeData{
			ConditionKind: schema.ConditionRejected,
			Label:         orDefault(schema.ConfigString(cfg, "rejectedLabel"), defaultRejectedLabel),
		}
	default:
		return schema.EdgeData{Label: nextLabel}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
