// Package canvas holds the live editing state of one workflow canvas.
//
// A Session owns an ordered node and edge list. Every mutation that can
// change branch metadata recomputes it before returning, so a Snapshot is
// always consistent with the current node configs.
package canvas

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/canvasflow/internal/edges"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/pkg/schema"
)

// Session is safe for concurrent use.
type Session struct {
	id     string
	hub    streaming.EventHub
	logger *slog.Logger

	mu    sync.RWMutex
	graph schema.Graph
}

// Option configures a Session.
type Option func(*Session)

// WithHub publishes session events to hub.
func WithHub(hub streaming.EventHub) Option {
	return func(s *Session) { s.hub = hub }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession starts a session from a copy of g.
func NewSession(g schema.Graph, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		hub:    streaming.Discard,
		logger: slog.Default(),
		graph:  g.Clone(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier carried on every published event.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a deep copy of the current graph.
func (s *Session) Snapshot() schema.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// AddNode appends n. An empty ID is replaced with a generated one; the
// node's final ID is returned.
func (s *Session) AddNode(ctx context.Context, n schema.Node) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	s.mu.Lock()
	if s.indexOfNode(n.ID) >= 0 {
		s.mu.Unlock()
		return "", schema.NewErrorf(schema.ErrCodeConflict, "node %q already exists", n.ID).WithNode(n.ID)
	}
	s.graph.Nodes = append(s.graph.Nodes, n.Clone())
	s.mu.Unlock()

	s.publish(ctx, n.ID, schema.EventNodeAdded, map[string]any{"type": string(n.Kind)})
	return n.ID, nil
}

// RemoveNode deletes a node and every edge touching it.
func (s *Session) RemoveNode(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOfNode(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound("node", id)
	}
	s.graph.Nodes = append(s.graph.Nodes[:i], s.graph.Nodes[i+1:]...)

	var removed []string
	kept := s.graph.Edges[:0]
	for _, e := range s.graph.Edges {
		if e.Source == id || e.Target == id {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	s.graph.Edges = kept
	s.mu.Unlock()

	s.publish(ctx, id, schema.EventNodeRemoved, map[string]any{"removed_edges": removed})
	return nil
}

// Connect draws an edge from source's port to target and assigns its branch
// metadata from source's current config.
func (s *Session) Connect(ctx context.Context, source, target, port string) (schema.Edge, error) {
	s.mu.Lock()
	si := s.indexOfNode(source)
	if si < 0 {
		s.mu.Unlock()
		return schema.Edge{}, notFound("node", source)
	}
	if s.indexOfNode(target) < 0 {
		s.mu.Unlock()
		return schema.Edge{}, notFound("node", target)
	}

	e := schema.Edge{ID: uuid.NewString(), Source: source, Target: target, SourcePort: port}
	e.Data = edges.Assign(s.graph.Nodes[si], e)
	s.graph.Edges = append(s.graph.Edges, e)
	s.mu.Unlock()

	s.publish(ctx, source, schema.EventEdgeAssigned, e)
	return e, nil
}

// Disconnect removes an edge by ID.
func (s *Session) Disconnect(ctx context.Context, edgeID string) error {
	s.mu.Lock()
	i := s.indexOfEdge(edgeID)
	if i < 0 {
		s.mu.Unlock()
		return notFound("edge", edgeID)
	}
	e := s.graph.Edges[i]
	s.graph.Edges = append(s.graph.Edges[:i], s.graph.Edges[i+1:]...)
	s.mu.Unlock()

	s.publish(ctx, e.Source, schema.EventEdgeRemoved, map[string]any{"edge_id": edgeID})
	return nil
}

// UpdateNodeConfig merges patch into the node's config; a nil value deletes
// the key. For Decision and Approval nodes every outgoing edge is relabeled
// before the call returns.
func (s *Session) UpdateNodeConfig(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	i := s.indexOfNode(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound("node", id)
	}

	n := &s.graph.Nodes[i]
	cfg := schema.CloneConfig(n.Config)
	if cfg == nil {
		cfg = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(cfg, k)
			continue
		}
		cfg[k] = v
	}
	n.Config = cfg

	var relabeled []string
	if edges.IsBranching(n.Kind) {
		relabeled = s.relabel(*n)
	}
	s.mu.Unlock()

	s.publish(ctx, id, schema.EventNodeUpdated, map[string]any{"keys": slices.Sorted(maps.Keys(patch))})
	if len(relabeled) > 0 {
		s.publish(ctx, id, schema.EventEdgesRelabeled, map[string]any{"edge_ids": relabeled})
	}
	return nil
}

// UpdateNodeLabel sets a node's display label.
func (s *Session) UpdateNodeLabel(ctx context.Context, id, label string) error {
	s.mu.Lock()
	i := s.indexOfNode(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound("node", id)
	}
	s.graph.Nodes[i].Label = label
	s.mu.Unlock()

	s.publish(ctx, id, schema.EventNodeUpdated, map[string]any{"label": label})
	return nil
}

// RelabelAll recomputes branch metadata for every edge leaving a Decision or
// Approval node and returns the IDs of edges whose data changed.
func (s *Session) RelabelAll(ctx context.Context) []string {
	s.mu.Lock()
	var changed []string
	for _, n := range s.graph.Nodes {
		if edges.IsBranching(n.Kind) {
			changed = append(changed, s.relabel(n)...)
		}
	}
	s.mu.Unlock()

	if len(changed) > 0 {
		s.publish(ctx, "", schema.EventEdgesRelabeled, map[string]any{"edge_ids": changed})
	}
	return changed
}

// relabel must be called with mu held.
func (s *Session) relabel(source schema.Node) []string {
	next := edges.Relabel(source, s.graph.Edges)
	var changed []string
	for i := range next {
		if next[i].Data != s.graph.Edges[i].Data {
			changed = append(changed, next[i].ID)
		}
	}
	s.graph.Edges = next
	return changed
}

func (s *Session) publish(ctx context.Context, nodeID, eventType string, payload any) {
	ctx = logging.WithIDs(ctx, logging.WorkflowID(ctx), nodeID, s.id)
	err := s.hub.Publish(ctx, streaming.StreamEvent{
		SessionID:  s.id,
		WorkflowID: logging.WorkflowID(ctx),
		NodeID:     nodeID,
		EventType:  eventType,
		Payload:    payload,
	})
	if err != nil {
		s.logger.DebugContext(ctx, "event not published", "event_type", eventType, "error", err)
	}
}

func (s *Session) indexOfNode(id string) int {
	for i, n := range s.graph.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) indexOfEdge(id string) int {
	for i, e := range s.graph.Edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func notFound(what, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", what, id)
}

