// Package streaming fans canvas editing events out to live subscribers,
// such as an MCP client watching a session.
package streaming

import "context"

// StreamEvent is a real-time event emitted while a canvas is edited,
// translated or saved. EventType is one of the schema.Event* constants.
type StreamEvent struct {
	SessionID  string `json:"session_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	NodeID     string `json:"node_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	WorkflowID string   `json:"workflow_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for canvas events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

// Discard is an EventHub that drops every event.
var Discard EventHub = discard{}

type discard struct{}

func (discard) Publish(ctx context.Context, _ StreamEvent) error { return ctx.Err() }

func (discard) Subscribe(ctx context.Context, _ EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ch := make(chan StreamEvent)
	close(ch)
	return ch, func() {}, nil
}
