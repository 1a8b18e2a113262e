package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/canvasflow/internal/streaming"
)

// WorkflowNotifier pushes notifications to clients watching a workflow.
type WorkflowNotifier interface {
	Notify(ctx context.Context, workflowID string, payload map[string]any) error
}

// MCPNotifier implements WorkflowNotifier with MCP log notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to registered sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends payload to every session watching the workflow.
// Best-effort: a workflow nobody watches is not an error.
func (n *MCPNotifier) Notify(_ context.Context, workflowID string, payload map[string]any) error {
	var errs []error
	for _, sessionID := range n.sessions.Watchers(workflowID) {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Relay forwards hub events that carry a workflow ID to n until ctx is
// cancelled. Delivery failures are dropped.
func Relay(ctx context.Context, hub streaming.EventHub, n WorkflowNotifier) error {
	events, unsubscribe, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.WorkflowID == "" {
				continue
			}
			_ = n.Notify(ctx, ev.WorkflowID, map[string]any{
				"level":  "info",
				"logger": "canvasflow",
				"data":   ev,
			})
		}
	}
}
