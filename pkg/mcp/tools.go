package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/canvasflow/internal/canvas"
	"github.com/rendis/canvasflow/internal/diagram"
	"github.com/rendis/canvasflow/internal/logging"
	"github.com/rendis/canvasflow/internal/preview"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/pkg/schema"
)

// handleTranslate validates and translates a graph document.
func (s *CanvasServer) handleTranslate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := graphArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.withCorrelation(ctx, req.GetString("workflow_id", ""))

	_, res := s.service.TranslateDocument(ctx, raw)
	return marshalResult(res)
}

// handleAssignEdges refreshes branch data on every edge leaving a branching
// node and returns the updated graph with the IDs of edges that changed.
func (s *CanvasServer) handleAssignEdges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := decodeGraph(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := []canvas.Option{canvas.WithHub(s.hub), canvas.WithLogger(s.logger)}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		opts = append(opts, canvas.WithID(session.SessionID()))
	}
	session := canvas.NewSession(g, opts...)
	changed := session.RelabelAll(ctx)
	if changed == nil {
		changed = []string{}
	}

	return marshalResult(map[string]any{
		"graph":   session.Snapshot(),
		"changed": changed,
	})
}

// handleSave translates a graph and stores it as the next revision.
func (s *CanvasServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	g, err := decodeGraph(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.withCorrelation(ctx, workflowID)

	result, saveErr := s.service.Save(ctx, workflowID, g)
	if saveErr != nil {
		if result != nil {
			return errorResult(saveErr, result.Translation)
		}
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", saveErr)), nil
	}

	return marshalResult(result)
}

// handleGet returns a workflow and one of its revisions.
func (s *CanvasServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	ctx = s.withCorrelation(ctx, workflowID)

	wf, rev, getErr := s.service.Get(ctx, workflowID, extractInt(req.GetArguments(), "version", 0))
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", getErr)), nil
	}
	return marshalResult(map[string]any{"workflow": wf, "revision": rev})
}

// handleList lists stored workflows.
func (s *CanvasServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)

	wf := store.WorkflowFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if prefix, ok := filter["name_prefix"].(string); ok {
		wf.NamePrefix = prefix
	}
	if since := extractTime(filter, "since"); since != nil {
		wf.Since = since
	}

	workflows, err := s.service.List(ctx, wf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

// handleHistory lists revisions, save attempts or raw events.
func (s *CanvasServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)
	workflowID, _ := filter["workflow_id"].(string)

	switch resource {
	case "revisions":
		if workflowID == "" {
			return mcp.NewToolResultError("revision query requires 'workflow_id' in filter"), nil
		}
		revisions, qErr := s.service.Revisions(ctx, workflowID)
		if qErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
		}
		return marshalResult(map[string]any{"revisions": revisions})
	case "attempts":
		if workflowID == "" {
			return mcp.NewToolResultError("attempt query requires 'workflow_id' in filter"), nil
		}
		attempts, qErr := s.service.History(ctx, workflowID)
		if qErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
		}
		return marshalResult(map[string]any{"attempts": attempts})
	case "events":
		return s.queryEvents(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDelete removes a workflow.
func (s *CanvasServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if delErr := s.service.Delete(ctx, workflowID); delErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", delErr)), nil
	}
	return marshalResult(map[string]any{"ok": true, "workflow_id": workflowID})
}

// handleDiagram draws a graph in the requested format.
func (s *CanvasServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	g, err := s.resolveGraph(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var opts diagram.Options
	if req.GetString("include_steps", "true") != "false" {
		opts.Translation = s.service.Translate(ctx, g)
	}
	if data := mcp.ParseStringMap(req, "data", nil); data != nil {
		path, traceErr := preview.Trace(ctx, g, data, preview.Options{Engines: s.engines, Inputs: s.inputs})
		if traceErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", traceErr)), nil
		}
		opts.Path = path
	}

	model, buildErr := diagram.Build(g, opts)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// handlePreview traces the path sample data takes through a graph.
func (s *CanvasServer) handlePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g, err := s.resolveGraph(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, traceErr := preview.Trace(ctx, g, mcp.ParseStringMap(req, "data", nil), preview.Options{
		Engines:   s.engines,
		Inputs:    s.inputs,
		MaxVisits: extractInt(req.GetArguments(), "max_visits", 0),
	})
	if traceErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preview failed: %v", traceErr)), nil
	}
	return marshalResult(path)
}

// --- Query helpers ---

func (s *CanvasServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("event queries are not available"), nil
	}

	ef := store.EventFilter{
		Limit: extractInt(filter, "limit", 100),
		Since: extractTime(filter, "since"),
	}
	if wfID, ok := filter["workflow_id"].(string); ok {
		ef.WorkflowID = wfID
	}
	if nodeID, ok := filter["node_id"].(string); ok {
		ef.NodeID = nodeID
	}

	if eventType, ok := filter["event_type"].(string); ok && eventType != "" {
		events, err := s.store.GetEventsByType(ctx, eventType, ef)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"events": events})
	}

	// Without an event type the query is scoped to one workflow.
	if ef.WorkflowID == "" {
		return mcp.NewToolResultError("event query requires either 'event_type' or 'workflow_id' in filter"), nil
	}
	events, err := s.store.GetEvents(ctx, ef.WorkflowID, int64(extractInt(filter, "after_sequence", 0)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

// --- Internal helpers ---

// resolveGraph returns the inline graph argument or, without one, the
// requested revision of a stored workflow.
func (s *CanvasServer) resolveGraph(ctx context.Context, req mcp.CallToolRequest) (schema.Graph, error) {
	if _, ok := req.GetArguments()["graph"]; ok {
		return decodeGraph(req)
	}

	workflowID := req.GetString("workflow_id", "")
	if workflowID == "" {
		return schema.Graph{}, errors.New("one of graph or workflow_id is required")
	}
	ctx = s.withCorrelation(ctx, workflowID)

	_, rev, err := s.service.Get(ctx, workflowID, extractInt(req.GetArguments(), "version", 0))
	if err != nil {
		return schema.Graph{}, fmt.Errorf("workflow lookup failed: %w", err)
	}
	if rev == nil {
		return schema.Graph{}, fmt.Errorf("workflow %q has no saved revision", workflowID)
	}
	return rev.Graph, nil
}

// withCorrelation tags ctx with the workflow and MCP session IDs and
// subscribes the calling session to the workflow's events.
func (s *CanvasServer) withCorrelation(ctx context.Context, workflowID string) context.Context {
	sessionID := ""
	if session := server.ClientSessionFromContext(ctx); session != nil {
		sessionID = session.SessionID()
	}
	if workflowID != "" && sessionID != "" {
		s.sessions.Watch(workflowID, sessionID)
	}
	return logging.WithIDs(ctx, workflowID, "", sessionID)
}

// graphArg returns the "graph" argument re-encoded as JSON.
func graphArg(req mcp.CallToolRequest) ([]byte, error) {
	v, ok := req.GetArguments()["graph"]
	if !ok || v == nil {
		return nil, errors.New("graph is required")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return raw, nil
}

func decodeGraph(req mcp.CallToolRequest) (schema.Graph, error) {
	raw, err := graphArg(req)
	if err != nil {
		return schema.Graph{}, err
	}
	var g schema.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return schema.Graph{}, fmt.Errorf("invalid graph: %w", err)
	}
	return g, nil
}

// extractInt safely extracts an integer from an argument or filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// extractTime parses an RFC 3339 timestamp from a filter map.
func extractTime(filter map[string]any, key string) *time.Time {
	s, ok := filter[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// errorResult reports err as a tool error while still returning detail as
// JSON so the client can see which issues blocked the call.
func errorResult(err error, detail any) (*mcp.CallToolResult, error) {
	body := map[string]any{"error": err.Error(), "result": detail}
	var ce *schema.CanvasError
	if errors.As(err, &ce) {
		body["code"] = ce.Code
	}
	res, mErr := marshalResult(body)
	if mErr != nil || res == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res.IsError = true
	return res, nil
}
