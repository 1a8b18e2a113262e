package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/preview"
	"github.com/rendis/canvasflow/internal/store"
	"github.com/rendis/canvasflow/internal/streaming"
	"github.com/rendis/canvasflow/internal/workflow"
)

// ServerDeps holds the dependencies for creating a CanvasServer. Store is
// only used for raw event queries; everything else goes through Service.
type ServerDeps struct {
	Service *workflow.Service
	Store   store.Store
	Engines *expressions.Registry
	Inputs  preview.InputValidator
	Hub     streaming.EventHub
	Logger  *slog.Logger
	Version string
}

// CanvasServer wraps an MCP server with canvasflow tool handlers.
type CanvasServer struct {
	service   *workflow.Service
	store     store.Store
	engines   *expressions.Registry
	inputs    preview.InputValidator
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewCanvasServer creates a CanvasServer with every tool registered.
func NewCanvasServer(deps ServerDeps) *CanvasServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	hub := deps.Hub
	if hub == nil {
		hub = streaming.Discard
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &CanvasServer{
		service:  deps.Service,
		store:    deps.Store,
		engines:  deps.Engines,
		inputs:   deps.Inputs,
		hub:      hub,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"canvasflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Canvasflow turns workflow canvases (typed nodes joined by edges) into ordered, executable steps. Use canvas.translate to check a graph, canvas.assign_edges to refresh branch labels, canvas.save to store a revision, canvas.get and canvas.list to read stored workflows, canvas.history for revisions and save attempts, canvas.diagram to draw a graph and canvas.preview to trace the path sample data would take."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Hub events about workflows a client has touched are relayed to it
// as log notifications while serving.
func (s *CanvasServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	notifier := NewMCPNotifier(s.mcpServer, s.sessions)

	g.Go(func() error {
		err := Relay(gctx, s.hub, notifier)
		if gctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.Warn("event relay stopped", "error", err)
		}
		return err
	})
	g.Go(func() error {
		// Stdin closing ends the session; stop the relay with it.
		defer cancel()
		return server.NewStdioServer(s.mcpServer).Listen(gctx, os.Stdin, os.Stdout)
	})
	return g.Wait()
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CanvasServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *CanvasServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: translateTool(), Handler: s.handleTranslate},
		{Tool: assignEdgesTool(), Handler: s.handleAssignEdges},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: previewTool(), Handler: s.handlePreview},
	}
}

// --- Tool definitions ---

func translateTool() mcp.Tool {
	return mcp.NewTool("canvas.translate",
		mcp.WithDescription("Validate a workflow graph and translate it into ordered steps"),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Graph document: {name, nodes: [{id, type, label, config}], edges: [{id, source, target, sourcePort, data}]}")),
		mcp.WithString("workflow_id", mcp.Description("Workflow the graph belongs to, used to correlate events")),
	)
}

func assignEdgesTool() mcp.Tool {
	return mcp.NewTool("canvas.assign_edges",
		mcp.WithDescription("Recompute branch labels and conditions for edges leaving Decision and Approval nodes"),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Graph document whose edge data should be refreshed")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("canvas.save",
		mcp.WithDescription("Translate a graph and store it as the next revision of a workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow ID; the workflow is created on first save")),
		mcp.WithObject("graph", mcp.Required(), mcp.Description("Graph document to save")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("canvas.get",
		mcp.WithDescription("Get a stored workflow and one of its revisions"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithNumber("version", mcp.Description("Revision number (default: latest)")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("canvas.list",
		mcp.WithDescription("List stored workflows, most recently updated first"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (name_prefix, since, limit, offset)")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("canvas.history",
		mcp.WithDescription("Query revisions, save attempts or raw events"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("revisions", "attempts", "events"),
			mcp.Description("Type of history to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow_id, node_id, event_type, since, limit)")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("canvas.delete",
		mcp.WithDescription("Delete a workflow with its revisions and history"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("canvas.diagram",
		mcp.WithDescription("Generate a visual diagram of a workflow. Returns ASCII art, Mermaid flowchart syntax, or base64-encoded PNG image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
		mcp.WithObject("graph", mcp.Description("Graph document to draw")),
		mcp.WithString("workflow_id", mcp.Description("Stored workflow to draw when no graph is given")),
		mcp.WithNumber("version", mcp.Description("Revision number (default: latest)")),
		mcp.WithString("include_steps", mcp.Description("Number nodes by step order and flag issues (default: true)")),
		mcp.WithObject("data", mcp.Description("Sample data; when set the previewed path is highlighted")),
	)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("canvas.preview",
		mcp.WithDescription("Trace the path a run would take through a graph for the given sample data"),
		mcp.WithObject("graph", mcp.Description("Graph document to trace")),
		mcp.WithString("workflow_id", mcp.Description("Stored workflow to trace when no graph is given")),
		mcp.WithNumber("version", mcp.Description("Revision number (default: latest)")),
		mcp.WithObject("data", mcp.Description("Inputs, plus optional approvals {nodeId: approved|rejected} and outputs {nodeId: result}")),
		mcp.WithNumber("max_visits", mcp.Description("Stop after this many visits (default: node count)")),
	)
}
