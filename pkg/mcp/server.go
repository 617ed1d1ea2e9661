package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/graphio"
	"github.com/rendis/netgraph/internal/recompute"
)

// NetgraphServerDeps holds the dependencies for creating a NetgraphServer.
// Sessions may be nil, which leaves the session tools unregistered.
type NetgraphServerDeps struct {
	Pipeline      *engine.Pipeline
	Decoder       *graphio.Decoder
	Sessions      *recompute.Manager
	Logger        *slog.Logger
	DiagramBinDir string
}

// NetgraphServer wraps an MCP server with graph compiler tool handlers.
type NetgraphServer struct {
	pipeline      *engine.Pipeline
	decoder       *graphio.Decoder
	sessions      *recompute.Manager
	watchers      *SessionRegistry
	logger        *slog.Logger
	diagramBinDir string
	mcpServer     *server.MCPServer
}

// NewNetgraphServer creates a new NetgraphServer with its tools registered.
func NewNetgraphServer(deps NetgraphServerDeps) (*NetgraphServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = engine.NewPipeline(engine.PipelineDeps{Logger: logger}, engine.PipelineConfig{})
	}
	decoder := deps.Decoder
	if decoder == nil {
		d, err := graphio.NewDecoder()
		if err != nil {
			return nil, err
		}
		decoder = d
	}

	s := &NetgraphServer{
		pipeline:      pipeline,
		decoder:       decoder,
		sessions:      deps.Sessions,
		watchers:      NewSessionRegistry(),
		logger:        logger,
		diagramBinDir: deps.DiagramBinDir,
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.watchers.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"netgraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Netgraph compiles neural-network graphs into Keras code. Pass the graph as an object with nodes [{id, type, params}] and edges [{source, target}]. Use netgraph.compile to check wiring and variable names, netgraph.infer_shapes for per-layer output shapes, netgraph.generate_code for Keras source, netgraph.diagram to visualise the network, and netgraph.layers to list supported layer types. netgraph.open_session keeps a graph open and re-analyses it on every netgraph.update_session."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *NetgraphServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *NetgraphServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Watchers returns the registry of clients watching graph sessions.
func (s *NetgraphServer) Watchers() *SessionRegistry {
	return s.watchers
}

func (s *NetgraphServer) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: compileTool(), Handler: s.handleCompile},
		{Tool: shapesTool(), Handler: s.handleInferShapes},
		{Tool: codeTool(), Handler: s.handleGenerateCode},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: layersTool(), Handler: s.handleLayers},
	}
	if s.sessions != nil {
		tools = append(tools,
			server.ServerTool{Tool: openSessionTool(), Handler: s.handleOpenSession},
			server.ServerTool{Tool: updateSessionTool(), Handler: s.handleUpdateSession},
			server.ServerTool{Tool: sessionTool(), Handler: s.handleSession},
		)
	}
	return tools
}

// --- Tool definitions ---

func graphParam() mcp.ToolOption {
	return mcp.WithObject("graph", mcp.Required(),
		mcp.Description("Graph document: {nodes: [{id, type, params}], edges: [{source, target}], variables, input_shape}. Editor exports with data.type/data.params are accepted too"),
	)
}

func styleParam() mcp.ToolOption {
	return mcp.WithString("style",
		mcp.Enum("auto", "sequential", "functional"),
		mcp.Description("Code style (default: auto, which picks sequential for a single chain)"),
	)
}

func compileTool() mcp.Tool {
	return mcp.NewTool("netgraph.compile",
		mcp.WithDescription("Compile a graph into a topologically ordered layer list with generated variable names"),
		graphParam(),
	)
}

func shapesTool() mcp.Tool {
	return mcp.NewTool("netgraph.infer_shapes",
		mcp.WithDescription("Infer the output shape of every layer and report shape errors and warnings"),
		graphParam(),
	)
}

func codeTool() mcp.Tool {
	return mcp.NewTool("netgraph.generate_code",
		mcp.WithDescription("Generate Keras Python source for a graph"),
		graphParam(),
		styleParam(),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("netgraph.diagram",
		mcp.WithDescription("Generate a visual diagram of a network. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"),
		graphParam(),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
	)
}

func layersTool() mcp.Tool {
	return mcp.NewTool("netgraph.layers",
		mcp.WithDescription("List supported layer types with their defaults and capabilities"),
	)
}

func openSessionTool() mcp.Tool {
	return mcp.NewTool("netgraph.open_session",
		mcp.WithDescription("Open an editing session; the graph is re-analysed after every update and results are pushed as notifications"),
		graphParam(),
		styleParam(),
	)
}

func updateSessionTool() mcp.Tool {
	return mcp.NewTool("netgraph.update_session",
		mcp.WithDescription("Replace the graph of an editing session and schedule a new analysis"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID returned by netgraph.open_session")),
		graphParam(),
		styleParam(),
	)
}

func sessionTool() mcp.Tool {
	return mcp.NewTool("netgraph.session",
		mcp.WithDescription("Get an editing session's latest analysis, optionally waiting for pending edits to be analysed"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID returned by netgraph.open_session")),
		mcp.WithBoolean("analyze", mcp.Description("Analyse the current graph now instead of returning the last published report")),
	)
}
