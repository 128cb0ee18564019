// Package mcp exposes the flow catalogue, the graph analyzer, the
// health monitor and the pipeline runner as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/streamflow/internal/store"
	"github.com/rendis/streamflow/pkg/analysis"
	"github.com/rendis/streamflow/pkg/health"
	"github.com/rendis/streamflow/pkg/pipeline"
	"github.com/rendis/streamflow/pkg/registry"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Registry *registry.Registry
	Analyzer *analysis.Analyzer
	Monitor  *health.Monitor
	Store    store.Store
	Runner   *pipeline.Runner
	Logger   *slog.Logger
}

// Server wraps an MCP server with flow catalogue tool handlers.
type Server struct {
	registry  *registry.Registry
	analyzer  *analysis.Analyzer
	monitor   *health.Monitor
	store     store.Store
	runner    *pipeline.Runner
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		registry: deps.Registry,
		analyzer: deps.Analyzer,
		monitor:  deps.Monitor,
		store:    deps.Store,
		runner:   deps.Runner,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"streamflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Streamflow is a composable stream-transformation engine. Use flows.list and flows.search to browse the catalogue, flows.info for details on one flow, flows.analyze to inspect a composition's dependency graph, health.check to probe system health, and pipeline.define / pipeline.run to register and execute declarative pipelines."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: listTool(), Handler: s.handleList},
		{Tool: searchTool(), Handler: s.handleSearch},
		{Tool: infoTool(), Handler: s.handleInfo},
		{Tool: analyzeTool(), Handler: s.handleAnalyze},
		{Tool: healthTool(), Handler: s.handleHealth},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: runTool(), Handler: s.handleRun},
	}
}

// --- Tool definitions ---

func listTool() mcp.Tool {
	return mcp.NewTool("flows.list",
		mcp.WithDescription("List registered flows, optionally scoped to a category"),
		mcp.WithString("category", mcp.Description("Category to filter by (default: all flows)")),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool("flows.search",
		mcp.WithDescription("Search flows by name or metadata"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive search term")),
	)
}

func infoTool() mcp.Tool {
	return mcp.NewTool("flows.info",
		mcp.WithDescription("Get details about one registered flow"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Registration name of the flow")),
	)
}

func analyzeTool() mcp.Tool {
	return mcp.NewTool("flows.analyze",
		mcp.WithDescription("Build the dependency graph of a flow composition with detected patterns and optimization suggestions"),
		mcp.WithArray("flows", mcp.Required(), mcp.Description("Ordered list of registered flow names forming the composition")),
	)
}

func healthTool() mcp.Tool {
	return mcp.NewTool("health.check",
		mcp.WithDescription("Run all health checks and report aggregated system health"),
		mcp.WithBoolean("history", mcp.Description("Include recent check history in the report")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("pipeline.define",
		mcp.WithDescription("Validate and persist a declarative pipeline definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Pipeline definition with name and stages")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("pipeline.run",
		mcp.WithDescription("Execute a stored pipeline against an array of input items"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of a pipeline registered via pipeline.define")),
		mcp.WithArray("items", mcp.Required(), mcp.Description("Input items to push through the pipeline")),
	)
}
