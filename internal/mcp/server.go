package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/insightshq/nl2sql-processor/internal/store"
	"github.com/insightshq/nl2sql-processor/internal/tools"
)

const serverName = "InsightsHQ NL2SQL"

// MCPServer exposes the agent toolbox over the Model Context Protocol so
// other assistants can explore the documented views and run read-only
// queries the same way the processor's agent does.
type MCPServer struct {
	toolbox *tools.Toolbox
	store   store.Store
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer registers the toolbox tools and the catalog resources. st is
// optional; when set a request status tool is added.
func NewMCPServer(tb *tools.Toolbox, st store.Store, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		toolbox: tb,
		store:   st,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		serverName,
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects or
// ctx is cancelled.
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.NewStdioServer(s.server).Listen(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP serves MCP in Streamable HTTP mode on addr (e.g. ":3001")
// until ctx is cancelled.
func (s *MCPServer) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return httpServer.Shutdown(context.WithoutCancel(ctx))
	}
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
