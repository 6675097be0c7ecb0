package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/config"
	imcp "github.com/insightshq/nl2sql-processor/internal/mcp"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
		withStore bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the agent tools
(list_views, get_db_schema, fetch_distinct_values, run_sql_query,
fetch_similar_queries) and the view catalog to other assistants.

In stdio mode the server talks JSON-RPC over stdin/stdout, suitable for
clients that launch it as a subprocess. In HTTP mode it serves the
Streamable HTTP transport on --port.`,
		Example: `  insightshq mcp                            # stdio mode
  insightshq mcp --transport http --port 3001  # HTTP mode
  insightshq mcp --with-store                  # also expose request status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), transport, port, withStore)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().BoolVar(&withStore, "with-store", false, "Connect the store and add the request status tool")

	return cmd
}

func runMCP(parent context.Context, transport string, port int, withStore bool) error {
	needs := config.NeedWarehouse
	if withStore {
		needs |= config.NeedStore
	}
	cfg, err := loadConfig(needs)
	if err != nil {
		return err
	}
	// stdout carries the protocol in stdio mode, so logs stay on stderr.
	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildToolbox(cfg, cfg.Warehouse.VerifyWithLLM, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var st store.Store
	if withStore {
		st, err = openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close(context.WithoutCancel(ctx))
	}

	srv := imcp.NewMCPServer(s.toolbox, st, versionString(), logger)

	switch transport {
	case "stdio":
		return srv.ServeStdio(ctx)
	case "http":
		return srv.ServeHTTP(ctx, fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
