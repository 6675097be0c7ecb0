package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/server"
	"github.com/insightshq/nl2sql-processor/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status and submission API without processing",
		Long: `Start only the HTTP API: question submission, request status,
conversation and health event history, and the view catalog. Questions
submitted here are answered by a separately running processor.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig(config.NeedQueue | config.NeedStore)
	if err != nil {
		return err
	}
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

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close(context.WithoutCancel(ctx))

	q, err := openQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer q.Close(context.WithoutCancel(ctx))

	// The catalog is optional here; without it the view routes are empty.
	cat, err := catalog.Load(cfg.Warehouse.CatalogDir)
	if err != nil {
		logger.Warn("view catalog not loaded", "dir", cfg.Warehouse.CatalogDir, "error", err)
	}
	registry, err := connectWarehouses(cfg, logger)
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	authSvc := service.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.APIKeys)
	if !authSvc.Enabled() {
		logger.Warn("no AUTH_JWT_SECRET or AUTH_API_KEYS configured, the API is open")
	}

	srv := server.New(server.ConfigFrom(cfg, versionString()), server.Deps{
		Store:      st,
		Queue:      q,
		Catalog:    cat,
		Warehouses: registry,
		Auth:       authSvc,
	}, logger)

	fmt.Printf("→ InsightsHQ %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", srv.Addr())
	fmt.Printf("→ OpenAPI:    http://%s/openapi.json\n", srv.Addr())
	fmt.Printf("→ Health:     http://%s/healthz\n", srv.Addr())
	fmt.Println()

	return srv.ListenAndServe(ctx)
}
