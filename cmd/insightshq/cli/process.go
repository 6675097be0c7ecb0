package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/processor"
	"github.com/insightshq/nl2sql-processor/internal/server"
	"github.com/insightshq/nl2sql-processor/internal/service"
	"github.com/insightshq/nl2sql-processor/internal/telemetry"
)

func newProcessCmd() *cobra.Command {
	var noHTTP bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the queue processor",
		Long: `Receive questions from the Service Bus queue and answer them until
interrupted. The status API and the liveness probe are served alongside
unless --no-http is given.

The process exits with status 1 when the processor decides it must be
restarted (too many connection or batch errors, or a failed health check
after a long idle period), so the container runtime can replace it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), noHTTP)
		},
	}

	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "Do not serve the status API and probes")

	return cmd
}

func runProcess(parent context.Context, noHTTP bool) error {
	cfg, err := loadConfig(config.NeedQueue | config.NeedStore | config.NeedLLM | config.NeedWarehouse)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = logger.With("container_id", cfg.ContainerID)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Closed explicitly below so a restart can close it before exiting.
	closeStore := func() {
		if err := st.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}

	q, err := openQueue(cfg, logger)
	if err != nil {
		closeStore()
		return err
	}
	defer q.Close(context.WithoutCancel(ctx))

	s, err := buildToolbox(cfg, true, logger)
	if err != nil {
		closeStore()
		return err
	}
	defer s.Close()

	ag, err := newAgent(cfg, s, st, logger)
	if err != nil {
		closeStore()
		return err
	}

	proc := processor.New(q, st, ag, processor.ConfigFrom(cfg), logger)
	tracker := telemetry.New(cfg.Health.MetricsInterval, proc.ReportMetrics)
	tracker.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(gctx) })
	if !noHTTP {
		srv := server.New(server.ConfigFrom(cfg, versionString()), server.Deps{
			Store:      st,
			Queue:      q,
			Catalog:    s.catalog,
			Warehouses: s.warehouses,
			Auth:       service.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.APIKeys),
			Liveness:   proc,
		}, logger)
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}

	err = g.Wait()
	tracker.Shutdown(ctx)
	closeStore()

	if errors.Is(err, processor.ErrRestartRequired) {
		logger.Error("processor requested a restart", "error", err)
		return &ExitError{Code: 1, Message: fmt.Sprintf("restart required: %v", err)}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("processor stopped")
	return nil
}
