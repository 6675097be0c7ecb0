package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

func newPurgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every request, conversation and health event",
		Long: `Empty the requests, conversations and container_health collections.
The assistant pool is left untouched. This cannot be undone, so --yes is
required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			cfg, err := loadConfig(config.NeedStore)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := withTimeout(cmdContext(cmd), 5*time.Minute)
			defer cancel()
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.WithoutCancel(ctx))

			return runPurge(ctx, st, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")

	return cmd
}

func runPurge(ctx context.Context, st store.Store, w io.Writer) error {
	deleted, err := st.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	for _, name := range []string{store.CollectionRequests, store.CollectionConversations, store.CollectionHealth} {
		fmt.Fprintf(w, "Collection '%s': deleted %d documents\n", name, deleted[name])
	}
	fmt.Fprintln(w, "All collections emptied successfully!")
	return nil
}
