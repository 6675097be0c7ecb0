package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

type healthLogsOptions struct {
	Hours     int
	Container string
	ErrorType string
	Limit     int
	Output    string
}

func newHealthLogsCmd() *cobra.Command {
	var opts healthLogsOptions

	cmd := &cobra.Command{
		Use:   "health-logs",
		Short: "Query container health events",
		Long: `List the container health events recorded by the processors (startup,
shutdown, metrics, connection errors, stuck requests, restarts), newest
first, followed by a count per event type.`,
		Example: `  insightshq health-logs --hours 6 --error-type container_restart
  insightshq health-logs --container worker-7 --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output != "console" && opts.Output != "json" {
				return fmt.Errorf("unsupported output %q; use 'console' or 'json'", opts.Output)
			}
			if opts.Hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}

			cfg, err := loadConfig(config.NeedStore)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := withTimeout(cmdContext(cmd), time.Minute)
			defer cancel()
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.WithoutCancel(ctx))

			return runHealthLogs(ctx, st, cmd.OutOrStdout(), opts, time.Now())
		},
	}

	cmd.Flags().IntVar(&opts.Hours, "hours", 24, "Hours to look back")
	cmd.Flags().StringVar(&opts.Container, "container", "", "Filter by container ID")
	cmd.Flags().StringVar(&opts.ErrorType, "error-type", "", "Filter by event type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of events to display")
	cmd.Flags().StringVar(&opts.Output, "output", "console", "Output format: console or json")

	return cmd
}

func runHealthLogs(ctx context.Context, st store.Store, w io.Writer, opts healthLogsOptions, now time.Time) error {
	events, err := st.ListHealthEvents(ctx, model.HealthFilter{
		ContainerID: opts.Container,
		ErrorType:   model.HealthEventType(opts.ErrorType),
		Since:       now.Add(-time.Duration(opts.Hours) * time.Hour).Unix(),
		Limit:       opts.Limit,
	})
	if err != nil {
		return fmt.Errorf("query health events: %w", err)
	}
	if events == nil {
		events = []model.HealthEvent{}
	}

	if opts.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(events); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Found %d health log entries from the past %d hours:\n\n", len(events), opts.Hours)
		if len(events) > 0 {
			data := pterm.TableData{{"Time", "Type", "Container", "Details"}}
			for _, ev := range events {
				details, _ := json.Marshal(ev.Details)
				data = append(data, []string{
					time.Unix(ev.Timestamp, 0).Format("2006-01-02 15:04:05"),
					string(ev.ErrorType),
					ev.ContainerID,
					string(details),
				})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, table)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, pterm.Bold.Sprint("Summary:"))
	for _, line := range summarizeEvents(events) {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return nil
}

// summarizeEvents counts events per type, most frequent first.
func summarizeEvents(events []model.HealthEvent) []string {
	counts := make(map[model.HealthEventType]int)
	for _, ev := range events {
		counts[ev.ErrorType]++
	}
	types := make([]model.HealthEventType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})

	lines := make([]string, len(types))
	for i, t := range types {
		lines[i] = fmt.Sprintf("%s: %d occurrences", t, counts[t])
	}
	return lines
}
