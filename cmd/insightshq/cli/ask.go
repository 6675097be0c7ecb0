package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/agent"
	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

func newAskCmd() *cobra.Command {
	var (
		threadID   string
		withStore  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question locally, without the queue",
		Long: `Run the agent in this process against the configured catalog, warehouses
and model, and print the answer. Useful to try catalog changes or prompts
before deploying. With --with-store and --thread, earlier turns of the
thread are sent as history.`,
		Example: `  insightshq ask "Which region had the highest budget in 2024?"
  insightshq ask "And in 2023?" --with-store --thread thread_123`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(args[0])
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}

			needs := config.NeedLLM | config.NeedWarehouse
			if withStore {
				needs |= config.NeedStore
			}
			cfg, err := loadConfig(needs)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, cancel := withTimeout(cmdContext(cmd), cfg.Worker.RequestTimeout)
			defer cancel()

			s, err := buildToolbox(cfg, true, logger)
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

			ag, err := newAgent(cfg, s, st, logger)
			if err != nil {
				return err
			}
			ans, err := ag.Ask(ctx, threadID, question)
			if err != nil {
				return fmt.Errorf("answer question: %w", err)
			}
			return printAnswer(cmd.OutOrStdout(), ans, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "Thread whose history is sent along")
	cmd.Flags().BoolVar(&withStore, "with-store", false, "Read thread history from the store")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the answer with context and usage as JSON")

	return cmd
}

func printAnswer(w io.Writer, ans *agent.Answer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"answer":     ans.Text,
			"context":    ans.Context,
			"usage":      ans.Usage,
			"tool_calls": ans.ToolCalls,
		})
	}
	fmt.Fprintln(w, ans.Text)
	if ans.Context != "" {
		fmt.Fprintf(w, "\n-- context --\n%s\n", ans.Context)
	}
	fmt.Fprintf(w, "\n(%d tool calls, %d prompt tokens, %d completion tokens)\n",
		ans.ToolCalls, ans.Usage.PromptTokens, ans.Usage.CompletionTokens)
	return nil
}
