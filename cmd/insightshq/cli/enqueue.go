package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/handler"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/store"
)

const pollInterval = 2 * time.Second

func newEnqueueCmd() *cobra.Command {
	var (
		msg     model.QueueMessage
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "enqueue [question]",
		Short: "Send a question to the processing queue",
		Long: `Publish a question on the Service Bus queue the processor reads from and
print its request id. With --wait the command polls the store until the
request is completed or failed and prints the result.`,
		Example: `  insightshq enqueue "What was the total budget in 2024?" --user ana@example.com
  insightshq enqueue "And per region?" --thread thread_123 --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg.Question = strings.TrimSpace(args[0])
			if msg.Question == "" {
				return fmt.Errorf("question must not be empty")
			}
			if msg.RequestID == "" {
				msg.RequestID = uuid.NewString()
			}
			if msg.RequestType == "" {
				msg.RequestType = model.DefaultRequestType
			}

			needs := config.NeedQueue
			if wait {
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

			ctx := cmdContext(cmd)
			q, err := openQueue(cfg, logger)
			if err != nil {
				return err
			}
			defer q.Close(context.WithoutCancel(ctx))

			if err := sendQuestion(ctx, q, msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued request %s\n", msg.RequestID)
			if !wait {
				return nil
			}

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.WithoutCancel(ctx))

			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			req, err := waitForResult(wctx, st, msg.RequestID, pollInterval)
			if err != nil {
				return err
			}
			return printRequest(cmd.OutOrStdout(), req)
		},
	}

	cmd.Flags().StringVar(&msg.RequestID, "request-id", "", "Request id (default: a new UUID)")
	cmd.Flags().StringVar(&msg.UserEmail, "user", "", "User email the question is asked for")
	cmd.Flags().StringVar(&msg.AssistantID, "assistant", "", "Continue an existing assistant session")
	cmd.Flags().StringVar(&msg.ThreadID, "thread", "", "Continue an existing thread")
	cmd.Flags().StringVar(&msg.RequestType, "type", model.DefaultRequestType, "Request type")
	cmd.Flags().StringVar(&msg.ReportName, "report", "", "Report the question is about")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the answer")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long --wait polls")

	return cmd
}

func sendQuestion(ctx context.Context, q handler.Sender, msg model.QueueMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.Send(ctx, msg.RequestID, body); err != nil {
		return fmt.Errorf("send to queue: %w", err)
	}
	return nil
}

// waitForResult polls the request until it reaches a terminal status. A
// request the processor has not recorded yet is waited for as well.
func waitForResult(ctx context.Context, st store.Store, requestID string, every time.Duration) (*model.Request, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		req, err := st.GetRequest(ctx, requestID)
		switch {
		case err == nil && req.Status.Terminal():
			return req, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request %s not finished: %w", requestID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printRequest(w io.Writer, req *model.Request) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(req)
}
