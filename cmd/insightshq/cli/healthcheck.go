package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/server"
)

func newHealthcheckCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the local processor for container health checks",
		Long: `Query the liveness endpoint of a running processor. Prints
"HEALTHY: ..." and exits 0 when the processing loop is alive, otherwise
prints "UNHEALTHY: ..." and exits 1. Intended as the container HEALTHCHECK.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := loadConfig(0)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), "UNHEALTHY: "+err.Error())
					return &ExitError{Code: 1}
				}
				url = cfg.Health.ProbeURL
			}
			ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
			defer cancel()

			msg, healthy := probe(ctx, http.DefaultClient, url)
			if !healthy {
				fmt.Fprintln(cmd.OutOrStdout(), "UNHEALTHY: "+msg)
				return &ExitError{Code: 1}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "HEALTHY: "+msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Liveness URL (default: HEALTHCHECK_URL or http://127.0.0.1:8080/healthz)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")

	return cmd
}

type probeBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Stats  *struct {
		MessagesProcessed int64 `json:"messages_processed"`
		ActiveRequests    int   `json:"active_requests"`
	} `json:"stats"`
}

// probe calls the liveness endpoint and describes the outcome.
func probe(ctx context.Context, client *http.Client, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err.Error(), false
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("probe failed: %v", err), false
	}
	defer resp.Body.Close()

	var body probeBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode), false
	}

	if resp.StatusCode != http.StatusOK || body.Status != server.StatusHealthy {
		if body.Reason != "" {
			return body.Reason, false
		}
		return fmt.Sprintf("status %s (HTTP %d)", body.Status, resp.StatusCode), false
	}
	if body.Stats != nil {
		return fmt.Sprintf("processor is running, %d messages processed, %d active requests",
			body.Stats.MessagesProcessed, body.Stats.ActiveRequests), true
	}
	return "API is running", true
}
