package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/service"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for the status API",
		Long: `Sign a bearer token with the configured JWT secret. A token that carries
an email only sees that user's requests and conversations.`,
		Example: `  insightshq token --subject dashboard
  insightshq token --subject ana --email ana@example.com --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := loadConfig(config.NeedAuth)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.JWTExpiry
			}

			auth := service.NewAuthService(cfg.Auth.JWTSecret, nil)
			token, err := auth.IssueJWT(cmdContext(cmd), subject, email, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (required)")
	cmd.Flags().StringVar(&email, "email", "", "Scope the token to this user's requests")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.jwt_expiry)")

	return cmd
}
