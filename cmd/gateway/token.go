package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tool_gateway/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:     "token",
		Short:   "Mint an admin API token signed with JWT_SECRET",
		Example: `  gateway token --subject ops@example.com --roles viewer`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.JWTSecret) == 0 {
				return errors.New("JWT_SECRET is required")
			}
			if ttl <= 0 {
				ttl = cfg.AdminTokenTTL
			}

			parsed, err := auth.ParseRoles(roles)
			if err != nil {
				return err
			}

			issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, ttl)
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(subject, parsed...)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually an operator email")
	cmd.Flags().StringVar(&roles, "roles", string(auth.RoleViewer), "comma-separated roles (admin, viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default $ADMIN_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
