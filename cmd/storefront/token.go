package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/access"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	tokenEmail string
	tokenName  string
	tokenTTL   time.Duration
	tokenAdmin bool
)

// tokenCmd mints a session token signed with the configured secret, for
// local testing against a running server.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Print a signed session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("%w: JWT_SECRET", config.ErrMissingSecret)
		}
		if tokenTTL <= 0 {
			return errors.New("--ttl must be positive")
		}
		tok, err := access.IssueToken(domain.User{
			ID:        args[0],
			Email:     tokenEmail,
			Name:      tokenName,
			SessionID: uuid.NewString(),
			IsAdmin:   tokenAdmin,
		}, []byte(cfg.Auth.JWTSecret), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "account email")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "set the admin profile flag")
}
