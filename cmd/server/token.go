package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"crm-backend/internal/auth"
	"crm-backend/internal/metadata"
)

var (
	tokenUser  string
	tokenEmail string
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for scripts and local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return fmt.Errorf("--user is required")
		}
		user := &metadata.UserContext{ID: tokenUser, Email: tokenEmail, Roles: tokenRoles}
		tok, err := auth.GenerateAccessToken(user, cfg.Auth.JWTSecret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print the bcrypt hash of a password for auth.users in app.yaml",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (sub claim)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "user email")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "roles", nil, "comma separated roles")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
