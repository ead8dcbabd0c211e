/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/signsync/internal/auth"
	"github.com/friendsincode/signsync/internal/db"
)

var (
	tokenSubject string
	tokenRoles   []string
	tokenTTL     time.Duration
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the local datastore schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		database, err := db.Connect(cfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close(database)

		if err := db.Migrate(database); err != nil {
			return err
		}
		logger.Info().Str("backend", string(cfg.DBBackend)).Msg("schema up to date")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin API",
	Long: `Issue a bearer token for the admin API, signed with SIGNSYNC_JWT_SIGNING_KEY.

Examples:
  # Token for a dashboard that only reads
  signsync token --subject dashboard --role viewer

  # Token for an automation that may publish ads
  signsync token --subject billing --role operator --ttl 720h
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if cfg.JWTSigningKey == "" {
			return errors.New("SIGNSYNC_JWT_SIGNING_KEY is not set")
		}
		for _, r := range tokenRoles {
			if r != auth.RoleOperator && r != auth.RoleViewer {
				return fmt.Errorf("unknown role %q", r)
			}
		}
		token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{
			Name:  tokenSubject,
			Roles: tokenRoles,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Name recorded in the token")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{auth.RoleViewer}, "Roles to grant (operator, viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(migrateCmd, tokenCmd)
}
