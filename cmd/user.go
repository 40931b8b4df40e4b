package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/baybook/internal/auth"
	"github.com/example/baybook/internal/db"
	"github.com/example/baybook/internal/migrate"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var email, password string

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a dashboard user (email/password)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			hashKey, blockKey, err := cfg.DecodeKeys()
			if err != nil {
				return err
			}

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := migrate.Up(ctx, d, log); err != nil {
				return err
			}

			store := auth.NewStore(d, hashKey, blockKey)
			if err := store.CreateUser(ctx, email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %q\n", email)
			return nil
		},
	}

	c.Flags().StringVar(&email, "email", "", "email")
	c.Flags().StringVar(&password, "password", "", "password")
	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("password")
	return c
}
