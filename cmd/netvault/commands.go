package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/darshan-rambhia/netvault/internal/auth"
	"github.com/darshan-rambhia/netvault/internal/metrics"
	"github.com/darshan-rambhia/netvault/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if direction != "up" && direction != "down" {
				return fmt.Errorf("--direction must be up or down, got %q", direction)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := store.Open(cmd.Context(), store.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			if direction == "up" {
				err = st.Migrate(cmd.Context())
			} else {
				err = st.MigrateDown(cmd.Context())
			}
			if errors.Is(err, store.ErrNoChange) {
				fmt.Fprintln(cmd.OutOrStdout(), "no change")
				return nil
			}
			if err != nil {
				return err
			}
			slog.Info("migrations applied", "direction", direction, "driver", cfg.Database.Driver)
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", direction)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "up", "migration direction: up or down")
	return cmd
}

func newReapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Fail stale pending and running executions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := store.New(cmd.Context(), store.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			res, err := store.NewReaper(st, cfg.Queue.StaleThreshold.Duration, 0).Once(cmd.Context())
			if err != nil {
				return err
			}
			metrics.RecordReaped(res.Pending, res.Running)
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d pending and %d running executions\n", res.Pending, res.Running)
			return nil
		},
	}
}

// newHashTokenCmd prints the bcrypt hash of a worker token read from stdin,
// for auth.worker_token_hashes.
func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token",
		Short: "Hash an automation worker token read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token := strings.TrimSpace(line)
			if token == "" {
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
				return errors.New("token must not be empty")
			}
			hash, err := auth.HashWorkerToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
