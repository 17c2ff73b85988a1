package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/punchamoorthee/givingops/internal/config"
	"github.com/punchamoorthee/givingops/internal/store"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "givingctl",
		Short:         "Operational tasks for the giving platform database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore loads config from the environment and connects.
func openStore(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.New(ctx, cfg.DBSource)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail pending donations that never reached checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if olderThan == 0 {
				olderThan = cfg.PendingSweepAfter
			}
			n, err := s.SweepStalePending(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale pending donations older than %s\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (default PENDING_SWEEP_AFTER)")
	return cmd
}
