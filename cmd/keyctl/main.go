package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/makkenzo/username-check-api/internal/config"
	"github.com/makkenzo/username-check-api/internal/storage/postgres"
	"github.com/makkenzo/username-check-api/pkg/logger"
)

// app is the state shared by all subcommands once PersistentPreRunE ran.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "keyctl",
		Short:         "Operator tooling for the username check API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	root.AddCommand(
		newMigrateCmd(a),
		newCreateCmd(a),
		newRevokeCmd(a),
		newResetCountersCmd(a),
		newReleaseLocksCmd(a),
		newSessionCmd(a),
		newRefreshPlanCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url (DATABASE_URL) is required")
	}

	l, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	pool, err := postgres.NewPgxPool(ctx, &cfg.Database, l)
	if err != nil {
		return err
	}

	a.cfg, a.logger, a.pool = cfg, l, pool
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
