package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/makkenzo/username-check-api/internal/domain/apikey"
	"github.com/makkenzo/username-check-api/internal/service"
	"github.com/makkenzo/username-check-api/internal/storage/postgres"
	"github.com/makkenzo/username-check-api/internal/storage/redis"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postgres.ApplySchema(cmd.Context(), a.pool, a.logger)
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var userID, label string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			svc := service.NewAPIKeyService(postgres.NewAPIKeyRepository(a.pool, a.logger), a.cfg.Gateway.DefaultRateLimitSeconds, a.logger)
			created, err := svc.CreateAPIKey(cmd.Context(), uid, label)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated API Key (SAVE THIS securely!):\n%s\n\n", created.FullKey)
			fmt.Fprintf(out, "ID: %s\nPrefix: %s\n", created.ID, created.Prefix)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Owner user id")
	cmd.Flags().StringVar(&label, "label", "cli", "Key label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id: %w", err)
			}
			repo := postgres.NewAPIKeyRepository(a.pool, a.logger)
			key, err := repo.FindByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			svc := service.NewAPIKeyService(repo, a.cfg.Gateway.DefaultRateLimitSeconds, a.logger)
			if err := svc.RevokeAPIKey(cmd.Context(), key.ID, key.UserID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s (%s)\n", key.ID, key.Prefix)
			return nil
		},
	}
}

func newResetCountersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-counters",
		Short: "Zero daily counters not yet reset today",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			n, err := postgres.NewAPIKeyRepository(a.pool, a.logger).ResetStaleCounters(cmd.Context(), apikey.DayStart(now), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d keys\n", n)
			return nil
		},
	}
}

func newReleaseLocksCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "release-locks",
		Short: "Clear processing flags held longer than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan == 0 {
				olderThan = a.cfg.Worker.StaleLockAfter
			}
			n, err := postgres.NewAPIKeyRepository(a.pool, a.logger).ReleaseStaleLocks(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Released %d locks\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum lock age (default worker.staleLockAfter)")
	return cmd
}

func newSessionCmd(a *app) *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Sign a dashboard session token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			auth, err := service.NewAuthService(&a.cfg.JWT, a.logger)
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(uid, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// newRefreshPlanCmd drops a user's cached plan after their subscription
// changed, then resolves it again from Postgres.
func newRefreshPlanCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "refresh-plan",
		Short: "Drop a user's cached plan and resolve it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			client, err := redis.NewRedisClient(cmd.Context(), &a.cfg.Redis, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			plans := redis.NewCachedPlanRepository(
				postgres.NewSubscriptionRepository(a.pool, a.logger),
				client,
				a.cfg.Gateway.PlanCacheTTL,
				a.logger,
			)
			if err := plans.Invalidate(cmd.Context(), uid); err != nil {
				return err
			}
			plan, err := plans.PlanFor(cmd.Context(), uid)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is on the %s plan\n", uid, plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
