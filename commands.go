package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the key-value table on the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, logger *zap.Logger, store kvstore.Store) error {
				if err := store.Migrate(ctx); err != nil {
					return fmt.Errorf("failed to migrate store: %w", err)
				}
				logger.Info("store migration completed", zap.String("store_backend", cfg.StoreBackend))
				return nil
			})
		},
	}
}

// NewSeedCommand creates the seed command
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo rider/driver conversations",
		Long: `Create the demo conversations between student-demo and the demo
drivers, with their scripted messages. Running it twice appends the
messages again but reuses the same direct conversations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, logger *zap.Logger, store kvstore.Store) error {
				if err := store.Migrate(ctx); err != nil {
					return fmt.Errorf("failed to migrate store: %w", err)
				}
				chat := services.NewChatService(store, services.NewSystemClock(), logger)
				written, err := chat.Seed(ctx, services.DemoData)
				if err != nil {
					return err
				}
				logger.Info("seed complete", zap.Int("messages", written))
				return nil
			})
		},
	}
}

// TokenOptions holds flags for the token command
type TokenOptions struct {
	TTL time.Duration
}

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Mint a development bearer token signed with JWT_SECRET",
		Example: `  patriotgo-chat-api token student-demo
  patriotgo-chat-api token driver-1 --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to mint tokens")
			}

			issuer, err := services.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, opts.TTL)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")

	return cmd
}

// withStore loads configuration, opens the store and hands both to fn
func withStore(parent context.Context, fn func(context.Context, *config.Config, *zap.Logger, kvstore.Store) error) error {
	ctx := parent
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := kvstore.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	return fn(ctx, cfg, logger, store)
}
