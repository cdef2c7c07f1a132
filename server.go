package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"github.com/kendall-kelly/patriotgo-chat-api/controllers"
	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/middleware"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// application holds the wired dependencies for one process
type application struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    kvstore.Store
	chat     *services.ChatService
	verifier *middleware.IdentityVerifier
}

// newApplication opens the configured store, migrates it and builds the
// chat service and token verifier on top of it
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	store, err := kvstore.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	verifier, err := middleware.NewIdentityVerifier(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &application{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		chat:     services.NewChatService(store, services.NewSystemClock(), logger),
		verifier: verifier,
	}, nil
}

// Close releases the store
func (a *application) Close() error {
	return a.store.Close()
}

// setupRouter creates and configures the router
func setupRouter(app *application) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(app.logger.Named("access")))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = app.cfg.CORSAllowedOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	chat := controllers.NewChatController(app.chat, app.logger)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Store status endpoint
		v1.GET("/store/status", chat.StoreStatus)

		authenticated := v1.Group("")
		authenticated.Use(middleware.EnsureValidToken(app.verifier, app.logger.Named("auth")))
		{
			authenticated.POST("/conversations", chat.CreateConversation)
			authenticated.GET("/conversations", chat.ListConversations)
			authenticated.GET("/conversations/:id", chat.GetConversation)
			authenticated.POST("/conversations/:id/messages", chat.SendMessage)
			authenticated.GET("/conversations/:id/messages", chat.ListMessages)

			// Flat routes that take conversationId in the body or query
			authenticated.POST("/messages", chat.SendMessage)
			authenticated.GET("/messages", chat.ListMessages)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "PatriotGo chat API is running",
	})
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting PatriotGo chat API",
		zap.String("store_backend", cfg.StoreBackend),
		zap.Bool("auth0", cfg.UsesAuth0()),
	)

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server is running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
