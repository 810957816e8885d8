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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/messenger/internal/auth"
	"github.com/xiaot623/gogo/messenger/internal/chat"
	"github.com/xiaot623/gogo/messenger/internal/config"
	"github.com/xiaot623/gogo/messenger/internal/domain"
	"github.com/xiaot623/gogo/messenger/internal/hub"
	"github.com/xiaot623/gogo/messenger/internal/logging"
	"github.com/xiaot623/gogo/messenger/internal/metrics"
	"github.com/xiaot623/gogo/messenger/internal/notify"
	"github.com/xiaot623/gogo/messenger/internal/presence"
	"github.com/xiaot623/gogo/messenger/internal/store"
	internalhttp "github.com/xiaot623/gogo/messenger/internal/transport/http"
	v1 "github.com/xiaot623/gogo/messenger/internal/transport/http/v1"
	"github.com/xiaot623/gogo/messenger/internal/transport/ws"
)

func main() {
	root := &cobra.Command{
		Use:           "messenger",
		Short:         "Realtime direct messaging and presence server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket and REST server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting messenger",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL))

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize admission policy
	policy, err := auth.LoadPolicy(ctx, cfg.AdmissionPolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize admission policy: %w", err)
	}
	authenticator := auth.NewAuthenticator(auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer), policy)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Chat core
	registry := presence.NewRegistry()
	notifier := notify.NewNotifier(db, db, registry, logger.Named("notify"), m, cfg.NotifyTimeout)
	coordinator := chat.NewCoordinator(chat.Options{
		Authenticator:    authenticator,
		Messages:         db,
		Users:            db,
		Presence:         registry,
		Notifier:         notifier,
		Logger:           logger.Named("chat"),
		Metrics:          m,
		MaxContentLength: cfg.MaxContentLength,
	})

	// Transports
	connectionHub := hub.NewHub()
	wsServer := ws.NewServer(cfg, connectionHub, coordinator, logger.Named("ws"), m)
	api := v1.NewHandler(coordinator, db, logger.Named("api"))
	server := internalhttp.NewServer(logger.Named("http"), reg, connectionHub, coordinator, wsServer, api)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	logger.Info("shutting down messenger")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
	}
	notifier.Wait()

	logger.Info("messenger stopped")
	return nil
}

func tokenCmd() *cobra.Command {
	var (
		roles  []string
		name   string
		avatar string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}

			token, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer).IssueProfile(domain.UserProfile{ID: args[0], Name: name, Avatar: avatar}, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim (repeatable)")
	cmd.Flags().StringVar(&name, "name", "", "display name shown to other users")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar URL")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
