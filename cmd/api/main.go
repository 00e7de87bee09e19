// Package main is the entry point for the shopmail ops API server.
//
// It initializes the configuration, opens the database pool, builds the full
// notification service (the resend endpoint performs a real send), and serves
// the admin HTTP surface with health checks.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopmail/internal/api"
	"shopmail/internal/assembly"
	"shopmail/internal/config"
	"shopmail/internal/db"
	"shopmail/internal/external"
	"shopmail/internal/notify"
	"shopmail/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	typedLogger := &slogAdapter{logger: logger}
	logger.Info("shopmail ops API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	service, err := buildService(ctx, cfg, pool, typedLogger)
	if err != nil {
		return fmt.Errorf("building notification service: %w", err)
	}

	srv := api.NewServer(api.ServerConfig{
		Logger:      typedLogger,
		AdminAPIKey: cfg.Security.AdminAPIKey,
		Resender:    service,
		Lister:      db.NewNotificationRepository(pool),
		HealthProbes: []api.HealthProbe{
			db.NewHealthProbe(pool),
		},
	})

	return runHTTPServer(srv, cfg, logger)
}

// newPool opens the pgx pool with the configured tuning parameters.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// buildService assembles the notify.Service the resend endpoint dispatches
// through. The wiring mirrors the queue worker's.
func buildService(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger types.Logger) (*notify.Service, error) {
	templates, err := notify.ParseEventTemplates(cfg.Email.Templates)
	if err != nil {
		return nil, err
	}

	var defaultData map[string]any
	if err := json.Unmarshal([]byte(cfg.Email.DefaultData), &defaultData); err != nil {
		return nil, fmt.Errorf("parse default data: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}
	metrics := notify.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger)

	orders := db.NewOrderRepository(pool)
	carts := db.NewCartRepository(pool)

	assembler := assembly.NewOrderAssembler(assembly.OrderAssemblerConfig{
		Orders:  orders,
		Carts:   carts,
		Totals:  assembly.NewLocalTotals(),
		Metrics: metrics,
		Logger:  logger,
	})

	brevo := external.NewBrevoClient(
		&http.Client{Timeout: 10 * time.Second},
		external.BrevoClientConfig{
			APIKey:  cfg.Brevo.APIKey,
			BaseURL: cfg.Brevo.BaseURL,
			Logger:  logger,
		},
	)

	attachments := notify.NewAttachmentFetcher(notify.AttachmentFetcherConfig{
		InvoicesEnabled: cfg.Email.EnableInvoices,
		Logger:          logger,
	})

	return notify.NewService(
		notify.ServiceConfig{
			Sender: types.EmailAddress{
				Email: cfg.Email.FromAddress,
				Name:  cfg.Email.FromName,
			},
			Bcc:           cfg.Email.Bcc,
			DefaultData:   defaultData,
			Templates:     templates,
			ContactListID: cfg.Brevo.ContactListID,
		},
		notify.ServiceDeps{
			Assembler:     assembler,
			Orders:        orders,
			Carts:         carts,
			Fulfillments:  db.NewFulfillmentRepository(pool),
			GiftCards:     db.NewGiftCardRepository(pool),
			Provider:      brevo,
			Contacts:      brevo,
			Notifications: db.NewNotificationRepository(pool),
			Attachments:   attachments,
			Metrics:       metrics,
			Logger:        logger,
		},
	), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *api.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
