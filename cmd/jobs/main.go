// Package main implements the jobs CLI for running the scheduled follow-up
// email sweeps directly, outside any scheduler infrastructure.
//
// It is intended for cron invocation, local development, and operational
// debugging (manually re-running a sweep with an overridden reference time).
//
// Usage:
//
//	go run ./cmd/jobs --job=abandoned-cart
//	go run ./cmd/jobs --job=upsell --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/jobs --job=abandoned-cart --dry-run
//	go run ./cmd/jobs --list
//
// Configuration is read from environment variables (or a .env file). In
// --dry-run mode the job configuration is printed without connecting to
// anything.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shopmail/internal/config"
	"shopmail/internal/db"
	"shopmail/internal/external"
	"shopmail/internal/notify"
	"shopmail/internal/scheduler"
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

const (
	jobAbandonedCart = "abandoned-cart"
	jobUpsell        = "upsell"

	jobTimeout = 10 * time.Minute
)

// validJobs maps job names to their descriptions for --list output.
var validJobs = map[string]string{
	jobAbandonedCart: "Send escalating reminders for carts abandoned before checkout",
	jobUpsell:        "Send follow-up offers for orders from the configured collection",
}

func main() {
	jobFlag := flag.String("job", "", "Job to execute (abandoned-cart or upsell)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available jobs and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the job configuration without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jobs [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run the scheduled follow-up email sweeps directly.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available jobs.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableJobs()
		return
	}

	if *jobFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --job is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if _, ok := validJobs[*jobFlag]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown job %q\n\n", *jobFlag)
		printAvailableJobs()
		os.Exit(1)
	}

	referenceTime := time.Now().UTC()
	if *refTimeFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --reference-time: %v\n", err)
			os.Exit(1)
		}
		referenceTime = parsed.UTC()
	}

	if err := run(*jobFlag, referenceTime, *dryRunFlag); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(job string, referenceTime time.Time, dryRun bool) error {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	if dryRun {
		return printDryRun(job, cfg, referenceTime)
	}

	// Jobs run to completion or are cut off by signal/timeout.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, jobTimeout)
	defer cancelTimeout()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	brevo := external.NewBrevoClient(
		&http.Client{Timeout: 10 * time.Second},
		external.BrevoClientConfig{
			APIKey:  cfg.Brevo.APIKey,
			BaseURL: cfg.Brevo.BaseURL,
			Logger:  typedLogger,
		},
	)

	var defaultData map[string]any
	if err := json.Unmarshal([]byte(cfg.Email.DefaultData), &defaultData); err != nil {
		return fmt.Errorf("parse default data: %w", err)
	}
	sender := types.EmailAddress{Email: cfg.Email.FromAddress, Name: cfg.Email.FromName}

	logger.Info("job starting",
		"job", job,
		"reference_time", referenceTime.Format(time.RFC3339),
		"version", cfg.Build.Version,
	)
	start := time.Now()

	var sent int
	switch job {
	case jobAbandonedCart:
		reminderCfg, err := cartReminderConfig(cfg, sender, defaultData)
		if err != nil {
			return err
		}
		reminder := scheduler.NewCartReminder(reminderCfg,
			db.NewCartRepository(pool), db.NewOrderRepository(pool), brevo, typedLogger)
		sent, err = reminder.Run(ctx, referenceTime)
		if err != nil {
			return fmt.Errorf("abandoned-cart sweep: %w", err)
		}
	case jobUpsell:
		upsell := scheduler.NewUpsell(scheduler.UpsellConfig{
			Enabled:      cfg.Jobs.Upsell.Enabled,
			CollectionID: cfg.Jobs.Upsell.CollectionID,
			Delay:        cfg.Jobs.Upsell.Delay,
			Lookback:     cfg.Jobs.Upsell.Lookback,
			Valid:        cfg.Jobs.Upsell.Valid,
			TemplateIDs:  cfg.Jobs.Upsell.TemplateIDs,
			Sender:       sender,
			DefaultData:  defaultData,
		}, db.NewOrderRepository(pool), brevo, typedLogger)
		sent, err = upsell.Run(ctx, referenceTime)
		if err != nil {
			return fmt.Errorf("upsell sweep: %w", err)
		}
	}

	logger.Info("job completed",
		"job", job,
		"emails_sent", sent,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// cartReminderConfig translates the env-level reminder settings, parsing the
// per-stage template refs from their JSON form.
func cartReminderConfig(cfg *config.Config, sender types.EmailAddress, defaultData map[string]any) (scheduler.CartReminderConfig, error) {
	ac := cfg.Jobs.AbandonedCart

	first, err := notify.ParseTemplateRef(ac.FirstTemplate)
	if err != nil {
		return scheduler.CartReminderConfig{}, fmt.Errorf("first stage template: %w", err)
	}
	second, err := notify.ParseTemplateRef(ac.SecondTemplate)
	if err != nil {
		return scheduler.CartReminderConfig{}, fmt.Errorf("second stage template: %w", err)
	}
	third, err := notify.ParseTemplateRef(ac.ThirdTemplate)
	if err != nil {
		return scheduler.CartReminderConfig{}, fmt.Errorf("third stage template: %w", err)
	}

	return scheduler.CartReminderConfig{
		Enabled:        ac.Enabled,
		FirstDelay:     ac.FirstDelay,
		SecondDelay:    ac.SecondDelay,
		ThirdDelay:     ac.ThirdDelay,
		FirstTemplate:  first,
		SecondTemplate: second,
		ThirdTemplate:  third,
		Sender:         sender,
		DefaultData:    defaultData,
	}, nil
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

// printDryRun renders the effective job configuration as JSON and exits
// without touching the database or the provider.
func printDryRun(job string, cfg *config.Config, referenceTime time.Time) error {
	view := map[string]any{
		"job":            job,
		"reference_time": referenceTime.Format(time.RFC3339),
	}
	switch job {
	case jobAbandonedCart:
		view["config"] = cfg.Jobs.AbandonedCart
	case jobUpsell:
		view["config"] = cfg.Jobs.Upsell
	}

	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printAvailableJobs() {
	names := make([]string, 0, len(validJobs))
	for name := range validJobs {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available jobs:")
	for _, name := range names {
		fmt.Printf("  %-16s %s\n", name, validJobs[name])
	}
}
