// Package main is the entrypoint for the notification worker Lambda.
//
// The worker consumes commerce events from the notification SQS queue, runs
// them through the notify.Service pipeline (data assembly, template
// resolution, provider send, delivery record), and reports partial batch
// failures so SQS retries only the messages that failed.
//
// Cold start:
//  1. Load and validate configuration (env + SSM).
//  2. Initialize the structured logger.
//  3. Open the database pool and build repositories.
//  4. Initialize the Brevo client, SQS publisher, and CloudWatch metrics.
//  5. Build the notification service and register the Lambda handler.
//
// Per message:
//  1. Decode the event envelope (zstd-compressed bodies are unwrapped).
//  2. Record queue lag from the SQS SentTimestamp attribute.
//  3. Dispatch through notify.Service.Send.
//  4. On a retryable failure, re-publish with exponential backoff and ACK;
//     once retries are exhausted, the failure is already recorded and the
//     message is ACKed for good.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopmail/internal/assembly"
	"shopmail/internal/config"
	"shopmail/internal/db"
	"shopmail/internal/external"
	"shopmail/internal/notify"
	"shopmail/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger. slog satisfies
// Info/Warn/Error directly but its With returns *slog.Logger.
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

// Retry schedule for transient delivery failures. Delay doubles per attempt
// from retryBaseDelay, capped by the SQS 15-minute maximum inside Publish.
const (
	maxRetries     = 5
	retryBaseDelay = 30 * time.Second
)

// Handler holds the worker's collaborators.
type Handler struct {
	service   *notify.Service
	publisher *notify.EventPublisher
	metrics   *notify.CloudWatchMetrics
	logger    types.Logger
}

// Handle processes one SQS batch. Messages that fail in a way a redelivery
// could fix are reported as batch item failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	msg, err := notify.DecodeMessage([]byte(record.Body))
	if err != nil {
		// Permanent parse failure: ACK, a redelivery cannot fix the body.
		h.logger.Error("failed to decode event message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	logger := h.logger.With(
		"notification_id", msg.NotificationID,
		"event", string(msg.EventType),
		"resource_id", msg.ResourceID(),
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)
	logger.Info("processing event message")

	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sentTimestamp); err == nil {
			h.metrics.RecordQueueLag(ctx, time.Since(sentAt))
		}
	}

	_, sendErr := h.service.Send(ctx, msg.NotificationID, msg.EventType, msg.Data)
	if sendErr == nil {
		return nil
	}

	if !isRetryable(sendErr) {
		// The service already recorded the failure; redelivering the same
		// payload would fail the same way.
		logger.Error("delivery failed permanently", "error", sendErr.Error())
		return nil
	}

	if msg.RetryCount >= maxRetries {
		logger.Error("delivery failed, retries exhausted", "error", sendErr.Error())
		return nil
	}

	delay := retryBaseDelay << msg.RetryCount
	if err := h.publisher.Publish(ctx, msg, delay); err != nil {
		// Could not schedule the retry: let SQS redeliver the original.
		return fmt.Errorf("publish retry message: %w", err)
	}

	logger.Warn("delivery failed, retry scheduled",
		"error", sendErr.Error(),
		"delay_seconds", int(delay.Seconds()),
	)
	return nil
}

// isRetryable reports whether a later attempt could succeed: provider or
// database trouble is transient, validation and not-found failures are not.
func isRetryable(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamEmailProvider,
		types.ErrCodeUpstreamUnavailable,
		types.ErrCodeUpstreamRateLimited,
		types.ErrCodeInternalDB,
		types.ErrCodeDataUnavailable:
		return true
	default:
		return false
	}
}

// parseMillisTimestamp parses the SQS SentTimestamp millisecond epoch.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("notification worker initializing",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"queue", cfg.AWS.NotificationQueue,
	)

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(awsCfg)
	cwClient := cloudwatch.NewFromConfig(awsCfg)
	metrics := notify.NewCloudWatchMetrics(cwClient, typedLogger)
	publisher := notify.NewEventPublisher(sqsClient, cfg.AWS.NotificationQueue, typedLogger)

	service, err := buildService(cfg, pool, metrics, typedLogger)
	if err != nil {
		logger.Error("failed to build notification service", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		service:   service,
		publisher: publisher,
		metrics:   metrics,
		logger:    typedLogger,
	}

	logger.Info("notification worker initialized")

	// Local mode: read one SQS event JSON from stdin instead of starting the
	// Lambda runtime, for integration testing without the AWS RIE.
	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
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

// buildService assembles the full notify.Service dependency graph.
func buildService(cfg *config.Config, pool *pgxpool.Pool, metrics *notify.CloudWatchMetrics, logger types.Logger) (*notify.Service, error) {
	templates, err := notify.ParseEventTemplates(cfg.Email.Templates)
	if err != nil {
		return nil, err
	}

	var defaultData map[string]any
	if err := json.Unmarshal([]byte(cfg.Email.DefaultData), &defaultData); err != nil {
		return nil, fmt.Errorf("parse default data: %w", err)
	}

	orders := db.NewOrderRepository(pool)
	carts := db.NewCartRepository(pool)
	fulfillments := db.NewFulfillmentRepository(pool)
	giftCards := db.NewGiftCardRepository(pool)
	notifications := db.NewNotificationRepository(pool)

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
			Fulfillments:  fulfillments,
			GiftCards:     giftCards,
			Provider:      brevo,
			Contacts:      brevo,
			Notifications: notifications,
			Attachments:   attachments,
			Metrics:       metrics,
			Logger:        logger,
		},
	), nil
}

// runLocal reads an SQS event from stdin and runs the handler once.
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}
	if len(payload) == 0 {
		logger.Error("no input received on stdin")
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse stdin as SQS event", "error", err)
		os.Exit(1)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}
	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
}
