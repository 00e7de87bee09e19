package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/klauspost/compress/zstd"

	"shopmail/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// compressThreshold is the serialized size above which the message body is
// zstd-compressed. SQS rejects bodies over 256 KiB; order payloads with many
// enriched items can approach that.
const compressThreshold = 200 * 1024

// compressedEnvelope wraps a zstd-compressed EventMessage. The worker detects
// it by the encoding marker.
type compressedEnvelope struct {
	Encoding string `json:"encoding"`
	Body     string `json:"body"`
}

const envelopeEncodingZstd = "zstd+base64"

// EventPublisher wraps an SQS client to publish EventMessages for retry or
// initial dispatch.
//
// The key contract: Publish increments msg.RetryCount BEFORE serializing to
// JSON, so the downstream consumer sees the updated retry state.
type EventPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
	encoder  *zstd.Encoder
}

// NewEventPublisher creates an EventPublisher targeting the given SQS queue.
func NewEventPublisher(client SQSSender, queueURL string, logger types.Logger) *EventPublisher {
	// SpeedDefault is plenty; the bodies are JSON and compress well.
	enc, _ := zstd.NewWriter(nil)
	return &EventPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		encoder:  enc,
	}
}

// Publish increments the message's RetryCount, serializes it, and sends it to
// the queue with the specified delay.
//
// SQS enforces a maximum DelaySeconds of 900 (15 minutes); longer delays are
// clamped. Bodies above compressThreshold are wrapped in a zstd envelope.
func (p *EventPublisher) Publish(ctx context.Context, msg types.EventMessage, delay time.Duration) error {
	// Increment RetryCount BEFORE serialization so the consumer sees an
	// accurate attempt number.
	msg.RetryCount++

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("event publisher: failed to marshal message: %w", err)
	}

	if len(body) > compressThreshold {
		compressed := p.encoder.EncodeAll(body, nil)
		envelope, err := json.Marshal(compressedEnvelope{
			Encoding: envelopeEncodingZstd,
			Body:     base64.StdEncoding.EncodeToString(compressed),
		})
		if err != nil {
			return fmt.Errorf("event publisher: failed to marshal envelope: %w", err)
		}
		p.logger.Info("event message compressed",
			"notification_id", msg.NotificationID,
			"raw_bytes", len(body),
			"compressed_bytes", len(envelope),
		)
		body = envelope
	}

	delaySec := int32(delay.Seconds())
	if delaySec > 900 {
		delaySec = 900
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("event publisher: failed to send message to %s: %w", p.queueURL, err)
	}

	p.logger.Info("event message published",
		"notification_id", msg.NotificationID,
		"event", string(msg.EventType),
		"retry_count", msg.RetryCount,
		"delay_seconds", delaySec,
		"trace_id", msg.TraceID,
	)

	return nil
}

// DecodeMessage parses a queue body, transparently unwrapping the zstd
// envelope when present.
func DecodeMessage(body []byte) (types.EventMessage, error) {
	var msg types.EventMessage

	var envelope compressedEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Encoding == envelopeEncodingZstd {
		compressed, err := base64.StdEncoding.DecodeString(envelope.Body)
		if err != nil {
			return msg, fmt.Errorf("event publisher: invalid envelope body: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return msg, fmt.Errorf("event publisher: zstd init: %w", err)
		}
		defer dec.Close()
		body, err = dec.DecodeAll(compressed, nil)
		if err != nil {
			return msg, fmt.Errorf("event publisher: failed to decompress envelope: %w", err)
		}
	}

	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("event publisher: failed to unmarshal message: %w", err)
	}
	return msg, nil
}
