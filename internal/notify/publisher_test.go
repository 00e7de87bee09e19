package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"shopmail/internal/types"
)

// mockSQSSender records all SendMessage calls for verification.
type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestEventPublisher_Publish_IncrementsRetryCount(t *testing.T) {
	// RetryCount must be incremented BEFORE serialization so the consumer
	// sees an accurate attempt number.
	sender := &mockSQSSender{}
	pub := NewEventPublisher(sender, "https://sqs.eu-west-1.amazonaws.com/123/shopmail-events", newTestLogger())

	msg := types.EventMessage{
		NotificationID: "notif_001",
		EventType:      types.EventOrderPlaced,
		Data:           map[string]any{"id": "order_1"},
		RetryCount:     0,
		TraceID:        "trace_001",
	}

	if err := pub.Publish(context.Background(), msg, 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sender.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(sender.calls))
	}

	var sent types.EventMessage
	if err := json.Unmarshal([]byte(*sender.calls[0].MessageBody), &sent); err != nil {
		t.Fatalf("failed to unmarshal sent body: %v", err)
	}
	if sent.RetryCount != 1 {
		t.Errorf("expected RetryCount=1 in serialized message, got %d", sent.RetryCount)
	}

	// The original message is passed by value and must not be mutated.
	if msg.RetryCount != 0 {
		t.Errorf("original message RetryCount was mutated: expected 0, got %d", msg.RetryCount)
	}
}

func TestEventPublisher_Publish_DelayClampedTo900(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewEventPublisher(sender, "https://example/queue", newTestLogger())

	msg := types.EventMessage{NotificationID: "notif_002", EventType: types.EventOrderCanceled}
	if err := pub.Publish(context.Background(), msg, 2*time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := sender.calls[0].DelaySeconds; got != 900 {
		t.Errorf("expected DelaySeconds=900, got %d", got)
	}
}

func TestEventPublisher_Publish_NegativeDelayFloorsAtZero(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewEventPublisher(sender, "https://example/queue", newTestLogger())

	msg := types.EventMessage{NotificationID: "notif_003"}
	if err := pub.Publish(context.Background(), msg, -5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := sender.calls[0].DelaySeconds; got != 0 {
		t.Errorf("expected DelaySeconds=0, got %d", got)
	}
}

func TestEventPublisher_Publish_CompressesLargeBodies(t *testing.T) {
	sender := &mockSQSSender{}
	pub := NewEventPublisher(sender, "https://example/queue", newTestLogger())

	msg := types.EventMessage{
		NotificationID: "notif_004",
		EventType:      types.EventOrderPlaced,
		Data: map[string]any{
			"id":   "order_1",
			"blob": strings.Repeat("abcdefgh", compressThreshold/8),
		},
	}

	if err := pub.Publish(context.Background(), msg, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := []byte(*sender.calls[0].MessageBody)
	var envelope compressedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("sent body is not an envelope: %v", err)
	}
	if envelope.Encoding != envelopeEncodingZstd {
		t.Fatalf("expected %s encoding, got %q", envelopeEncodingZstd, envelope.Encoding)
	}
	if len(body) >= compressThreshold {
		t.Errorf("envelope did not shrink the body: %d bytes", len(body))
	}

	// Round-trip through the worker-side decoder.
	decoded, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if decoded.NotificationID != "notif_004" {
		t.Errorf("decoded NotificationID = %q", decoded.NotificationID)
	}
	if decoded.RetryCount != 1 {
		t.Errorf("decoded RetryCount = %d, want 1", decoded.RetryCount)
	}
}

func TestDecodeMessage_PlainJSON(t *testing.T) {
	body := []byte(`{"notification_id":"notif_005","event_type":"order.placed","data":{"id":"order_9"},"retry_count":2}`)

	msg, err := DecodeMessage(body)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.NotificationID != "notif_005" {
		t.Errorf("NotificationID = %q", msg.NotificationID)
	}
	if msg.EventType != types.EventOrderPlaced {
		t.Errorf("EventType = %q", msg.EventType)
	}
	if msg.ResourceID() != "order_9" {
		t.Errorf("ResourceID = %q", msg.ResourceID())
	}
}

func TestDecodeMessage_InvalidJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid body")
	}
}
