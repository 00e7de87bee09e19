package types

// EventMessage is the SQS transport envelope published by the commerce
// platform's event bus and consumed by the notification worker. JSON tags use
// snake_case to match the producer.
type EventMessage struct {
	// NotificationID is assigned when the message is first published and is
	// stable across retries, making delivery records idempotent.
	NotificationID string `json:"notification_id"`

	// EventType is the dot-separated lifecycle event ("order.placed", ...).
	EventType EventType `json:"event_type"`

	// Data carries the event payload. For order events this is at minimum
	// {"id": "<order_id>"}; shipment events add {"fulfillment_id": ...}.
	Data map[string]any `json:"data"`

	// RetryCount carries the retry state across the SQS publish-subscribe
	// cycle. Incremented by the publisher on transient failures before
	// re-publishing.
	RetryCount int `json:"retry_count"`

	// TraceID propagates the upstream trace context.
	TraceID string `json:"trace_id"`
}

// ResourceID extracts the primary resource id ("id") from the event data.
func (m EventMessage) ResourceID() string {
	id, _ := m.Data["id"].(string)
	return id
}

// Telemetry metric names for CloudWatch. All components MUST use these
// constants.
const (
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricAssemblyDegrade = "AssemblyDegrade"
	MetricQueueLag        = "NotificationQueueLag"

	DimEventType = "EventType"
	DimResult    = "Result"
	DimStage     = "Stage"

	MetricNamespace = "ShopMail"
)
