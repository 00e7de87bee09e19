package types

// EventType identifies a commerce lifecycle event that can trigger a
// transactional email. The values match the dot-separated event names used
// on the event bus ("<group>.<action>").
type EventType string

const (
	EventOrderPlaced           EventType = "order.placed"
	EventOrderShipmentCreated  EventType = "order.shipment_created"
	EventOrderCanceled         EventType = "order.canceled"
	EventOrderReturnRequested  EventType = "order.return_requested"
	EventSwapCreated           EventType = "swap.created"
	EventUserPasswordReset     EventType = "user.password_reset"
	EventCustomerPasswordReset EventType = "customer.password_reset"
	EventGiftCardCreated       EventType = "gift_card.created"
)

// Group returns the part of the event name before the first dot, e.g. "order"
// for "order.placed". Returns "" when the event has no group separator.
func (e EventType) Group() string {
	for i := 0; i < len(e); i++ {
		if e[i] == '.' {
			return string(e[:i])
		}
	}
	return ""
}

// Action returns the part of the event name after the first dot, e.g.
// "placed" for "order.placed". Returns "" when the event has no separator.
func (e EventType) Action() string {
	for i := 0; i < len(e); i++ {
		if e[i] == '.' {
			return string(e[i+1:])
		}
	}
	return ""
}

// DeliveryStatus records the outcome of a send attempt.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// DiscountRulePercentage is the discount rule type whose value is a percentage
// rather than a fixed minor-unit amount.
const DiscountRulePercentage = "percentage"
