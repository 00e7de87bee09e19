package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shopmail/internal/assembly"
	"shopmail/internal/types"
)

// Metrics is the delivery telemetry contract the service emits against.
// Assembly degrades are recorded by the assembler itself, through
// assembly.DegradeRecorder.
type Metrics interface {
	RecordDelivery(ctx context.Context, event types.EventType, result string)
}

// ServiceConfig is the static send configuration.
type ServiceConfig struct {
	Sender      types.EmailAddress
	Bcc         string
	DefaultData map[string]any
	Templates   EventTemplates

	// ContactListID enables customer contact-list sync when non-zero.
	ContactListID int64
}

// ServiceDeps are the injected collaborators.
type ServiceDeps struct {
	Assembler     *assembly.OrderAssembler
	Orders        types.OrderRepository
	Carts         types.CartRepository
	Fulfillments  types.FulfillmentRepository
	GiftCards     types.GiftCardRepository
	Provider      types.EmailProvider
	Contacts      types.ContactsProvider
	Notifications types.NotificationRepository
	Attachments   *AttachmentFetcher
	Metrics       Metrics
	Logger        types.Logger
	Clock         types.Clock
}

// Service turns commerce events into transactional emails. One instance is
// shared by the queue worker, the scheduler jobs, and the resend API.
type Service struct {
	cfg     ServiceConfig
	deps    ServiceDeps
	locales *assembly.LocaleResolver
}

func NewService(cfg ServiceConfig, deps ServiceDeps) *Service {
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	return &Service{
		cfg:     cfg,
		deps:    deps,
		locales: assembly.NewLocaleResolver(deps.Carts, deps.Logger),
	}
}

// Send builds and dispatches the email for one event. notificationID keeps
// delivery records idempotent across retries; when empty a fresh id is
// assigned. Events without a configured template return a skipped record and
// no error. Data-retrieval failures and provider failures return the error so
// the caller can schedule a retry.
func (s *Service) Send(ctx context.Context, notificationID string, event types.EventType, eventData map[string]any) (*types.NotificationRecord, error) {
	ref, ok := s.cfg.Templates.Lookup(event)
	if !ok || ref.IsZero() {
		s.deps.Logger.Info("no template configured for event, skipping",
			"event", string(event))
		return s.record(ctx, notificationID, event, eventData, "", "", types.DeliverySkipped, nil, ""), nil
	}

	data, loc, err := s.fetchData(ctx, event, eventData)
	if err != nil {
		return nil, err
	}

	templateID := ref.Resolve(loc)
	if templateID == "" {
		s.deps.Logger.Info("template ref resolved to nothing, skipping",
			"event", string(event))
		return s.record(ctx, notificationID, event, eventData, "", "", types.DeliverySkipped, nil, ""), nil
	}

	to := recipientFor(data)
	if to == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidEmail,
			fmt.Sprintf("no recipient address for %s event", event),
			nil,
		)
	}

	attachments := s.deps.Attachments.Fetch(ctx, event, data)

	params := make(map[string]any, len(data)+len(s.cfg.DefaultData))
	for k, v := range data {
		params[k] = v
	}
	for k, v := range s.cfg.DefaultData {
		params[k] = v
	}

	if notificationID == "" {
		notificationID = uuid.New().String()
	}

	providerID, sendErr := s.deps.Provider.SendTemplate(ctx, types.SendTemplateInput{
		Sender:      s.cfg.Sender,
		To:          []types.EmailAddress{{Email: to}},
		Bcc:         s.cfg.Bcc,
		TemplateID:  templateID,
		Params:      params,
		Attachments: attachments,
		ReferenceID: notificationID,
	})

	status := types.DeliverySent
	result := "success"
	if sendErr != nil {
		status = types.DeliveryFailed
		result = "failure"
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDelivery(ctx, event, result)
	}

	rec := s.record(ctx, notificationID, event, eventData, to, templateID, status, params, providerID)
	if sendErr != nil {
		return rec, sendErr
	}

	s.deps.Logger.Info("notification sent",
		"notification_id", rec.ID,
		"event", string(event),
		"to", to,
		"template_id", templateID,
		"provider_message_id", providerID)

	if event == types.EventOrderPlaced {
		s.syncCustomerContact(ctx, data)
	}
	return rec, nil
}

// Resend re-dispatches a previously recorded notification, optionally to a
// different address. Attachments are regenerated from the stored payload.
func (s *Service) Resend(ctx context.Context, notificationID, toOverride string) (*types.NotificationRecord, error) {
	prev, err := s.deps.Notifications.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	to := prev.To
	if toOverride != "" {
		to = toOverride
	}

	attachments := s.deps.Attachments.Fetch(ctx, prev.EventType, prev.Payload)

	providerID, sendErr := s.deps.Provider.SendTemplate(ctx, types.SendTemplateInput{
		Sender:      s.cfg.Sender,
		To:          []types.EmailAddress{{Email: to}},
		Bcc:         s.cfg.Bcc,
		TemplateID:  prev.TemplateID,
		Params:      prev.Payload,
		Attachments: attachments,
		ReferenceID: prev.ID,
	})

	status := types.DeliverySent
	if sendErr != nil {
		status = types.DeliveryFailed
	}
	rec := s.record(ctx, uuid.New().String(), prev.EventType, map[string]any{"id": prev.ResourceID},
		to, prev.TemplateID, status, prev.Payload, providerID)
	if sendErr != nil {
		return rec, sendErr
	}
	return rec, nil
}

// fetchData builds the template payload for an event. Unknown events pass
// their data through unchanged.
func (s *Service) fetchData(ctx context.Context, event types.EventType, eventData map[string]any) (map[string]any, assembly.LocaleInfo, error) {
	switch event {
	case types.EventOrderPlaced:
		return s.orderPlacedData(ctx, eventData)
	case types.EventOrderShipmentCreated:
		return s.shipmentCreatedData(ctx, eventData)
	case types.EventOrderCanceled:
		return s.orderCanceledData(ctx, eventData)
	case types.EventGiftCardCreated:
		return s.giftCardData(ctx, eventData)
	case types.EventUserPasswordReset, types.EventCustomerPasswordReset:
		return eventData, assembly.LocaleInfo{}, nil
	default:
		return eventData, assembly.LocaleInfo{}, nil
	}
}

func (s *Service) orderPlacedData(ctx context.Context, eventData map[string]any) (map[string]any, assembly.LocaleInfo, error) {
	orderID, _ := eventData["id"].(string)
	if orderID == "" {
		return nil, assembly.LocaleInfo{}, types.NewAppError(
			types.ErrCodeValidationMissingField, "order.placed event data has no id", nil)
	}

	payload, err := s.deps.Assembler.Assemble(ctx, orderID)
	if err != nil {
		return nil, assembly.LocaleInfo{}, err
	}

	loc, _ := payload["locale"].(assembly.LocaleInfo)
	return payload, loc, nil
}

// shipmentCreatedData joins the order with its fulfillment and flattens the
// tracking numbers for template use.
func (s *Service) shipmentCreatedData(ctx context.Context, eventData map[string]any) (map[string]any, assembly.LocaleInfo, error) {
	orderID, _ := eventData["id"].(string)
	fulfillmentID, _ := eventData["fulfillment_id"].(string)
	if orderID == "" || fulfillmentID == "" {
		return nil, assembly.LocaleInfo{}, types.NewAppError(
			types.ErrCodeValidationMissingField, "shipment event data needs id and fulfillment_id", nil)
	}

	order, err := s.deps.Orders.Retrieve(ctx, orderID, types.RetrieveOptions{
		Select: []string{
			"id", "email", "shipping_total", "discount_total", "tax_total",
			"refunded_total", "gift_card_total", "subtotal", "total",
			"refundable_amount", "created_at", "updated_at", "customer_id",
			"currency_code", "tax_rate", "cart_id",
		},
		Relations: []string{
			"customer", "billing_address", "shipping_address",
			"discounts", "discounts.rule",
			"shipping_methods", "shipping_methods.shipping_option",
			"payments", "fulfillments", "returns",
			"gift_cards", "gift_card_transactions",
			"region", "items", "items.variant", "items.variant.product",
		},
	})
	if err != nil {
		return nil, assembly.LocaleInfo{}, err
	}

	shipment, err := s.deps.Fulfillments.Retrieve(ctx, fulfillmentID, types.RetrieveOptions{
		Relations: []string{"items", "tracking_links"},
	})
	if err != nil {
		return nil, assembly.LocaleInfo{}, err
	}

	numbers := make([]string, 0, len(shipment.TrackingLinks))
	for _, link := range shipment.TrackingLinks {
		numbers = append(numbers, link.TrackingNumber)
	}

	shippedAt := s.deps.Clock.Now()
	if shipment.ShippedAt != nil {
		shippedAt = *shipment.ShippedAt
	}

	loc := s.locales.Resolve(ctx, order)
	data := map[string]any{
		"locale":          loc,
		"order":           order,
		"date":            assembly.FormatDateTime(shippedAt, loc.LocaleOrDefault("en")),
		"email":           order.Email,
		"fulfillment":     shipment,
		"tracking_links":  shipment.TrackingLinks,
		"tracking_number": strings.Join(numbers, ", "),
	}
	return data, loc, nil
}

// orderCanceledData formats a canceled order with the simple tax-multiplied
// money strings; no totals service is involved on this path.
func (s *Service) orderCanceledData(ctx context.Context, eventData map[string]any) (map[string]any, assembly.LocaleInfo, error) {
	orderID, _ := eventData["id"].(string)
	if orderID == "" {
		return nil, assembly.LocaleInfo{}, types.NewAppError(
			types.ErrCodeValidationMissingField, "order.canceled event data has no id", nil)
	}

	order, err := s.deps.Orders.Retrieve(ctx, orderID, types.RetrieveOptions{
		Select: []string{
			"shipping_total", "discount_total", "tax_total", "refunded_total",
			"gift_card_total", "subtotal", "total",
		},
		Relations: []string{
			"customer", "billing_address", "shipping_address",
			"discounts", "discounts.rule",
			"shipping_methods", "shipping_methods.shipping_option",
			"payments", "fulfillments", "returns",
			"gift_cards", "gift_card_transactions",
		},
	})
	if err != nil {
		return nil, assembly.LocaleInfo{}, err
	}

	var taxRate float64
	if order.TaxRate != nil {
		taxRate = *order.TaxRate
	}
	currencyCode := strings.ToUpper(order.CurrencyCode)

	items := assembly.ProcessItems(order.Items, taxRate, currencyCode)
	discounts := assembly.NormalizeDiscounts(order.Discounts, currencyCode)
	// Same as the placed path: gift cards are counted, never merged.
	giftCards := assembly.NormalizeGiftCards(order.GiftCards, currencyCode)

	data, err := assembly.ToDocument(order)
	if err != nil {
		return nil, assembly.LocaleInfo{}, types.NewAppError(
			types.ErrCodeInternalUnexpected, "failed to serialize canceled order", err)
	}

	loc := s.locales.Resolve(ctx, order)
	grossFactor := 1 + taxRate/100

	data["locale"] = loc
	data["has_discounts"] = len(order.Discounts)
	data["has_gift_cards"] = len(giftCards)
	data["date"] = assembly.FormatDateTime(order.CreatedAt, loc.LocaleOrDefault("en"))
	data["items"] = items
	data["discounts"] = discounts
	data["subtotal"] = assembly.FormatAmountWithCode(gross(order.Subtotal, grossFactor), currencyCode)
	data["gift_card_total"] = assembly.FormatAmountWithCode(gross(order.GiftCardTotal, grossFactor), currencyCode)
	data["tax_total"] = assembly.FormatAmountWithCode(order.TaxTotal, currencyCode)
	data["discount_total"] = assembly.FormatAmountWithCode(gross(order.DiscountTotal, grossFactor), currencyCode)
	data["shipping_total"] = assembly.FormatAmountWithCode(gross(order.ShippingTotal, grossFactor), currencyCode)
	data["total"] = assembly.FormatAmountWithCode(order.Total, currencyCode)

	return data, loc, nil
}

func (s *Service) giftCardData(ctx context.Context, eventData map[string]any) (map[string]any, assembly.LocaleInfo, error) {
	giftCardID, _ := eventData["id"].(string)
	if giftCardID == "" {
		return nil, assembly.LocaleInfo{}, types.NewAppError(
			types.ErrCodeValidationMissingField, "gift_card.created event data has no id", nil)
	}

	card, err := s.deps.GiftCards.Retrieve(ctx, giftCardID, types.RetrieveOptions{
		Relations: []string{"order"},
	})
	if err != nil {
		return nil, assembly.LocaleInfo{}, err
	}

	data, err := assembly.ToDocument(card)
	if err != nil {
		return nil, assembly.LocaleInfo{}, types.NewAppError(
			types.ErrCodeInternalUnexpected, "failed to serialize gift card", err)
	}
	email := ""
	if card.Order != nil {
		email = card.Order.Email
	}
	data["email"] = email
	return data, assembly.LocaleInfo{}, nil
}

// syncCustomerContact subscribes the order's customer to the configured
// marketing list. Failures are logged and never affect the send.
func (s *Service) syncCustomerContact(ctx context.Context, data map[string]any) {
	if s.cfg.ContactListID == 0 || s.deps.Contacts == nil {
		return
	}
	customer, _ := data["customer"].(map[string]any)
	if customer == nil {
		return
	}
	email, _ := customer["email"].(string)
	if email == "" {
		return
	}
	first, _ := customer["first_name"].(string)
	last, _ := customer["last_name"].(string)

	if err := s.deps.Contacts.CreateContact(ctx, types.ContactInput{
		Email:     email,
		FirstName: first,
		LastName:  last,
		ListIDs:   []int64{s.cfg.ContactListID},
	}); err != nil {
		s.deps.Logger.Error("contact list sync failed",
			"email", email, "error", err.Error())
	}
}

// record persists one send attempt. Persistence failures are logged, not
// propagated: the email outcome is already decided.
func (s *Service) record(ctx context.Context, id string, event types.EventType, eventData map[string]any,
	to, templateID string, status types.DeliveryStatus, payload map[string]any, providerID string) *types.NotificationRecord {

	if id == "" {
		id = uuid.New().String()
	}
	resourceID, _ := eventData["id"].(string)

	rec := &types.NotificationRecord{
		ID:         id,
		EventType:  event,
		ResourceID: resourceID,
		To:         to,
		TemplateID: templateID,
		Status:     status,
		Payload:    types.Metadata(payload),
		ProviderID: providerID,
		CreatedAt:  s.deps.Clock.Now(),
	}

	if s.deps.Notifications != nil {
		if err := s.deps.Notifications.Insert(ctx, rec); err != nil {
			s.deps.Logger.Error("failed to persist notification record",
				"notification_id", id, "error", err.Error())
		}
	}
	return rec
}

// recipientFor picks the destination address: the payload's own email first,
// then the customer's.
func recipientFor(data map[string]any) string {
	if email, ok := data["email"].(string); ok && email != "" {
		return email
	}
	if customer, ok := data["customer"].(map[string]any); ok {
		if email, ok := customer["email"].(string); ok {
			return email
		}
	}
	return ""
}

func gross(amount int64, factor float64) int64 {
	return int64(float64(amount) * factor)
}
