package assembly

import (
	"context"
	"encoding/json"

	"shopmail/internal/types"
)

// Payload is the template-parameter document handed to the email provider.
// It starts as the order's own serialized fields and gets the computed blocks
// written over them.
type Payload map[string]any

// Field and relation sets for the two retrieval tiers. The enhanced tier asks
// for everything a template could reference; the minimal tier asks only for
// what a degraded-but-valid payload needs.
var (
	enhancedOrderFields = []string{
		"id", "status", "fulfillment_status", "payment_status", "display_id",
		"cart_id", "customer_id", "email", "billing_address_id",
		"shipping_address_id", "region_id", "currency_code", "tax_rate",
		"canceled_at", "metadata", "no_notification", "idempotency_key",
		"draft_order_id", "created_at", "updated_at", "shipping_total",
		"discount_total", "tax_total", "refunded_total", "gift_card_total",
		"subtotal", "total", "paid_total", "refundable_amount", "external_id",
		"sales_channel_id",
	}
	enhancedOrderRelations = []string{
		"customer", "billing_address", "shipping_address",
		"discounts", "discounts.rule",
		"shipping_methods", "shipping_methods.shipping_option",
		"payments", "fulfillments", "returns",
		"gift_cards", "gift_card_transactions",
		"items", "items.variant", "items.variant.product",
		"items.variant.product.profiles",
		"items.adjustments", "items.tax_lines",
		"region", "sales_channel", "claims", "swaps",
	}
	minimalOrderFields = []string{
		"shipping_total", "discount_total", "tax_total", "refunded_total",
		"gift_card_total", "subtotal", "total", "currency_code", "tax_rate",
		"created_at", "email", "id", "display_id",
	}
	minimalOrderRelations = []string{
		"customer", "billing_address", "shipping_address",
		"discounts", "discounts.rule",
		"shipping_methods", "shipping_methods.shipping_option",
		"payments", "fulfillments", "returns",
		"gift_cards", "gift_card_transactions",
	}
)

// DegradeRecorder receives a signal whenever a pipeline stage falls back to
// a degraded value. Stage names: "enhanced_retrieval", "item_totals",
// "item_enrichment", "payload_construction".
type DegradeRecorder interface {
	RecordAssemblyDegrade(ctx context.Context, stage string)
}

// OrderAssembler builds the order-placed template payload. Every internal
// stage degrades on failure and feeds a best-effort value forward; the only
// error that crosses the Assemble boundary is data unavailability, raised
// when both retrieval tiers fail.
type OrderAssembler struct {
	orders   types.OrderRepository
	enricher *ItemEnricher
	locales  *LocaleResolver
	metrics  DegradeRecorder
	logger   types.Logger
	clock    types.Clock
}

type OrderAssemblerConfig struct {
	Orders  types.OrderRepository
	Carts   types.CartRepository
	Totals  types.TotalsService
	Metrics DegradeRecorder
	Logger  types.Logger
	Clock   types.Clock
}

func NewOrderAssembler(cfg OrderAssemblerConfig) *OrderAssembler {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &OrderAssembler{
		orders:   cfg.Orders,
		enricher: NewItemEnricher(cfg.Totals, cfg.Logger, cfg.Metrics),
		locales:  NewLocaleResolver(cfg.Carts, cfg.Logger),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		clock:    clock,
	}
}

func (a *OrderAssembler) recordDegrade(ctx context.Context, stage string) {
	if a.metrics != nil {
		a.metrics.RecordAssemblyDegrade(ctx, stage)
	}
}

// Assemble retrieves the order and produces its template payload.
func (a *OrderAssembler) Assemble(ctx context.Context, orderID string) (Payload, error) {
	order, err := a.retrieveOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	currencyCode := normalizeCurrency(order.CurrencyCode)

	items := a.enricher.EnrichItems(ctx, order.Items, order)
	money := AggregateItemTotals(items, order)
	discounts := NormalizeDiscounts(order.Discounts, currencyCode)
	giftCards := NormalizeGiftCards(order.GiftCards, currencyCode)
	loc := a.locales.Resolve(ctx, order)

	payload, err := a.buildPayload(order, items, money, discounts, giftCards, loc, currencyCode)
	if err != nil {
		a.logger.Error("payload construction failed, returning minimal payload",
			"order_id", order.ID,
			"error", err.Error())
		a.recordDegrade(ctx, "payload_construction")
		return a.minimalPayload(order, money, loc, currencyCode), nil
	}
	return payload, nil
}

// retrieveOrder tries the enhanced field set first and falls back to the
// minimal one. Only when both fail does the caller see an error.
func (a *OrderAssembler) retrieveOrder(ctx context.Context, orderID string) (*types.Order, error) {
	order, err := a.orders.Retrieve(ctx, orderID, types.RetrieveOptions{
		Select:    enhancedOrderFields,
		Relations: enhancedOrderRelations,
	})
	if err == nil {
		return order, nil
	}
	a.logger.Warn("enhanced order retrieval failed, falling back to minimal",
		"order_id", orderID,
		"error", err.Error())
	a.recordDegrade(ctx, "enhanced_retrieval")

	order, err = a.orders.Retrieve(ctx, orderID, types.RetrieveOptions{
		Select:    minimalOrderFields,
		Relations: minimalOrderRelations,
	})
	if err != nil {
		a.logger.Error("minimal order retrieval failed",
			"order_id", orderID,
			"error", err.Error())
		return nil, types.NewDataUnavailable(orderID, err)
	}
	return order, nil
}

func (a *OrderAssembler) buildPayload(order *types.Order, items []EnrichedItem, money MoneyTotals,
	discounts, giftCards []NormalizedDiscount, loc LocaleInfo, currencyCode string) (Payload, error) {

	base, err := ToDocument(order)
	if err != nil {
		return nil, err
	}
	p := Payload(base)
	displayLocale := loc.LocaleOrDefault(fallbackLocale)

	p["locale"] = loc
	p["region_info"] = a.regionInfo(order, loc, currencyCode)
	p["has_discounts"] = len(order.Discounts)
	// Gift cards never join the discounts list; templates only see the count.
	p["has_gift_cards"] = len(giftCards)

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.clock.Now()
	}
	p["date"] = createdAt.Format(dateDisplayLayout)
	p["date_raw"] = createdAt
	p["created_at_formatted"] = FormatDateTime(createdAt, displayLocale)
	if order.UpdatedAt.IsZero() {
		p["updated_at_formatted"] = nil
	} else {
		p["updated_at_formatted"] = FormatDateTime(order.UpdatedAt, displayLocale)
	}

	p["items"] = items
	p["discounts"] = discounts
	p["metadata"] = order.Metadata.OrEmpty()

	p["customer"], err = relationMap(order.Customer, order.Customer != nil, func() types.Metadata {
		return order.Customer.Metadata
	})
	if err != nil {
		return nil, err
	}
	p["billing_address"], err = relationMap(order.BillingAddress, order.BillingAddress != nil, func() types.Metadata {
		return order.BillingAddress.Metadata
	})
	if err != nil {
		return nil, err
	}
	p["shipping_address"], err = relationMap(order.ShippingAddress, order.ShippingAddress != nil, func() types.Metadata {
		return order.ShippingAddress.Metadata
	})
	if err != nil {
		return nil, err
	}

	writeMoney(p, "subtotal_ex_tax", money.SubtotalExTax, currencyCode)
	writeMoney(p, "subtotal", money.Subtotal, currencyCode)
	writeMoney(p, "gift_card_total", order.GiftCardTotal, currencyCode)
	writeMoney(p, "tax_total", order.TaxTotal, currencyCode)
	writeMoney(p, "discount_total", money.DiscountTotal, currencyCode)
	writeMoney(p, "shipping_total", order.ShippingTotal, currencyCode)

	shippingInc := order.ShippingTotal
	if len(order.ShippingMethods) > 0 && order.ShippingMethods[0].Price != 0 {
		shippingInc = order.ShippingMethods[0].Price
	}
	writeMoney(p, "shipping_total_inc", shippingInc, currencyCode)
	writeMoney(p, "total", order.Total, currencyCode)

	p["currency"] = currencyInfo(currencyCode, displayLocale)
	return p, nil
}

// minimalPayload is the last-resort shape returned when full payload
// construction fails. Every guaranteed field is present; unknown locale
// defaults to en/US here, unlike the soft locale-resolution failure which
// stays null.
func (a *OrderAssembler) minimalPayload(order *types.Order, money MoneyTotals, loc LocaleInfo, currencyCode string) Payload {
	if loc.Locale == nil && loc.CountryCode == nil {
		en, us := "en", "US"
		loc = LocaleInfo{Locale: &en, CountryCode: &us}
	}
	displayLocale := loc.LocaleOrDefault(fallbackLocale)

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = a.clock.Now()
	}

	p := Payload{
		"id":            order.ID,
		"email":         order.Email,
		"display_id":    order.DisplayID,
		"currency_code": currencyCode,

		"date":                 createdAt.Format(dateDisplayLayout),
		"date_raw":             createdAt,
		"created_at_formatted": FormatDateTime(createdAt, displayLocale),

		"items":          []EnrichedItem{},
		"discounts":      []NormalizedDiscount{},
		"has_discounts":  0,
		"has_gift_cards": 0,
		"locale":         loc,

		"region_info": Payload{
			"currency_code": currencyCode,
			"region":        nil,
			"locale_info":   localeInfoBlock(LocaleInfo{}, currencyCode),
		},
		"currency": currencyInfo(currencyCode, displayLocale),

		"metadata":         types.Metadata{},
		"customer":         nil,
		"billing_address":  nil,
		"shipping_address": nil,
	}

	writeMoney(p, "total", order.Total, currencyCode)
	writeMoney(p, "subtotal", money.Subtotal, currencyCode)
	writeMoney(p, "tax_total", order.TaxTotal, currencyCode)
	writeMoney(p, "shipping_total", order.ShippingTotal, currencyCode)
	writeMoney(p, "discount_total", money.DiscountTotal, currencyCode)
	writeMoney(p, "gift_card_total", order.GiftCardTotal, currencyCode)
	return p
}

func (a *OrderAssembler) regionInfo(order *types.Order, loc LocaleInfo, currencyCode string) Payload {
	var region any
	if order.Region != nil {
		m, err := ToDocument(order.Region)
		if err == nil {
			m["metadata"] = order.Region.Metadata.OrEmpty()
			region = m
		}
	}
	return Payload{
		"currency_code": currencyCode,
		"region":        region,
		"locale_info":   localeInfoBlock(loc, currencyCode),
	}
}

func localeInfoBlock(loc LocaleInfo, currencyCode string) Payload {
	locale := loc.LocaleOrDefault("en")
	return Payload{
		"locale":        locale,
		"country_code":  loc.CountryOrDefault("US"),
		"currency_code": currencyCode,
		"date_format":   DateFormatSample(locale),
		"number_format": NumberFormatSample(locale, currencyCode),
	}
}

func currencyInfo(currencyCode, locale string) Payload {
	return Payload{
		"code":                   currencyCode,
		"symbol":                 CurrencySymbol(currencyCode, locale),
		"formatted_sample":       FormatAmount(1000, currencyCode),
		"locale_specific_format": FormatLocaleCurrency(1000, currencyCode, locale),
	}
}

// writeMoney writes a monetary field twice: formatted under the key and raw
// minor units under "<key>_raw".
func writeMoney(p Payload, key string, amount int64, currencyCode string) {
	p[key] = FormatAmountWithCode(amount, currencyCode)
	p[key+"_raw"] = amount
}

// relationMap serializes an optional relation to a map with its metadata
// defaulted to an empty object. Absent relations serialize as explicit null.
func relationMap(v any, present bool, metadata func() types.Metadata) (any, error) {
	if !present {
		return nil, nil
	}
	m, err := ToDocument(v)
	if err != nil {
		return nil, err
	}
	m["metadata"] = metadata().OrEmpty()
	return m, nil
}

// ToDocument flattens a struct into a key/value map through its JSON form, so
// a payload starts from exactly the fields the struct would serialize.
func ToDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// dateDisplayLayout mirrors the short default datetime rendering used by the
// "date" payload field.
const dateDisplayLayout = "1/2/2006, 3:04:05 PM"
