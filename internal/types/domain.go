package types

import (
	"time"
)

// Metadata is an arbitrary key-value document attached to most commerce
// entities. The notification pipeline treats it as opaque: whatever the
// storefront wrote must round-trip to the email template untouched. The only
// permitted normalization is collapsing a missing/null top-level value to an
// empty object at documented points in the assembly pipeline.
type Metadata map[string]any

// Address is a postal address snapshot attached to an order or cart.
type Address struct {
	ID          string   `json:"id"`
	CustomerID  *string  `json:"customer_id,omitempty"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Company     *string  `json:"company,omitempty"`
	Address1    string   `json:"address_1"`
	Address2    *string  `json:"address_2,omitempty"`
	City        string   `json:"city"`
	Province    *string  `json:"province,omitempty"`
	PostalCode  string   `json:"postal_code"`
	CountryCode string   `json:"country_code"`
	Phone       *string  `json:"phone,omitempty"`
	Metadata    Metadata `json:"metadata"`
}

// Customer is the purchaser associated with an order.
type Customer struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	FirstName  string   `json:"first_name"`
	LastName   string   `json:"last_name"`
	Phone      *string  `json:"phone,omitempty"`
	HasAccount bool     `json:"has_account"`
	Metadata   Metadata `json:"metadata"`
}

// Region carries the tax and currency context an order was placed in.
type Region struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	CurrencyCode string   `json:"currency_code"`
	TaxRate      float64  `json:"tax_rate"`
	IncludesTax  bool     `json:"includes_tax"`
	Metadata     Metadata `json:"metadata"`
}

// DiscountRule describes how a discount applies: a percentage or a fixed
// minor-unit amount.
type DiscountRule struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Value       int64   `json:"value"`
	Description *string `json:"description,omitempty"`
}

// Discount is a promotion code redeemed against an order.
type Discount struct {
	ID       string        `json:"id"`
	Code     string        `json:"code"`
	Rule     *DiscountRule `json:"rule"`
	Metadata Metadata      `json:"metadata"`
}

// GiftCard is a stored-value card redeemed against an order.
type GiftCard struct {
	ID       string   `json:"id"`
	Code     string   `json:"code"`
	Value    int64    `json:"value"`
	Balance  int64    `json:"balance"`
	Metadata Metadata `json:"metadata"`

	// Order is hydrated only when the "order" relation is requested.
	Order *Order `json:"order,omitempty"`
}

// ShippingOption identifies the fulfillment provider behind a shipping method.
type ShippingOption struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProviderID string   `json:"provider_id"`
	Metadata   Metadata `json:"metadata"`
}

// ShippingMethod is a priced shipping selection on an order.
type ShippingMethod struct {
	ID             string          `json:"id"`
	Price          int64           `json:"price"`
	ShippingOption *ShippingOption `json:"shipping_option,omitempty"`
	Data           Metadata        `json:"data,omitempty"`
}

// ProductImage is one gallery image of a product.
type ProductImage struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ShippingProfile groups products that ship together.
type ShippingProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Product is the catalog entry a variant belongs to.
type Product struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Subtitle     *string           `json:"subtitle,omitempty"`
	CollectionID *string           `json:"collection_id,omitempty"`
	Description  *string           `json:"description"`
	Thumbnail    *string           `json:"thumbnail"`
	Images       []ProductImage    `json:"images"`
	Profiles     []ShippingProfile `json:"profiles"`
	Metadata     Metadata          `json:"metadata"`
}

// ProductVariant is a specific purchasable configuration of a product.
// Variant metadata may carry a storefront "price_attributes" entry whose shape
// (object or array) is producer-defined and must be preserved verbatim.
type ProductVariant struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	SKU      *string  `json:"sku"`
	Barcode  *string  `json:"barcode,omitempty"`
	Weight   *int     `json:"weight,omitempty"`
	Length   *int     `json:"length,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Width    *int     `json:"width,omitempty"`
	Product  *Product `json:"product"`
	Metadata Metadata `json:"metadata"`
}

// LineItem is one unit-of-sale line within an order or cart. Adjustments and
// tax lines are opaque to the notification pipeline: they are preserved
// per-record without interpretation.
type LineItem struct {
	ID          string          `json:"id"`
	OrderID     *string         `json:"order_id,omitempty"`
	CartID      *string         `json:"cart_id,omitempty"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Thumbnail   *string         `json:"thumbnail"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Variant     *ProductVariant `json:"variant"`
	Adjustments []Metadata      `json:"adjustments"`
	TaxLines    []Metadata      `json:"tax_lines"`
	Metadata    Metadata        `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LineItemTotals is the per-line money breakdown computed by the totals
// service (all values in minor units).
type LineItemTotals struct {
	Total         int64 `json:"total"`
	OriginalTotal int64 `json:"original_total"`
	Subtotal      int64 `json:"subtotal"`
	TaxTotal      int64 `json:"tax_total"`
	DiscountTotal int64 `json:"discount_total"`
}

// Order is the root entity of the notification pipeline: a read-only snapshot
// of a placed purchase. All monetary totals are integer minor units.
type Order struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	PaymentStatus     string     `json:"payment_status"`
	DisplayID         int64      `json:"display_id"`
	CartID            *string    `json:"cart_id"`
	CustomerID        *string    `json:"customer_id"`
	Email             string     `json:"email"`
	CurrencyCode      string     `json:"currency_code"`
	TaxRate           *float64   `json:"tax_rate"`
	RegionID          *string    `json:"region_id,omitempty"`
	BillingAddressID  *string    `json:"billing_address_id,omitempty"`
	ShippingAddressID *string    `json:"shipping_address_id,omitempty"`
	SalesChannelID    *string    `json:"sales_channel_id,omitempty"`
	DraftOrderID      *string    `json:"draft_order_id,omitempty"`
	ExternalID        *string    `json:"external_id,omitempty"`
	IdempotencyKey    *string    `json:"idempotency_key,omitempty"`
	NoNotification    bool       `json:"no_notification"`
	CanceledAt        *time.Time `json:"canceled_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Monetary totals (minor units at rest).
	Subtotal         int64 `json:"subtotal"`
	TaxTotal         int64 `json:"tax_total"`
	ShippingTotal    int64 `json:"shipping_total"`
	DiscountTotal    int64 `json:"discount_total"`
	GiftCardTotal    int64 `json:"gift_card_total"`
	RefundedTotal    int64 `json:"refunded_total"`
	RefundableAmount int64 `json:"refundable_amount"`
	PaidTotal        int64 `json:"paid_total"`
	Total            int64 `json:"total"`

	// Relations (hydrated according to RetrieveOptions.Relations).
	Items           []LineItem       `json:"items"`
	Discounts       []Discount       `json:"discounts"`
	GiftCards       []GiftCard       `json:"gift_cards"`
	ShippingMethods []ShippingMethod `json:"shipping_methods"`
	Customer        *Customer        `json:"customer"`
	BillingAddress  *Address         `json:"billing_address"`
	ShippingAddress *Address         `json:"shipping_address"`
	Region          *Region          `json:"region"`

	Metadata Metadata `json:"metadata"`
}

// Cart is the pre-checkout basket an order was created from. Context carries
// storefront request context (locale, countryCode, user agent, ...) and is as
// opaque as entity metadata.
type Cart struct {
	ID              string     `json:"id"`
	Email           *string    `json:"email"`
	Context         Metadata   `json:"context"`
	Items           []LineItem `json:"items"`
	Region          *Region    `json:"region,omitempty"`
	ShippingAddress *Address   `json:"shipping_address,omitempty"`
	Metadata        Metadata   `json:"metadata"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TrackingLink is a carrier tracking reference on a fulfillment.
type TrackingLink struct {
	ID             string  `json:"id"`
	TrackingNumber string  `json:"tracking_number"`
	URL            *string `json:"url,omitempty"`
}

// Fulfillment is a shipment of some or all items of an order.
type Fulfillment struct {
	ID            string         `json:"id"`
	OrderID       string         `json:"order_id"`
	ProviderID    string         `json:"provider_id"`
	ShippedAt     *time.Time     `json:"shipped_at"`
	Items         []Metadata     `json:"items"`
	TrackingLinks []TrackingLink `json:"tracking_links"`
	Data          Metadata       `json:"data,omitempty"`
	Metadata      Metadata       `json:"metadata"`
}

// NotificationRecord is the persisted trace of one send attempt, kept for
// auditing and to support resending a past notification.
type NotificationRecord struct {
	ID         string         `json:"id"`
	EventType  EventType      `json:"event_type"`
	ResourceID string         `json:"resource_id"`
	To         string         `json:"to"`
	TemplateID string         `json:"template_id"`
	Status     DeliveryStatus `json:"status"`
	Payload    Metadata       `json:"payload"`
	ProviderID string         `json:"provider_message_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
