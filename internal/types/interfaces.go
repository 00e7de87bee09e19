package types

import (
	"context"
	"time"
)

// RetrieveOptions narrows a repository fetch to a set of scalar fields and a
// set of relation paths ("items", "items.variant.product", ...). Repositories
// may over-fetch but must hydrate at least what was requested.
type RetrieveOptions struct {
	Select    []string
	Relations []string
}

// OrderRepository is the read-side contract for order snapshots.
type OrderRepository interface {
	// Retrieve fetches one order with the requested fields and relations.
	// Fails with a not_found_order AppError on unknown ids and with
	// internal_database_error on query failure.
	Retrieve(ctx context.Context, id string, opts RetrieveOptions) (*Order, error)

	// RetrieveByCartID finds the order created from a cart, if any.
	RetrieveByCartID(ctx context.Context, cartID string, opts RetrieveOptions) (*Order, error)

	// ListCreatedBefore returns orders created before the cutoff, used by the
	// upsell reminder job.
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]Order, error)

	// UpdateMetadata merges the patch into the order's metadata document.
	UpdateMetadata(ctx context.Context, id string, patch Metadata) error
}

// CartRepository is the read/flag-write contract for carts.
type CartRepository interface {
	Retrieve(ctx context.Context, id string, opts RetrieveOptions) (*Cart, error)

	// ListWithEmail returns open carts that captured a customer email and
	// whose last update is at or before the cutoff, the candidate set for
	// abandoned-cart reminders.
	ListWithEmail(ctx context.Context, cutoff time.Time) ([]Cart, error)

	// UpdateMetadata merges the patch into the cart's metadata document.
	UpdateMetadata(ctx context.Context, id string, patch Metadata) error
}

// FulfillmentRepository retrieves shipment records.
type FulfillmentRepository interface {
	Retrieve(ctx context.Context, id string, opts RetrieveOptions) (*Fulfillment, error)
}

// GiftCardRepository retrieves gift cards, optionally with their order.
type GiftCardRepository interface {
	Retrieve(ctx context.Context, id string, opts RetrieveOptions) (*GiftCard, error)
}

// NotificationRepository persists send attempts for auditing and resend.
type NotificationRepository interface {
	Insert(ctx context.Context, rec *NotificationRecord) error
	Get(ctx context.Context, id string) (*NotificationRecord, error)
	ListByResource(ctx context.Context, resourceID string) ([]NotificationRecord, error)
}

// LineItemTotalsOptions controls how the totals service computes a line's
// money breakdown.
type LineItemTotalsOptions struct {
	IncludeTax  bool
	UseTaxLines bool
}

// TotalsService computes authoritative per-line money breakdowns. It is a
// black-box collaborator: the assembly pipeline only relies on the documented
// output shape and falls back to a local formula when the call fails.
type TotalsService interface {
	GetLineItemTotals(ctx context.Context, item LineItem, order *Order, opts LineItemTotalsOptions) (LineItemTotals, error)
}

// EmailAddress is a recipient or sender identity.
type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Attachment is a base64-encoded file attached to an outgoing email.
type Attachment struct {
	Name   string `json:"name"`
	Base64 string `json:"base64"`
	Type   string `json:"type"`
}

// SendTemplateInput is the provider-agnostic description of one transactional
// email send: a provider-side template id plus the params the template renders.
type SendTemplateInput struct {
	Sender      EmailAddress
	To          []EmailAddress
	Bcc         string
	TemplateID  string
	Params      map[string]any
	Attachments []Attachment
	ReferenceID string
}

// EmailProvider is the transactional-email send contract. Implementations own
// their network timeout policy; callers only pass a context.
type EmailProvider interface {
	// SendTemplate transmits one templated email and returns the provider
	// message id on success.
	SendTemplate(ctx context.Context, input SendTemplateInput) (string, error)
}

// ContactInput describes a contact-list subscription request.
type ContactInput struct {
	Email      string
	FirstName  string
	LastName   string
	ListIDs    []int64
	Attributes map[string]any
}

// ContactsProvider is the marketing contact-list contract.
type ContactsProvider interface {
	CreateContact(ctx context.Context, input ContactInput) error
}

// AttachmentGenerator produces PDF documents for outgoing emails. Any method
// may be unsupported; the notification service probes via the Supports* hooks
// and treats generation failures as non-fatal.
type AttachmentGenerator interface {
	SupportsInvoice() bool
	CreateInvoice(ctx context.Context, payload map[string]any) (string, error)

	SupportsPasswordReset() bool
	CreatePasswordReset(ctx context.Context) (string, error)

	SupportsReturnInvoice() bool
	CreateReturnInvoice(ctx context.Context, order map[string]any, items []map[string]any) (string, error)
}

// FulfillmentDocsProvider fetches carrier documents (e.g. return labels) from
// a fulfillment provider.
type FulfillmentDocsProvider interface {
	RetrieveDocuments(ctx context.Context, providerID string, shippingData Metadata, kind string) ([]Attachment, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
