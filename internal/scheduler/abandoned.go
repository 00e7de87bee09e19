// Package scheduler implements the poll-style follow-up jobs: abandoned-cart
// reminders and post-purchase upsell emails. Both are invoked on a fixed
// schedule by cmd/jobs, scan the read model for due work, send directly
// through the email provider, and flag what they sent in entity metadata so a
// rerun never double-sends.
package scheduler

import (
	"context"
	"errors"
	"time"

	"shopmail/internal/assembly"
	"shopmail/internal/notify"
	"shopmail/internal/types"
)

// ReminderStage identifies which of the three escalating reminder emails a
// cart is due for.
type ReminderStage string

const (
	StageFirst  ReminderStage = "first"
	StageSecond ReminderStage = "second"
	StageThird  ReminderStage = "third"
)

// metadataFlag is the cart metadata key recording that a stage was sent.
func (s ReminderStage) metadataFlag() string {
	return string(s) + "_abandonedcart_mail"
}

// CartReminderConfig configures the abandoned-cart job. A stage with a zero
// template is never sent; the job as a whole is inert unless Enabled and the
// first stage is configured.
type CartReminderConfig struct {
	Enabled bool

	// Stage delays measured from the cart's last item activity. Must be
	// strictly increasing: First < Second < Third.
	FirstDelay  time.Duration
	SecondDelay time.Duration
	ThirdDelay  time.Duration

	FirstTemplate  notify.TemplateRef
	SecondTemplate notify.TemplateRef
	ThirdTemplate  notify.TemplateRef

	Sender      types.EmailAddress
	DefaultData map[string]any
}

// CartReminder scans for carts whose owners stopped short of checkout and
// sends up to three escalating reminder emails.
type CartReminder struct {
	cfg      CartReminderConfig
	carts    types.CartRepository
	orders   types.OrderRepository
	provider types.EmailProvider
	logger   types.Logger
}

func NewCartReminder(cfg CartReminderConfig, carts types.CartRepository, orders types.OrderRepository,
	provider types.EmailProvider, logger types.Logger) *CartReminder {
	return &CartReminder{
		cfg:      cfg,
		carts:    carts,
		orders:   orders,
		provider: provider,
		logger:   logger,
	}
}

// Run processes one reminder sweep and returns the number of emails sent.
// Per-cart failures are logged and skipped so one bad cart cannot stall the
// whole sweep.
func (r *CartReminder) Run(ctx context.Context, now time.Time) (int, error) {
	if !r.cfg.Enabled || r.cfg.FirstTemplate.IsZero() {
		return 0, nil
	}

	firstCheck := now.Add(-r.cfg.FirstDelay)
	secondCheck := now.Add(-r.cfg.SecondDelay)
	thirdCheck := now.Add(-r.cfg.ThirdDelay)

	carts, err := r.carts.ListWithEmail(ctx, firstCheck)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range carts {
		cart := &carts[i]
		if cart.Email == nil || *cart.Email == "" {
			continue
		}
		if cart.Metadata.OrEmpty()[StageThird.metadataFlag()] == true {
			continue
		}
		if r.cartConverted(ctx, cart.ID) {
			continue
		}

		lastActivity := newestItemActivity(cart)
		if lastActivity.IsZero() || lastActivity.After(firstCheck) {
			continue
		}

		stage := stageFor(lastActivity, secondCheck, thirdCheck)
		if cart.Metadata.OrEmpty()[stage.metadataFlag()] == true {
			continue
		}

		if err := r.sendReminder(ctx, cart, stage); err != nil {
			r.logger.Error("abandoned cart reminder failed",
				"cart_id", cart.ID, "stage", string(stage), "error", err.Error())
			continue
		}
		sent++

		md := cart.Metadata.Clone().OrEmpty()
		md[stage.metadataFlag()] = true
		if err := r.carts.UpdateMetadata(ctx, cart.ID, md); err != nil {
			r.logger.Error("failed to flag reminder stage",
				"cart_id", cart.ID, "stage", string(stage), "error", err.Error())
		}
	}
	return sent, nil
}

// cartConverted reports whether an order was placed from the cart. Lookup
// errors other than not-found count as converted so a flaky read never
// emails a customer who already bought.
func (r *CartReminder) cartConverted(ctx context.Context, cartID string) bool {
	_, err := r.orders.RetrieveByCartID(ctx, cartID, types.RetrieveOptions{Select: []string{"id"}})
	if err == nil {
		return true
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundOrder {
		return false
	}
	r.logger.Warn("order lookup failed for cart, skipping reminder",
		"cart_id", cartID, "error", err.Error())
	return true
}

func (r *CartReminder) sendReminder(ctx context.Context, cart *types.Cart, stage ReminderStage) error {
	var taxRate float64
	currencyCode := "USD"
	if cart.Region != nil {
		if !cart.Region.IncludesTax {
			taxRate = cart.Region.TaxRate
		}
		currencyCode = cart.Region.CurrencyCode
	}
	items := assembly.ProcessItems(cart.Items, taxRate, currencyCode)

	loc := localeFromCart(cart)
	templateID := r.templateFor(stage).Resolve(loc)
	if templateID == "" {
		return types.NewAppError(types.ErrCodeNotFoundTemplate,
			"no reminder template for stage "+string(stage), nil)
	}

	params, err := assembly.ToDocument(cart)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize cart", err)
	}
	params["items"] = items
	for k, v := range r.cfg.DefaultData {
		params[k] = v
	}

	_, err = r.provider.SendTemplate(ctx, types.SendTemplateInput{
		Sender:      r.cfg.Sender,
		To:          []types.EmailAddress{{Email: *cart.Email}},
		TemplateID:  templateID,
		Params:      params,
		ReferenceID: cart.ID,
	})
	if err != nil {
		return err
	}

	r.logger.Info("abandoned cart reminder sent",
		"cart_id", cart.ID, "stage", string(stage), "template_id", templateID)
	return nil
}

func (r *CartReminder) templateFor(stage ReminderStage) notify.TemplateRef {
	switch stage {
	case StageSecond:
		return r.cfg.SecondTemplate
	case StageThird:
		return r.cfg.ThirdTemplate
	default:
		return r.cfg.FirstTemplate
	}
}

// stageFor picks the deepest stage whose threshold the cart's last activity
// has passed.
func stageFor(lastActivity, secondCheck, thirdCheck time.Time) ReminderStage {
	switch {
	case lastActivity.Before(thirdCheck):
		return StageThird
	case lastActivity.Before(secondCheck):
		return StageSecond
	default:
		return StageFirst
	}
}

// newestItemActivity returns the most recent updated_at across the cart's
// items, mirroring how abandonment is measured upstream: adding or editing
// any line restarts the clock.
func newestItemActivity(cart *types.Cart) time.Time {
	var newest time.Time
	for _, item := range cart.Items {
		if item.UpdatedAt.After(newest) {
			newest = item.UpdatedAt
		}
	}
	return newest
}

// localeFromCart reads the storefront locale hints out of the cart context.
func localeFromCart(cart *types.Cart) assembly.LocaleInfo {
	var info assembly.LocaleInfo
	if cart.Context == nil {
		return info
	}
	if v, ok := cart.Context["locale"].(string); ok && v != "" {
		info.Locale = &v
	}
	if v, ok := cart.Context["countryCode"].(string); ok && v != "" {
		info.CountryCode = &v
	}
	return info
}
