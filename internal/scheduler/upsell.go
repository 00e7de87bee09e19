package scheduler

import (
	"context"
	"math/rand"
	"time"

	"shopmail/internal/assembly"
	"shopmail/internal/types"
)

// upsellDateLayout renders the offer expiry the way the templates expect,
// e.g. "September 14, 2026".
const upsellDateLayout = "January 2, 2006"

// UpsellConfig configures the post-purchase upsell job.
type UpsellConfig struct {
	Enabled bool

	// CollectionID gates eligibility: every item on the order must belong to
	// this product collection.
	CollectionID string

	// Delay is how long after purchase the email goes out. Orders older than
	// Delay+Lookback are left alone so a stalled job does not mail deep into
	// the backlog when it recovers.
	Delay    time.Duration
	Lookback time.Duration

	// Valid is how long the upsell offer stays redeemable; it renders into
	// the valid_through param.
	Valid time.Duration

	// TemplateIDs is the pool of provider templates; each send picks one at
	// random for simple A/B rotation.
	TemplateIDs []string

	Sender      types.EmailAddress
	DefaultData map[string]any
}

const defaultUpsellLookback = 24 * time.Hour

// Upsell emails customers whose entire order came from the configured
// collection, offering a follow-up purchase.
type Upsell struct {
	cfg      UpsellConfig
	orders   types.OrderRepository
	provider types.EmailProvider
	logger   types.Logger

	// pick is swappable in tests; defaults to math/rand.
	pick func(n int) int
}

func NewUpsell(cfg UpsellConfig, orders types.OrderRepository, provider types.EmailProvider, logger types.Logger) *Upsell {
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultUpsellLookback
	}
	return &Upsell{
		cfg:      cfg,
		orders:   orders,
		provider: provider,
		logger:   logger,
		pick:     rand.Intn,
	}
}

// Run processes one upsell sweep and returns the number of emails sent.
func (u *Upsell) Run(ctx context.Context, now time.Time) (int, error) {
	if !u.cfg.Enabled || u.cfg.CollectionID == "" || u.cfg.Delay <= 0 || len(u.cfg.TemplateIDs) == 0 {
		return 0, nil
	}

	cutoff := now.Add(-u.cfg.Delay)
	oldest := cutoff.Add(-u.cfg.Lookback)
	validThrough := now.Add(u.cfg.Valid).Format(upsellDateLayout)

	orders, err := u.orders.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range orders {
		order := &orders[i]
		if order.Metadata.OrEmpty()["upsell_sent"] == true {
			continue
		}
		if order.CreatedAt.Before(oldest) {
			continue
		}
		if order.Customer == nil || order.Customer.Email == "" {
			continue
		}
		if !u.allItemsInCollection(order) {
			continue
		}

		templateID := u.cfg.TemplateIDs[u.pick(len(u.cfg.TemplateIDs))]
		if err := u.sendUpsell(ctx, order, templateID, validThrough); err != nil {
			u.logger.Error("upsell email failed",
				"order_id", order.ID, "template_id", templateID, "error", err.Error())
			continue
		}
		sent++

		md := order.Metadata.Clone().OrEmpty()
		md["upsell_sent"] = true
		if err := u.orders.UpdateMetadata(ctx, order.ID, md); err != nil {
			u.logger.Error("failed to flag upsell order",
				"order_id", order.ID, "error", err.Error())
		}
	}
	return sent, nil
}

// allItemsInCollection reports whether every line item's product belongs to
// the configured collection. A missing variant or product fails the gate:
// eligibility must be provable.
func (u *Upsell) allItemsInCollection(order *types.Order) bool {
	if len(order.Items) == 0 {
		return false
	}
	for _, item := range order.Items {
		if item.Variant == nil || item.Variant.Product == nil {
			return false
		}
		cid := item.Variant.Product.CollectionID
		if cid == nil || *cid != u.cfg.CollectionID {
			return false
		}
	}
	return true
}

func (u *Upsell) sendUpsell(ctx context.Context, order *types.Order, templateID, validThrough string) error {
	params, err := assembly.ToDocument(order)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize order", err)
	}
	for k, v := range u.cfg.DefaultData {
		params[k] = v
	}
	params["valid_through"] = validThrough

	_, err = u.provider.SendTemplate(ctx, types.SendTemplateInput{
		Sender:      u.cfg.Sender,
		To:          []types.EmailAddress{{Email: order.Customer.Email}},
		TemplateID:  templateID,
		Params:      params,
		ReferenceID: order.ID,
	})
	if err != nil {
		return err
	}

	u.logger.Info("upsell email sent",
		"order_id", order.ID, "template_id", templateID, "valid_through", validThrough)
	return nil
}
