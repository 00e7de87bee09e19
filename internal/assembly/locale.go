package assembly

import (
	"context"

	"shopmail/internal/types"
)

// LocaleInfo carries the locale and country code extracted from a cart
// context. A zero LocaleInfo means the cart gave us nothing, which is a soft
// outcome, not an error; both fields stay null in the payload.
type LocaleInfo struct {
	Locale      *string `json:"locale"`
	CountryCode *string `json:"countryCode"`
}

// LocaleOrDefault returns the locale string or the given default.
func (l LocaleInfo) LocaleOrDefault(def string) string {
	if l.Locale != nil && *l.Locale != "" {
		return *l.Locale
	}
	return def
}

// CountryOrDefault returns the country code or the given default.
func (l LocaleInfo) CountryOrDefault(def string) string {
	if l.CountryCode != nil && *l.CountryCode != "" {
		return *l.CountryCode
	}
	return def
}

// LocaleResolver looks up a cart's stored context to find the customer's
// locale. Every failure mode collapses to an empty LocaleInfo; the resolver
// never blocks an assembly.
type LocaleResolver struct {
	carts  types.CartRepository
	logger types.Logger
}

func NewLocaleResolver(carts types.CartRepository, logger types.Logger) *LocaleResolver {
	return &LocaleResolver{carts: carts, logger: logger}
}

// Resolve fetches the cart linked to the order and extracts locale and
// countryCode from its context. Orders without a cart, carts that fail to
// load, and contexts missing the keys all yield the zero LocaleInfo.
func (r *LocaleResolver) Resolve(ctx context.Context, order *types.Order) LocaleInfo {
	if order == nil || order.CartID == nil || *order.CartID == "" {
		return LocaleInfo{}
	}

	cart, err := r.carts.Retrieve(ctx, *order.CartID, types.RetrieveOptions{
		Select: []string{"id", "context"},
	})
	if err != nil {
		r.logger.Warn("failed to resolve cart context for locale",
			"order_id", order.ID,
			"cart_id", *order.CartID,
			"error", err.Error())
		return LocaleInfo{}
	}
	if cart == nil || cart.Context == nil {
		return LocaleInfo{}
	}

	var info LocaleInfo
	if v, ok := cart.Context["locale"].(string); ok && v != "" {
		info.Locale = &v
	}
	if v, ok := cart.Context["countryCode"].(string); ok && v != "" {
		info.CountryCode = &v
	}
	return info
}
