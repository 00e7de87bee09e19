package assembly

import (
	"context"

	"shopmail/internal/types"
)

// LocalTotals computes per-line money breakdowns from the snapshot itself:
// unit price times quantity, minus adjustment amounts, plus tax from the
// line's tax lines or the order's flat rate. It stands in for the commerce
// platform's totals engine, which is not reachable from this service.
type LocalTotals struct{}

func NewLocalTotals() LocalTotals { return LocalTotals{} }

var _ types.TotalsService = LocalTotals{}

// GetLineItemTotals computes the line's breakdown. Original totals are
// pre-discount; Total is the discounted amount, tax included when requested.
func (LocalTotals) GetLineItemTotals(_ context.Context, item types.LineItem, order *types.Order, opts types.LineItemTotalsOptions) (types.LineItemTotals, error) {
	subtotal := item.UnitPrice * item.Quantity

	var discount int64
	for _, adj := range item.Adjustments {
		discount += metadataAmount(adj, "amount")
	}
	if discount > subtotal {
		discount = subtotal
	}

	rate := taxRateFor(item, order, opts)
	discounted := subtotal - discount

	taxTotal := applyRate(discounted, rate)
	totals := types.LineItemTotals{
		Subtotal:      subtotal,
		DiscountTotal: discount,
		TaxTotal:      taxTotal,
		OriginalTotal: subtotal,
		Total:         discounted,
	}
	if opts.IncludeTax {
		totals.OriginalTotal = subtotal + applyRate(subtotal, rate)
		totals.Total = discounted + taxTotal
	}
	return totals, nil
}

// taxRateFor sums the line's tax-line rates when requested and present,
// otherwise falls back to the order's flat rate.
func taxRateFor(item types.LineItem, order *types.Order, opts types.LineItemTotalsOptions) float64 {
	if opts.UseTaxLines && len(item.TaxLines) > 0 {
		var rate float64
		for _, line := range item.TaxLines {
			rate += metadataRate(line, "rate")
		}
		return rate
	}
	if order != nil && order.TaxRate != nil {
		return *order.TaxRate
	}
	return 0
}

func applyRate(amount int64, rate float64) int64 {
	if rate == 0 {
		return 0
	}
	return int64(float64(amount) * rate / 100)
}

// metadataAmount reads an integer minor-unit value out of a JSONB document,
// tolerating the float64 shape json.Unmarshal produces.
func metadataAmount(md types.Metadata, key string) int64 {
	switch v := md[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func metadataRate(md types.Metadata, key string) float64 {
	switch v := md[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
