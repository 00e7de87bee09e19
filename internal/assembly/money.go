package assembly

import "shopmail/internal/types"

// MoneyTotals is the order-level money summary aggregated from per-item
// totals.
type MoneyTotals struct {
	DiscountTotal      int64
	DiscountedSubtotal int64
	Subtotal           int64
	SubtotalExTax      int64
}

// AggregateItemTotals sums the enriched items into order-level totals. Each
// term reads a single item's totals independently, so one malformed item can
// never poison another's contribution. A nil item list means the items could
// not be assembled at all; in that case the order's own stored totals stand
// in for every aggregate.
func AggregateItemTotals(items []EnrichedItem, order *types.Order) MoneyTotals {
	if items == nil {
		var discountTotal, subtotal int64
		if order != nil {
			discountTotal = order.DiscountTotal
			subtotal = order.Subtotal
		}
		return MoneyTotals{
			DiscountTotal:      discountTotal,
			DiscountedSubtotal: subtotal,
			Subtotal:           subtotal,
			SubtotalExTax:      subtotal,
		}
	}

	var t MoneyTotals
	for i := range items {
		totals := items[i].Totals
		t.DiscountTotal += totals.OriginalTotal - totals.Total
		t.DiscountedSubtotal += totals.Total
		t.Subtotal += totals.OriginalTotal
		t.SubtotalExTax += totals.Subtotal
	}
	return t
}
