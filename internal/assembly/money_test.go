package assembly

import (
	"testing"

	"shopmail/internal/types"
)

func TestAggregateItemTotals(t *testing.T) {
	items := []EnrichedItem{
		{Totals: types.LineItemTotals{Total: 4500, OriginalTotal: 5000, Subtotal: 4200}},
		{Totals: types.LineItemTotals{Total: 1000, OriginalTotal: 1000, Subtotal: 900}},
	}

	got := AggregateItemTotals(items, &types.Order{})

	want := MoneyTotals{
		DiscountTotal:      500,
		DiscountedSubtotal: 5500,
		Subtotal:           6000,
		SubtotalExTax:      5100,
	}
	if got != want {
		t.Fatalf("AggregateItemTotals() = %+v, want %+v", got, want)
	}
}

func TestAggregateItemTotalsEmpty(t *testing.T) {
	got := AggregateItemTotals([]EnrichedItem{}, &types.Order{Subtotal: 9999})
	if got != (MoneyTotals{}) {
		t.Fatalf("empty item list should sum to zero, got %+v", got)
	}
}

func TestAggregateItemTotalsNilFallsBackToOrder(t *testing.T) {
	order := &types.Order{DiscountTotal: 300, Subtotal: 7000}

	got := AggregateItemTotals(nil, order)

	want := MoneyTotals{
		DiscountTotal:      300,
		DiscountedSubtotal: 7000,
		Subtotal:           7000,
		SubtotalExTax:      7000,
	}
	if got != want {
		t.Fatalf("AggregateItemTotals(nil) = %+v, want order-level fallback %+v", got, want)
	}
}

func TestAggregateItemTotalsNilOrder(t *testing.T) {
	if got := AggregateItemTotals(nil, nil); got != (MoneyTotals{}) {
		t.Fatalf("AggregateItemTotals(nil, nil) = %+v, want zero", got)
	}
}
