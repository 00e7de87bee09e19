package assembly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmail/internal/types"
)

func TestLocalTotals_PlainLine(t *testing.T) {
	item := types.LineItem{ID: "item_1", Quantity: 2, UnitPrice: 1000}

	totals, err := NewLocalTotals().GetLineItemTotals(context.Background(), item, &types.Order{}, types.LineItemTotalsOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(2000), totals.Subtotal)
	assert.Equal(t, int64(2000), totals.Total)
	assert.Equal(t, int64(2000), totals.OriginalTotal)
	assert.Zero(t, totals.TaxTotal)
	assert.Zero(t, totals.DiscountTotal)
}

func TestLocalTotals_AdjustmentsAndTaxLines(t *testing.T) {
	item := types.LineItem{
		ID: "item_1", Quantity: 2, UnitPrice: 1000,
		Adjustments: []types.Metadata{{"amount": float64(400)}},
		TaxLines:    []types.Metadata{{"rate": float64(19)}, {"rate": float64(1)}},
	}

	totals, err := NewLocalTotals().GetLineItemTotals(context.Background(), item, &types.Order{},
		types.LineItemTotalsOptions{IncludeTax: true, UseTaxLines: true})
	require.NoError(t, err)

	assert.Equal(t, int64(2000), totals.Subtotal)
	assert.Equal(t, int64(400), totals.DiscountTotal)
	// 20% over the discounted 1600.
	assert.Equal(t, int64(320), totals.TaxTotal)
	assert.Equal(t, int64(1920), totals.Total)
	// Original ignores the discount: 2000 + 20%.
	assert.Equal(t, int64(2400), totals.OriginalTotal)
}

func TestLocalTotals_OrderFlatRateFallback(t *testing.T) {
	rate := 10.0
	item := types.LineItem{ID: "item_1", Quantity: 1, UnitPrice: 500}
	order := &types.Order{TaxRate: &rate}

	totals, err := NewLocalTotals().GetLineItemTotals(context.Background(), item, order,
		types.LineItemTotalsOptions{IncludeTax: true, UseTaxLines: true})
	require.NoError(t, err)

	assert.Equal(t, int64(50), totals.TaxTotal)
	assert.Equal(t, int64(550), totals.Total)
}

func TestLocalTotals_DiscountClampedToSubtotal(t *testing.T) {
	item := types.LineItem{
		ID: "item_1", Quantity: 1, UnitPrice: 300,
		Adjustments: []types.Metadata{{"amount": float64(900)}},
	}

	totals, err := NewLocalTotals().GetLineItemTotals(context.Background(), item, &types.Order{}, types.LineItemTotalsOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(300), totals.DiscountTotal)
	assert.Zero(t, totals.Total)
}
