package assembly

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmail/internal/types"
)

func enricherOrder() *types.Order {
	return &types.Order{ID: "order_1", CurrencyCode: "usd"}
}

func TestEnrichMetadataRoundTrip(t *testing.T) {
	meta := types.Metadata{
		"engraving": "JD",
		"options": map[string]any{
			"color": "blue",
			"sizes": []any{"s", "m", nil},
			"flags": map[string]any{"rush": true, "note": nil},
		},
		"empty": map[string]any{},
	}
	item := types.LineItem{ID: "item_1", Quantity: 1, UnitPrice: 100, Metadata: meta}

	e := NewItemEnricher(&stubTotals{}, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	assert.Equal(t, meta, got.Metadata)
}

func TestEnrichNilMetadataBecomesEmpty(t *testing.T) {
	item := types.LineItem{ID: "item_1", Quantity: 1, UnitPrice: 100}

	e := NewItemEnricher(&stubTotals{}, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	require.NotNil(t, got.Metadata)
	assert.Empty(t, got.Metadata)
	require.NotNil(t, got.Adjustments)
	assert.Empty(t, got.Adjustments)
	require.NotNil(t, got.TaxLines)
	assert.Empty(t, got.TaxLines)
	assert.Nil(t, got.Variant)
	assert.Nil(t, got.PriceAttributes)
}

func TestEnrichTotalsFallback(t *testing.T) {
	item := types.LineItem{ID: "item_1", Quantity: 3, UnitPrice: 700}
	logger := newTestLogger()

	e := NewItemEnricher(&stubTotals{err: errors.New("totals service down")}, logger, nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	assert.Equal(t, int64(2100), got.Totals.Total)
	assert.Equal(t, int64(2100), got.Totals.OriginalTotal)
	assert.Equal(t, int64(2100), got.Totals.Subtotal)
	assert.Zero(t, got.Totals.TaxTotal)
	assert.NotEmpty(t, logger.warns)
}

func TestEnrichTotalsFallbackRecordsDegrade(t *testing.T) {
	item := types.LineItem{ID: "item_1", Quantity: 3, UnitPrice: 700}
	degrades := &stubDegrades{}

	e := NewItemEnricher(&stubTotals{err: errors.New("totals service down")}, newTestLogger(), degrades)
	e.Enrich(context.Background(), item, enricherOrder())

	assert.Equal(t, []string{"item_totals"}, degrades.stages)
}

func TestEnrichPriceStrings(t *testing.T) {
	item := types.LineItem{ID: "item_1", Quantity: 2, UnitPrice: 2500}
	totals := &stubTotals{totals: types.LineItemTotals{Total: 4500, OriginalTotal: 5000, Subtotal: 4500}}

	e := NewItemEnricher(totals, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	assert.Equal(t, FormatAmountWithCode(2500, "USD"), got.Price)
	assert.Equal(t, FormatAmountWithCode(2250, "USD"), got.DiscountedPrice)
}

func TestEnrichZeroQuantityAvoidsDivideByZero(t *testing.T) {
	item := types.LineItem{ID: "item_1", Quantity: 0, UnitPrice: 2500}
	totals := &stubTotals{totals: types.LineItemTotals{Total: 2500, OriginalTotal: 2500}}

	e := NewItemEnricher(totals, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	assert.Equal(t, FormatAmountWithCode(2500, "USD"), got.Price)
}

func TestEnrichVariantPriceAttributesArray(t *testing.T) {
	// Some storefronts store price_attributes as an array; the shape passes
	// through verbatim either way.
	attrs := []any{
		map[string]any{"key": "engraving", "price": float64(500)},
		map[string]any{"key": "wrap", "price": float64(200)},
	}
	item := types.LineItem{
		ID:        "item_1",
		Quantity:  1,
		UnitPrice: 100,
		Variant: &types.ProductVariant{
			ID:       "variant_1",
			Metadata: types.Metadata{"price_attributes": attrs},
		},
	}

	e := NewItemEnricher(&stubTotals{}, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	require.NotNil(t, got.Variant)
	assert.Equal(t, attrs, got.Variant.PriceAttributes)
}

func TestEnrichItemPriceAttributesObject(t *testing.T) {
	attrs := map[string]any{"engraving": map[string]any{"text": "JD"}}
	item := types.LineItem{
		ID:        "item_1",
		Quantity:  1,
		UnitPrice: 100,
		Metadata:  types.Metadata{"price_attributes": attrs},
	}

	e := NewItemEnricher(&stubTotals{}, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	assert.Equal(t, attrs, got.PriceAttributes)
}

func TestEnrichProductDefaults(t *testing.T) {
	item := types.LineItem{
		ID:        "item_1",
		Quantity:  1,
		UnitPrice: 100,
		Variant: &types.ProductVariant{
			ID:      "variant_1",
			Product: &types.Product{ID: "prod_1", Title: "Mug"},
		},
	}

	e := NewItemEnricher(&stubTotals{}, newTestLogger(), nil)
	got := e.Enrich(context.Background(), item, enricherOrder())

	require.NotNil(t, got.Variant)
	prod := got.Variant.Product
	require.NotNil(t, prod)
	assert.NotNil(t, prod.Metadata)
	assert.NotNil(t, prod.Images)
	assert.NotNil(t, prod.Profiles)
	assert.Nil(t, prod.Thumbnail)
}

func TestNormalizeThumbnailURL(t *testing.T) {
	tests := []struct {
		name string
		in   *string
		want *string
	}{
		{name: "nil stays nil"},
		{name: "absolute passes through", in: strptr("https://cdn.example.com/a.png"), want: strptr("https://cdn.example.com/a.png")},
		{name: "protocol-relative gets https", in: strptr("//cdn.example.com/a.png"), want: strptr("https://cdn.example.com/a.png")},
		{name: "relative passes through", in: strptr("/static/a.png"), want: strptr("/static/a.png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeThumbnailURL(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestEnrichItemsPreservesOrder(t *testing.T) {
	items := []types.LineItem{
		{ID: "item_a", Quantity: 1, UnitPrice: 100},
		{ID: "item_b", Quantity: 1, UnitPrice: 200},
		{ID: "item_c", Quantity: 1, UnitPrice: 300},
	}
	totals := &stubTotals{perItem: map[string]types.LineItemTotals{
		"item_a": {Total: 100, OriginalTotal: 100},
		"item_b": {Total: 200, OriginalTotal: 200},
		"item_c": {Total: 300, OriginalTotal: 300},
	}}

	e := NewItemEnricher(totals, newTestLogger(), nil)
	got := e.EnrichItems(context.Background(), items, enricherOrder())

	require.Len(t, got, 3)
	for i, want := range []string{"item_a", "item_b", "item_c"} {
		assert.Equal(t, want, got[i].ID)
	}
}

func TestEnrichItemsEmpty(t *testing.T) {
	e := NewItemEnricher(&stubTotals{}, newTestLogger(), nil)

	got := e.EnrichItems(context.Background(), nil, enricherOrder())
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestProcessItems(t *testing.T) {
	items := []types.LineItem{
		{ID: "item_1", UnitPrice: 1000, Quantity: 1, Thumbnail: strptr("//cdn.example.com/a.png")},
	}

	got := ProcessItems(items, 19, "usd")

	require.Len(t, got, 1)
	assert.Equal(t, "USD "+FormatAmount(1190, "USD"), got[0].Price)
	require.NotNil(t, got[0].Thumbnail)
	assert.Equal(t, "https://cdn.example.com/a.png", *got[0].Thumbnail)
}
