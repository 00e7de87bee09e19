package assembly

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"shopmail/internal/types"
)

// EnrichedProduct is the product shape embedded in an enriched item, with
// null-prone fields guaranteed present.
type EnrichedProduct struct {
	types.Product
	Metadata  types.Metadata          `json:"metadata"`
	Images    []types.ProductImage    `json:"images"`
	Profiles  []types.ShippingProfile `json:"profiles"`
	Thumbnail *string                 `json:"thumbnail"`
}

// EnrichedVariant is the variant shape embedded in an enriched item.
type EnrichedVariant struct {
	types.ProductVariant
	Metadata        types.Metadata   `json:"metadata"`
	PriceAttributes any              `json:"price_attributes"`
	Product         *EnrichedProduct `json:"product"`
}

// EnrichedItem is a line item with computed totals, formatted prices, and
// guaranteed-present collection fields. The outer fields shadow the embedded
// line item's in the JSON output.
type EnrichedItem struct {
	types.LineItem
	Variant         *EnrichedVariant     `json:"variant"`
	Totals          types.LineItemTotals `json:"totals"`
	Price           string               `json:"price"`
	DiscountedPrice string               `json:"discounted_price"`
	Thumbnail       *string              `json:"thumbnail"`
	Metadata        types.Metadata       `json:"metadata"`
	PriceAttributes any                  `json:"price_attributes"`
	Adjustments     []types.Metadata     `json:"adjustments"`
	TaxLines        []types.Metadata     `json:"tax_lines"`
}

// ItemEnricher computes totals and display fields for line items. Enrichment
// failures degrade per item; the enricher never fails an assembly. Each
// fallback is reported to the DegradeRecorder when one is set.
type ItemEnricher struct {
	totals  types.TotalsService
	logger  types.Logger
	metrics DegradeRecorder
}

func NewItemEnricher(totals types.TotalsService, logger types.Logger, metrics DegradeRecorder) *ItemEnricher {
	return &ItemEnricher{totals: totals, logger: logger, metrics: metrics}
}

func (e *ItemEnricher) recordDegrade(ctx context.Context, stage string) {
	if e.metrics != nil {
		e.metrics.RecordAssemblyDegrade(ctx, stage)
	}
}

// EnrichItems enriches all items of an order concurrently, preserving input
// order in the result. A panic while enriching one item is contained to that
// item, which falls back to its minimal shape; the other items are unaffected.
func (e *ItemEnricher) EnrichItems(ctx context.Context, items []types.LineItem, order *types.Order) []EnrichedItem {
	if len(items) == 0 {
		return []EnrichedItem{}
	}

	results := make([]EnrichedItem, len(items))
	g, ctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("item enrichment failed, using minimal item",
						"order_id", order.ID,
						"item_id", item.ID,
						"panic", fmt.Sprint(r))
					e.recordDegrade(ctx, "item_enrichment")
					results[i] = e.minimalItem(item, order)
				}
			}()
			results[i] = e.Enrich(ctx, item, order)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Enrich produces the full enriched shape for a single line item. Totals come
// from the totals service when it answers, and from unit_price * quantity when
// it does not.
func (e *ItemEnricher) Enrich(ctx context.Context, item types.LineItem, order *types.Order) EnrichedItem {
	currencyCode := normalizeCurrency(order.CurrencyCode)
	totals := e.lineTotals(ctx, item, order)

	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}

	return EnrichedItem{
		LineItem:        item,
		Variant:         enrichVariant(item.Variant),
		Totals:          totals,
		Price:           FormatAmountWithCode(totals.OriginalTotal/qty, currencyCode),
		DiscountedPrice: FormatAmountWithCode(totals.Total/qty, currencyCode),
		Thumbnail:       NormalizeThumbnailURL(item.Thumbnail),
		Metadata:        item.Metadata.OrEmpty(),
		PriceAttributes: priceAttributes(item.Metadata),
		Adjustments:     orEmptyList(item.Adjustments),
		TaxLines:        orEmptyList(item.TaxLines),
	}
}

func (e *ItemEnricher) lineTotals(ctx context.Context, item types.LineItem, order *types.Order) types.LineItemTotals {
	totals, err := e.totals.GetLineItemTotals(ctx, item, order, types.LineItemTotalsOptions{
		IncludeTax:  true,
		UseTaxLines: true,
	})
	if err != nil {
		e.logger.Warn("totals service failed for item, using unit price fallback",
			"order_id", order.ID,
			"item_id", item.ID,
			"error", err.Error())
		e.recordDegrade(ctx, "item_totals")
		return fallbackTotals(item)
	}
	return totals
}

// minimalItem is the degraded per-item shape used when enrichment panics: the
// original fields with computed-from-unit-price totals and no variant detail.
func (e *ItemEnricher) minimalItem(item types.LineItem, order *types.Order) EnrichedItem {
	currencyCode := normalizeCurrency(order.CurrencyCode)
	totals := fallbackTotals(item)

	qty := item.Quantity
	if qty < 1 {
		qty = 1
	}

	return EnrichedItem{
		LineItem:        item,
		Totals:          totals,
		Price:           FormatAmountWithCode(totals.OriginalTotal/qty, currencyCode),
		DiscountedPrice: FormatAmountWithCode(totals.Total/qty, currencyCode),
		Thumbnail:       NormalizeThumbnailURL(item.Thumbnail),
		Metadata:        item.Metadata.OrEmpty(),
		Adjustments:     orEmptyList(item.Adjustments),
		TaxLines:        orEmptyList(item.TaxLines),
	}
}

func fallbackTotals(item types.LineItem) types.LineItemTotals {
	line := item.UnitPrice * item.Quantity
	return types.LineItemTotals{
		Total:         line,
		OriginalTotal: line,
		Subtotal:      line,
	}
}

func enrichVariant(v *types.ProductVariant) *EnrichedVariant {
	if v == nil {
		return nil
	}
	return &EnrichedVariant{
		ProductVariant:  *v,
		Metadata:        v.Metadata.OrEmpty(),
		PriceAttributes: priceAttributes(v.Metadata),
		Product:         enrichProduct(v.Product),
	}
}

func enrichProduct(p *types.Product) *EnrichedProduct {
	if p == nil {
		return nil
	}
	images := p.Images
	if images == nil {
		images = []types.ProductImage{}
	}
	profiles := p.Profiles
	if profiles == nil {
		profiles = []types.ShippingProfile{}
	}
	return &EnrichedProduct{
		Product:   *p,
		Metadata:  p.Metadata.OrEmpty(),
		Images:    images,
		Profiles:  profiles,
		Thumbnail: p.Thumbnail,
	}
}

// priceAttributes pulls the opaque price_attributes value out of a metadata
// map. The value passes through untouched whatever its shape; only a missing
// key or explicit null becomes null.
func priceAttributes(m types.Metadata) any {
	if m == nil {
		return nil
	}
	if v, ok := m["price_attributes"]; ok && v != nil {
		return v
	}
	return nil
}

// NormalizeThumbnailURL upgrades protocol-relative thumbnail URLs to https.
// Absolute URLs and anything else pass through unchanged; nil stays nil.
func NormalizeThumbnailURL(url *string) *string {
	if url == nil {
		return nil
	}
	if strings.HasPrefix(*url, "//") {
		normalized := "https:" + *url
		return &normalized
	}
	return url
}

func orEmptyList(list []types.Metadata) []types.Metadata {
	if list == nil {
		return []types.Metadata{}
	}
	return list
}
