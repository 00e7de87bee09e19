package assembly

import (
	"fmt"
	"math"

	"shopmail/internal/types"
)

// ProcessedItem is the lightweight item shape used by canceled-order emails
// and the cart reminder jobs, where no totals service is available.
type ProcessedItem struct {
	types.LineItem
	Thumbnail *string `json:"thumbnail"`
	Price     string  `json:"price"`
}

// ProcessItems formats items by applying the region tax rate directly to the
// unit price. Unlike the enrichment path the price here is rendered as
// "<CCY> <amount>".
func ProcessItems(items []types.LineItem, taxRate float64, currencyCode string) []ProcessedItem {
	code := normalizeCurrency(currencyCode)
	out := make([]ProcessedItem, len(items))
	for i, item := range items {
		gross := int64(math.Round(float64(item.UnitPrice) * (1 + taxRate/100)))
		out[i] = ProcessedItem{
			LineItem:  item,
			Thumbnail: NormalizeThumbnailURL(item.Thumbnail),
			Price:     fmt.Sprintf("%s %s", code, FormatAmount(gross, code)),
		}
	}
	return out
}
