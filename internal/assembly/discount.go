package assembly

import (
	"fmt"

	"shopmail/internal/types"
)

// NormalizedDiscount is the template-facing shape shared by discounts and
// gift cards.
type NormalizedDiscount struct {
	IsGiftCard bool   `json:"is_giftcard"`
	Code       string `json:"code"`
	Descriptor string `json:"descriptor"`
}

// NormalizeDiscounts maps each discount to its template shape. The output
// always has the same length and ordering as the input; entries with missing
// codes or rules get placeholder values instead of being dropped.
func NormalizeDiscounts(discounts []types.Discount, currencyCode string) []NormalizedDiscount {
	out := make([]NormalizedDiscount, len(discounts))
	for i, d := range discounts {
		out[i] = normalizeDiscount(d, i, currencyCode)
	}
	return out
}

func normalizeDiscount(d types.Discount, index int, currencyCode string) NormalizedDiscount {
	code := d.Code
	if code == "" {
		code = fmt.Sprintf("discount_%d", index)
	}

	var value int64
	var ruleType string
	if d.Rule != nil {
		value = d.Rule.Value
		ruleType = d.Rule.Type
	}

	descriptor := fmt.Sprintf("%d %s", value, normalizeCurrency(currencyCode))
	if ruleType == types.DiscountRulePercentage {
		descriptor = fmt.Sprintf("%d%%", value)
	}

	return NormalizedDiscount{Code: code, Descriptor: descriptor}
}

// NormalizeGiftCards maps gift cards into the same shape as discounts, with
// IsGiftCard set and value always rendered as a fixed amount. Length and
// ordering are preserved, with placeholder codes for blanks.
func NormalizeGiftCards(cards []types.GiftCard, currencyCode string) []NormalizedDiscount {
	out := make([]NormalizedDiscount, len(cards))
	for i, gc := range cards {
		code := gc.Code
		if code == "" {
			code = fmt.Sprintf("giftcard_%d", i)
		}
		out[i] = NormalizedDiscount{
			IsGiftCard: true,
			Code:       code,
			Descriptor: fmt.Sprintf("%d %s", gc.Value, normalizeCurrency(currencyCode)),
		}
	}
	return out
}
