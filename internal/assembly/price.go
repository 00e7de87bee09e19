package assembly

import (
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Hard-coded sanity fallbacks applied when a locale or currency code is not
// recognized by the formatting tables.
const (
	fallbackLocale   = "en"
	fallbackCurrency = "USD"
)

// symbolStrip removes digits, grouping separators, and spacing (including the
// non-breaking variants CLDR uses) from a formatted amount, leaving the symbol.
var symbolStrip = regexp.MustCompile(`[0-9\s.,\x{00A0}\x{202F}]`)

// FormatAmount converts an integer minor-unit amount into a display string
// for the given currency: symbol plus grouped whole units, no fraction digits
// regardless of currency. A zero amount formats as the literal "0.00" before
// any locale machinery runs; templates depend on that exact string.
func FormatAmount(amount int64, currencyCode string) string {
	if amount == 0 {
		return "0.00"
	}

	code := normalizeCurrency(currencyCode)
	major := majorUnits(amount, code)

	p := message.NewPrinter(language.English)
	return p.Sprintf("%s%v", CurrencySymbol(code, fallbackLocale),
		number.Decimal(major, number.MaxFractionDigits(0)))
}

// FormatAmountWithCode renders "<formatted> <CCY>", the shape used for every
// monetary field in the outgoing payload.
func FormatAmountWithCode(amount int64, currencyCode string) string {
	code := normalizeCurrency(currencyCode)
	return FormatAmount(amount, code) + " " + code
}

// FormatLocaleCurrency renders a major-unit amount in full locale-specific
// currency style (fraction digits included), used for the payload's currency
// sample. Unlike FormatAmount, the input is already in major units and is
// formatted as-is.
func FormatLocaleCurrency(amount int64, currencyCode, locale string) string {
	code := normalizeCurrency(currencyCode)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return FormatAmountWithCode(amount, code)
	}
	p := message.NewPrinter(localeTag(locale))
	return p.Sprint(currency.Symbol(unit.Amount(float64(amount))))
}

// CurrencySymbol derives the display symbol for a currency in a locale by
// formatting a zero amount and stripping the numeric part. Falls back to the
// uppercased currency code when no symbol can be derived.
func CurrencySymbol(currencyCode, locale string) string {
	code := normalizeCurrency(currencyCode)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code
	}

	p := message.NewPrinter(localeTag(locale))
	formatted := p.Sprint(currency.Symbol(unit.Amount(0.0)))
	symbol := symbolStrip.ReplaceAllString(formatted, "")
	if symbol == "" {
		return code
	}
	return symbol
}

// DateFormatInfo describes the date format convention for a locale, with a
// rendered sample so templates can show a preview.
type DateFormatInfo struct {
	Locale       string `json:"locale"`
	SampleFormat string `json:"sample_format"`
}

// sampleMoment is the fixed instant used for format samples.
var sampleMoment = time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)

// DateFormatSample returns the date format info for a locale. Unrecognized
// locales fall back to the en sample.
func DateFormatSample(locale string) DateFormatInfo {
	if _, err := language.Parse(locale); err != nil || locale == "" {
		return DateFormatInfo{
			Locale:       fallbackLocale,
			SampleFormat: FormatDateTime(sampleMoment, fallbackLocale),
		}
	}
	return DateFormatInfo{
		Locale:       locale,
		SampleFormat: FormatDateTime(sampleMoment, locale),
	}
}

// NumberFormatInfo describes number and currency formatting for a locale and
// currency, with rendered samples.
type NumberFormatInfo struct {
	Locale               string `json:"locale"`
	CurrencyCode         string `json:"currency_code"`
	SampleCurrencyFormat string `json:"sample_currency_format"`
	SampleNumberFormat   string `json:"sample_number_format"`
}

// NumberFormatSample returns formatting samples for a locale/currency pair,
// degrading to en/USD-shaped output for unrecognized combinations.
func NumberFormatSample(locale, currencyCode string) NumberFormatInfo {
	code := normalizeCurrency(currencyCode)
	resolved := locale
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		resolved = fallbackLocale
		tag = language.English
	}

	p := message.NewPrinter(tag)
	numberSample := p.Sprintf("%v", number.Decimal(1234.56,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))

	currencySample := code + " 1,234.56"
	if unit, perr := currency.ParseISO(code); perr == nil {
		currencySample = p.Sprint(currency.Symbol(unit.Amount(1234.56)))
	}

	return NumberFormatInfo{
		Locale:               resolved,
		CurrencyCode:         code,
		SampleCurrencyFormat: currencySample,
		SampleNumberFormat:   numberSample,
	}
}

// FormatDateTime renders a timestamp in the locale's date convention.
// English locales get the US month-first 12-hour form; everything else gets a
// day-first 24-hour form. Unparseable locales are treated as English.
func FormatDateTime(t time.Time, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	if base, _ := tag.Base(); base.String() == "en" {
		return t.Format("01/02/2006, 03:04 PM MST")
	}
	return t.Format("02/01/2006, 15:04 MST")
}

// majorUnits converts a minor-unit amount to major units using the currency's
// decimal convention (2 for USD, 0 for JPY, ...). Unknown currencies assume
// two decimal places.
func majorUnits(amount int64, currencyCode string) float64 {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return float64(amount) / 100
	}
	scale, _ := currency.Cash.Rounding(unit)
	return float64(amount) / math.Pow10(scale)
}

// localeTag parses a locale string, falling back to English.
func localeTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil || locale == "" {
		return language.English
	}
	return tag
}

// normalizeCurrency uppercases a currency code, substituting the fallback for
// empty input.
func normalizeCurrency(code string) string {
	if code == "" {
		return fallbackCurrency
	}
	return strings.ToUpper(code)
}
