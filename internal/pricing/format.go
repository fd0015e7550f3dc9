package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of decimal places amounts are rounded to for display.
const DisplayPlaces = 2

var currencySymbols = map[string]string{
	"AUD": "A$",
	"BRL": "R$",
	"CAD": "CA$",
	"CHF": "CHF ",
	"CNY": "¥",
	"DKK": "kr ",
	"EUR": "€",
	"GBP": "£",
	"IDR": "Rp",
	"INR": "₹",
	"JPY": "¥",
	"MXN": "MX$",
	"NOK": "kr ",
	"NZD": "NZ$",
	"PLN": "zł ",
	"SEK": "kr ",
	"SGD": "S$",
	"USD": "$",
	"ZAR": "R",
}

// CurrencySymbol returns the display symbol for an ISO code, falling back to the code itself.
func CurrencySymbol(currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	if code == "" {
		return ""
	}
	return code + " "
}

// Round rounds half away from zero to DisplayPlaces.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(DisplayPlaces)
}

// FormatAmount renders amount with the currency symbol, e.g. "€1,234.50" or "-€13.00".
func FormatAmount(amount decimal.Decimal, currency string) string {
	return formatWithSymbol(amount, CurrencySymbol(currency))
}

func formatWithSymbol(amount decimal.Decimal, symbol string) string {
	rounded := Round(amount)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	fixed := rounded.StringFixed(DisplayPlaces)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + symbol + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
