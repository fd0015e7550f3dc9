package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Assemble combines additive and discount line items into a Breakdown.
// Amounts are summed unrounded; rounding happens only when formatting.
func Assemble(additive, discounts []LineItem, currency string) Breakdown {
	code := strings.ToUpper(strings.TrimSpace(currency))
	b := Breakdown{
		LineItems:      make([]LineItem, 0, len(additive)+len(discounts)),
		Subtotal:       decimal.Zero,
		SurchargeTotal: decimal.Zero,
		DiscountTotal:  decimal.Zero,
		Currency:       code,
		Symbol:         CurrencySymbol(code),
	}
	for _, item := range additive {
		b.Subtotal = b.Subtotal.Add(item.Amount)
		if item.Kind == ItemSurcharge {
			b.SurchargeTotal = b.SurchargeTotal.Add(item.Amount)
		}
		b.LineItems = append(b.LineItems, item)
	}
	for _, item := range discounts {
		b.DiscountTotal = b.DiscountTotal.Add(item.Amount)
		b.LineItems = append(b.LineItems, item)
	}
	b.Total = b.Subtotal.Add(b.DiscountTotal)
	return b
}

// Calculate runs the full pipeline for one selection. It has no side effects and
// the result depends only on its inputs, so it is safe to call concurrently.
func Calculate(cfg PricingConfig, sel Selection) Breakdown {
	additive := Evaluate(cfg, sel)
	subtotal := decimal.Zero
	for _, item := range additive {
		subtotal = subtotal.Add(item.Amount)
	}
	discounts := ResolveDiscounts(cfg, sel, subtotal)
	return Assemble(additive, discounts, cfg.Currency)
}
