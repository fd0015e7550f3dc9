package pricing

import "github.com/shopspring/decimal"

// ItemKind classifies a line item.
type ItemKind string

const (
	ItemBase      ItemKind = "base"
	ItemOption    ItemKind = "option"
	ItemAddOn     ItemKind = "add_on"
	ItemSurcharge ItemKind = "surcharge"
	ItemDiscount  ItemKind = "discount"
)

// LineItem is one signed contribution to the total. Only discounts are negative.
type LineItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Kind   ItemKind        `json:"kind"`
	// Ref points back at the configuration entry that produced the item, e.g. "package=ext_int".
	Ref string `json:"ref,omitempty"`
}

// Breakdown is the complete result of a calculation.
// Total may be negative when discounts exceed the subtotal; callers choose their own floor.
type Breakdown struct {
	LineItems      []LineItem      `json:"lineItems"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	SurchargeTotal decimal.Decimal `json:"surchargeTotal"`
	DiscountTotal  decimal.Decimal `json:"discountTotal"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	Symbol         string          `json:"symbol"`
}

// Format renders amount in the breakdown's currency, rounded to two places.
func (b Breakdown) Format(amount decimal.Decimal) string {
	return formatWithSymbol(amount, b.Symbol)
}

// Discounts returns the discount line items in emission order.
func (b Breakdown) Discounts() []LineItem {
	var out []LineItem
	for _, item := range b.LineItems {
		if item.Kind == ItemDiscount {
			out = append(out, item)
		}
	}
	return out
}
