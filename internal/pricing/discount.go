package pricing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ResolveDiscounts computes the discount line items against subtotal.
// Structural rules come first, then membership flags, then the promo code. Each
// discount is computed from the same subtotal so they never compound, and
// zero-amount discounts are left out.
func ResolveDiscounts(cfg PricingConfig, sel Selection, subtotal decimal.Decimal) []LineItem {
	var items []LineItem

	for _, membership := range []bool{false, true} {
		for _, rule := range cfg.Discounts {
			if rule.membership() != membership {
				continue
			}
			value, ok := triggerValue(cfg, rule, sel)
			if !ok {
				continue
			}
			items = appendDiscount(items, rule.label(), applyAdjustment(rule.Kind, value, subtotal), "discount:"+rule.ID)
		}
	}

	if code, promo, ok := lookupPromo(cfg, sel.PromoCode); ok {
		label := strings.TrimSpace(promo.Label)
		if label == "" {
			label = "Promo code " + code
		}
		items = appendDiscount(items, label, applyAdjustment(promo.Kind, promo.Value, subtotal), "promo:"+code)
	}
	return items
}

// IsValidPromoCode reports whether code matches a configured promo code after
// trimming and case folding. The calculation path never errors on unknown codes;
// this is for callers that want to tell the user.
func IsValidPromoCode(cfg PricingConfig, code string) bool {
	_, _, ok := lookupPromo(cfg, code)
	return ok
}

// NormalizePromoCode trims and upper-cases a promo code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func appendDiscount(items []LineItem, label string, amount decimal.Decimal, ref string) []LineItem {
	if amount.IsZero() {
		return items
	}
	return append(items, LineItem{Label: label, Amount: amount.Neg(), Kind: ItemDiscount, Ref: ref})
}

// triggerValue evaluates the rule predicate and returns the value to apply.
func triggerValue(cfg PricingConfig, rule DiscountRule, sel Selection) (decimal.Decimal, bool) {
	t := rule.Trigger
	switch t.Type {
	case TriggerMinAddOns:
		if t.MinAddOns <= 0 {
			return decimal.Zero, false
		}
		return rule.Value, knownAddOns(cfg, sel) >= t.MinAddOns
	case TriggerFieldEquals:
		value := sel.Field(t.Field)
		if value == "" {
			return decimal.Zero, false
		}
		for _, candidate := range t.Values {
			if candidate == value {
				return rule.Value, true
			}
		}
		return decimal.Zero, false
	case TriggerFieldRate:
		rate, ok := t.Rates[sel.Field(t.Field)]
		return rate, ok
	case TriggerMinQuantity:
		if !t.MinQuantity.IsPositive() {
			return decimal.Zero, false
		}
		return rule.Value, sel.Quantity(t.Field).GreaterThanOrEqual(t.MinQuantity)
	case TriggerFlag:
		return rule.Value, sel.Flag(t.Field)
	default:
		return decimal.Zero, false
	}
}

// knownAddOns counts selected add-ons that exist in the configuration.
func knownAddOns(cfg PricingConfig, sel Selection) int {
	selected := sel.addOnSet()
	count := 0
	for _, addOn := range cfg.AddOns {
		if _, ok := selected[addOn.ID]; ok {
			count++
		}
	}
	return count
}

func lookupPromo(cfg PricingConfig, code string) (string, PromoCode, bool) {
	normalized := NormalizePromoCode(code)
	if normalized == "" || len(cfg.PromoCodes) == 0 {
		return "", PromoCode{}, false
	}
	if promo, ok := cfg.PromoCodes[normalized]; ok {
		return normalized, promo, true
	}
	keys := make([]string, 0, len(cfg.PromoCodes))
	for key := range cfg.PromoCodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if NormalizePromoCode(key) == normalized {
			return normalized, cfg.PromoCodes[key], true
		}
	}
	return "", PromoCode{}, false
}
