package pricing

import "github.com/shopspring/decimal"

// Evaluate walks the configuration in a fixed order and returns the additive line items:
// base, option groups, add-ons, then surcharges. Selection values that reference
// nothing in cfg are skipped.
func Evaluate(cfg PricingConfig, sel Selection) []LineItem {
	items := make([]LineItem, 0, 1+len(cfg.Groups)+len(sel.AddOns)+len(cfg.Surcharges))
	running := decimal.Zero

	if cfg.BasePrice.IsPositive() {
		items = append(items, LineItem{Label: cfg.baseLabel(), Amount: cfg.BasePrice, Kind: ItemBase})
		running = running.Add(cfg.BasePrice)
	}

	for _, group := range cfg.Groups {
		key := sel.Field(group.Field)
		tier, ok := group.tier(key)
		if !ok {
			continue
		}
		amount := tierContribution(group, tier, sel, running)
		items = append(items, LineItem{
			Label:  tier.label(),
			Amount: amount,
			Kind:   ItemOption,
			Ref:    group.Field + "=" + tier.Key,
		})
		running = running.Add(amount)
	}

	selected := sel.addOnSet()
	for _, addOn := range cfg.AddOns {
		if _, ok := selected[addOn.ID]; !ok {
			continue
		}
		items = append(items, LineItem{Label: addOn.label(), Amount: addOn.Price, Kind: ItemAddOn, Ref: addOn.ID})
		running = running.Add(addOn.Price)
	}

	// Every surcharge sees the same pre-surcharge subtotal.
	basis := running
	for _, rule := range cfg.Surcharges {
		value := sel.Field(rule.Field)
		if value == "" || value == rule.Default {
			continue
		}
		opt, ok := rule.option(value)
		if !ok {
			continue
		}
		items = append(items, LineItem{
			Label:  opt.label(),
			Amount: applyAdjustment(opt.Kind, opt.Value, basis),
			Kind:   ItemSurcharge,
			Ref:    rule.Field + "=" + opt.Key,
		})
	}
	return items
}

func tierContribution(group OptionGroup, tier Tier, sel Selection, running decimal.Decimal) decimal.Decimal {
	switch tier.Kind {
	case KindFlat:
		return tier.Price
	case KindPerUnit:
		qty := sel.Quantity(group.QuantityField)
		if !qty.IsPositive() {
			qty = decimal.NewFromInt(1)
		}
		return tier.Price.Mul(qty)
	case KindMultiplierOfBase:
		return tier.Multiplier.Sub(decimal.NewFromInt(1)).Mul(running)
	case KindRangeInterpolated:
		fraction := group.sizeFraction(sel.Field(group.SizeField))
		return tier.Min.Add(tier.Max.Sub(tier.Min).Mul(fraction))
	default:
		return decimal.Zero
	}
}
