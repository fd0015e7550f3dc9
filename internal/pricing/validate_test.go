package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func problemFields(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidConfig))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Problems))
	for _, p := range verr.Problems {
		fields = append(fields, p.Field)
	}
	return fields
}

func TestValidateConfigAcceptsCarWash(t *testing.T) {
	cfg := carWashConfig()
	cfg.Discounts = []DiscountRule{
		{ID: "bundle", Trigger: Trigger{Type: TriggerMinAddOns, MinAddOns: 2}, Kind: AdjustPercentage, Value: dec("5")},
		{ID: "member", Trigger: Trigger{Type: TriggerFlag, Field: "member"}, Kind: AdjustFlat, Value: dec("3")},
	}
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfigReportsFieldRules(t *testing.T) {
	cfg := carWashConfig()
	cfg.Currency = "EURO"
	cfg.AddOns[0].Price = dec("-5")
	cfg.Groups[0].Tiers[0].Kind = "bogus"
	cfg.Groups = append(cfg.Groups, OptionGroup{Field: "empty"})
	cfg.Discounts = []DiscountRule{{ID: "x", Kind: AdjustFlat, Value: dec("1")}}

	fields := problemFields(t, ValidateConfig(cfg))
	require.Contains(t, fields, "currency")
	require.Contains(t, fields, "addOns[0].price")
	require.Contains(t, fields, "groups[0].tiers[0].kind")
	require.Contains(t, fields, "groups[2].tiers")
	require.Contains(t, fields, "discounts[0].trigger.type")
}

func TestValidateConfigReportsCrossFieldRules(t *testing.T) {
	cfg := carWashConfig()
	cfg.Currency = "QQQ"
	cfg.Groups = append(cfg.Groups,
		OptionGroup{Field: "finish", Tiers: []Tier{
			{Key: "premium", Kind: KindMultiplierOfBase, Multiplier: dec("0.8")},
			{Key: "premium", Kind: KindFlat, Price: dec("1")},
		}},
		OptionGroup{Field: "project", Tiers: []Tier{
			{Key: "kitchen", Kind: KindRangeInterpolated, Min: dec("9000"), Max: dec("6000")},
		}},
	)
	cfg.AddOns = append(cfg.AddOns, AddOn{ID: "wax", Price: dec("1")})
	cfg.Surcharges[0].Options = append(cfg.Surcharges[0].Options, SurchargeOption{Key: "standard", Kind: AdjustFlat, Value: dec("1")})
	cfg.Discounts = []DiscountRule{
		{ID: "big", Trigger: Trigger{Type: TriggerFlag}, Kind: AdjustPercentage, Value: dec("150")},
		{ID: "big", Trigger: Trigger{Type: TriggerFieldRate, Field: "duration"}, Kind: AdjustPercentage},
		{ID: "bulk", Trigger: Trigger{Type: TriggerMinQuantity, Field: "qty"}, Kind: AdjustFlat, Value: dec("1")},
		{ID: "pair", Trigger: Trigger{Type: TriggerMinAddOns}, Kind: AdjustFlat, Value: dec("1")},
	}
	cfg.PromoCodes["wash10"] = PromoCode{Kind: AdjustFlat, Value: dec("1")}
	cfg.PromoCodes["  "] = PromoCode{Kind: AdjustFlat, Value: dec("1")}

	fields := problemFields(t, ValidateConfig(cfg))
	for _, want := range []string{
		"currency",
		"groups[2].tiers[0].multiplier",
		"groups[2].tiers[1].key",
		"groups[3].tiers[0].min",
		"groups[3].sizeField",
		"addOns[3].id",
		"surcharges[0].options[2].key",
		"discounts[0].value",
		"discounts[0].trigger.field",
		"discounts[1].id",
		"discounts[1].trigger.rates",
		"discounts[2].trigger.minQuantity",
		"discounts[3].trigger.minAddOns",
		"promoCodes[  ]",
		"promoCodes[wash10]",
	} {
		require.Contains(t, fields, want)
	}
}

func TestValidateConfigSizeFractionBounds(t *testing.T) {
	cfg := PricingConfig{
		Currency: "USD",
		Groups: []OptionGroup{{
			Field:         "project",
			SizeField:     "size",
			SizeFractions: map[string]decimal.Decimal{"huge": dec("1.5")},
			Tiers:         []Tier{{Key: "deck", Kind: KindRangeInterpolated, Min: dec("1"), Max: dec("2")}},
		}},
	}
	fields := problemFields(t, ValidateConfig(cfg))
	require.Contains(t, fields, "groups[0].sizeFractions[huge]")
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Problems: []Problem{{Field: "currency", Rule: "required", Message: "is required"}}}
	require.Equal(t, "pricing: invalid config: currency is required", err.Error())
	require.ErrorIs(t, err, ErrInvalidConfig)
}
