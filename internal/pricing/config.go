package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ContributionKind tags how a tier adds to the quote.
type ContributionKind string

const (
	// KindFlat contributes the tier price as-is.
	KindFlat ContributionKind = "flat"
	// KindPerUnit multiplies the tier price by a selected quantity.
	KindPerUnit ContributionKind = "per_unit"
	// KindMultiplierOfBase scales everything accumulated so far; only the increment is emitted.
	KindMultiplierOfBase ContributionKind = "multiplier_of_base"
	// KindRangeInterpolated picks a point between Min and Max using a size bucket.
	KindRangeInterpolated ContributionKind = "range_interpolated"
)

// AdjustmentKind selects between fixed amounts and percentages of a basis.
type AdjustmentKind string

const (
	AdjustFlat       AdjustmentKind = "flat"
	AdjustPercentage AdjustmentKind = "percentage"
)

// TriggerType names the predicate gating a discount rule.
type TriggerType string

const (
	// TriggerMinAddOns fires when at least MinAddOns known add-ons are selected.
	TriggerMinAddOns TriggerType = "min_add_ons"
	// TriggerFieldEquals fires when the selection field holds one of Values.
	TriggerFieldEquals TriggerType = "field_equals"
	// TriggerFieldRate looks up the rule value from Rates keyed by the field value.
	TriggerFieldRate TriggerType = "field_rate"
	// TriggerMinQuantity fires when a quantity field reaches MinQuantity.
	TriggerMinQuantity TriggerType = "min_quantity"
	// TriggerFlag fires when a boolean selection flag is set (membership, insurance).
	TriggerFlag TriggerType = "flag"
)

// PricingConfig is a merchant's calculator catalog. It is read-only during a calculation.
// Percentages are expressed in percent units (10 means 10%).
type PricingConfig struct {
	Currency   string               `json:"currency" validate:"required,len=3"`
	BasePrice  decimal.Decimal      `json:"basePrice" validate:"gte=0"`
	BaseLabel  string               `json:"baseLabel,omitempty"`
	Groups     []OptionGroup        `json:"groups,omitempty" validate:"dive"`
	AddOns     []AddOn              `json:"addOns,omitempty" validate:"dive"`
	Surcharges []SurchargeRule      `json:"surcharges,omitempty" validate:"dive"`
	Discounts  []DiscountRule       `json:"discounts,omitempty" validate:"dive"`
	PromoCodes map[string]PromoCode `json:"promoCodes,omitempty" validate:"dive"`
}

// OptionGroup is one single-choice field of the calculator (package, vehicle size, finish).
type OptionGroup struct {
	Field         string                     `json:"field" validate:"required"`
	Label         string                     `json:"label,omitempty"`
	QuantityField string                     `json:"quantityField,omitempty"`
	SizeField     string                     `json:"sizeField,omitempty"`
	SizeFractions map[string]decimal.Decimal `json:"sizeFractions,omitempty" validate:"dive,gte=0,lte=1"`
	Tiers         []Tier                     `json:"tiers" validate:"required,min=1,dive"`
}

// Tier is one selectable value of an OptionGroup.
type Tier struct {
	Key        string           `json:"key" validate:"required"`
	Label      string           `json:"label,omitempty"`
	Kind       ContributionKind `json:"kind" validate:"required,oneof=flat per_unit multiplier_of_base range_interpolated"`
	Price      decimal.Decimal  `json:"price" validate:"gte=0"`
	Multiplier decimal.Decimal  `json:"multiplier" validate:"gte=0"`
	Min        decimal.Decimal  `json:"min" validate:"gte=0"`
	Max        decimal.Decimal  `json:"max" validate:"gte=0"`
}

// AddOn is an independently toggleable extra.
type AddOn struct {
	ID    string          `json:"id" validate:"required"`
	Label string          `json:"label,omitempty"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

// SurchargeRule charges extra when Field holds a value other than Default.
type SurchargeRule struct {
	Field   string            `json:"field" validate:"required"`
	Default string            `json:"default,omitempty"`
	Options []SurchargeOption `json:"options" validate:"required,min=1,dive"`
}

// SurchargeOption is the charge for one value of a surcharge field.
type SurchargeOption struct {
	Key   string          `json:"key" validate:"required"`
	Label string          `json:"label,omitempty"`
	Kind  AdjustmentKind  `json:"kind" validate:"required,oneof=flat percentage"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

// DiscountRule is a structural or membership discount.
type DiscountRule struct {
	ID      string          `json:"id" validate:"required"`
	Label   string          `json:"label,omitempty"`
	Trigger Trigger         `json:"trigger"`
	Kind    AdjustmentKind  `json:"kind" validate:"required,oneof=flat percentage"`
	Value   decimal.Decimal `json:"value" validate:"gte=0"`
}

// Trigger describes when a DiscountRule applies.
type Trigger struct {
	Type        TriggerType                `json:"type" validate:"required,oneof=min_add_ons field_equals field_rate min_quantity flag"`
	Field       string                     `json:"field,omitempty"`
	Values      []string                   `json:"values,omitempty"`
	Rates       map[string]decimal.Decimal `json:"rates,omitempty" validate:"dive,gte=0"`
	MinAddOns   int                        `json:"minAddOns,omitempty" validate:"gte=0"`
	MinQuantity decimal.Decimal            `json:"minQuantity" validate:"gte=0"`
}

// PromoCode is the discount granted by an explicit code.
type PromoCode struct {
	Label string          `json:"label,omitempty"`
	Kind  AdjustmentKind  `json:"kind" validate:"required,oneof=flat percentage"`
	Value decimal.Decimal `json:"value" validate:"gte=0"`
}

func (c PricingConfig) baseLabel() string {
	if label := strings.TrimSpace(c.BaseLabel); label != "" {
		return label
	}
	return "Base price"
}

func (g OptionGroup) tier(key string) (Tier, bool) {
	if key == "" {
		return Tier{}, false
	}
	for _, t := range g.Tiers {
		if t.Key == key {
			return t, true
		}
	}
	return Tier{}, false
}

// sizeFraction maps a size bucket to its interpolation fraction. Groups without
// SizeFractions use the stock buckets small, medium, large and xlarge.
func (g OptionGroup) sizeFraction(bucket string) decimal.Decimal {
	if len(g.SizeFractions) > 0 {
		if f, ok := g.SizeFractions[bucket]; ok {
			return f
		}
		return decimal.Zero
	}
	return stockSizeFraction(bucket)
}

func stockSizeFraction(bucket string) decimal.Decimal {
	switch bucket {
	case "medium":
		return decimal.New(3, -1)
	case "large":
		return decimal.New(6, -1)
	case "xlarge":
		return decimal.NewFromInt(1)
	default:
		return decimal.Zero
	}
}

func (r SurchargeRule) option(key string) (SurchargeOption, bool) {
	for _, o := range r.Options {
		if o.Key == key {
			return o, true
		}
	}
	return SurchargeOption{}, false
}

func (t Tier) label() string {
	if label := strings.TrimSpace(t.Label); label != "" {
		return label
	}
	return t.Key
}

func (a AddOn) label() string {
	if label := strings.TrimSpace(a.Label); label != "" {
		return label
	}
	return a.ID
}

func (o SurchargeOption) label() string {
	if label := strings.TrimSpace(o.Label); label != "" {
		return label
	}
	return o.Key
}

func (d DiscountRule) label() string {
	if label := strings.TrimSpace(d.Label); label != "" {
		return label
	}
	return d.ID
}

// membership reports whether the rule belongs to the membership/insurance stage.
func (d DiscountRule) membership() bool {
	return d.Trigger.Type == TriggerFlag
}

// applyAdjustment returns the unsigned amount of a flat or percentage adjustment against basis.
func applyAdjustment(kind AdjustmentKind, value, basis decimal.Decimal) decimal.Decimal {
	switch kind {
	case AdjustFlat:
		return value
	case AdjustPercentage:
		return basis.Mul(value).Shift(-2)
	default:
		return decimal.Zero
	}
}
