package pricing

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ErrInvalidConfig is matched by every error returned from ValidateConfig.
var ErrInvalidConfig = errors.New("pricing: invalid config")

// Problem is a single validation failure located by its JSON path.
type Problem struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a PricingConfig.
type ValidationError struct {
	Problems []Problem
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrInvalidConfig.Error()
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+" "+p.Message)
	}
	return ErrInvalidConfig.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

var (
	hundred  = decimal.NewFromInt(100)
	one      = decimal.NewFromInt(1)
	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// ValidateConfig checks a configuration at the boundary, before any quote is computed.
// The engine itself never validates; it trusts what it is given.
func ValidateConfig(cfg PricingConfig) error {
	var problems []Problem
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, problemFromFieldError(fe))
		}
	}
	problems = append(problems, crossFieldProblems(cfg)...)
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

func problemFromFieldError(fe validator.FieldError) Problem {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "len":
		msg = "must be exactly " + fe.Param() + " characters"
	case "oneof":
		msg = "must be one of: " + fe.Param()
	case "gte":
		msg = "must be at least " + fe.Param()
	case "lte":
		msg = "must be at most " + fe.Param()
	case "min":
		msg = "must have at least " + fe.Param() + " entries"
	default:
		msg = "failed " + fe.Tag()
	}
	return Problem{Field: field, Rule: fe.Tag(), Message: msg}
}

func crossFieldProblems(cfg PricingConfig) []Problem {
	var out []Problem
	add := func(field, rule, msg string) {
		out = append(out, Problem{Field: field, Rule: rule, Message: msg})
	}

	if code := strings.TrimSpace(cfg.Currency); len(code) == 3 {
		if _, err := currency.ParseISO(strings.ToUpper(code)); err != nil {
			add("currency", "iso4217", "must be an ISO 4217 currency code")
		}
	}

	groupFields := map[string]struct{}{}
	for gi, group := range cfg.Groups {
		path := fmt.Sprintf("groups[%d]", gi)
		if _, dup := groupFields[group.Field]; dup && group.Field != "" {
			add(path+".field", "unique", "duplicates another group field")
		}
		groupFields[group.Field] = struct{}{}

		tierKeys := map[string]struct{}{}
		for ti, tier := range group.Tiers {
			tpath := fmt.Sprintf("%s.tiers[%d]", path, ti)
			if _, dup := tierKeys[tier.Key]; dup && tier.Key != "" {
				add(tpath+".key", "unique", "duplicates another tier key")
			}
			tierKeys[tier.Key] = struct{}{}
			switch tier.Kind {
			case KindMultiplierOfBase:
				if tier.Multiplier.LessThan(one) {
					add(tpath+".multiplier", "gte", "must be at least 1")
				}
			case KindRangeInterpolated:
				if tier.Min.GreaterThan(tier.Max) {
					add(tpath+".min", "ltefield", "must not exceed max")
				}
				if strings.TrimSpace(group.SizeField) == "" {
					add(path+".sizeField", "required", "is required for range_interpolated tiers")
				}
			}
		}
	}

	addOnIDs := map[string]struct{}{}
	for ai, addOn := range cfg.AddOns {
		if _, dup := addOnIDs[addOn.ID]; dup && addOn.ID != "" {
			add(fmt.Sprintf("addOns[%d].id", ai), "unique", "duplicates another add-on id")
		}
		addOnIDs[addOn.ID] = struct{}{}
	}

	for si, rule := range cfg.Surcharges {
		keys := map[string]struct{}{}
		for oi, opt := range rule.Options {
			opath := fmt.Sprintf("surcharges[%d].options[%d]", si, oi)
			if _, dup := keys[opt.Key]; dup && opt.Key != "" {
				add(opath+".key", "unique", "duplicates another option key")
			}
			keys[opt.Key] = struct{}{}
			if opt.Key != "" && opt.Key == rule.Default {
				add(opath+".key", "excluded", "must not equal the default value")
			}
		}
	}

	discountIDs := map[string]struct{}{}
	for di, rule := range cfg.Discounts {
		path := fmt.Sprintf("discounts[%d]", di)
		if _, dup := discountIDs[rule.ID]; dup && rule.ID != "" {
			add(path+".id", "unique", "duplicates another discount id")
		}
		discountIDs[rule.ID] = struct{}{}
		if rule.Kind == AdjustPercentage && rule.Value.GreaterThan(hundred) {
			add(path+".value", "lte", "must be at most 100")
		}
		t := rule.Trigger
		needsField := true
		switch t.Type {
		case TriggerMinAddOns:
			needsField = false
			if t.MinAddOns < 1 {
				add(path+".trigger.minAddOns", "gte", "must be at least 1")
			}
		case TriggerFieldEquals:
			if len(t.Values) == 0 {
				add(path+".trigger.values", "required", "is required for field_equals triggers")
			}
		case TriggerFieldRate:
			if len(t.Rates) == 0 {
				add(path+".trigger.rates", "required", "is required for field_rate triggers")
			}
			if rule.Kind == AdjustPercentage {
				for _, key := range sortedKeys(t.Rates) {
					if t.Rates[key].GreaterThan(hundred) {
						add(path+".trigger.rates["+key+"]", "lte", "must be at most 100")
					}
				}
			}
		case TriggerMinQuantity:
			if !t.MinQuantity.IsPositive() {
				add(path+".trigger.minQuantity", "gt", "must be greater than 0")
			}
		case TriggerFlag:
		default:
			needsField = false
		}
		if needsField && strings.TrimSpace(t.Field) == "" {
			add(path+".trigger.field", "required", "is required for "+string(t.Type)+" triggers")
		}
	}

	seen := map[string]string{}
	for _, key := range sortedKeys(cfg.PromoCodes) {
		promo := cfg.PromoCodes[key]
		path := "promoCodes[" + key + "]"
		normalized := NormalizePromoCode(key)
		if normalized == "" {
			add(path, "required", "code must not be blank")
			continue
		}
		if other, dup := seen[normalized]; dup {
			add(path, "unique", "collides with "+other+" after normalization")
		}
		seen[normalized] = key
		if promo.Kind == AdjustPercentage && promo.Value.GreaterThan(hundred) {
			add(path+".value", "lte", "must be at most 100")
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
