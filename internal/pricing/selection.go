package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Selection is the user's current choices. It is created per calculation and never stored.
type Selection struct {
	Fields     map[string]string          `json:"fields,omitempty"`
	AddOns     []string                   `json:"addOns,omitempty"`
	PromoCode  string                     `json:"promoCode,omitempty"`
	Quantities map[string]decimal.Decimal `json:"quantities,omitempty"`
	Flags      map[string]bool            `json:"flags,omitempty"`
}

// Field returns the trimmed value of a single-choice field, or "" when absent.
func (s Selection) Field(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(s.Fields[name])
}

// Quantity returns the named quantity, or zero when absent.
func (s Selection) Quantity(name string) decimal.Decimal {
	if name == "" {
		return decimal.Zero
	}
	if q, ok := s.Quantities[name]; ok {
		return q
	}
	return decimal.Zero
}

// Flag reports whether the named boolean flag is set.
func (s Selection) Flag(name string) bool {
	if name == "" {
		return false
	}
	return s.Flags[name]
}

func (s Selection) addOnSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.AddOns))
	for _, id := range s.AddOns {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}
