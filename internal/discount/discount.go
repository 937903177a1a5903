// Package discount stacks group and promo discounts on a unit price.
package discount

import (
	"fmt"
	"strings"

	"ms-eventhub/internal/pricing"
)

const (
	TypeNone       = "none"
	TypeGroup      = "group"
	TypePromo      = "promo"
	TypeGroupPromo = "group+promo"
)

// Policy holds the tunable discount rules.
type Policy struct {
	GroupPct         float64
	GroupMinQuantity int
	DefaultPromoPct  float64
}

func DefaultPolicy() Policy {
	return Policy{GroupPct: 20, GroupMinQuantity: 5, DefaultPromoPct: 10}
}

// Result is the transient discount breakdown for one purchase.
type Result struct {
	BasePrice        float64 `json:"basePrice"`
	Quantity         int     `json:"quantity"`
	GroupDiscountPct float64 `json:"groupDiscountPct"`
	PromoDiscountPct float64 `json:"promoDiscountPct"`
	FinalUnitPrice   float64 `json:"finalUnitPrice"`
	FinalPrice       float64 `json:"finalPrice"`
	OriginalTotal    float64 `json:"originalTotal"`
	TotalSavings     float64 `json:"totalSavings"`
	EffectivePct     float64 `json:"discountPercentage"`
	DiscountType     string  `json:"discountType"`
	Description      string  `json:"description"`
}

// Applied reports whether any discount was granted.
func (r Result) Applied() bool {
	return r.DiscountType != TypeNone
}

// CodeMatches compares promo codes case-insensitively. An empty stored code never matches.
func CodeMatches(stored, supplied string) bool {
	stored = strings.TrimSpace(stored)
	supplied = strings.TrimSpace(supplied)
	return stored != "" && supplied != "" && strings.EqualFold(stored, supplied)
}

// UnderLimit reports whether another redemption fits. A limit of 0 is unlimited.
func UnderLimit(usageCount, usageLimit int) bool {
	return usageLimit == 0 || usageCount < usageLimit
}

// PromoPct is the configured discount, or the policy default when unset.
func (p Policy) PromoPct(configured float64) float64 {
	if configured <= 0 {
		return p.DefaultPromoPct
	}
	return configured
}

// GroupPctFor returns the group discount earned by quantity.
func (p Policy) GroupPctFor(quantity int) float64 {
	if quantity >= p.GroupMinQuantity {
		return p.GroupPct
	}
	return 0
}

// Calculate applies the group discount then promoPct multiplicatively.
// promoPct must already be resolved by the caller: 0 means no promo.
// FinalPrice is rounded once over the whole order, so it can differ by a cent
// from FinalUnitPrice * Quantity.
func (p Policy) Calculate(basePrice float64, quantity int, promoPct float64) Result {
	if quantity < 0 {
		quantity = 0
	}
	groupPct := p.GroupPctFor(quantity)
	if promoPct < 0 {
		promoPct = 0
	}

	factor := (1 - groupPct/100) * (1 - promoPct/100)
	unit := pricing.Round2(basePrice * factor)
	total := pricing.Round2(basePrice * float64(quantity) * factor)
	original := pricing.Round2(basePrice * float64(quantity))

	r := Result{
		BasePrice:        basePrice,
		Quantity:         quantity,
		GroupDiscountPct: groupPct,
		PromoDiscountPct: promoPct,
		FinalUnitPrice:   unit,
		FinalPrice:       total,
		OriginalTotal:    original,
		TotalSavings:     pricing.Round2(original - total),
		EffectivePct:     pricing.Round2((1 - factor) * 100),
		DiscountType:     discountType(groupPct > 0, promoPct > 0),
	}
	r.Description = describe(r)
	return r
}

// ChargeLine returns the unit amount in minor units and the quantity to bill so
// that their product is exactly FinalPrice. When the rounded unit price does not
// multiply out, the order is billed as one line.
func (r Result) ChargeLine() (int64, int) {
	unit := pricing.ToMinorUnits(r.FinalUnitPrice)
	total := pricing.ToMinorUnits(r.FinalPrice)
	if r.Quantity > 0 && unit*int64(r.Quantity) == total {
		return unit, r.Quantity
	}
	return total, 1
}

func discountType(group, promo bool) string {
	switch {
	case group && promo:
		return TypeGroupPromo
	case group:
		return TypeGroup
	case promo:
		return TypePromo
	default:
		return TypeNone
	}
}

func describe(r Result) string {
	var s string
	switch r.DiscountType {
	case TypeGroupPromo:
		s = fmt.Sprintf("%s%% group + %s%% promo discounts applied", pct(r.GroupDiscountPct), pct(r.PromoDiscountPct))
	case TypeGroup:
		s = fmt.Sprintf("%s%% group discount applied", pct(r.GroupDiscountPct))
	case TypePromo:
		s = fmt.Sprintf("%s%% promo discount applied", pct(r.PromoDiscountPct))
	default:
		return ""
	}
	return fmt.Sprintf("%s (You save: $%.2f)", s, r.TotalSavings)
}

func pct(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
