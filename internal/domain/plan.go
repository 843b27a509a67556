package domain

import "strings"

// Plan enumerates billing plans.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// PlanLimits defines the monthly metered allowances of a plan.
type PlanLimits struct {
	TokensPerMonth  int64
	QuizzesPerMonth int64
	PriceCents      int64
}

// planCatalog maps plans to their limits. The zero-priced free tier is the
// default for users without a subscription record.
var planCatalog = map[Plan]PlanLimits{
	PlanFree:    {TokensPerMonth: 250_000, QuizzesPerMonth: 20, PriceCents: 0},
	PlanPro:     {TokensPerMonth: 2_000_000, QuizzesPerMonth: 200, PriceCents: 990},
	PlanPremium: {TokensPerMonth: 10_000_000, QuizzesPerMonth: 1000, PriceCents: 2490},
}

// ParsePlan normalizes a plan name. Unknown names return ErrUnsupportedPlan.
func ParsePlan(name string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := planCatalog[p]; !ok {
		return "", ErrUnsupportedPlan
	}
	return p, nil
}

// Limits returns the metered allowances of the plan. Unknown plans fall back
// to the free tier.
func (p Plan) Limits() PlanLimits {
	if l, ok := planCatalog[p]; ok {
		return l
	}
	return planCatalog[PlanFree]
}

// Rank orders plans by price so upgrades and downgrades can be told apart.
func (p Plan) Rank() int {
	switch p {
	case PlanPremium:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// IsFree reports whether this is the free tier.
func (p Plan) IsFree() bool {
	return p == PlanFree
}
