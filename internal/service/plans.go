package service

import (
	"math"

	"github.com/raakeshmj/gobill/internal/db"
)

type planConfig struct {
	Price    float64
	Features []string
}

// planCatalog holds the monthly base price and feature list of every plan.
var planCatalog = map[db.Plan]planConfig{
	db.PlanBasic:      {Price: 9.99, Features: []string{"HD Streaming", "Mobile Access"}},
	db.PlanPremium:    {Price: 19.99, Features: []string{"4K Streaming", "Multiple Devices", "Offline Downloads"}},
	db.PlanEnterprise: {Price: 49.99, Features: []string{"White Label", "Analytics", "API Access", "Priority Support"}},
}

// ValidPlans lists plan names in catalog order.
var ValidPlans = []string{string(db.PlanBasic), string(db.PlanPremium), string(db.PlanEnterprise)}

const yearlyDiscount = 0.9

func lookupPlan(name string) (planConfig, bool) {
	p, ok := planCatalog[db.Plan(name)]
	return p, ok
}

// PlanAmount returns the charge per billing cycle, rounded to cents.
// Yearly billing is twelve months at a 10% discount.
func PlanAmount(plan db.Plan, cycle db.BillingCycle) float64 {
	p := planCatalog[plan]
	if cycle == db.BillingYearly {
		return roundCents(p.Price * 12 * yearlyDiscount)
	}
	return roundCents(p.Price)
}

func planFeatures(plan db.Plan) []string {
	return append([]string(nil), planCatalog[plan].Features...)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
