package models

import (
	"fmt"
	"sort"
	"strings"
)

// UserProfile is the signed-in user as returned by the auth service.
type UserProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// Plan names known to the auth service.
const (
	PlanDefault = "DEFAULT"
	PlanBasic   = "BASIC"
	PlanPro     = "PRO"
	PlanTeam    = "TEAM"
)

const gib = int64(1) << 30

var planTotals = map[string]int64{
	PlanDefault: 1 * gib,
	PlanBasic:   100 * gib,
	PlanPro:     1000 * gib,
	PlanTeam:    5000 * gib,
}

// StoragePlan is the user's plan and bytes consumed.
type StoragePlan struct {
	Plan            string `json:"plan"`
	StorageConsumed int64  `json:"storageConsumed"`
}

// TotalBytes returns the quota of the plan, 0 for an unknown plan.
func (p StoragePlan) TotalBytes() int64 {
	return planTotals[strings.ToUpper(strings.TrimSpace(p.Plan))]
}

// Remaining returns the free bytes, or -1 when the quota is unknown.
func (p StoragePlan) Remaining() int64 {
	total := p.TotalBytes()
	if total == 0 {
		return -1
	}
	if p.StorageConsumed >= total {
		return 0
	}
	return total - p.StorageConsumed
}

// TagsAndCategories lists what the tagging pipeline extracted for the user.
type TagsAndCategories struct {
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

// PricingPlan is one purchasable storage upgrade.
type PricingPlan struct {
	Name     string
	PriceUSD int64
	Storage  string
}

var pricingCatalog = []PricingPlan{
	{Name: PlanBasic, PriceUSD: 1, Storage: "100 GB"},
	{Name: PlanPro, PriceUSD: 5, Storage: "1 TB"},
	{Name: PlanTeam, PriceUSD: 25, Storage: "5 TB"},
}

// PricingPlans returns the catalog, cheapest first.
func PricingPlans() []PricingPlan {
	plans := make([]PricingPlan, len(pricingCatalog))
	copy(plans, pricingCatalog)
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].PriceUSD < plans[j].PriceUSD })
	return plans
}

// LookupPlan finds a plan by name, ignoring case.
func LookupPlan(name string) (PricingPlan, error) {
	for _, p := range pricingCatalog {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return PricingPlan{}, fmt.Errorf("unknown plan %q (choose BASIC, PRO or TEAM)", name)
}

// CheckoutRequest starts a payment session.
type CheckoutRequest struct {
	Plan   string `json:"plan"`
	Amount int64  `json:"amount"`
}

// CheckoutResponse carries the hosted checkout page.
type CheckoutResponse struct {
	SessionURL string `json:"sessionUrl"`
}
