// Package billing holds the plan catalog, the credit grant policy derived
// from it, and the service that ties payments to the credit ledger.
package billing

import (
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/models"
)

// Rule describes one configured credit grant: how much and for how long.
// A nil *Rule means the grant is not configured and the caller must no-op.
type Rule struct {
	Type       string // Ledger transaction type recorded for the grant.
	Amount     int64
	ExpireDays int // 0 means the granted lot never expires.
}

// Catalog is the configured plan and grant policy. It is read-only after
// construction; all lookups are pure.
type Catalog struct {
	plans   []config.Plan
	credits config.CreditsConfig
}

// NewCatalog constructs a Catalog from configuration.
func NewCatalog(plans []config.Plan, credits config.CreditsConfig) *Catalog {
	return &Catalog{plans: plans, credits: credits}
}

// Enabled reports whether the credit system is switched on in configuration.
func (c *Catalog) Enabled() bool { return c.credits.Enabled }

// FindPlan returns the plan with the given ID, or nil.
func (c *Catalog) FindPlan(planID string) *config.Plan {
	for i := range c.plans {
		if c.plans[i].ID == planID {
			return &c.plans[i]
		}
	}
	return nil
}

// FindPlanByPrice returns the plan and price matching the given price ID.
func (c *Catalog) FindPlanByPrice(priceID string) (*config.Plan, *config.Price) {
	if priceID == "" {
		return nil, nil
	}
	for i := range c.plans {
		if price := c.plans[i].FindPrice(priceID); price != nil {
			return &c.plans[i], price
		}
	}
	return nil, nil
}

// FindActivePlanByPrice is FindPlanByPrice restricted to non-disabled plans.
func (c *Catalog) FindActivePlanByPrice(priceID string) (*config.Plan, *config.Price) {
	plan, price := c.FindPlanByPrice(priceID)
	if plan == nil || plan.Disabled {
		return nil, nil
	}
	return plan, price
}

// FreePlan returns the configured free plan, or nil when none exists.
func (c *Catalog) FreePlan() *config.Plan {
	for i := range c.plans {
		if c.plans[i].IsFree && !c.plans[i].Disabled {
			return &c.plans[i]
		}
	}
	return nil
}

// Plans returns all configured plans.
func (c *Catalog) Plans() []config.Plan { return c.plans }

// IsLifetimePrice reports whether the price belongs to a lifetime plan.
func (c *Catalog) IsLifetimePrice(priceID string) bool {
	plan, price := c.FindPlanByPrice(priceID)
	return plan != nil && price != nil && plan.IsLifetime
}

// RegisterGiftRule returns the sign-up gift grant, or nil when disabled.
func (c *Catalog) RegisterGiftRule() *Rule {
	return grantRule(models.CreditTxRegisterGift, c.credits.RegisterGift)
}

// MonthlyFreeRule returns the free-tier monthly grant, or nil when disabled.
func (c *Catalog) MonthlyFreeRule() *Rule {
	return grantRule(models.CreditTxMonthlyRefresh, c.credits.MonthlyFree)
}

// RenewalRule returns the grant applied on each billing renewal of the given
// price, or nil when the price grants no credits. Disabled plans and prices
// grant nothing; a renewal event for a retired plan must not issue credits.
func (c *Catalog) RenewalRule(priceID string) *Rule {
	plan, price := c.FindPlanByPrice(priceID)
	if plan == nil || price == nil || plan.Disabled || plan.IsFree || price.Disabled {
		return nil
	}
	if !price.CreditsEnabled || price.CreditsAmount <= 0 {
		return nil
	}
	txType := models.CreditTxSubscriptionRenewal
	if plan.IsLifetime {
		txType = models.CreditTxLifetimeMonthly
	}
	return &Rule{
		Type:       txType,
		Amount:     price.CreditsAmount,
		ExpireDays: price.CreditsExpireDays,
	}
}

func grantRule(txType string, grant config.GrantConfig) *Rule {
	if !grant.Enabled || grant.Amount <= 0 {
		return nil
	}
	return &Rule{Type: txType, Amount: grant.Amount, ExpireDays: grant.ExpireDays}
}
