package billing

import (
	"testing"

	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/models"
)

func testPlans() []config.Plan {
	return []config.Plan{
		{
			ID:     "free",
			Name:   "Free",
			IsFree: true,
			Prices: []config.Price{
				{ID: "price_free", Interval: "month", Amount: 0, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 50},
			},
		},
		{
			ID:   "pro",
			Name: "Pro",
			Prices: []config.Price{
				{ID: "price_pro_month", Interval: "month", Amount: 1500, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 500, CreditsExpireDays: 45},
				{ID: "price_pro_year", Interval: "year", Amount: 14400, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 500, CreditsExpireDays: 45},
				{ID: "price_pro_old", Interval: "month", Amount: 1000, Currency: "usd", Disabled: true},
				{ID: "price_pro_legacy", Interval: "month", Amount: 1200, Currency: "usd", Disabled: true,
					CreditsEnabled: true, CreditsAmount: 400, CreditsExpireDays: 45},
			},
		},
		{
			ID:       "retired",
			Name:     "Retired",
			Disabled: true,
			Prices: []config.Price{
				{ID: "price_retired_month", Interval: "month", Amount: 900, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 500, CreditsExpireDays: 45},
			},
		},
		{
			ID:         "lifetime",
			Name:       "Lifetime",
			IsLifetime: true,
			Prices: []config.Price{
				{ID: "price_lifetime", Interval: "one_time", Amount: 29900, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 300, CreditsExpireDays: 60},
			},
		},
	}
}

func testCredits() config.CreditsConfig {
	return config.CreditsConfig{
		Enabled:      true,
		RegisterGift: config.GrantConfig{Enabled: true, Amount: 100, ExpireDays: 30},
		MonthlyFree:  config.GrantConfig{Enabled: true, Amount: 50, ExpireDays: 30},
	}
}

func TestCatalogLookups(t *testing.T) {
	catalog := NewCatalog(testPlans(), testCredits())

	if plan := catalog.FindPlan("pro"); plan == nil || plan.Name != "Pro" {
		t.Fatalf("expected pro plan, got %+v", plan)
	}
	if plan := catalog.FindPlan("missing"); plan != nil {
		t.Fatalf("expected nil for unknown plan, got %+v", plan)
	}

	plan, price := catalog.FindPlanByPrice("price_pro_year")
	if plan == nil || price == nil || plan.ID != "pro" || price.Interval != "year" {
		t.Fatalf("unexpected lookup result plan=%+v price=%+v", plan, price)
	}
	if _, price := catalog.FindPlanByPrice(""); price != nil {
		t.Fatal("expected nil for empty price id")
	}

	if free := catalog.FreePlan(); free == nil || free.ID != "free" {
		t.Fatalf("expected free plan, got %+v", free)
	}
	if !catalog.IsLifetimePrice("price_lifetime") {
		t.Fatal("expected price_lifetime to be lifetime")
	}
	if catalog.IsLifetimePrice("price_pro_month") {
		t.Fatal("expected price_pro_month to not be lifetime")
	}
}

func TestCatalogRules(t *testing.T) {
	catalog := NewCatalog(testPlans(), testCredits())

	if rule := catalog.RegisterGiftRule(); rule == nil || rule.Amount != 100 || rule.Type != models.CreditTxRegisterGift {
		t.Fatalf("unexpected register gift rule %+v", rule)
	}
	if rule := catalog.MonthlyFreeRule(); rule == nil || rule.Amount != 50 {
		t.Fatalf("unexpected monthly free rule %+v", rule)
	}

	rule := catalog.RenewalRule("price_pro_month")
	if rule == nil || rule.Type != models.CreditTxSubscriptionRenewal || rule.Amount != 500 || rule.ExpireDays != 45 {
		t.Fatalf("unexpected renewal rule %+v", rule)
	}

	rule = catalog.RenewalRule("price_lifetime")
	if rule == nil || rule.Type != models.CreditTxLifetimeMonthly || rule.Amount != 300 {
		t.Fatalf("unexpected lifetime rule %+v", rule)
	}

	// Prices without credit grants yield no rule.
	if rule := catalog.RenewalRule("price_pro_old"); rule != nil {
		t.Fatalf("expected nil rule for creditless price, got %+v", rule)
	}
	if rule := catalog.RenewalRule("missing"); rule != nil {
		t.Fatalf("expected nil rule for unknown price, got %+v", rule)
	}
}

func TestRenewalRuleSkipsDisabledAndFree(t *testing.T) {
	catalog := NewCatalog(testPlans(), testCredits())

	// A retired plan's price grants nothing even with credits configured.
	if rule := catalog.RenewalRule("price_retired_month"); rule != nil {
		t.Fatalf("expected nil rule for disabled plan, got %+v", rule)
	}
	// Same for a disabled price under a live plan.
	if rule := catalog.RenewalRule("price_pro_legacy"); rule != nil {
		t.Fatalf("expected nil rule for disabled price, got %+v", rule)
	}
	// Free plans never grant via renewal.
	if rule := catalog.RenewalRule("price_free"); rule != nil {
		t.Fatalf("expected nil rule for free plan price, got %+v", rule)
	}
}

func TestFindActivePlanByPriceSkipsDisabledPlans(t *testing.T) {
	catalog := NewCatalog(testPlans(), testCredits())

	if plan, _ := catalog.FindActivePlanByPrice("price_pro_month"); plan == nil || plan.ID != "pro" {
		t.Fatalf("expected pro plan, got %+v", plan)
	}
	if plan, price := catalog.FindActivePlanByPrice("price_retired_month"); plan != nil || price != nil {
		t.Fatalf("expected nil for retired plan price, got plan=%+v price=%+v", plan, price)
	}
}

func TestDisabledGrantsYieldNilRules(t *testing.T) {
	catalog := NewCatalog(testPlans(), config.CreditsConfig{Enabled: true})
	if rule := catalog.RegisterGiftRule(); rule != nil {
		t.Fatalf("expected nil rule, got %+v", rule)
	}
	if rule := catalog.MonthlyFreeRule(); rule != nil {
		t.Fatalf("expected nil rule, got %+v", rule)
	}
}
