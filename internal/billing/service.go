package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/payment"
	"github.com/auroralabs/aurora/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreditsGateway is the slice of the credit ledger the billing service uses.
type CreditsGateway interface {
	AddCredits(ctx context.Context, p credits.AddParams, tx *gorm.DB) error
	HasTransactionOfType(ctx context.Context, userID uint64, txType string) (bool, error)
}

// Service coordinates checkouts, memberships and credit grants across the
// plan catalog, the payment providers and the ledger.
type Service struct {
	db        *gorm.DB
	ledger    CreditsGateway
	catalog   *Catalog
	providers map[string]payment.Provider
	baseURL   string
}

// NewService constructs a Service. providers maps provider name to adapter;
// a provider may be absent when not configured.
func NewService(db *gorm.DB, ledger CreditsGateway, catalog *Catalog, providers map[string]payment.Provider, server config.ServerConfig) *Service {
	return &Service{
		db:        db,
		ledger:    ledger,
		catalog:   catalog,
		providers: providers,
		baseURL:   strings.TrimRight(server.BaseURL, "/"),
	}
}

// Catalog exposes the plan catalog for handlers.
func (s *Service) Catalog() *Catalog { return s.catalog }

// creditsEnabled is the effective toggle: static config and the runtime
// database setting must both allow grants.
func (s *Service) creditsEnabled() bool {
	return s.catalog.Enabled() && settings.CreditsEnabled()
}

func (s *Service) provider(name string) (payment.Provider, error) {
	provider, ok := s.providers[name]
	if !ok || provider == nil {
		code := apperr.CodeStripeMisconfigured
		if name == payment.ProviderCreem {
			code = apperr.CodeCreemMisconfigured
		}
		return nil, apperr.New(code, fmt.Sprintf("payment provider %q is not configured", name))
	}
	return provider, nil
}

// StartSubscriptionCheckout validates the plan and price against the catalog
// and opens a provider checkout session. Free plans cannot be purchased.
func (s *Service) StartSubscriptionCheckout(ctx context.Context, user *models.User, providerName, planID, priceID string) (*payment.CheckoutResult, error) {
	plan := s.catalog.FindPlan(planID)
	if plan == nil || plan.Disabled || plan.IsFree {
		return nil, apperr.New(apperr.CodePlanNotFound, fmt.Sprintf("plan %q is not purchasable", planID))
	}
	price := plan.FindPrice(priceID)
	if price == nil || price.Disabled {
		return nil, apperr.New(apperr.CodePriceNotFound, fmt.Sprintf("price %q not found under plan %q", priceID, planID))
	}

	provider, errProvider := s.provider(providerName)
	if errProvider != nil {
		return nil, errProvider
	}
	return provider.CreateCheckout(ctx, payment.CheckoutParams{
		UserID:     user.ID,
		Email:      user.Email,
		PlanID:     plan.ID,
		PriceID:    price.ID,
		Lifetime:   plan.IsLifetime,
		SuccessURL: s.baseURL + "/billing/success",
		CancelURL:  s.baseURL + "/billing/cancel",
	})
}

// StartCreditCheckout opens a provider checkout for a one-time credit pack.
func (s *Service) StartCreditCheckout(ctx context.Context, user *models.User, providerName string, creditsAmount, amount int64, currency string) (*payment.CheckoutResult, error) {
	if creditsAmount <= 0 || amount <= 0 {
		return nil, apperr.New(apperr.CodePriceNotFound, "credit pack amount must be positive")
	}
	provider, errProvider := s.provider(providerName)
	if errProvider != nil {
		return nil, errProvider
	}
	return provider.CreateCreditCheckout(ctx, payment.CreditCheckoutParams{
		UserID:     user.ID,
		Email:      user.Email,
		Credits:    creditsAmount,
		Amount:     amount,
		Currency:   currency,
		SuccessURL: s.baseURL + "/billing/success",
		CancelURL:  s.baseURL + "/billing/cancel",
	})
}

// CreateCustomerPortal opens the provider's billing portal for the user's
// payment customer.
func (s *Service) CreateCustomerPortal(ctx context.Context, userID uint64, providerName string) (string, error) {
	provider, errProvider := s.provider(providerName)
	if errProvider != nil {
		return "", errProvider
	}

	var record models.PaymentRecord
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND customer_id <> ''", userID, providerName).
		Order("id DESC").
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", apperr.New(apperr.CodePlanNotFound, "no payment customer on record for this user")
		}
		return "", errFind
	}
	return provider.CreateCustomerPortal(ctx, record.CustomerID, s.baseURL+"/billing")
}

// HandleRenewal grants the per-cycle credits for a price. The grant is keyed
// to the billing period derived from cycleRef (now when nil), so a replayed
// renewal for the same period is a no-op. When the price grants no credits or
// the credit system is off the call does nothing.
func (s *Service) HandleRenewal(ctx context.Context, tx *gorm.DB, userID uint64, priceID string, cycleRef *time.Time) error {
	if !s.creditsEnabled() {
		return nil
	}
	rule := s.catalog.RenewalRule(priceID)
	if rule == nil {
		return nil
	}

	ref := time.Now().UTC()
	if cycleRef != nil {
		ref = cycleRef.UTC()
	}
	periodKey := credits.PeriodKey(ref)

	return s.ledger.AddCredits(ctx, credits.AddParams{
		UserID:      userID,
		Amount:      rule.Amount,
		Type:        rule.Type,
		Description: fmt.Sprintf("cycle grant for price %s", priceID),
		ExpireDays:  rule.ExpireDays,
		PeriodKey:   &periodKey,
	}, tx)
}

// GrantLifetimePlan records a lifetime membership and issues the first
// monthly grant in one transaction. Re-processing the same purchase re-arms
// the membership row but cannot double-grant; the grant is period-keyed.
func (s *Service) GrantLifetimePlan(ctx context.Context, tx *gorm.DB, userID uint64, priceID string, purchasedAt time.Time) error {
	run := func(tx *gorm.DB) error {
		membership := models.UserLifetimeMembership{
			UserID:       userID,
			PriceID:      priceID,
			CycleRefDate: purchasedAt.UTC(),
		}
		if errUpsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "price_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"revoked_at": nil,
				"updated_at": time.Now().UTC(),
			}),
		}).Create(&membership).Error; errUpsert != nil {
			return errUpsert
		}

		ref := purchasedAt.UTC()
		return s.HandleRenewal(ctx, tx, userID, priceID, &ref)
	}

	if tx != nil {
		return run(tx.WithContext(ctx))
	}
	return s.db.WithContext(ctx).Transaction(run)
}

// AddRegisterGiftCredits grants the one-time sign-up gift. The grant is keyed
// to a zero period so the dedupe index makes it once per user ever.
func (s *Service) AddRegisterGiftCredits(ctx context.Context, userID uint64) error {
	if !s.creditsEnabled() {
		return nil
	}
	rule := s.catalog.RegisterGiftRule()
	if rule == nil {
		return nil
	}

	registerKey := 0
	return s.ledger.AddCredits(ctx, credits.AddParams{
		UserID:      userID,
		Amount:      rule.Amount,
		Type:        rule.Type,
		Description: "sign-up gift",
		ExpireDays:  rule.ExpireDays,
		PeriodKey:   &registerKey,
	}, nil)
}

// AddMonthlyFreeCredits grants the free-tier monthly credits for the period
// containing ref. Idempotent per user and period.
func (s *Service) AddMonthlyFreeCredits(ctx context.Context, userID uint64, ref time.Time) error {
	if !s.creditsEnabled() {
		return nil
	}
	rule := s.catalog.MonthlyFreeRule()
	if rule == nil {
		return nil
	}

	periodKey := credits.PeriodKey(ref.UTC())
	return s.ledger.AddCredits(ctx, credits.AddParams{
		UserID:      userID,
		Amount:      rule.Amount,
		Type:        rule.Type,
		Description: "monthly free credits",
		ExpireDays:  rule.ExpireDays,
		PeriodKey:   &periodKey,
	}, nil)
}

// AddPackCredits grants purchased pack credits. Duplicate delivery protection
// lives at the webhook event layer, not here.
func (s *Service) AddPackCredits(ctx context.Context, tx *gorm.DB, userID uint64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("billing: non-positive pack amount %d", amount)
	}
	return s.ledger.AddCredits(ctx, credits.AddParams{
		UserID:      userID,
		Amount:      amount,
		Type:        models.CreditTxPackPurchase,
		Description: fmt.Sprintf("purchased %d credits", amount),
	}, tx)
}

// ActiveLifetimeMembership returns the user's oldest active lifetime
// membership whose price still exists in the catalog, or nil. A membership
// pointing at a price no longer configured is reported separately so callers
// can fall back.
func (s *Service) ActiveLifetimeMembership(ctx context.Context, userID uint64) (*models.UserLifetimeMembership, bool, error) {
	var rows []models.UserLifetimeMembership
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, false, errFind
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	for i := range rows {
		if plan, price := s.catalog.FindPlanByPrice(rows[i].PriceID); plan != nil && price != nil && plan.IsLifetime {
			return &rows[i], true, nil
		}
	}
	// Memberships exist but none match a configured lifetime price.
	return nil, true, nil
}

// ActivePaymentRecord returns the user's most recent active or trialing
// subscription record, or nil.
func (s *Service) ActivePaymentRecord(ctx context.Context, userID uint64) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND subscription_id <> '' AND status IN ?", userID,
			[]string{models.PaymentStatusActive, models.PaymentStatusTrialing}).
		Order("id DESC").
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errFind
	}
	return &record, nil
}

// CurrentPlan resolves the plan a user is on: an active lifetime membership
// wins over an active subscription, and everything else falls back to the
// free plan. The returned plan may be nil when no free plan is configured.
func (s *Service) CurrentPlan(ctx context.Context, userID uint64) (*config.Plan, error) {
	membership, hasAny, errMembership := s.ActiveLifetimeMembership(ctx, userID)
	if errMembership != nil {
		return nil, errMembership
	}
	if membership != nil {
		plan, _ := s.catalog.FindPlanByPrice(membership.PriceID)
		return plan, nil
	}
	if hasAny {
		log.Warnf("billing: user=%d holds a lifetime membership with no configured price", userID)
	}

	record, errRecord := s.ActivePaymentRecord(ctx, userID)
	if errRecord != nil {
		return nil, errRecord
	}
	if record != nil {
		if plan, _ := s.catalog.FindActivePlanByPrice(record.PriceID); plan != nil {
			return plan, nil
		}
		log.Warnf("billing: user=%d has an active subscription with no active plan for price %s", userID, record.PriceID)
	}

	return s.catalog.FreePlan(), nil
}
