package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/db"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/payment"
	"gorm.io/gorm"
)

func openTestService(t *testing.T) (*Service, *credits.Ledger, *gorm.DB) {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	ledger := credits.NewLedger(conn)
	catalog := NewCatalog(testPlans(), testCredits())
	service := NewService(conn, ledger, catalog, map[string]payment.Provider{}, config.ServerConfig{BaseURL: "https://example.test"})
	return service, ledger, conn
}

func TestRegisterGiftGrantedOnce(t *testing.T) {
	service, ledger, _ := openTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if errGift := service.AddRegisterGiftCredits(ctx, 1); errGift != nil {
			t.Fatalf("gift attempt %d: %v", i, errGift)
		}
	}

	balance, errGet := ledger.GetUserCredits(ctx, 1)
	if errGet != nil {
		t.Fatalf("get balance: %v", errGet)
	}
	if balance != 100 {
		t.Fatalf("expected 100 after duplicate gift, got %d", balance)
	}
}

func TestHandleRenewalIdempotentWithinPeriod(t *testing.T) {
	service, ledger, _ := openTestService(t)
	ctx := context.Background()

	ref := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if errRenew := service.HandleRenewal(ctx, nil, 2, "price_pro_month", &ref); errRenew != nil {
			t.Fatalf("renewal %d: %v", i, errRenew)
		}
	}
	balance, _ := ledger.GetUserCredits(ctx, 2)
	if balance != 500 {
		t.Fatalf("expected 500, got %d", balance)
	}

	// The next period grants again.
	next := ref.AddDate(0, 1, 0)
	if errRenew := service.HandleRenewal(ctx, nil, 2, "price_pro_month", &next); errRenew != nil {
		t.Fatalf("next period renewal: %v", errRenew)
	}
	balance, _ = ledger.GetUserCredits(ctx, 2)
	if balance != 1000 {
		t.Fatalf("expected 1000, got %d", balance)
	}

	// A price without a grant rule is a no-op.
	if errRenew := service.HandleRenewal(ctx, nil, 2, "missing", &ref); errRenew != nil {
		t.Fatalf("ruleless renewal: %v", errRenew)
	}
	balance, _ = ledger.GetUserCredits(ctx, 2)
	if balance != 1000 {
		t.Fatalf("balance moved on ruleless renewal: %d", balance)
	}
}

func TestGrantLifetimePlan(t *testing.T) {
	service, ledger, conn := openTestService(t)
	ctx := context.Background()

	purchased := time.Date(2026, time.August, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if errGrant := service.GrantLifetimePlan(ctx, nil, 3, "price_lifetime", purchased); errGrant != nil {
			t.Fatalf("grant %d: %v", i, errGrant)
		}
	}

	var memberships []models.UserLifetimeMembership
	if errFind := conn.Where("user_id = ?", 3).Find(&memberships).Error; errFind != nil {
		t.Fatalf("find memberships: %v", errFind)
	}
	if len(memberships) != 1 {
		t.Fatalf("expected one membership row, got %d", len(memberships))
	}
	if memberships[0].RevokedAt != nil {
		t.Fatal("expected active membership")
	}

	balance, _ := ledger.GetUserCredits(ctx, 3)
	if balance != 300 {
		t.Fatalf("expected 300 after first cycle, got %d", balance)
	}
}

func TestHandleRenewalSkipsDisabledPlan(t *testing.T) {
	service, ledger, _ := openTestService(t)
	ctx := context.Background()

	// A renewal webhook for a retired plan must not grant.
	ref := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)
	if errRenew := service.HandleRenewal(ctx, nil, 9, "price_retired_month", &ref); errRenew != nil {
		t.Fatalf("renewal: %v", errRenew)
	}
	balance, _ := ledger.GetUserCredits(ctx, 9)
	if balance != 0 {
		t.Fatalf("disabled plan renewal granted %d credits", balance)
	}

	// Same for a disabled price under a live plan.
	if errRenew := service.HandleRenewal(ctx, nil, 9, "price_pro_legacy", &ref); errRenew != nil {
		t.Fatalf("renewal: %v", errRenew)
	}
	balance, _ = ledger.GetUserCredits(ctx, 9)
	if balance != 0 {
		t.Fatalf("disabled price renewal granted %d credits", balance)
	}
}

func TestHandleRenewalRollsBackWithCallerTransaction(t *testing.T) {
	service, ledger, conn := openTestService(t)
	ctx := context.Background()

	tx := conn.Begin()
	if tx.Error != nil {
		t.Fatalf("begin: %v", tx.Error)
	}
	ref := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)
	if errRenew := service.HandleRenewal(ctx, tx, 6, "price_pro_month", &ref); errRenew != nil {
		tx.Rollback()
		t.Fatalf("renewal: %v", errRenew)
	}
	tx.Rollback()

	balance, _ := ledger.GetUserCredits(ctx, 6)
	if balance != 0 {
		t.Fatalf("expected 0 after rollback, got %d", balance)
	}
	var count int64
	if errCount := conn.Model(&models.CreditTransaction{}).Where("user_id = ?", 6).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no ledger rows after rollback, got %d", count)
	}
}

// failingGrantGateway rejects every grant; used to verify that a lifetime
// purchase never records a membership without its first cycle grant.
type failingGrantGateway struct {
	*credits.Ledger
}

func (g *failingGrantGateway) AddCredits(ctx context.Context, p credits.AddParams, tx *gorm.DB) error {
	return errors.New("grant store unavailable")
}

func TestGrantLifetimePlanRollsBackWhenGrantFails(t *testing.T) {
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	ledger := credits.NewLedger(conn)
	catalog := NewCatalog(testPlans(), testCredits())
	service := NewService(conn, &failingGrantGateway{Ledger: ledger}, catalog, map[string]payment.Provider{}, config.ServerConfig{})
	ctx := context.Background()

	errGrant := service.GrantLifetimePlan(ctx, nil, 7, "price_lifetime", time.Now().UTC())
	if errGrant == nil {
		t.Fatal("expected grant failure to surface")
	}

	var count int64
	if errCount := conn.Model(&models.UserLifetimeMembership{}).Where("user_id = ?", 7).Count(&count).Error; errCount != nil {
		t.Fatalf("count memberships: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("membership row survived a failed grant: %d", count)
	}
	balance, _ := ledger.GetUserCredits(ctx, 7)
	if balance != 0 {
		t.Fatalf("expected 0, got %d", balance)
	}
}

func TestCurrentPlanPrecedence(t *testing.T) {
	service, _, conn := openTestService(t)
	ctx := context.Background()

	// No standing: the free plan.
	plan, errResolve := service.CurrentPlan(ctx, 4)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if plan == nil || plan.ID != "free" {
		t.Fatalf("expected free plan, got %+v", plan)
	}

	// Active subscription: the subscribed plan.
	start := time.Now().UTC().AddDate(0, 0, -5)
	if errCreate := conn.Create(&models.PaymentRecord{
		UserID:         4,
		Provider:       payment.ProviderStripe,
		SubscriptionID: "sub_1",
		PriceID:        "price_pro_month",
		Status:         models.PaymentStatusActive,
		PeriodStart:    &start,
	}).Error; errCreate != nil {
		t.Fatalf("create payment record: %v", errCreate)
	}
	plan, _ = service.CurrentPlan(ctx, 4)
	if plan == nil || plan.ID != "pro" {
		t.Fatalf("expected pro plan, got %+v", plan)
	}

	// A lifetime membership wins over the subscription.
	if errGrant := service.GrantLifetimePlan(ctx, nil, 4, "price_lifetime", time.Now().UTC()); errGrant != nil {
		t.Fatalf("grant lifetime: %v", errGrant)
	}
	plan, _ = service.CurrentPlan(ctx, 4)
	if plan == nil || plan.ID != "lifetime" {
		t.Fatalf("expected lifetime plan, got %+v", plan)
	}
}

func TestCurrentPlanFallsBackWhenPlanRetired(t *testing.T) {
	service, _, conn := openTestService(t)
	ctx := context.Background()

	// An active subscription to a retired plan resolves to the free tier,
	// not the retired plan.
	start := time.Now().UTC().AddDate(0, 0, -5)
	if errCreate := conn.Create(&models.PaymentRecord{
		UserID:         8,
		Provider:       payment.ProviderStripe,
		SubscriptionID: "sub_retired",
		PriceID:        "price_retired_month",
		Status:         models.PaymentStatusActive,
		PeriodStart:    &start,
	}).Error; errCreate != nil {
		t.Fatalf("create payment record: %v", errCreate)
	}

	plan, errResolve := service.CurrentPlan(ctx, 8)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if plan == nil || plan.ID != "free" {
		t.Fatalf("expected free plan fallback, got %+v", plan)
	}
}

func TestStartSubscriptionCheckoutValidation(t *testing.T) {
	service, _, _ := openTestService(t)
	ctx := context.Background()
	user := &models.User{ID: 5, Email: "buyer@example.test"}

	_, errCheckout := service.StartSubscriptionCheckout(ctx, user, payment.ProviderStripe, "missing", "price_pro_month")
	if !apperr.Is(errCheckout, apperr.CodePlanNotFound) {
		t.Fatalf("expected plan not found, got %v", errCheckout)
	}

	// Free plans cannot be purchased.
	_, errCheckout = service.StartSubscriptionCheckout(ctx, user, payment.ProviderStripe, "free", "whatever")
	if !apperr.Is(errCheckout, apperr.CodePlanNotFound) {
		t.Fatalf("expected plan not found for free plan, got %v", errCheckout)
	}

	_, errCheckout = service.StartSubscriptionCheckout(ctx, user, payment.ProviderStripe, "pro", "missing_price")
	if !apperr.Is(errCheckout, apperr.CodePriceNotFound) {
		t.Fatalf("expected price not found, got %v", errCheckout)
	}

	// Disabled prices are not purchasable.
	_, errCheckout = service.StartSubscriptionCheckout(ctx, user, payment.ProviderStripe, "pro", "price_pro_old")
	if !apperr.Is(errCheckout, apperr.CodePriceNotFound) {
		t.Fatalf("expected price not found for disabled price, got %v", errCheckout)
	}

	// A valid plan and price with no configured provider fails on the provider.
	_, errCheckout = service.StartSubscriptionCheckout(ctx, user, payment.ProviderStripe, "pro", "price_pro_month")
	if !apperr.Is(errCheckout, apperr.CodeStripeMisconfigured) {
		t.Fatalf("expected stripe misconfigured, got %v", errCheckout)
	}
}
