package distribution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auroralabs/aurora/internal/billing"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/db"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/payment"
	"gorm.io/gorm"
)

func jobTestPlans() []config.Plan {
	return []config.Plan{
		{ID: "free", IsFree: true},
		{
			ID: "pro",
			Prices: []config.Price{
				{ID: "price_pro_month", Interval: "month", Amount: 1500, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 500, CreditsExpireDays: 45},
				{ID: "price_pro_year", Interval: "year", Amount: 14400, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 500, CreditsExpireDays: 45},
			},
		},
		{
			ID:         "lifetime",
			IsLifetime: true,
			Prices: []config.Price{
				{ID: "price_lifetime", Interval: "one_time", Amount: 29900, Currency: "usd",
					CreditsEnabled: true, CreditsAmount: 300, CreditsExpireDays: 60},
			},
		},
	}
}

func jobTestCredits() config.CreditsConfig {
	return config.CreditsConfig{
		Enabled:     true,
		MonthlyFree: config.GrantConfig{Enabled: true, Amount: 50, ExpireDays: 30},
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func openTestJob(t *testing.T) (*Job, *credits.Ledger, *gorm.DB) {
	t.Helper()
	conn := openTestDB(t)
	ledger := credits.NewLedger(conn)
	catalog := billing.NewCatalog(jobTestPlans(), jobTestCredits())
	service := billing.NewService(conn, ledger, catalog, map[string]payment.Provider{}, config.ServerConfig{})
	return NewJob(conn, ledger, service), ledger, conn
}

func createUser(t *testing.T, conn *gorm.DB, email string, banned bool) uint64 {
	t.Helper()
	user := models.User{Email: email, Password: "x", Banned: banned}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user %s: %v", email, errCreate)
	}
	return user.ID
}

func TestRunGrantsByStanding(t *testing.T) {
	job, ledger, conn := openTestJob(t)
	ctx := context.Background()

	freeUser := createUser(t, conn, "free@example.test", false)
	bannedUser := createUser(t, conn, "banned@example.test", true)
	lifetimeUser := createUser(t, conn, "lifetime@example.test", false)
	yearlyUser := createUser(t, conn, "yearly@example.test", false)
	monthlyUser := createUser(t, conn, "monthly@example.test", false)

	if errCreate := conn.Create(&models.UserLifetimeMembership{
		UserID:       lifetimeUser,
		PriceID:      "price_lifetime",
		CycleRefDate: time.Now().UTC().AddDate(0, -2, 0),
	}).Error; errCreate != nil {
		t.Fatalf("create membership: %v", errCreate)
	}

	start := time.Now().UTC().AddDate(0, -1, 0)
	for userID, priceID := range map[uint64]string{
		yearlyUser:  "price_pro_year",
		monthlyUser: "price_pro_month",
	} {
		if errCreate := conn.Create(&models.PaymentRecord{
			UserID:         userID,
			Provider:       payment.ProviderStripe,
			SubscriptionID: "sub_" + priceID,
			PriceID:        priceID,
			Status:         models.PaymentStatusActive,
			PeriodStart:    &start,
		}).Error; errCreate != nil {
			t.Fatalf("create payment record: %v", errCreate)
		}
	}

	result, errRun := job.Run(ctx)
	if errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if result.UsersCount != 4 {
		t.Fatalf("expected 4 scanned users (banned excluded), got %d", result.UsersCount)
	}
	if result.ErrorCount != 0 {
		t.Fatalf("expected no errors, got %d", result.ErrorCount)
	}
	if result.ProcessedCount != 4 {
		t.Fatalf("expected 4 processed, got %d", result.ProcessedCount)
	}

	check := func(userID uint64, want int64, label string) {
		t.Helper()
		balance, errGet := ledger.GetUserCredits(ctx, userID)
		if errGet != nil {
			t.Fatalf("balance %s: %v", label, errGet)
		}
		if balance != want {
			t.Fatalf("%s: expected %d credits, got %d", label, want, balance)
		}
	}
	check(freeUser, 50, "free tier")
	check(bannedUser, 0, "banned")
	check(lifetimeUser, 300, "lifetime drip")
	check(yearlyUser, 500, "yearly drip")
	// Monthly subscriptions are granted by renewal webhooks, not the job.
	check(monthlyUser, 0, "monthly subscriber")
}

func TestRunIsIdempotentWithinPeriod(t *testing.T) {
	job, ledger, conn := openTestJob(t)
	ctx := context.Background()

	userID := createUser(t, conn, "repeat@example.test", false)

	for i := 0; i < 3; i++ {
		if _, errRun := job.Run(ctx); errRun != nil {
			t.Fatalf("run %d: %v", i, errRun)
		}
	}

	balance, _ := ledger.GetUserCredits(ctx, userID)
	if balance != 50 {
		t.Fatalf("expected one monthly grant across repeated runs, got %d", balance)
	}
}

// flakyGateway fails grants for one user and delegates the rest, so a run
// can be checked for per-user failure isolation.
type flakyGateway struct {
	*credits.Ledger
	failUserID uint64
}

func (g *flakyGateway) AddCredits(ctx context.Context, p credits.AddParams, tx *gorm.DB) error {
	if p.UserID == g.failUserID {
		return errors.New("grant store unavailable")
	}
	return g.Ledger.AddCredits(ctx, p, tx)
}

func TestRunIsolatesPerUserFailures(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	first := createUser(t, conn, "first@example.test", false)
	broken := createUser(t, conn, "broken@example.test", false)
	last := createUser(t, conn, "last@example.test", false)

	ledger := credits.NewLedger(conn)
	catalog := billing.NewCatalog(jobTestPlans(), jobTestCredits())
	gateway := &flakyGateway{Ledger: ledger, failUserID: broken}
	service := billing.NewService(conn, gateway, catalog, map[string]payment.Provider{}, config.ServerConfig{})
	job := NewJob(conn, ledger, service)

	result, errRun := job.Run(ctx)
	if errRun != nil {
		t.Fatalf("run: %v", errRun)
	}
	if result.UsersCount != 3 {
		t.Fatalf("expected 3 scanned users, got %d", result.UsersCount)
	}
	if result.ErrorCount != 1 {
		t.Fatalf("expected 1 failed user, got %d", result.ErrorCount)
	}
	if result.ProcessedCount != 2 {
		t.Fatalf("expected 2 processed, got %d", result.ProcessedCount)
	}

	// Users after the failed one still receive their grants.
	for _, userID := range []uint64{first, last} {
		balance, _ := ledger.GetUserCredits(ctx, userID)
		if balance != 50 {
			t.Fatalf("user=%d expected 50, got %d", userID, balance)
		}
	}
	balance, _ := ledger.GetUserCredits(ctx, broken)
	if balance != 0 {
		t.Fatalf("failed user expected 0, got %d", balance)
	}
}

func TestRunExpiresStaleLots(t *testing.T) {
	job, ledger, conn := openTestJob(t)
	ctx := context.Background()

	userID := createUser(t, conn, "expiring@example.test", false)

	// Seed an already-expired lot directly.
	expired := time.Now().UTC().AddDate(0, 0, -1)
	remaining := int64(80)
	if errCreate := conn.Create(&models.CreditTransaction{
		UserID:          userID,
		Type:            models.CreditTxManualAdjustment,
		Amount:          80,
		RemainingAmount: &remaining,
		ExpirationDate:  &expired,
	}).Error; errCreate != nil {
		t.Fatalf("create lot: %v", errCreate)
	}
	if errCreate := conn.Create(&models.UserCredit{UserID: userID, CurrentCredits: 80}).Error; errCreate != nil {
		t.Fatalf("create balance: %v", errCreate)
	}

	if _, errRun := job.Run(ctx); errRun != nil {
		t.Fatalf("run: %v", errRun)
	}

	// 80 expired, 50 granted for the month.
	balance, _ := ledger.GetUserCredits(ctx, userID)
	if balance != 50 {
		t.Fatalf("expected 50 after expiration and grant, got %d", balance)
	}

	var expiration models.CreditTransaction
	if errFind := conn.Where("user_id = ? AND type = ?", userID, models.CreditTxExpiration).First(&expiration).Error; errFind != nil {
		t.Fatalf("find expiration row: %v", errFind)
	}
	if expiration.Amount != -80 {
		t.Fatalf("expected -80 expiration, got %d", expiration.Amount)
	}
}
