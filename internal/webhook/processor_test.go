package webhook

import (
	"context"
	"encoding/json"
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

func openTestProcessor(t *testing.T) (*Processor, *credits.Ledger, *gorm.DB) {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	plans := []config.Plan{
		{
			ID: "pro",
			Prices: []config.Price{
				{ID: "price_pro_month", Interval: "month", Amount: 1500, Currency: "usd",
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
	ledger := credits.NewLedger(conn)
	catalog := billing.NewCatalog(plans, config.CreditsConfig{Enabled: true})
	service := billing.NewService(conn, ledger, catalog, map[string]payment.Provider{}, config.ServerConfig{})
	return NewProcessor(conn, service, catalog), ledger, conn
}

func packEvent(eventID string) *Event {
	return &Event{
		Provider:    payment.ProviderStripe,
		ID:          eventID,
		Type:        EventCheckoutCompleted,
		UserID:      1,
		Mode:        ModePayment,
		PackCredits: 250,
		Raw:         json.RawMessage(`{"id":"` + eventID + `"}`),
	}
}

func TestProcessSkipsRedeliveredEvent(t *testing.T) {
	processor, ledger, _ := openTestProcessor(t)
	ctx := context.Background()

	outcome, errProcess := processor.Process(ctx, packEvent("evt_1"))
	if errProcess != nil {
		t.Fatalf("first delivery: %v", errProcess)
	}
	if outcome.Skipped {
		t.Fatal("first delivery should not be skipped")
	}

	outcome, errProcess = processor.Process(ctx, packEvent("evt_1"))
	if errProcess != nil {
		t.Fatalf("redelivery: %v", errProcess)
	}
	if !outcome.Skipped {
		t.Fatal("redelivery should be skipped")
	}

	balance, _ := ledger.GetUserCredits(ctx, 1)
	if balance != 250 {
		t.Fatalf("expected 250 after redelivered pack purchase, got %d", balance)
	}
}

func TestProcessLifetimeCheckout(t *testing.T) {
	processor, ledger, conn := openTestProcessor(t)
	ctx := context.Background()

	event := &Event{
		Provider: payment.ProviderCreem,
		ID:       "evt_life",
		Type:     EventCheckoutCompleted,
		UserID:   2,
		Mode:     ModePayment,
		PriceID:  "price_lifetime",
		Raw:      json.RawMessage(`{}`),
	}
	if _, errProcess := processor.Process(ctx, event); errProcess != nil {
		t.Fatalf("process: %v", errProcess)
	}

	var membership models.UserLifetimeMembership
	if errFind := conn.Where("user_id = ?", 2).First(&membership).Error; errFind != nil {
		t.Fatalf("find membership: %v", errFind)
	}
	balance, _ := ledger.GetUserCredits(ctx, 2)
	if balance != 300 {
		t.Fatalf("expected 300 after lifetime purchase, got %d", balance)
	}
}

func subscriptionEvent(eventID string, periodStart time.Time) *Event {
	end := periodStart.AddDate(0, 1, 0)
	return &Event{
		Provider:       payment.ProviderStripe,
		ID:             eventID,
		Type:           EventSubscriptionUpdated,
		UserID:         3,
		CustomerID:     "cus_3",
		SubscriptionID: "sub_3",
		PriceID:        "price_pro_month",
		Status:         models.PaymentStatusActive,
		PeriodStart:    &periodStart,
		PeriodEnd:      &end,
		Raw:            json.RawMessage(`{}`),
	}
}

func TestSubscriptionRenewalDetection(t *testing.T) {
	processor, ledger, conn := openTestProcessor(t)
	ctx := context.Background()

	period1 := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)

	// First sighting of an active subscription grants.
	if _, errProcess := processor.Process(ctx, subscriptionEvent("evt_s1", period1)); errProcess != nil {
		t.Fatalf("first event: %v", errProcess)
	}
	balance, _ := ledger.GetUserCredits(ctx, 3)
	if balance != 500 {
		t.Fatalf("expected 500 after first cycle, got %d", balance)
	}

	// Another update inside the same period does not grant again.
	outcome, errProcess := processor.Process(ctx, subscriptionEvent("evt_s2", period1))
	if errProcess != nil {
		t.Fatalf("same period event: %v", errProcess)
	}
	if !outcome.Skipped {
		t.Fatal("same period update should be skipped")
	}
	balance, _ = ledger.GetUserCredits(ctx, 3)
	if balance != 500 {
		t.Fatalf("expected 500 after same-period update, got %d", balance)
	}

	// A new billing period grants the next cycle.
	period2 := period1.AddDate(0, 1, 0)
	if _, errProcess := processor.Process(ctx, subscriptionEvent("evt_s3", period2)); errProcess != nil {
		t.Fatalf("renewal event: %v", errProcess)
	}
	balance, _ = ledger.GetUserCredits(ctx, 3)
	if balance != 1000 {
		t.Fatalf("expected 1000 after renewal, got %d", balance)
	}

	// The payment record mirrors the latest period.
	var record models.PaymentRecord
	if errFind := conn.Where("subscription_id = ?", "sub_3").First(&record).Error; errFind != nil {
		t.Fatalf("find record: %v", errFind)
	}
	if record.PeriodStart == nil || !record.PeriodStart.Equal(period2) {
		t.Fatalf("expected period start %v, got %v", period2, record.PeriodStart)
	}
}

func TestSubscriptionDeletedMarksCanceled(t *testing.T) {
	processor, _, conn := openTestProcessor(t)
	ctx := context.Background()

	period := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	if _, errProcess := processor.Process(ctx, subscriptionEvent("evt_d1", period)); errProcess != nil {
		t.Fatalf("create: %v", errProcess)
	}

	deleted := &Event{
		Provider:       payment.ProviderStripe,
		ID:             "evt_d2",
		Type:           EventSubscriptionDeleted,
		SubscriptionID: "sub_3",
		Raw:            json.RawMessage(`{}`),
	}
	if _, errProcess := processor.Process(ctx, deleted); errProcess != nil {
		t.Fatalf("delete: %v", errProcess)
	}

	var record models.PaymentRecord
	if errFind := conn.Where("subscription_id = ?", "sub_3").First(&record).Error; errFind != nil {
		t.Fatalf("find record: %v", errFind)
	}
	if record.Status != models.PaymentStatusCanceled {
		t.Fatalf("expected canceled, got %s", record.Status)
	}
}
