// Package webhook turns verified provider events into membership, payment
// record and credit ledger changes, exactly once per provider event.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auroralabs/aurora/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Biller is the slice of the billing service the processor drives.
type Biller interface {
	HandleRenewal(ctx context.Context, tx *gorm.DB, userID uint64, priceID string, cycleRef *time.Time) error
	GrantLifetimePlan(ctx context.Context, tx *gorm.DB, userID uint64, priceID string, purchasedAt time.Time) error
	AddPackCredits(ctx context.Context, tx *gorm.DB, userID uint64, amount int64) error
}

// Cataloger answers whether a price belongs to a lifetime plan.
type Cataloger interface {
	IsLifetimePrice(priceID string) bool
}

// Outcome reports what Process did with a delivery.
type Outcome struct {
	// Skipped is true when the event was already processed or carries
	// nothing to act on.
	Skipped bool
}

// Processor applies normalized webhook events. The dedupe row insert and all
// resulting writes share one transaction, so an event is either fully applied
// and locked out, or not recorded at all and safe to redeliver.
type Processor struct {
	db      *gorm.DB
	biller  Biller
	catalog Cataloger
}

// NewProcessor constructs a Processor.
func NewProcessor(db *gorm.DB, biller Biller, catalog Cataloger) *Processor {
	return &Processor{db: db, biller: biller, catalog: catalog}
}

// Process applies one event. A redelivered event returns Skipped without side
// effects. On error nothing is persisted and the provider should retry.
func (p *Processor) Process(ctx context.Context, event *Event) (Outcome, error) {
	if event == nil || event.ID == "" {
		return Outcome{}, fmt.Errorf("webhook: event without id")
	}

	var outcome Outcome
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payload := datatypes.JSON(event.Raw)
		if len(payload) == 0 {
			payload = datatypes.JSON([]byte("{}"))
		}
		dedupe := models.WebhookEvent{
			Provider:  event.Provider,
			EventID:   event.ID,
			EventType: event.Type,
			Payload:   payload,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).Create(&dedupe)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			outcome.Skipped = true
			return nil
		}

		return p.dispatch(ctx, tx, event, &outcome)
	})
	if errTx != nil {
		return Outcome{}, errTx
	}
	return outcome, nil
}

func (p *Processor) dispatch(ctx context.Context, tx *gorm.DB, event *Event, outcome *Outcome) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, tx, event, outcome)
	case EventSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, tx, event, outcome)
	case EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, tx, event, outcome)
	default:
		outcome.Skipped = true
		return nil
	}
}

// handleCheckoutCompleted settles one-time purchases: credit packs and
// lifetime plans. Subscription checkouts carry no grant here; the
// subscription event that follows drives the first cycle grant.
func (p *Processor) handleCheckoutCompleted(ctx context.Context, tx *gorm.DB, event *Event, outcome *Outcome) error {
	if event.UserID == 0 {
		log.Warnf("webhook: %s checkout %s has no user reference", event.Provider, event.ID)
		outcome.Skipped = true
		return nil
	}

	if event.Mode == ModeSubscription {
		// Record the customer mapping early so the portal works before the
		// first subscription event lands.
		if event.SubscriptionID != "" {
			return p.upsertPaymentRecord(tx, event, models.PaymentStatusActive)
		}
		outcome.Skipped = true
		return nil
	}

	if event.PackCredits > 0 {
		return p.biller.AddPackCredits(ctx, tx, event.UserID, event.PackCredits)
	}
	if event.PriceID != "" && p.catalog.IsLifetimePrice(event.PriceID) {
		return p.biller.GrantLifetimePlan(ctx, tx, event.UserID, event.PriceID, time.Now().UTC())
	}

	log.Warnf("webhook: %s checkout %s matches no credit pack or lifetime price", event.Provider, event.ID)
	outcome.Skipped = true
	return nil
}

// handleSubscriptionUpdated upserts the local payment record and grants cycle
// credits when the update represents a renewal: a new billing period start,
// or the first sighting of an active subscription.
func (p *Processor) handleSubscriptionUpdated(ctx context.Context, tx *gorm.DB, event *Event, outcome *Outcome) error {
	if event.SubscriptionID == "" {
		outcome.Skipped = true
		return nil
	}

	var existing models.PaymentRecord
	errFind := tx.Where("provider = ? AND subscription_id = ?", event.Provider, event.SubscriptionID).
		First(&existing).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return errFind
	}
	known := errFind == nil

	if event.UserID == 0 {
		if !known {
			log.Warnf("webhook: %s subscription %s is unknown and has no user reference", event.Provider, event.SubscriptionID)
			outcome.Skipped = true
			return nil
		}
		event.UserID = existing.UserID
	}

	if errUpsert := p.upsertPaymentRecord(tx, event, event.Status); errUpsert != nil {
		return errUpsert
	}

	active := event.Status == models.PaymentStatusActive || event.Status == models.PaymentStatusTrialing
	renewal := false
	switch {
	case !known:
		renewal = active
	case event.PeriodStart != nil && existing.PeriodStart != nil:
		renewal = active && !event.PeriodStart.Equal(*existing.PeriodStart)
	case event.PeriodStart != nil && existing.PeriodStart == nil:
		renewal = active
	}
	if !renewal {
		outcome.Skipped = true
		return nil
	}

	return p.biller.HandleRenewal(ctx, tx, event.UserID, event.PriceID, event.PeriodStart)
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, tx *gorm.DB, event *Event, outcome *Outcome) error {
	if event.SubscriptionID == "" {
		outcome.Skipped = true
		return nil
	}
	result := tx.Model(&models.PaymentRecord{}).
		Where("provider = ? AND subscription_id = ?", event.Provider, event.SubscriptionID).
		Updates(map[string]any{
			"status":     models.PaymentStatusCanceled,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		outcome.Skipped = true
	}
	return nil
}

// upsertPaymentRecord inserts or refreshes the local mirror of a provider
// subscription. The (provider, subscription_id) unique index carries the
// conflict.
func (p *Processor) upsertPaymentRecord(tx *gorm.DB, event *Event, status string) error {
	record := models.PaymentRecord{
		UserID:         event.UserID,
		Provider:       event.Provider,
		SubscriptionID: event.SubscriptionID,
		CustomerID:     event.CustomerID,
		PriceID:        event.PriceID,
		Status:         status,
		PeriodStart:    event.PeriodStart,
		PeriodEnd:      event.PeriodEnd,
	}
	assignments := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if event.CustomerID != "" {
		assignments["customer_id"] = event.CustomerID
	}
	if event.PriceID != "" {
		assignments["price_id"] = event.PriceID
	}
	if event.PeriodStart != nil {
		assignments["period_start"] = event.PeriodStart.UTC()
	}
	if event.PeriodEnd != nil {
		assignments["period_end"] = event.PeriodEnd.UTC()
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "subscription_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&record).Error
}
