package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	dbutil "github.com/auroralabs/aurora/internal/db"
	"github.com/auroralabs/aurora/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientCredits is returned when a consume exceeds the balance.
var ErrInsufficientCredits = apperr.New(apperr.CodeInsufficientCredits, "insufficient credit balance")

// Ledger is the credit accounting engine. All balance mutations go through it
// inside a database transaction that locks the user's balance row, so
// concurrent grants and consumes for one user serialize at the database.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// AddParams describes a credit grant.
type AddParams struct {
	UserID      uint64
	Amount      int64  // Must be positive.
	Type        string // One of the grant transaction types.
	Description string
	ExpireDays  int  // 0 means the lot never expires.
	PeriodKey   *int // Set for period-scoped grants to enable dedupe.
}

// ConsumeParams describes a credit consumption.
type ConsumeParams struct {
	UserID      uint64
	Amount      int64 // Must be positive.
	Description string
}

// run executes fn inside the caller's transaction when one is provided, or a
// fresh transaction otherwise. A caller-owned transaction is never committed
// here; commit and rollback stay with the owner.
func (l *Ledger) run(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx.WithContext(ctx))
	}
	return l.db.WithContext(ctx).Transaction(fn)
}

// forUpdate applies a row lock where the dialect supports it. SQLite rejects
// FOR UPDATE; its single-writer connection serializes mutations instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if dbutil.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetUserCredits returns the user's current balance, 0 when no row exists.
func (l *Ledger) GetUserCredits(ctx context.Context, userID uint64) (int64, error) {
	var row models.UserCredit
	if errFind := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errFind
	}
	return row.CurrentCredits, nil
}

// HasEnoughCredits reports whether the balance covers amount.
func (l *Ledger) HasEnoughCredits(ctx context.Context, userID uint64, amount int64) (bool, error) {
	balance, errGet := l.GetUserCredits(ctx, userID)
	if errGet != nil {
		return false, errGet
	}
	return balance >= amount, nil
}

// CanAddCreditsByType reports whether no grant of the given type exists yet
// for the user in the given period.
func (l *Ledger) CanAddCreditsByType(ctx context.Context, userID uint64, txType string, periodKey int) (bool, error) {
	var count int64
	if errCount := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND type = ? AND period_key = ?", userID, txType, periodKey).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count == 0, nil
}

// HasTransactionOfType reports whether any transaction of the given type
// exists for the user, regardless of period. Used for one-time-only grants.
func (l *Ledger) HasTransactionOfType(ctx context.Context, userID uint64, txType string) (bool, error) {
	var count int64
	if errCount := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND type = ?", userID, txType).
		Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// AddCredits creates a grant lot and increments the balance. When PeriodKey
// is set and a grant with the same (user, type, period) already exists, the
// call is a no-op; the uniqueness check and the insert are a single atomic
// statement so concurrent duplicate grants cannot both land.
func (l *Ledger) AddCredits(ctx context.Context, p AddParams, tx *gorm.DB) error {
	if p.Amount <= 0 {
		return fmt.Errorf("credits: non-positive grant amount %d", p.Amount)
	}
	if p.Type == "" {
		return fmt.Errorf("credits: missing transaction type")
	}

	return l.run(ctx, tx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		remaining := p.Amount
		row := models.CreditTransaction{
			UserID:          p.UserID,
			Type:            p.Type,
			Amount:          p.Amount,
			RemainingAmount: &remaining,
			PeriodKey:       p.PeriodKey,
			Description:     p.Description,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if p.ExpireDays > 0 {
			exp := now.AddDate(0, 0, p.ExpireDays)
			row.ExpirationDate = &exp
		}

		if p.PeriodKey != nil {
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}, {Name: "period_key"}},
				DoNothing: true,
			}).Create(&row)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Already granted for this period.
				return nil
			}
		} else {
			if errCreate := tx.Create(&row).Error; errCreate != nil {
				return errCreate
			}
		}

		return l.applyBalanceDelta(tx, p.UserID, p.Amount, &now)
	})
}

// ConsumeCredits deducts amount from the balance, allocating the deduction
// across grant lots soonest-to-expire first. Fails with
// ErrInsufficientCredits when the balance does not cover the amount; on
// failure nothing is decremented.
func (l *Ledger) ConsumeCredits(ctx context.Context, p ConsumeParams, tx *gorm.DB) error {
	if p.Amount <= 0 {
		return fmt.Errorf("credits: non-positive consume amount %d", p.Amount)
	}

	return l.run(ctx, tx, func(tx *gorm.DB) error {
		var balance models.UserCredit
		if errFind := forUpdate(tx).Where("user_id = ?", p.UserID).First(&balance).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrInsufficientCredits
			}
			return errFind
		}
		if balance.CurrentCredits < p.Amount {
			return ErrInsufficientCredits
		}

		if errUpdate := tx.Model(&models.UserCredit{}).
			Where("id = ?", balance.ID).
			Update("current_credits", gorm.Expr("current_credits - ?", p.Amount)).Error; errUpdate != nil {
			return errUpdate
		}

		// Soonest-to-expire lots first, then creation order. Consuming from
		// expiring lots first minimizes credits lost to expiration.
		var lots []models.CreditTransaction
		if errFind := forUpdate(tx).
			Where("user_id = ? AND type IN ? AND remaining_amount > 0", p.UserID, models.GrantTransactionTypes).
			Order("expiration_date ASC NULLS LAST, id ASC").
			Find(&lots).Error; errFind != nil {
			return errFind
		}

		left := p.Amount
		for i := range lots {
			if left == 0 {
				break
			}
			lot := &lots[i]
			if lot.RemainingAmount == nil || *lot.RemainingAmount <= 0 {
				continue
			}
			take := *lot.RemainingAmount
			if take > left {
				take = left
			}
			newRemaining := *lot.RemainingAmount - take
			if errUpdate := tx.Model(&models.CreditTransaction{}).
				Where("id = ?", lot.ID).
				Update("remaining_amount", newRemaining).Error; errUpdate != nil {
				return errUpdate
			}
			left -= take
		}
		if left > 0 {
			// Balance and lot remainders disagree; the balance row is
			// authoritative for the deduction, so record and move on.
			log.Warnf("credits: lot remainders short by %d for user=%d", left, p.UserID)
		}

		consumption := models.CreditTransaction{
			UserID:      p.UserID,
			Type:        models.CreditTxConsumption,
			Amount:      -p.Amount,
			Description: p.Description,
		}
		return tx.Create(&consumption).Error
	})
}

// ProcessExpiredCredits zeroes expired grant lots for a user, records the
// lost amount as an EXPIRATION transaction and decrements the balance.
// Re-running against already-expired lots is a no-op.
func (l *Ledger) ProcessExpiredCredits(ctx context.Context, userID uint64, now time.Time) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var balance models.UserCredit
		if errFind := forUpdate(tx).Where("user_id = ?", userID).First(&balance).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil
			}
			return errFind
		}

		var lots []models.CreditTransaction
		if errFind := forUpdate(tx).
			Where("user_id = ? AND expiration_date < ? AND remaining_amount > 0", userID, now.UTC()).
			Order("id ASC").
			Find(&lots).Error; errFind != nil {
			return errFind
		}
		if len(lots) == 0 {
			return nil
		}

		var lost int64
		for i := range lots {
			lot := &lots[i]
			if lot.RemainingAmount == nil {
				continue
			}
			lost += *lot.RemainingAmount
			if errUpdate := tx.Model(&models.CreditTransaction{}).
				Where("id = ?", lot.ID).
				Update("remaining_amount", 0).Error; errUpdate != nil {
				return errUpdate
			}
		}
		if lost == 0 {
			return nil
		}

		if errUpdate := tx.Model(&models.UserCredit{}).
			Where("id = ?", balance.ID).
			Update("current_credits", gorm.Expr("current_credits - ?", lost)).Error; errUpdate != nil {
			return errUpdate
		}

		expiration := models.CreditTransaction{
			UserID:      userID,
			Type:        models.CreditTxExpiration,
			Amount:      -lost,
			Description: fmt.Sprintf("expired %d credits", lost),
		}
		return tx.Create(&expiration).Error
	})
}

// ProcessExpiredCreditsForUsers runs expiration for a batch of users; a
// failure for one user does not stop the rest.
func (l *Ledger) ProcessExpiredCreditsForUsers(ctx context.Context, userIDs []uint64, now time.Time) error {
	var firstErr error
	for _, userID := range userIDs {
		if errProcess := l.ProcessExpiredCredits(ctx, userID, now); errProcess != nil {
			log.WithError(errProcess).Warnf("credits: expire failed for user=%d", userID)
			if firstErr == nil {
				firstErr = errProcess
			}
		}
	}
	return firstErr
}

// ListTransactions returns a page of the user's ledger, newest first, with
// the total row count.
func (l *Ledger) ListTransactions(ctx context.Context, userID uint64, limit, offset int) ([]models.CreditTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).Where("user_id = ?", userID)

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.CreditTransaction
	if errFind := query.
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

// applyBalanceDelta locks and updates the user's balance row, creating it on
// first grant. The unique index on user_id resolves the create race.
func (l *Ledger) applyBalanceDelta(tx *gorm.DB, userID uint64, delta int64, refreshAt *time.Time) error {
	var balance models.UserCredit
	errFind := forUpdate(tx).Where("user_id = ?", userID).First(&balance).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return errFind
	}

	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		row := models.UserCredit{
			UserID:         userID,
			CurrentCredits: delta,
			LastRefreshAt:  refreshAt,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		// Lost the create race; fall through to the locked update.
		if errRelock := forUpdate(tx).Where("user_id = ?", userID).First(&balance).Error; errRelock != nil {
			return errRelock
		}
	}

	updates := map[string]any{
		"current_credits": gorm.Expr("current_credits + ?", delta),
	}
	if refreshAt != nil {
		updates["last_refresh_at"] = refreshAt.UTC()
	}
	return tx.Model(&models.UserCredit{}).Where("id = ?", balance.ID).Updates(updates).Error
}
