package models

import "time"

// Credit transaction types. Positive-amount grant types create lots that can
// expire independently; CONSUMPTION and EXPIRATION carry negative amounts.
const (
	CreditTxRegisterGift        = "REGISTER_GIFT"
	CreditTxMonthlyRefresh      = "MONTHLY_REFRESH"
	CreditTxSubscriptionRenewal = "SUBSCRIPTION_RENEWAL"
	CreditTxLifetimeMonthly     = "LIFETIME_MONTHLY"
	CreditTxPackPurchase        = "PACK_PURCHASE"
	CreditTxManualAdjustment    = "MANUAL_ADJUSTMENT"
	CreditTxConsumption         = "CONSUMPTION"
	CreditTxExpiration          = "EXPIRATION"
)

// GrantTransactionTypes lists the types whose rows are credit lots.
var GrantTransactionTypes = []string{
	CreditTxRegisterGift,
	CreditTxMonthlyRefresh,
	CreditTxSubscriptionRenewal,
	CreditTxLifetimeMonthly,
	CreditTxPackPurchase,
	CreditTxManualAdjustment,
}

// CreditTransaction is one row of the append-only credit ledger.
//
// Amount, Type and PeriodKey are immutable once written; RemainingAmount is
// the only mutable column and decreases monotonically to zero as a grant lot
// is consumed or expired.
type CreditTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, also the FIFO tiebreaker.

	UserID uint64 `gorm:"not null;index;uniqueIndex:idx_credit_tx_dedupe,priority:1"` // Owning user.
	Type   string `gorm:"type:text;not null;uniqueIndex:idx_credit_tx_dedupe,priority:2"`

	// Amount is positive for grants and negative for consumption/expiration.
	Amount int64 `gorm:"not null"`

	// RemainingAmount is set for grant rows only and tracks the unconsumed
	// part of the lot. Invariant: 0 <= RemainingAmount <= Amount.
	RemainingAmount *int64

	ExpirationDate *time.Time `gorm:"index"` // Lot expiry; nil lots never expire.

	// PeriodKey dedupes period-scoped grants per (user, type, period). NULL
	// keys never collide, so non-periodic rows are unaffected by the index.
	PeriodKey *int `gorm:"uniqueIndex:idx_credit_tx_dedupe,priority:3"`

	Description string `gorm:"type:text"` // Human-readable reason.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}

// IsGrant reports whether the transaction row is a credit lot.
func (t *CreditTransaction) IsGrant() bool {
	for _, grantType := range GrantTransactionTypes {
		if t.Type == grantType {
			return true
		}
	}
	return false
}
