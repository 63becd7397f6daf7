package models

import "time"

// UserCredit tracks the current credit balance for a user.
//
// Mutated only by the credits ledger inside a transaction holding a row lock,
// so concurrent grants and consumes for the same user serialize at the
// database.
type UserCredit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID         uint64 `gorm:"not null;uniqueIndex"`   // One row per user.
	CurrentCredits int64  `gorm:"not null;default:0"`     // Current balance; never negative.

	LastRefreshAt *time.Time // Time of the most recent grant.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
