package models

import "time"

// UserLifetimeMembership records a one-time lifetime plan purchase that
// entitles the user to a recurring monthly credit drip.
type UserLifetimeMembership struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;uniqueIndex:idx_lifetime_user_price,priority:1"` // Owning user.
	PriceID string `gorm:"type:text;not null;uniqueIndex:idx_lifetime_user_price,priority:2"`

	// CycleRefDate anchors the monthly credit cycle for this membership.
	CycleRefDate time.Time `gorm:"not null"`

	RevokedAt *time.Time // Soft revocation; non-nil rows are not active.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
