package models

import "time"

// User represents an account that can hold credits and purchase plans.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Banned bool `gorm:"not null;default:false"` // Banned users are excluded from grants.

	TOTPSecret string `gorm:"type:text"` // TOTP secret when MFA is enabled.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
