package models

import "time"

// Payment statuses mirrored from the provider's subscription lifecycle.
const (
	PaymentStatusActive   = "active"
	PaymentStatusTrialing = "trialing"
	PaymentStatusCanceled = "canceled"
	PaymentStatusPastDue  = "past_due"
)

// PaymentRecord mirrors a provider subscription or one-time purchase locally.
//
// PeriodStart/PeriodEnd track the current billing cycle; renewal detection
// compares the stored PeriodStart against the incoming one.
type PaymentRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64 `gorm:"not null;index"` // Owning user.
	Provider string `gorm:"type:text;not null;uniqueIndex:idx_payment_provider_sub,priority:1"`

	// SubscriptionID is the provider's subscription identifier; empty for
	// one-time purchases.
	SubscriptionID string `gorm:"type:text;not null;uniqueIndex:idx_payment_provider_sub,priority:2"`

	CustomerID string `gorm:"type:text;index"` // Provider customer identifier.
	PriceID    string `gorm:"type:text;not null"`
	Status     string `gorm:"type:text;not null;index"`

	PeriodStart *time.Time // Current cycle start.
	PeriodEnd   *time.Time // Current cycle end.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
