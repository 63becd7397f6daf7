package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is the dedupe lock row for provider webhook deliveries.
//
// Insertion uses ON CONFLICT DO NOTHING on (provider, event_id); a delivery
// that fails to insert has already been processed and is skipped.
type WebhookEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider string `gorm:"type:text;not null;uniqueIndex:idx_webhook_provider_event,priority:1"`
	EventID  string `gorm:"type:text;not null;uniqueIndex:idx_webhook_provider_event,priority:2"`

	EventType string         `gorm:"type:text;not null"`               // Provider event type.
	Payload   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Raw event payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Processing timestamp.
}
