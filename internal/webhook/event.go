package webhook

import (
	"encoding/json"
	"time"
)

// Normalized event types shared by all providers.
const (
	// EventCheckoutCompleted covers one-time payments: credit packs and
	// lifetime plan purchases, plus the initial subscription checkout.
	EventCheckoutCompleted = "checkout.completed"
	// EventSubscriptionUpdated covers subscription create/update/renewal.
	EventSubscriptionUpdated = "subscription.updated"
	// EventSubscriptionDeleted covers cancellation/expiry.
	EventSubscriptionDeleted = "subscription.deleted"
	// EventIgnored marks provider events this system does not act on; they
	// are still recorded for dedupe.
	EventIgnored = "ignored"
)

// Checkout modes.
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// Event is a provider webhook event translated into provider-neutral form.
// Each payment provider adapter parses and verifies its own wire format and
// produces one of these; the processor only ever sees this type.
type Event struct {
	Provider string // Provider name, part of the dedupe key.
	ID       string // Provider event ID, part of the dedupe key.
	Type     string // Normalized event type.

	UserID         uint64 // 0 when the provider payload carries no user reference.
	CustomerID     string
	SubscriptionID string
	PriceID        string
	Status         string
	Mode           string // Checkout mode for EventCheckoutCompleted.

	PeriodStart *time.Time
	PeriodEnd   *time.Time

	PackCredits int64 // Credits purchased in a one-time credit pack.

	Raw json.RawMessage // Original payload, persisted with the dedupe row.
}
