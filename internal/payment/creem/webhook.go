package creem

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/payment"
	wh "github.com/auroralabs/aurora/internal/webhook"
)

// creemEvent is the Creem webhook envelope.
type creemEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Object    json.RawMessage `json:"object"`
}

// creemCheckout is the checkout object carried by checkout.completed events.
type creemCheckout struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	Subscription *struct {
		ID string `json:"id"`
	} `json:"subscription"`
}

// creemWebhookSubscription is the subscription object carried by
// subscription.* events. Subscription metadata is copied from the checkout
// that created it.
type creemWebhookSubscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	CurrentPeriodStartDate *time.Time `json:"current_period_start_date"`
	CurrentPeriodEndDate   *time.Time `json:"current_period_end_date"`
}

// ParseEvent verifies the Creem signature and translates the event into
// provider-neutral form. A missing webhook secret is a misconfiguration; a
// bad signature is a security violation. Both are non-retryable.
func (p *Provider) ParseEvent(payload []byte, signature string) (*wh.Event, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, apperr.New(apperr.CodeCreemMisconfigured, "CREEM_WEBHOOK_SECRET is not configured")
	}
	if len(payload) == 0 || strings.TrimSpace(signature) == "" {
		return nil, apperr.New(apperr.CodeSecurityViolation, "missing webhook payload or signature")
	}
	if !VerifySignature(string(payload), signature, p.cfg.WebhookSecret) {
		return nil, apperr.New(apperr.CodeSecurityViolation, "creem webhook signature verification failed")
	}

	var event creemEvent
	if errUnmarshal := json.Unmarshal(payload, &event); errUnmarshal != nil {
		return nil, apperr.Wrap(apperr.CodeSecurityViolation, "malformed creem webhook payload", errUnmarshal)
	}
	if event.ID == "" {
		return nil, apperr.New(apperr.CodeSecurityViolation, "creem webhook payload has no event id")
	}

	out := &wh.Event{
		Provider: payment.ProviderCreem,
		ID:       event.ID,
		Type:     wh.EventIgnored,
		Raw:      json.RawMessage(payload),
	}

	switch event.EventType {
	case "checkout.completed":
		var checkout creemCheckout
		if errUnmarshal := json.Unmarshal(event.Object, &checkout); errUnmarshal != nil {
			return nil, apperr.Wrap(apperr.CodeSecurityViolation, "malformed creem checkout object", errUnmarshal)
		}
		out.Type = wh.EventCheckoutCompleted
		out.UserID = metadataUserID(checkout.Metadata)
		out.CustomerID = checkout.Customer.ID
		out.PriceID = metadataPriceID(checkout.Metadata, checkout.Product.ID)
		out.Mode = wh.ModePayment
		if checkout.Subscription != nil && checkout.Subscription.ID != "" {
			out.SubscriptionID = checkout.Subscription.ID
			out.Mode = wh.ModeSubscription
		}
		if rawCredits := strings.TrimSpace(checkout.Metadata["credits"]); rawCredits != "" {
			if credits, errParse := strconv.ParseInt(rawCredits, 10, 64); errParse == nil && credits > 0 {
				out.PackCredits = credits
			}
		}
	case "subscription.active", "subscription.paid", "subscription.update", "subscription.trialing":
		sub, errParse := parseSubscriptionObject(event.Object)
		if errParse != nil {
			return nil, errParse
		}
		fillFromCreemSubscription(out, sub)
		out.Type = wh.EventSubscriptionUpdated
	case "subscription.canceled", "subscription.expired":
		sub, errParse := parseSubscriptionObject(event.Object)
		if errParse != nil {
			return nil, errParse
		}
		fillFromCreemSubscription(out, sub)
		out.Type = wh.EventSubscriptionDeleted
	}

	return out, nil
}

func parseSubscriptionObject(object json.RawMessage) (*creemWebhookSubscription, error) {
	var sub creemWebhookSubscription
	if errUnmarshal := json.Unmarshal(object, &sub); errUnmarshal != nil {
		return nil, apperr.Wrap(apperr.CodeSecurityViolation, "malformed creem subscription object", errUnmarshal)
	}
	return &sub, nil
}

func fillFromCreemSubscription(out *wh.Event, sub *creemWebhookSubscription) {
	out.SubscriptionID = sub.ID
	out.Status = normalizeStatus(sub.Status)
	out.UserID = metadataUserID(sub.Metadata)
	out.CustomerID = sub.Customer.ID
	out.PriceID = metadataPriceID(sub.Metadata, sub.Product.ID)
	out.PeriodStart = sub.CurrentPeriodStartDate
	out.PeriodEnd = sub.CurrentPeriodEndDate
}

// normalizeStatus maps Creem subscription statuses onto the Stripe-style
// vocabulary the rest of the system stores.
func normalizeStatus(status string) string {
	switch status {
	case "active", "paid":
		return "active"
	case "trialing":
		return "trialing"
	case "canceled", "expired":
		return "canceled"
	case "unpaid", "past_due":
		return "past_due"
	default:
		return status
	}
}

func metadataUserID(metadata map[string]string) uint64 {
	raw := strings.TrimSpace(metadata["user_id"])
	if raw == "" {
		return 0
	}
	id, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil {
		return 0
	}
	return id
}

// metadataPriceID prefers the catalog price ID carried through checkout
// metadata and falls back to the Creem product ID, which is what the catalog
// stores for Creem prices.
func metadataPriceID(metadata map[string]string, productID string) string {
	if priceID := strings.TrimSpace(metadata["price_id"]); priceID != "" {
		return priceID
	}
	return productID
}
