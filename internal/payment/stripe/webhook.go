package stripe

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/payment"
	wh "github.com/auroralabs/aurora/internal/webhook"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseEvent verifies the Stripe signature and translates the event into
// provider-neutral form. A missing webhook secret is a misconfiguration; a
// bad signature is a security violation. Both are non-retryable.
func (p *Provider) ParseEvent(payload []byte, signature string) (*wh.Event, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, apperr.New(apperr.CodeStripeMisconfigured, "STRIPE_WEBHOOK_SECRET is not configured")
	}
	if len(payload) == 0 || strings.TrimSpace(signature) == "" {
		return nil, apperr.New(apperr.CodeSecurityViolation, "missing webhook payload or signature")
	}

	options := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, errConstruct := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, options)
	if errConstruct != nil {
		return nil, apperr.Wrap(apperr.CodeSecurityViolation, "stripe webhook signature verification failed", errConstruct)
	}

	out := &wh.Event{
		Provider: payment.ProviderStripe,
		ID:       event.ID,
		Type:     wh.EventIgnored,
		Raw:      json.RawMessage(payload),
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripego.CheckoutSession
		if errUnmarshal := json.Unmarshal(event.Data.Raw, &session); errUnmarshal != nil {
			return nil, apperr.Wrap(apperr.CodeSecurityViolation, "malformed checkout session payload", errUnmarshal)
		}
		fillFromCheckoutSession(out, &session)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripego.Subscription
		if errUnmarshal := json.Unmarshal(event.Data.Raw, &sub); errUnmarshal != nil {
			return nil, apperr.Wrap(apperr.CodeSecurityViolation, "malformed subscription payload", errUnmarshal)
		}
		fillFromSubscription(out, &sub)
		out.Type = wh.EventSubscriptionUpdated
	case "customer.subscription.deleted":
		var sub stripego.Subscription
		if errUnmarshal := json.Unmarshal(event.Data.Raw, &sub); errUnmarshal != nil {
			return nil, apperr.Wrap(apperr.CodeSecurityViolation, "malformed subscription payload", errUnmarshal)
		}
		fillFromSubscription(out, &sub)
		out.Type = wh.EventSubscriptionDeleted
	}

	return out, nil
}

func fillFromCheckoutSession(out *wh.Event, session *stripego.CheckoutSession) {
	out.Type = wh.EventCheckoutCompleted
	out.UserID = parseUserID(session.ClientReferenceID, session.Metadata)
	out.PriceID = strings.TrimSpace(session.Metadata["price_id"])
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	switch session.Mode {
	case stripego.CheckoutSessionModeSubscription:
		out.Mode = wh.ModeSubscription
	default:
		out.Mode = wh.ModePayment
	}
	if rawCredits := strings.TrimSpace(session.Metadata["credits"]); rawCredits != "" {
		if credits, errParse := strconv.ParseInt(rawCredits, 10, 64); errParse == nil && credits > 0 {
			out.PackCredits = credits
		}
	}
}

func fillFromSubscription(out *wh.Event, sub *stripego.Subscription) {
	out.SubscriptionID = sub.ID
	out.Status = string(sub.Status)
	out.UserID = parseUserID("", sub.Metadata)
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			start := time.Unix(item.CurrentPeriodStart, 0).UTC()
			out.PeriodStart = &start
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			out.PeriodEnd = &end
		}
	}
}

// parseUserID extracts the local user ID from the client reference or the
// user_id metadata entry.
func parseUserID(clientReference string, metadata map[string]string) uint64 {
	for _, candidate := range []string{clientReference, metadata["user_id"]} {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		if id, errParse := strconv.ParseUint(trimmed, 10, 64); errParse == nil && id > 0 {
			return id
		}
	}
	return 0
}
