// Package stripe adapts the Stripe API to the payment provider boundary.
package stripe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/payment"
	stripego "github.com/stripe/stripe-go/v82"
)

// Provider implements payment.Provider on top of the Stripe API.
type Provider struct {
	client *stripego.Client
	cfg    config.StripeConfig
}

// New constructs a Stripe provider. Returns a misconfiguration error when
// the secret key is missing.
func New(cfg config.StripeConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, apperr.New(apperr.CodeStripeMisconfigured, "stripe secret key is not configured")
	}
	return &Provider{
		client: stripego.NewClient(cfg.SecretKey, nil),
		cfg:    cfg,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return payment.ProviderStripe }

// CreateCheckout creates a checkout session for a plan price.
func (p *Provider) CreateCheckout(ctx context.Context, params payment.CheckoutParams) (*payment.CheckoutResult, error) {
	mode := stripego.CheckoutSessionModeSubscription
	if params.Lifetime {
		mode = stripego.CheckoutSessionModePayment
	}
	sessionParams := &stripego.CheckoutSessionCreateParams{
		Mode: stripego.String(string(mode)),
		LineItems: []*stripego.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripego.String(params.PriceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(params.SuccessURL),
		CancelURL:         stripego.String(params.CancelURL),
		ClientReferenceID: stripego.String(strconv.FormatUint(params.UserID, 10)),
		CustomerEmail:     stripego.String(params.Email),
		Metadata: map[string]string{
			"user_id":  strconv.FormatUint(params.UserID, 10),
			"plan_id":  params.PlanID,
			"price_id": params.PriceID,
		},
	}
	if mode == stripego.CheckoutSessionModeSubscription {
		sessionParams.SubscriptionData = &stripego.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id":  strconv.FormatUint(params.UserID, 10),
				"price_id": params.PriceID,
			},
		}
	}

	session, errCreate := p.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if errCreate != nil {
		return nil, apperr.Transient(apperr.CodeProviderUnavailable, "create stripe checkout session failed", errCreate)
	}
	return &payment.CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CreateCreditCheckout creates a one-time checkout session for a credit pack.
func (p *Provider) CreateCreditCheckout(ctx context.Context, params payment.CreditCheckoutParams) (*payment.CheckoutResult, error) {
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	sessionParams := &stripego.CheckoutSessionCreateParams{
		Mode: stripego.String(string(stripego.CheckoutSessionModePayment)),
		LineItems: []*stripego.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripego.String(currency),
					UnitAmount: stripego.Int64(params.Amount),
					ProductData: &stripego.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripego.String(fmt.Sprintf("%d credits", params.Credits)),
					},
				},
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL:        stripego.String(params.SuccessURL),
		CancelURL:         stripego.String(params.CancelURL),
		ClientReferenceID: stripego.String(strconv.FormatUint(params.UserID, 10)),
		CustomerEmail:     stripego.String(params.Email),
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(params.UserID, 10),
			"credits": strconv.FormatInt(params.Credits, 10),
		},
	}

	session, errCreate := p.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if errCreate != nil {
		return nil, apperr.Transient(apperr.CodeProviderUnavailable, "create stripe credit checkout failed", errCreate)
	}
	return &payment.CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

// CreateCustomerPortal creates a billing portal session for the customer.
func (p *Provider) CreateCustomerPortal(ctx context.Context, customerID, returnURL string) (string, error) {
	session, errCreate := p.client.V1BillingPortalSessions.Create(ctx, &stripego.BillingPortalSessionCreateParams{
		Customer:  stripego.String(customerID),
		ReturnURL: stripego.String(returnURL),
	})
	if errCreate != nil {
		return "", apperr.Transient(apperr.CodeProviderUnavailable, "create stripe portal session failed", errCreate)
	}
	return session.URL, nil
}

// GetSubscriptions lists the customer's subscriptions.
func (p *Provider) GetSubscriptions(ctx context.Context, customerID string) ([]payment.Subscription, error) {
	listParams := &stripego.SubscriptionListParams{
		Customer: stripego.String(customerID),
	}
	var subs []payment.Subscription
	for sub, errNext := range p.client.V1Subscriptions.List(ctx, listParams) {
		if errNext != nil {
			return nil, apperr.Transient(apperr.CodeProviderUnavailable, "list stripe subscriptions failed", errNext)
		}
		subs = append(subs, normalizeSubscription(sub))
	}
	return subs, nil
}

// normalizeSubscription flattens a Stripe subscription into provider-neutral
// form. Billing period boundaries live on the subscription items.
func normalizeSubscription(sub *stripego.Subscription) payment.Subscription {
	out := payment.Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
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
	return out
}
