package payment

import (
	"context"
	"time"
)

// Provider names.
const (
	ProviderStripe = "stripe"
	ProviderCreem  = "creem"
)

// CheckoutParams describes a subscription or plan checkout.
type CheckoutParams struct {
	UserID     uint64
	Email      string
	PlanID     string
	PriceID    string
	Lifetime   bool // Lifetime plans check out as one-time payments.
	SuccessURL string
	CancelURL  string
}

// CreditCheckoutParams describes a one-time credit pack checkout.
type CreditCheckoutParams struct {
	UserID     uint64
	Email      string
	Credits    int64  // Credits granted when the payment completes.
	Amount     int64  // Price in the smallest currency unit.
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CheckoutResult is the provider-hosted checkout session.
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Subscription is a provider-side subscription snapshot.
type Subscription struct {
	ID          string
	CustomerID  string
	PriceID     string
	Status      string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Provider is the payment provider boundary consumed by the billing service.
// Implementations wrap the provider SDK/API; webhook event translation lives
// with each implementation as well.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResult, error)
	CreateCreditCheckout(ctx context.Context, params CreditCheckoutParams) (*CheckoutResult, error)
	CreateCustomerPortal(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
}
