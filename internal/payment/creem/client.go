// Package creem adapts the Creem API to the payment provider boundary.
package creem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/payment"
	"github.com/hashicorp/go-retryablehttp"
)

const requestTimeout = 20 * time.Second

// Provider implements payment.Provider on top of the Creem HTTP API.
type Provider struct {
	cfg    config.CreemConfig
	client *retryablehttp.Client
}

// New constructs a Creem provider. Returns a misconfiguration error when the
// API key is missing.
func New(cfg config.CreemConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperr.New(apperr.CodeCreemMisconfigured, "CREEM_API_KEY is not configured")
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = requestTimeout
	client.Logger = nil
	return &Provider{cfg: cfg, client: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return payment.ProviderCreem }

// checkoutRequest is the Creem checkout creation payload.
type checkoutRequest struct {
	ProductID  string            `json:"product_id,omitempty"`
	SuccessURL string            `json:"success_url,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Customer   *checkoutCustomer `json:"customer,omitempty"`
}

type checkoutCustomer struct {
	Email string `json:"email,omitempty"`
}

// checkoutResponse is the Creem checkout creation result.
type checkoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout creates a hosted checkout for a plan price. Creem models
// prices as products; the configured price ID is the Creem product ID.
func (p *Provider) CreateCheckout(ctx context.Context, params payment.CheckoutParams) (*payment.CheckoutResult, error) {
	body := checkoutRequest{
		ProductID:  params.PriceID,
		SuccessURL: params.SuccessURL,
		Metadata: map[string]string{
			"user_id":  strconv.FormatUint(params.UserID, 10),
			"plan_id":  params.PlanID,
			"price_id": params.PriceID,
		},
	}
	if strings.TrimSpace(params.Email) != "" {
		body.Customer = &checkoutCustomer{Email: params.Email}
	}
	var out checkoutResponse
	if errPost := p.post(ctx, "/v1/checkouts", body, &out); errPost != nil {
		return nil, errPost
	}
	return &payment.CheckoutResult{SessionID: out.ID, URL: out.CheckoutURL}, nil
}

// CreateCreditCheckout creates a hosted checkout for a credit pack product.
func (p *Provider) CreateCreditCheckout(ctx context.Context, params payment.CreditCheckoutParams) (*payment.CheckoutResult, error) {
	body := checkoutRequest{
		SuccessURL: params.SuccessURL,
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(params.UserID, 10),
			"credits": strconv.FormatInt(params.Credits, 10),
		},
	}
	if strings.TrimSpace(params.Email) != "" {
		body.Customer = &checkoutCustomer{Email: params.Email}
	}
	var out checkoutResponse
	if errPost := p.post(ctx, "/v1/checkouts", body, &out); errPost != nil {
		return nil, errPost
	}
	return &payment.CheckoutResult{SessionID: out.ID, URL: out.CheckoutURL}, nil
}

// portalResponse is the Creem customer portal result.
type portalResponse struct {
	CustomerPortalLink string `json:"customer_portal_link"`
}

// CreateCustomerPortal creates a customer billing portal link.
func (p *Provider) CreateCustomerPortal(ctx context.Context, customerID, returnURL string) (string, error) {
	body := map[string]string{"customer_id": customerID}
	var out portalResponse
	if errPost := p.post(ctx, "/v1/customers/billing", body, &out); errPost != nil {
		return "", errPost
	}
	return out.CustomerPortalLink, nil
}

// subscriptionListResponse is the Creem subscription list result.
type subscriptionListResponse struct {
	Items []creemSubscription `json:"items"`
}

type creemSubscription struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Customer struct {
		ID string `json:"id"`
	} `json:"customer"`
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	CurrentPeriodStartDate *time.Time `json:"current_period_start_date"`
	CurrentPeriodEndDate   *time.Time `json:"current_period_end_date"`
}

// GetSubscriptions lists a customer's subscriptions.
func (p *Provider) GetSubscriptions(ctx context.Context, customerID string) ([]payment.Subscription, error) {
	var out subscriptionListResponse
	path := "/v1/subscriptions?customer_id=" + customerID
	if errGet := p.get(ctx, path, &out); errGet != nil {
		return nil, errGet
	}
	subs := make([]payment.Subscription, 0, len(out.Items))
	for _, item := range out.Items {
		subs = append(subs, payment.Subscription{
			ID:          item.ID,
			CustomerID:  item.Customer.ID,
			PriceID:     item.Product.ID,
			Status:      item.Status,
			PeriodStart: item.CurrentPeriodStartDate,
			PeriodEnd:   item.CurrentPeriodEndDate,
		})
	}
	return subs, nil
}

func (p *Provider) post(ctx context.Context, path string, body any, out any) error {
	encoded, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return fmt.Errorf("creem: encode request: %w", errMarshal)
	}
	req, errReq := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBase+path, bytes.NewReader(encoded))
	if errReq != nil {
		return fmt.Errorf("creem: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *Provider) get(ctx context.Context, path string, out any) error {
	req, errReq := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBase+path, nil)
	if errReq != nil {
		return fmt.Errorf("creem: build request: %w", errReq)
	}
	return p.do(req, out)
}

func (p *Provider) do(req *retryablehttp.Request, out any) error {
	req.Header.Set("x-api-key", p.cfg.APIKey)

	resp, errDo := p.client.Do(req)
	if errDo != nil {
		return apperr.Transient(apperr.CodeProviderUnavailable, "creem request failed", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	data, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return apperr.Transient(apperr.CodeProviderUnavailable, "read creem response failed", errRead)
	}
	if resp.StatusCode >= 500 {
		return apperr.Transient(apperr.CodeProviderUnavailable,
			fmt.Sprintf("creem responded %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.CodeProviderUnavailable,
			fmt.Sprintf("creem rejected request with %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if errUnmarshal := json.Unmarshal(data, out); errUnmarshal != nil {
		return fmt.Errorf("creem: decode response: %w", errUnmarshal)
	}
	return nil
}
