package handlers

import (
	"net/http"
	"strings"

	"github.com/auroralabs/aurora/internal/billing"
	"github.com/auroralabs/aurora/internal/http/api/respond"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/payment"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BillingHandler handles plan listing, checkout and portal endpoints.
type BillingHandler struct {
	db      *gorm.DB
	billing *billing.Service
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(db *gorm.DB, billingService *billing.Service) *BillingHandler {
	return &BillingHandler{db: db, billing: billingService}
}

// Plans lists the purchasable plan catalog.
func (h *BillingHandler) Plans(c *gin.Context) {
	type priceView struct {
		ID       string `json:"id"`
		Interval string `json:"interval"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Credits  int64  `json:"credits,omitempty"`
	}
	type planView struct {
		ID         string      `json:"id"`
		Name       string      `json:"name"`
		IsFree     bool        `json:"is_free"`
		IsLifetime bool        `json:"is_lifetime"`
		Prices     []priceView `json:"prices"`
	}

	plans := h.billing.Catalog().Plans()
	views := make([]planView, 0, len(plans))
	for i := range plans {
		plan := &plans[i]
		if plan.Disabled {
			continue
		}
		view := planView{
			ID:         plan.ID,
			Name:       plan.Name,
			IsFree:     plan.IsFree,
			IsLifetime: plan.IsLifetime,
		}
		for j := range plan.Prices {
			price := &plan.Prices[j]
			if price.Disabled {
				continue
			}
			pv := priceView{
				ID:       price.ID,
				Interval: price.Interval,
				Amount:   price.Amount,
				Currency: price.Currency,
			}
			if price.CreditsEnabled {
				pv.Credits = price.CreditsAmount
			}
			view.Prices = append(view.Prices, pv)
		}
		views = append(views, view)
	}
	respond.OK(c, gin.H{"plans": views})
}

// CurrentPlan returns the plan the user is currently on.
func (h *BillingHandler) CurrentPlan(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	plan, errResolve := h.billing.CurrentPlan(c.Request.Context(), userID)
	if errResolve != nil {
		respond.Fail(c, errResolve)
		return
	}
	if plan == nil {
		respond.OK(c, gin.H{"plan": nil})
		return
	}
	respond.OK(c, gin.H{"plan": gin.H{
		"id":          plan.ID,
		"name":        plan.Name,
		"is_free":     plan.IsFree,
		"is_lifetime": plan.IsLifetime,
	}})
}

// checkoutRequest defines the request body for subscription checkout.
type checkoutRequest struct {
	Provider string `json:"provider"`
	PlanID   string `json:"plan_id"`
	PriceID  string `json:"price_id"`
}

// Checkout opens a provider checkout session for a plan price.
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	result, errCheckout := h.billing.StartSubscriptionCheckout(c.Request.Context(), &user,
		normalizeProvider(body.Provider), strings.TrimSpace(body.PlanID), strings.TrimSpace(body.PriceID))
	if errCheckout != nil {
		respond.Fail(c, errCheckout)
		return
	}
	respond.OK(c, gin.H{
		"session_id": result.SessionID,
		"url":        result.URL,
	})
}

// creditCheckoutRequest defines the request body for credit pack checkout.
type creditCheckoutRequest struct {
	Provider string `json:"provider"`
	Credits  int64  `json:"credits"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreditCheckout opens a one-time checkout session for a credit pack.
func (h *BillingHandler) CreditCheckout(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body creditCheckoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	result, errCheckout := h.billing.StartCreditCheckout(c.Request.Context(), &user,
		normalizeProvider(body.Provider), body.Credits, body.Amount, body.Currency)
	if errCheckout != nil {
		respond.Fail(c, errCheckout)
		return
	}
	respond.OK(c, gin.H{
		"session_id": result.SessionID,
		"url":        result.URL,
	})
}

// portalRequest defines the request body for billing portal access.
type portalRequest struct {
	Provider string `json:"provider"`
}

// Portal opens the provider's customer billing portal.
func (h *BillingHandler) Portal(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body portalRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	url, errPortal := h.billing.CreateCustomerPortal(c.Request.Context(), userID, normalizeProvider(body.Provider))
	if errPortal != nil {
		respond.Fail(c, errPortal)
		return
	}
	respond.OK(c, gin.H{"url": url})
}

// normalizeProvider defaults an empty provider selection to Stripe.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return payment.ProviderStripe
	}
	return provider
}
