package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/http/api/respond"
	"github.com/auroralabs/aurora/internal/ratelimit"
	"github.com/auroralabs/aurora/internal/settings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// CreditsHandler handles the end-user credit endpoints.
type CreditsHandler struct {
	ledger  *credits.Ledger
	limiter ratelimit.Limiter
}

// NewCreditsHandler constructs a CreditsHandler.
func NewCreditsHandler(ledger *credits.Ledger, limiter ratelimit.Limiter) *CreditsHandler {
	return &CreditsHandler{ledger: ledger, limiter: limiter}
}

// Balance returns the user's current credit balance.
func (h *CreditsHandler) Balance(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	balance, errBalance := h.ledger.GetUserCredits(c.Request.Context(), userID)
	if errBalance != nil {
		respond.Fail(c, errBalance)
		return
	}
	respond.OK(c, gin.H{"credits": balance})
}

// Transactions returns a page of the user's credit ledger, newest first.
func (h *CreditsHandler) Transactions(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, total, errList := h.ledger.ListTransactions(c.Request.Context(), userID, limit, offset)
	if errList != nil {
		respond.Fail(c, errList)
		return
	}
	respond.OK(c, gin.H{
		"total":        total,
		"transactions": rows,
	})
}

// consumeRequest defines the request body for credit consumption.
type consumeRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// Consume deducts credits from the user's balance. Rate limited per user.
func (h *CreditsHandler) Consume(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	allowed, errLimit := h.limiter.Allow(c.Request.Context(),
		fmt.Sprintf("consume:%d", userID), settings.ConsumeRateLimit(), time.Minute)
	if errLimit != nil {
		// A broken limiter backend should not take consumption down.
		log.WithError(errLimit).Warn("credits: rate limiter check failed")
	} else if !allowed {
		respond.Error(c, http.StatusTooManyRequests, apperr.CodeUnexpected, "rate limit exceeded", true)
		return
	}

	var body consumeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	errConsume := h.ledger.ConsumeCredits(c.Request.Context(), credits.ConsumeParams{
		UserID:      userID,
		Amount:      body.Amount,
		Description: strings.TrimSpace(body.Description),
	}, nil)
	if errConsume != nil {
		respond.Fail(c, errConsume)
		return
	}

	balance, errBalance := h.ledger.GetUserCredits(c.Request.Context(), userID)
	if errBalance != nil {
		respond.Fail(c, errBalance)
		return
	}
	respond.OK(c, gin.H{"credits": balance})
}
