package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/http/api/respond"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/gin-gonic/gin"
)

// CreditsHandler handles admin credit inspection and adjustment endpoints.
type CreditsHandler struct {
	ledger *credits.Ledger
}

// NewCreditsHandler constructs a CreditsHandler.
func NewCreditsHandler(ledger *credits.Ledger) *CreditsHandler {
	return &CreditsHandler{ledger: ledger}
}

// UserCredits returns a user's balance and a page of their ledger.
func (h *CreditsHandler) UserCredits(c *gin.Context) {
	userID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	balance, errBalance := h.ledger.GetUserCredits(c.Request.Context(), userID)
	if errBalance != nil {
		respond.Fail(c, errBalance)
		return
	}
	rows, total, errList := h.ledger.ListTransactions(c.Request.Context(), userID, limit, offset)
	if errList != nil {
		respond.Fail(c, errList)
		return
	}

	respond.OK(c, gin.H{
		"credits":      balance,
		"total":        total,
		"transactions": rows,
	})
}

// adjustRequest defines the request body for manual credit adjustments.
type adjustRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ExpireDays  int    `json:"expire_days"`
}

// Adjust grants or deducts credits manually. Positive amounts create a grant
// lot; negative amounts consume from the balance.
func (h *CreditsHandler) Adjust(c *gin.Context) {
	userID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var body adjustRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Amount == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be non-zero"})
		return
	}
	description := strings.TrimSpace(body.Description)
	if description == "" {
		description = "manual adjustment"
	}

	var errAdjust error
	if body.Amount > 0 {
		errAdjust = h.ledger.AddCredits(c.Request.Context(), credits.AddParams{
			UserID:      userID,
			Amount:      body.Amount,
			Type:        models.CreditTxManualAdjustment,
			Description: description,
			ExpireDays:  body.ExpireDays,
		}, nil)
	} else {
		errAdjust = h.ledger.ConsumeCredits(c.Request.Context(), credits.ConsumeParams{
			UserID:      userID,
			Amount:      -body.Amount,
			Description: description,
		}, nil)
	}
	if errAdjust != nil {
		respond.Fail(c, errAdjust)
		return
	}

	balance, errBalance := h.ledger.GetUserCredits(c.Request.Context(), userID)
	if errBalance != nil {
		respond.Fail(c, errBalance)
		return
	}
	respond.OK(c, gin.H{"credits": balance})
}

// Expire runs lot expiration for one user immediately.
func (h *CreditsHandler) Expire(c *gin.Context) {
	userID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if errExpire := h.ledger.ProcessExpiredCredits(c.Request.Context(), userID, time.Now().UTC()); errExpire != nil {
		respond.Fail(c, errExpire)
		return
	}

	balance, errBalance := h.ledger.GetUserCredits(c.Request.Context(), userID)
	if errBalance != nil {
		respond.Fail(c, errBalance)
		return
	}
	respond.OK(c, gin.H{"credits": balance})
}
