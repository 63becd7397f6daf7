// Package respond implements the shared JSON response envelope.
package respond

import (
	"net/http"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/gin-gonic/gin"
)

// OK writes a success envelope carrying data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// Created writes a success envelope with 201.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// Error writes an error envelope with an explicit status.
func Error(c *gin.Context, status int, code apperr.ErrorCode, message string, retryable bool) {
	c.JSON(status, gin.H{
		"success":   false,
		"error":     message,
		"code":      code,
		"retryable": retryable,
	})
}

// Fail classifies err and writes the matching error envelope. Retryable
// errors map to 500 so clients and webhook senders retry; everything else is
// a 400-class caller fault.
func Fail(c *gin.Context, err error) {
	appErr := apperr.From(err)

	status := http.StatusBadRequest
	switch {
	case appErr.Retryable:
		status = http.StatusInternalServerError
	case appErr.Code == apperr.CodeSecurityViolation:
		status = http.StatusBadRequest
	case appErr.Code == apperr.CodePlanNotFound || appErr.Code == apperr.CodePriceNotFound:
		status = http.StatusNotFound
	case appErr.Code == apperr.CodeInsufficientCredits:
		status = http.StatusPaymentRequired
	}
	Error(c, status, appErr.Code, appErr.Message, appErr.Retryable)
}
