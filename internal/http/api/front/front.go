// Package front wires the end-user HTTP API.
package front

import (
	"net/http"
	"strings"

	"github.com/auroralabs/aurora/internal/billing"
	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/http/api/front/handlers"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/ratelimit"
	"github.com/auroralabs/aurora/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers public and authenticated front-end routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, ledger *credits.Ledger, service *billing.Service, limiter ratelimit.Limiter) {
	if r == nil || db == nil {
		return
	}

	front := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(db, jwtCfg, service)
	front.POST("/register", authHandler.Register)
	front.POST("/login", authHandler.Login)
	front.POST("/login/totp", authHandler.LoginTOTP)

	authed := front.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	profileHandler := handlers.NewProfileHandler(db, ledger)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	creditsHandler := handlers.NewCreditsHandler(ledger, limiter)
	authed.GET("/credits/balance", creditsHandler.Balance)
	authed.GET("/credits/transactions", creditsHandler.Transactions)
	authed.POST("/credits/consume", creditsHandler.Consume)

	billingHandler := handlers.NewBillingHandler(db, service)
	authed.GET("/billing/plans", billingHandler.Plans)
	authed.GET("/billing/current-plan", billingHandler.CurrentPlan)
	authed.POST("/billing/checkout", billingHandler.Checkout)
	authed.POST("/billing/credits/checkout", billingHandler.CreditCheckout)
	authed.POST("/billing/portal", billingHandler.Portal)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Banned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user banned"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
