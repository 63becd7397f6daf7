// Package admin wires the administrator HTTP API.
package admin

import (
	"net/http"
	"strings"

	"github.com/auroralabs/aurora/internal/config"
	"github.com/auroralabs/aurora/internal/credits"
	"github.com/auroralabs/aurora/internal/http/api/admin/handlers"
	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers administrator routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, ledger *credits.Ledger) {
	if r == nil || db == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	usersHandler := handlers.NewUsersHandler(db)
	authed.GET("/users", usersHandler.List)
	authed.PUT("/users/:id/banned", usersHandler.SetBanned)

	creditsHandler := handlers.NewCreditsHandler(ledger)
	authed.GET("/users/:id/credits", creditsHandler.UserCredits)
	authed.POST("/users/:id/credits/adjust", creditsHandler.Adjust)
	authed.POST("/users/:id/credits/expire", creditsHandler.Expire)

	settingsHandler := handlers.NewSettingsHandler(db)
	authed.GET("/settings", settingsHandler.List)
	authed.PUT("/settings/:key", settingsHandler.Update)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, strings.TrimSpace(token))
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
