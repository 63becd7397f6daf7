package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/auroralabs/aurora/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SettingsHandler handles runtime setting endpoints.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns the effective runtime settings.
func (h *SettingsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		settings.CreditsEnabledKey:       settings.CreditsEnabled(),
		settings.PeriodKeyV2Key:          settings.PeriodKeyV2Enabled(),
		settings.DistributionPageSizeKey: settings.DistributionPageSize(),
		settings.ConsumeRateLimitKey:     settings.ConsumeRateLimit(),
	})
}

// Update writes one setting. The body is the raw JSON value for the key.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing setting key"})
		return
	}

	raw, errRead := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if errRead != nil || len(raw) == 0 || !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a json value"})
		return
	}

	if errUpsert := settings.UpsertSetting(c.Request.Context(), h.db, key, json.RawMessage(raw)); errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save setting failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
