package handlers

import (
	"net/http"
	"strconv"

	"github.com/auroralabs/aurora/internal/models"
	"github.com/auroralabs/aurora/internal/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UsersHandler handles admin user management endpoints.
type UsersHandler struct {
	db *gorm.DB
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{db: db}
}

// List returns a page of users, newest first.
func (h *UsersHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.User{})
	if email := c.Query("email"); email != "" {
		query = query.Where("email LIKE ?", "%"+email+"%")
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var users []models.User
	if errFind := query.Order("id DESC").Limit(limit).Offset(offset).Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	views := make([]gin.H, 0, len(users))
	for i := range users {
		user := &users[i]
		views = append(views, gin.H{
			"id":         user.ID,
			"email":      util.MaskEmail(user.Email),
			"banned":     user.Banned,
			"created_at": user.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"total": total,
		"users": views,
	})
}

// setBannedRequest defines the request body for ban toggling.
type setBannedRequest struct {
	Banned bool `json:"banned"`
}

// SetBanned toggles a user's banned state.
func (h *UsersHandler) SetBanned(c *gin.Context) {
	userID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var body setBannedRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("banned", body.Banned)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
