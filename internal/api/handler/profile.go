package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"peerzee/backend/internal/models"
)

type profileRequest struct {
	DisplayName string   `json:"display_name" binding:"max=64"`
	Age         int      `json:"age" binding:"omitempty,min=18,max=120"`
	Gender      string   `json:"gender" binding:"omitempty,oneof=male female unknown"`
	Interests   []string `json:"interests" binding:"max=20"`
}

// PutProfile зберігає профіль власника токена. Without a profile the
// user matches as gender unknown.
func (h *Handler) PutProfile(c *gin.Context) {
	anonID, err := h.validateAndGetAnonID(bearerToken(c))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Gender == "" {
		req.Gender = string(models.GenderUnknown)
	}

	user := &models.User{
		ID:          anonID,
		DisplayName: req.DisplayName,
		Age:         req.Age,
		Gender:      req.Gender,
		Interests:   pq.StringArray(req.Interests),
	}
	if err := h.Profiles.SaveProfile(c.Request.Context(), user); err != nil {
		h.Logger.Error("failed to save profile", "user_id", anonID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}
