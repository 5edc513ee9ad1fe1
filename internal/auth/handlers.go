package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kordun/tresor/internal/validation"
)

// Handler exposes the development login endpoint. In production the IdP in
// front of the back office issues credentials; this exists so the service is
// exercisable standalone.
type Handler struct {
	manager *Manager
}

// NewHandler creates an auth handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type loginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

// Login handles POST /v1/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	req.UserID = validation.SanitizeString(req.UserID, 200)
	if req.Role == "" {
		req.Role = "operator"
	}

	t := h.manager.Issue(req.UserID, req.Role)
	c.JSON(http.StatusOK, gin.H{
		"token":      t.Value,
		"user_id":    t.UserID,
		"role":       t.Role,
		"expires_at": t.ExpiresAt,
	})
}
