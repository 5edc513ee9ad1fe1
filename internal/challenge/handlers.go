package challenge

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/logging"
	"github.com/kordun/tresor/internal/mfa"
)

// Completion thresholds. The UI scores the typed text; these are a courtesy
// re-check so an honest client cannot accidentally resolve a failed attempt.
const (
	MinMatchRatio    = 0.85
	MinCoverageRatio = 0.90
)

// Handler exposes the two-step challenge protocol over HTTP.
type Handler struct {
	coord *Coordinator
	mfa   mfa.Tracker
}

// NewHandler creates a challenge handler. Completing a challenge marks the
// session's user behaviorally verified via the tracker.
func NewHandler(coord *Coordinator, tracker mfa.Tracker) *Handler {
	return &Handler{coord: coord, mfa: tracker}
}

// RegisterRoutes sets up challenge endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/challenges/:id/complete", h.Complete)
	r.POST("/challenges/:id/cancel", h.Cancel)
}

type completeRequest struct {
	MatchRatio    float64 `json:"match_ratio"`
	CoverageRatio float64 `json:"coverage_ratio"`
}

// Complete handles POST /v1/challenges/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if req.MatchRatio < MinMatchRatio || req.CoverageRatio < MinCoverageRatio {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "challenge_not_passed",
			"message": "Typed text did not match the prompt closely enough. Try again.",
		})
		return
	}

	id := c.Param("id")
	if err := h.coord.Complete(id); err != nil {
		respondTransitionError(c, err)
		return
	}

	// The verified flag belongs to whoever typed the prompt, so it is bound
	// to the authenticated caller, never to anything in the request body.
	userID := auth.UserID(c)
	if err := h.mfa.SetVerified(c.Request.Context(), userID); err != nil {
		// Verification state is advisory for scoring; the retry is armed
		// regardless.
		logging.L(c.Request.Context()).Warn("set verified failed", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "resolved",
		"message": "Challenge completed. Retry the original action once.",
	})
}

// Cancel handles POST /v1/challenges/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.coord.Cancel(id); err != nil {
		respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "cancelled",
		"message": "Verification cancelled. The original action was not performed.",
	})
}

func respondTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "challenge_not_found",
			"message": "No pending challenge with that id. It may have expired.",
		})
	case errors.Is(err, ErrAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "challenge_already_resolved",
			"message": "This challenge was already completed.",
		})
	case errors.Is(err, ErrCancelled):
		c.JSON(http.StatusGone, gin.H{
			"error":   "challenge_cancelled",
			"message": "This challenge was cancelled.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
	}
}
