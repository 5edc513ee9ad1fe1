package treasury

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/gate"
)

// Handler exposes the back-office HTTP surface. Reads are open to any
// authenticated operator; every mutation sits behind the gate.
type Handler struct {
	svc *Service
	sim *Simulator
	g   *gate.Gate
}

// NewHandler creates a treasury handler.
func NewHandler(svc *Service, sim *Simulator, g *gate.Gate) *Handler {
	return &Handler{svc: svc, sim: sim, g: g}
}

// RegisterRoutes mounts the back-office routes on an authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/payments", h.listPayments)
	r.GET("/payments/:id", h.getPayment)
	r.POST("/payments/:id/approve",
		gate.Require(h.g, "payment_approve", gate.ResourceParam("id")), h.approvePayment)
	r.POST("/payments/:id/reject",
		gate.Require(h.g, "payment_reject", gate.ResourceParam("id")), h.rejectPayment)

	r.GET("/accounts", h.listAccounts)
	r.GET("/accounts/:id", h.getAccount)
	r.PUT("/accounts/:id/limit",
		gate.Require(h.g, "limit_update", gate.ResourceParam("id")), h.updateLimit)

	r.GET("/users/onboarding", h.listOnboardings)
	r.POST("/users/onboarding/:id/approve",
		gate.Require(h.g, "user_approve", gate.ResourceParam("id")), h.approveOnboarding)
	r.POST("/users/onboarding/:id/reject",
		gate.Require(h.g, "user_reject", gate.ResourceParam("id")), h.rejectOnboarding)

	r.POST("/admin/accounts/:id/adjust",
		gate.Require(h.g, "balance_adjust", gate.ResourceParam("id")), h.adjustBalance)

	r.GET("/simulator", h.simulatorStatus)
	r.POST("/simulator/start",
		gate.Require(h.g, "simulator_control", gate.ResourceFixed("simulator")), h.startSimulator)
	r.POST("/simulator/stop",
		gate.Require(h.g, "simulator_control", gate.ResourceFixed("simulator")), h.stopSimulator)
	r.PUT("/simulator/config",
		gate.Require(h.g, "simulator_control", gate.ResourceFixed("simulator")), h.configureSimulator)
}

func (h *Handler) listPayments(c *gin.Context) {
	status := PaymentStatus(c.Query("status"))

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	cursor, err := decodeCursor(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "Cursor is malformed."})
		return
	}

	items, next, hasMore := pageAfter(h.svc.ListPayments(status), cursor, limit)
	c.JSON(http.StatusOK, gin.H{
		"payments":    items,
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

func (h *Handler) getPayment(c *gin.Context) {
	p, err := h.svc.GetPayment(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Payment not found."})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) approvePayment(c *gin.Context) {
	p, err := h.svc.ApprovePayment(c.Param("id"), auth.UserID(c))
	if err != nil {
		respondDecisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) rejectPayment(c *gin.Context) {
	p, err := h.svc.RejectPayment(c.Param("id"), auth.UserID(c))
	if err != nil {
		respondDecisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"accounts": h.svc.ListAccounts()})
}

func (h *Handler) getAccount(c *gin.Context) {
	a, err := h.svc.GetAccount(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Account not found."})
		return
	}
	c.JSON(http.StatusOK, a)
}

type limitRequest struct {
	DailyLimitCents int64 `json:"daily_limit_cents" binding:"required,gt=0"`
}

func (h *Handler) updateLimit(c *gin.Context) {
	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	a, err := h.svc.UpdateLimit(c.Param("id"), req.DailyLimitCents)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Account not found."})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) listOnboardings(c *gin.Context) {
	status := OnboardingStatus(c.Query("status"))
	c.JSON(http.StatusOK, gin.H{"onboardings": h.svc.ListOnboardings(status)})
}

func (h *Handler) approveOnboarding(c *gin.Context) {
	o, err := h.svc.DecideOnboarding(c.Param("id"), true, auth.UserID(c))
	if err != nil {
		respondDecisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) rejectOnboarding(c *gin.Context) {
	o, err := h.svc.DecideOnboarding(c.Param("id"), false, auth.UserID(c))
	if err != nil {
		respondDecisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type adjustRequest struct {
	DeltaCents int64  `json:"delta_cents" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

func (h *Handler) adjustBalance(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	a, err := h.svc.AdjustBalance(c.Param("id"), req.DeltaCents)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Account not found."})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) simulatorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.sim.Running()})
}

func (h *Handler) startSimulator(c *gin.Context) {
	h.sim.Start()
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (h *Handler) stopSimulator(c *gin.Context) {
	h.sim.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

type simulatorConfigRequest struct {
	IntervalSeconds int   `json:"interval_seconds" binding:"required,gt=0"`
	MaxAmountCents  int64 `json:"max_amount_cents" binding:"required,gt=0"`
}

func (h *Handler) configureSimulator(c *gin.Context) {
	var req simulatorConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	h.sim.Configure(time.Duration(req.IntervalSeconds)*time.Second, req.MaxAmountCents)
	c.JSON(http.StatusOK, gin.H{"running": h.sim.Running()})
}

func respondDecisionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrOnboardingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, ErrAlreadyDecided):
		c.JSON(http.StatusConflict, gin.H{"error": "already_decided", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
	}
}
