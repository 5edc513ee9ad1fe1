// Package telemetry implements the behavioral telemetry ingress: per-stream
// batch endpoints that anchor sessions on first contact, reject replayed or
// stale batches, and forward accepted batches to the scorer.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/gate"
	"github.com/kordun/tresor/internal/logging"
	"github.com/kordun/tresor/internal/metrics"
	"github.com/kordun/tresor/internal/session"
	"github.com/kordun/tresor/internal/validation"
)

// forwardTimeout bounds the background delivery of one accepted batch.
const forwardTimeout = 10 * time.Second

// Handler serves the telemetry ingress endpoints.
type Handler struct {
	sessions  session.Store
	forwarder *Forwarder
}

// NewHandler creates a telemetry handler.
func NewHandler(sessions session.Store, forwarder *Forwarder) *Handler {
	return &Handler{sessions: sessions, forwarder: forwarder}
}

// RegisterRoutes mounts one endpoint per stream.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	for _, stream := range session.Streams {
		r.POST("/telemetry/"+string(stream), h.ingest(stream))
	}
}

// batchEnvelope is the minimal shape the ingress validates. Event contents
// are the scorer's concern and pass through untouched.
type batchEnvelope struct {
	BatchID *uint64           `json:"batch_id"`
	Events  []json.RawMessage `json:"events"`
}

func (h *Handler) ingest(stream session.Stream) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logging.L(ctx)

		sessionID := c.GetHeader(gate.HeaderSession)
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "missing_session",
				"message": "X-Sentinel-Session header is required.",
			})
			return
		}
		if !validation.IsValidSessionID(sessionID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_session",
				"message": "X-Sentinel-Session header is malformed.",
			})
			return
		}

		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Unreadable request body.",
			})
			return
		}

		var batch batchEnvelope
		if err := json.Unmarshal(raw, &batch); err != nil || batch.BatchID == nil || len(batch.Events) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Body must be JSON with batch_id and a non-empty events array.",
			})
			return
		}

		// First contact anchors the session's identity fields. On any later
		// batch the created flag is false and the fields sent here are
		// ignored in favor of the anchored ones.
		anchor := &session.Session{
			ID:        sessionID,
			UserID:    auth.UserID(c),
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if _, err := h.sessions.CreateIfAbsent(ctx, anchor); err != nil {
			log.Error("session anchor failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sentinel_unavailable"})
			return
		}

		accepted, err := h.sessions.ValidateAndAdvance(ctx, sessionID, stream, *batch.BatchID)
		if errors.Is(err, session.ErrNotFound) {
			// Expired between anchor and validation. Re-anchor once.
			if _, err = h.sessions.CreateIfAbsent(ctx, anchor); err == nil {
				accepted, err = h.sessions.ValidateAndAdvance(ctx, sessionID, stream, *batch.BatchID)
			}
		}
		if err != nil {
			log.Error("batch validation failed", "session_id", sessionID, "stream", stream, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sentinel_unavailable"})
			return
		}

		if !accepted {
			metrics.ReplayRejectionsTotal.WithLabelValues(string(stream)).Inc()
			log.Warn("replayed batch rejected",
				"session_id", sessionID, "stream", stream, "batch_id", *batch.BatchID)
			c.JSON(http.StatusConflict, gin.H{
				"error":   "replay_rejected",
				"message": "Batch id must be strictly greater than the last accepted batch.",
			})
			return
		}

		metrics.TelemetryBatchesTotal.WithLabelValues(string(stream)).Inc()

		// Best-effort delivery; the client's 204 does not wait on the scorer.
		go func() {
			fctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
			defer cancel()
			if err := h.forwarder.Forward(fctx, sessionID, stream, raw); err != nil {
				log.Warn("batch forward failed",
					"session_id", sessionID, "stream", stream, "error", err)
			}
		}()

		c.Status(http.StatusNoContent)
	}
}
