package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/logging"
	"github.com/kordun/tresor/internal/metrics"
)

// ResourceFunc extracts the acted-on resource id from the request.
type ResourceFunc func(c *gin.Context) string

// ResourceParam returns a ResourceFunc reading a route parameter.
func ResourceParam(name string) ResourceFunc {
	return func(c *gin.Context) string {
		return c.Param(name)
	}
}

// ResourceFixed returns a ResourceFunc for routes that act on a singleton.
func ResourceFixed(resource string) ResourceFunc {
	return func(c *gin.Context) string {
		return resource
	}
}

// Require guards a sensitive route: the wrapped handler only runs on a
// Proceed verdict. Placed after auth.Middleware so identity is in context.
func Require(g *Gate, actionType string, resource ResourceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := Request{
			SessionID:  c.GetHeader(HeaderSession),
			Endpoint:   c.FullPath(),
			Method:     c.Request.Method,
			ActionType: actionType,
			Role:       auth.Role(c),
			DeviceID:   c.GetHeader(HeaderDevice),
			RetryOf:    c.GetHeader(HeaderRetry),
		}
		if resource != nil {
			req.Resource = resource(c)
		}

		out, err := g.Check(c.Request.Context(), req)
		if err != nil {
			logging.L(c.Request.Context()).Error("gate check failed",
				"action", actionType, "session_id", req.SessionID, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "sentinel_unavailable",
				"message": "Risk evaluation is unavailable. Retry shortly.",
			})
			return
		}

		switch out.Status {
		case StatusProceed:
			c.Next()

		case StatusChallenge:
			c.AbortWithStatusJSON(http.StatusPreconditionRequired, gin.H{
				"error":          "challenge_required",
				"message":        "Step-up verification required before this action.",
				"challenge_id":   out.ChallengeID,
				"challenge_text": out.ChallengeText,
			})

		case StatusDenied:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "verification_failed",
				"message": "Verification did not clear this action.",
			})

		case StatusTerminated:
			// Distinct from the plain expired-credential 401 so the UI can
			// force a full re-login instead of a token refresh.
			g.auth.Revoke(auth.TokenValue(c))
			metrics.SessionsTerminatedTotal.Inc()
			logging.L(c.Request.Context()).Warn("session terminated by policy",
				"session_id", req.SessionID, "user_id", auth.UserID(c), "action", actionType)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":                  "session_terminated",
				"message":                "Session terminated by security policy.",
				"ban_expires_in_seconds": out.BanExpiresIn,
			})
		}
	}
}
