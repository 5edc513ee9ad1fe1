package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middleware.
const (
	ContextKeyUserID = "authUserID"
	ContextKeyRole   = "authRole"
	ContextKeyToken  = "authToken"
)

// Middleware rejects requests without a valid bearer credential and exposes
// the authenticated identity in the gin context. The response is the plain
// expired-credential 401 — the gate's policy termination uses a distinct
// marker so the client can tell the two apart.
func Middleware(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		value := BearerToken(c.GetHeader("Authorization"))
		if value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Credential required. Include 'Authorization: Bearer tok_...' header.",
			})
			return
		}

		t, ok := m.Validate(value)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Credential is invalid or expired.",
			})
			return
		}

		c.Set(ContextKeyUserID, t.UserID)
		c.Set(ContextKeyRole, t.Role)
		c.Set(ContextKeyToken, t.Value)
		c.Next()
	}
}

// UserID returns the authenticated user id from context.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// Role returns the authenticated role from context.
func Role(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

// TokenValue returns the credential used on this request.
func TokenValue(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}
