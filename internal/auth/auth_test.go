package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewManager()

	tok := m.Issue("u1", "treasurer")
	require.NotEmpty(t, tok.Value)

	got, ok := m.Validate(tok.Value)
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "treasurer", got.Role)
}

func TestValidate_UnknownToken(t *testing.T) {
	m := NewManager()
	_, ok := m.Validate("tok_nope")
	assert.False(t, ok)
}

func TestValidate_ExpiredToken(t *testing.T) {
	m := NewManager()
	m.lifetime = -time.Minute // already expired on issue

	tok := m.Issue("u1", "operator")
	_, ok := m.Validate(tok.Value)
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	m := NewManager()
	tok := m.Issue("u1", "operator")

	m.Revoke(tok.Value)
	_, ok := m.Validate(tok.Value)
	assert.False(t, ok)
}

func TestRevokeUser(t *testing.T) {
	m := NewManager()
	t1 := m.Issue("u1", "operator")
	t2 := m.Issue("u1", "operator")
	other := m.Issue("u2", "operator")

	m.RevokeUser("u1")

	_, ok := m.Validate(t1.Value)
	assert.False(t, ok)
	_, ok = m.Validate(t2.Value)
	assert.False(t, ok)
	_, ok = m.Validate(other.Value)
	assert.True(t, ok)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "tok_abc", BearerToken("Bearer tok_abc"))
	assert.Equal(t, "tok_abc", BearerToken("tok_abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager()
	tok := m.Issue("u1", "treasurer")

	r := gin.New()
	r.GET("/protected", Middleware(m), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "role": Role(c)})
	})

	// No credential
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")

	// Valid credential
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "treasurer")

	// Revoked credential
	m.Revoke(tok.Value)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
