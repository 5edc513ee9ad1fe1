package challenge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/mfa"
)

type handlerFixture struct {
	coord   *Coordinator
	tracker *mfa.MemoryTracker
	manager *auth.Manager
	router  *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		coord:   NewCoordinator(5 * time.Minute),
		tracker: mfa.NewMemoryTracker(12*time.Hour, 30*time.Minute),
		manager: auth.NewManager(),
	}
	t.Cleanup(f.coord.Stop)
	t.Cleanup(f.tracker.Stop)

	f.router = gin.New()
	grp := f.router.Group("/v1")
	grp.Use(auth.Middleware(f.manager))
	NewHandler(f.coord, f.tracker).RegisterRoutes(grp)
	return f
}

func (f *handlerFixture) post(token, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func TestComplete_MarksCallerVerified(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.manager.Issue("u1", "treasurer")
	p := f.coord.Begin("sess-1", "payment_approve", "pay_1", "prompt")

	w := f.post(token.Value, "/v1/challenges/"+p.ID+"/complete",
		`{"match_ratio":0.97,"coverage_ratio":1.0}`)

	require.Equal(t, http.StatusOK, w.Code)
	verified, err := f.tracker.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, verified)
	assert.True(t, f.coord.ConsumeRetry(p.ID), "retry must be armed")
}

func TestComplete_IgnoresBodyUserID(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.manager.Issue("mallory", "operator")
	p := f.coord.Begin("sess-m", "payment_approve", "pay_1", "prompt")

	// A user_id smuggled into the body must never verify someone else.
	w := f.post(token.Value, "/v1/challenges/"+p.ID+"/complete",
		`{"user_id":"victim","match_ratio":1.0,"coverage_ratio":1.0}`)

	require.Equal(t, http.StatusOK, w.Code)
	verified, err := f.tracker.Status(context.Background(), "victim")
	require.NoError(t, err)
	assert.False(t, verified, "body-supplied user must stay unverified")
	verified, err = f.tracker.Status(context.Background(), "mallory")
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestComplete_RejectsLowRatios(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.manager.Issue("u1", "treasurer")
	p := f.coord.Begin("sess-1", "payment_approve", "pay_1", "prompt")

	w := f.post(token.Value, "/v1/challenges/"+p.ID+"/complete",
		`{"match_ratio":0.4,"coverage_ratio":1.0}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "challenge_not_passed")
	assert.False(t, f.coord.ConsumeRetry(p.ID), "failed attempt must not arm the retry")

	verified, err := f.tracker.Status(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestCancel_ReportsCancelled(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.manager.Issue("u1", "treasurer")
	p := f.coord.Begin("sess-1", "payment_approve", "pay_1", "prompt")

	w := f.post(token.Value, "/v1/challenges/"+p.ID+"/cancel", `{}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cancelled")
	assert.False(t, f.coord.ConsumeRetry(p.ID))
}

func TestComplete_UnknownChallengeIs404(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.manager.Issue("u1", "treasurer")

	w := f.post(token.Value, "/v1/challenges/chal_missing/complete",
		`{"match_ratio":1.0,"coverage_ratio":1.0}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "challenge_not_found")
}
