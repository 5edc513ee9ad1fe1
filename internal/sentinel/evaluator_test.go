package sentinel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kordun/tresor/internal/circuitbreaker"
	"github.com/kordun/tresor/internal/scorer"
	"github.com/kordun/tresor/internal/session"
)

// countingTracker records RefreshIdle calls per user.
type countingTracker struct {
	mu       sync.Mutex
	verified map[string]bool
	refreshs map[string]int
}

func newCountingTracker() *countingTracker {
	return &countingTracker{
		verified: make(map[string]bool),
		refreshs: make(map[string]int),
	}
}

func (t *countingTracker) SetVerified(ctx context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verified[userID] = true
	return nil
}

func (t *countingTracker) Status(ctx context.Context, userID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verified[userID], nil
}

func (t *countingTracker) RefreshIdle(ctx context.Context, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshs[userID]++
	return nil
}

func (t *countingTracker) refreshCount(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshs[userID]
}

type evalFixture struct {
	sessions *session.MemoryStore
	tracker  *countingTracker
	mock     *scorer.Mock
	audit    *MemoryStore
	eval     *Evaluator
}

func newFixture(t *testing.T) *evalFixture {
	t.Helper()
	sessions := session.NewMemoryStore(time.Minute)
	t.Cleanup(sessions.Stop)

	f := &evalFixture{
		sessions: sessions,
		tracker:  newCountingTracker(),
		mock:     scorer.NewMock("ALLOW"),
		audit:    NewMemoryStore(),
	}
	breaker := circuitbreaker.New("scorer", 5, 30*time.Second)
	f.eval = NewEvaluator(sessions, f.tracker, f.mock, breaker, f.audit)
	return f
}

func (f *evalFixture) createSession(t *testing.T, id, userID string) {
	t.Helper()
	_, err := f.sessions.CreateIfAbsent(context.Background(), &session.Session{
		ID: id, UserID: userID, ClientIP: "10.1.2.3", UserAgent: "test-agent",
	})
	require.NoError(t, err)
}

func isPoolPrompt(text string) bool {
	for _, p := range prompts {
		if p == text {
			return true
		}
	}
	return false
}

func TestEvaluate_MissingSessionFailsSafe(t *testing.T) {
	f := newFixture(t)

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "ghost", ActionType: "payment_approve"})
	require.NoError(t, err)

	assert.Equal(t, DecisionChallenge, dec.Decision)
	assert.InDelta(t, 0.5, dec.Risk, 1e-9)
	assert.Equal(t, ModeFailSafe, dec.Mode)
	assert.True(t, isPoolPrompt(dec.ChallengeText), "challenge text must come from the prompt pool")
	assert.Zero(t, f.mock.EvaluationCount(), "scorer must not be called without a session")
}

func TestEvaluate_ScorerErrorFailsSafe(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Err = &scorer.UnavailableError{Status: 502}

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "limit_update"})
	require.NoError(t, err, "scorer failure must not surface as an error")

	assert.Equal(t, DecisionChallenge, dec.Decision)
	assert.InDelta(t, 0.5, dec.Risk, 1e-9)
	assert.Equal(t, ModeFailSafe, dec.Mode)
	assert.True(t, isPoolPrompt(dec.ChallengeText))
	assert.Zero(t, f.tracker.refreshCount("u1"))
}

func TestEvaluate_AllowRefreshesIdleOnce(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Response = &scorer.EvaluationResponse{Decision: "ALLOW", Risk: 0.1, Mode: "active"}

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve"})
	require.NoError(t, err)

	assert.Equal(t, DecisionAllow, dec.Decision)
	assert.Equal(t, 1, f.tracker.refreshCount("u1"))
	assert.Empty(t, dec.ChallengeText)
}

func TestEvaluate_ChallengeGetsPromptNoRefresh(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Response = &scorer.EvaluationResponse{Decision: "CHALLENGE", Risk: 0.6, Mode: "active"}

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve"})
	require.NoError(t, err)

	assert.Equal(t, DecisionChallenge, dec.Decision)
	assert.True(t, isPoolPrompt(dec.ChallengeText))
	assert.Zero(t, f.tracker.refreshCount("u1"))
}

func TestEvaluate_ChallengeKeepsScorerText(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Response = &scorer.EvaluationResponse{
		Decision: "CHALLENGE", Risk: 0.6, Mode: "active",
		ChallengeText: "type this exact sentence from the scorer",
	}

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve"})
	require.NoError(t, err)
	assert.Equal(t, "type this exact sentence from the scorer", dec.ChallengeText)
}

func TestEvaluate_BlockCarriesBanDuration(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Response = &scorer.EvaluationResponse{Decision: "BLOCK", Risk: 0.97, Mode: "active", BanExpiresIn: 900}

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "admin_balance_edit"})
	require.NoError(t, err)

	assert.Equal(t, DecisionBlock, dec.Decision)
	assert.Equal(t, 900, dec.BanExpiresIn)
	assert.Zero(t, f.tracker.refreshCount("u1"))
}

func TestEvaluate_UnknownDecisionFailsSafe(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Response = &scorer.EvaluationResponse{Decision: "MAYBE", Risk: 0.3, Mode: "active"}

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve"})
	require.NoError(t, err)
	assert.Equal(t, DecisionChallenge, dec.Decision)
	assert.Equal(t, ModeFailSafe, dec.Mode)
}

func TestEvaluate_RequestCarriesSessionContext(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	require.NoError(t, f.tracker.SetVerified(context.Background(), "u1"))

	_, err := f.eval.Evaluate(context.Background(), Input{
		SessionID:  "s1",
		Endpoint:   "/v1/payments/:id/approve",
		Method:     "POST",
		ActionType: "payment_approve",
		Resource:   "pay_123",
		Role:       "treasurer",
		DeviceID:   "fp_abc",
	})
	require.NoError(t, err)

	req := f.mock.LastEvaluation()
	require.NotNil(t, req)
	assert.Equal(t, "u1", req.UserID)
	assert.Equal(t, "10.1.2.3", req.ClientIP)
	assert.Equal(t, "test-agent", req.UserAgent)
	assert.Equal(t, ServiceID, req.Service)
	assert.Equal(t, "payment_approve", req.ActionType)
	assert.Equal(t, "pay_123", req.Resource)
	assert.Equal(t, "treasurer", req.Role)
	assert.True(t, req.MFAVerified)
	assert.False(t, req.SessionStart.IsZero())
}

func TestEvaluate_OpenBreakerSkipsScorer(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")

	breaker := circuitbreaker.New("scorer-test", 2, time.Minute)
	f.eval = NewEvaluator(f.sessions, f.tracker, f.mock, breaker, f.audit)
	f.mock.Err = &scorer.UnavailableError{Status: 503}

	// Two failures trip the circuit.
	for i := 0; i < 2; i++ {
		_, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve"})
		require.NoError(t, err)
	}
	callsBefore := f.mock.EvaluationCount()

	dec, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve"})
	require.NoError(t, err)

	assert.Equal(t, DecisionChallenge, dec.Decision)
	assert.Equal(t, ModeFailSafe, dec.Mode)
	assert.Equal(t, callsBefore, f.mock.EvaluationCount(), "open circuit must skip the network call")
}

func TestEvaluate_RecordsAuditTrail(t *testing.T) {
	f := newFixture(t)
	f.createSession(t, "s1", "u1")
	f.mock.Response = &scorer.EvaluationResponse{Decision: "ALLOW", Risk: 0.05, Mode: "active"}

	_, err := f.eval.Evaluate(context.Background(), Input{SessionID: "s1", ActionType: "payment_approve", Resource: "pay_9"})
	require.NoError(t, err)

	// Recording is async.
	require.Eventually(t, func() bool {
		recs, err := f.audit.ListBySession(context.Background(), "s1", 10)
		return err == nil && len(recs) == 1
	}, time.Second, 10*time.Millisecond)

	recs, err := f.audit.ListBySession(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, recs[0].Decision)
	assert.Equal(t, "u1", recs[0].UserID)
	assert.Equal(t, "payment_approve", recs[0].ActionType)
	assert.Equal(t, "pay_9", recs[0].Resource)
}

func TestRandomPrompt_PoolMembership(t *testing.T) {
	assert.Equal(t, 20, PromptCount())
	for i := 0; i < 50; i++ {
		assert.True(t, isPoolPrompt(RandomPrompt()))
	}
}
