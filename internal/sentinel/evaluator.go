package sentinel

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kordun/tresor/internal/circuitbreaker"
	"github.com/kordun/tresor/internal/idgen"
	"github.com/kordun/tresor/internal/logging"
	"github.com/kordun/tresor/internal/metrics"
	"github.com/kordun/tresor/internal/mfa"
	"github.com/kordun/tresor/internal/scorer"
	"github.com/kordun/tresor/internal/session"
	"github.com/kordun/tresor/internal/traces"
)

// ServiceID identifies this application in scoring requests.
const ServiceID = "tresor-backoffice"

// Evaluator turns session state plus a scorer verdict into a RiskDecision.
type Evaluator struct {
	sessions session.Store
	mfa      mfa.Tracker
	scorer   scorer.Client
	breaker  *circuitbreaker.Breaker
	audit    Store
}

// NewEvaluator wires the evaluator's dependencies. audit may be nil.
func NewEvaluator(sessions session.Store, tracker mfa.Tracker, client scorer.Client, breaker *circuitbreaker.Breaker, audit Store) *Evaluator {
	return &Evaluator{
		sessions: sessions,
		mfa:      tracker,
		scorer:   client,
		breaker:  breaker,
		audit:    audit,
	}
}

// Evaluate runs one risk evaluation for a sensitive action.
//
// Only a session-store failure propagates as an error: without session state
// no decision is possible at all. Every scorer-side failure resolves into the
// fail-safe CHALLENGE decision instead.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*RiskDecision, error) {
	ctx, span := traces.StartSpan(ctx, "sentinel.evaluate",
		traces.SessionID(in.SessionID),
		traces.ActionType(in.ActionType),
	)
	defer span.End()

	log := logging.L(ctx)

	sess, err := e.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		// No telemetry contact before a sensitive action is an anomaly,
		// but it degrades to "prove you're human", not a denial.
		log.Warn("evaluation without session", "session_id", in.SessionID, "action", in.ActionType)
		return e.failSafe(ctx, in, "", "missing_session"), nil
	}

	verified := false
	if v, err := e.mfa.Status(ctx, sess.UserID); err != nil {
		// Degrade to not-verified; the scorer weighs MFA as one signal
		// among many.
		log.Warn("mfa status lookup failed", "user_id", sess.UserID, "error", err)
	} else {
		verified = v
	}

	req := &scorer.EvaluationRequest{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		ClientIP:     sess.ClientIP,
		UserAgent:    sess.UserAgent,
		Endpoint:     in.Endpoint,
		Method:       in.Method,
		Service:      ServiceID,
		ActionType:   in.ActionType,
		Resource:     in.Resource,
		Role:         in.Role,
		MFAVerified:  verified,
		SessionStart: sess.StartedAt,
		DeviceID:     in.DeviceID,
	}

	if !e.breaker.Allow() {
		metrics.ScorerRequestsTotal.WithLabelValues("circuit_open").Inc()
		log.Warn("scorer circuit open, failing safe", "session_id", sess.ID)
		return e.failSafe(ctx, in, sess.UserID, "circuit_open"), nil
	}

	resp, err := e.scorer.Evaluate(ctx, req)
	if err != nil {
		e.breaker.RecordFailure()
		metrics.ScorerRequestsTotal.WithLabelValues("error").Inc()
		log.Warn("scorer call failed, failing safe", "session_id", sess.ID, "error", err)
		return e.failSafe(ctx, in, sess.UserID, "scorer_error"), nil
	}
	e.breaker.RecordSuccess()
	metrics.ScorerRequestsTotal.WithLabelValues("ok").Inc()

	dec := &RiskDecision{
		Risk: resp.Risk,
		Mode: resp.Mode,
	}
	switch Decision(strings.ToUpper(resp.Decision)) {
	case DecisionAllow:
		dec.Decision = DecisionAllow
	case DecisionChallenge:
		dec.Decision = DecisionChallenge
		dec.ChallengeText = resp.ChallengeText
		if dec.ChallengeText == "" {
			dec.ChallengeText = RandomPrompt()
		}
	case DecisionBlock:
		dec.Decision = DecisionBlock
		dec.BanExpiresIn = resp.BanExpiresIn
	default:
		// An unrecognized verdict is a malformed response.
		log.Warn("scorer returned unknown decision, failing safe", "decision", resp.Decision)
		return e.failSafe(ctx, in, sess.UserID, "scorer_error"), nil
	}

	if dec.Decision == DecisionAllow {
		if err := e.mfa.RefreshIdle(ctx, sess.UserID); err != nil {
			log.Warn("mfa idle refresh failed", "user_id", sess.UserID, "error", err)
		}
	}

	span.SetAttributes(traces.Decision(string(dec.Decision)))
	metrics.DecisionsTotal.WithLabelValues(string(dec.Decision), dec.Mode).Inc()
	e.record(in, sess.UserID, dec, log)

	return dec, nil
}

// failSafe produces the degraded CHALLENGE decision used whenever the scorer
// cannot be consulted.
func (e *Evaluator) failSafe(ctx context.Context, in Input, userID, cause string) *RiskDecision {
	metrics.FailSafeTotal.WithLabelValues(cause).Inc()

	dec := &RiskDecision{
		Decision:      DecisionChallenge,
		Risk:          failSafeRisk,
		Mode:          ModeFailSafe,
		ChallengeText: RandomPrompt(),
	}
	metrics.DecisionsTotal.WithLabelValues(string(dec.Decision), dec.Mode).Inc()
	e.record(in, userID, dec, logging.L(ctx))
	return dec
}

// record appends to the audit trail asynchronously (best effort).
func (e *Evaluator) record(in Input, userID string, dec *RiskDecision, log *slog.Logger) {
	if e.audit == nil {
		return
	}
	rec := &Record{
		ID:         idgen.WithPrefix("dec_"),
		SessionID:  in.SessionID,
		UserID:     userID,
		ActionType: in.ActionType,
		Resource:   in.Resource,
		Decision:   dec.Decision,
		Risk:       dec.Risk,
		Mode:       dec.Mode,
		CreatedAt:  time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.audit.Record(ctx, rec); err != nil {
			log.Warn("audit record failed", "decision_id", rec.ID, "error", err)
		}
	}()
}
