// Package gate enforces risk decisions in front of sensitive back-office
// operations. It is the only place that maps a RiskDecision onto an HTTP
// outcome, so every guarded route behaves identically.
package gate

import (
	"context"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/challenge"
	"github.com/kordun/tresor/internal/sentinel"
)

// Request headers understood by the gate.
const (
	HeaderSession = "X-Sentinel-Session"
	HeaderRetry   = "X-Sentinel-Retry"
	HeaderDevice  = "X-Device-Fingerprint"
)

// Status is the gate's verdict on one request.
type Status int

const (
	// StatusProceed lets the wrapped operation run.
	StatusProceed Status = iota
	// StatusChallenge suspends the operation behind a typing prompt.
	StatusChallenge
	// StatusDenied ends a retried attempt that drew a second CHALLENGE.
	// Terminal; no further retry is offered.
	StatusDenied
	// StatusTerminated ends the session entirely.
	StatusTerminated
)

// Outcome carries the verdict plus whatever the client needs to act on it.
type Outcome struct {
	Status        Status
	ChallengeID   string
	ChallengeText string
	BanExpiresIn  int
}

// Request describes the guarded operation being attempted.
type Request struct {
	SessionID  string
	Endpoint   string
	Method     string
	ActionType string
	Resource   string
	Role       string
	DeviceID   string
	// RetryOf is the challenge id from X-Sentinel-Retry when the client is
	// re-attempting an action it already verified for.
	RetryOf string
}

// Evaluator produces risk decisions. Satisfied by *sentinel.Evaluator.
type Evaluator interface {
	Evaluate(ctx context.Context, in sentinel.Input) (*sentinel.RiskDecision, error)
}

// Gate wires the evaluator, the challenge coordinator, and the credential
// manager together.
type Gate struct {
	eval  Evaluator
	coord *challenge.Coordinator
	auth  *auth.Manager
}

// New creates a gate.
func New(eval Evaluator, coord *challenge.Coordinator, manager *auth.Manager) *Gate {
	return &Gate{eval: eval, coord: coord, auth: manager}
}

// Check evaluates one guarded request. The returned error means the session
// store itself failed; callers surface that as service-unavailable rather
// than falling open.
//
// A retry credential is only spent once the evaluation has produced a
// decision, so an infrastructure failure never burns the user's single retry.
func (g *Gate) Check(ctx context.Context, req Request) (*Outcome, error) {
	dec, err := g.eval.Evaluate(ctx, sentinel.Input{
		SessionID:  req.SessionID,
		Endpoint:   req.Endpoint,
		Method:     req.Method,
		ActionType: req.ActionType,
		Resource:   req.Resource,
		Role:       req.Role,
		DeviceID:   req.DeviceID,
	})
	if err != nil {
		return nil, err
	}

	switch dec.Decision {
	case sentinel.DecisionAllow:
		if req.RetryOf != "" {
			// Clean up the pending record; the verdict stands on its own.
			g.coord.ConsumeRetry(req.RetryOf)
		}
		return &Outcome{Status: StatusProceed}, nil

	case sentinel.DecisionBlock:
		// A high-risk verdict ends the session whether or not this attempt
		// was a verified retry; the pending record is only cleaned up.
		if req.RetryOf != "" {
			g.coord.ConsumeRetry(req.RetryOf)
		}
		return &Outcome{Status: StatusTerminated, BanExpiresIn: dec.BanExpiresIn}, nil

	default: // CHALLENGE
		if req.RetryOf != "" && g.coord.ConsumeRetry(req.RetryOf) {
			// Second adverse decision on the verified retry: terminal.
			return &Outcome{Status: StatusDenied}, nil
		}
		p := g.coord.Begin(req.SessionID, req.ActionType, req.Resource, dec.ChallengeText)
		return &Outcome{
			Status:        StatusChallenge,
			ChallengeID:   p.ID,
			ChallengeText: p.Text,
		}, nil
	}
}
