// Package scorer provides the client for the external behavioral risk
// scoring service. The scorer is a black box: it ingests raw telemetry
// batches and answers risk evaluations with a three-way decision.
package scorer

import (
	"context"
	"fmt"
	"time"
)

// EvaluationRequest bundles everything the scorer needs for one decision:
// request context, business context, role, MFA status, and session age.
type EvaluationRequest struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	ClientIP     string    `json:"client_ip"`
	UserAgent    string    `json:"user_agent"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	Service      string    `json:"service"`
	ActionType   string    `json:"action_type"`
	Resource     string    `json:"resource"`
	Role         string    `json:"role"`
	MFAVerified  bool      `json:"mfa_verified"`
	SessionStart time.Time `json:"session_start_time"`
	DeviceID     string    `json:"device_id,omitempty"`
}

// EvaluationResponse is the scorer's verdict.
type EvaluationResponse struct {
	Decision      string  `json:"decision"`
	Risk          float64 `json:"risk"`
	Mode          string  `json:"mode"`
	ChallengeText string  `json:"challenge_text,omitempty"`
	BanExpiresIn  int     `json:"ban_expires_in_seconds,omitempty"`
}

// UnavailableError covers every way a scorer call can fail: transport error,
// timeout, non-2xx status, or an undecodable body. Callers treat all of them
// identically (fail-safe), so one type carries the lot.
type UnavailableError struct {
	Status int // HTTP status when the server answered, 0 otherwise
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("scorer unavailable: status %d", e.Status)
	}
	return fmt.Sprintf("scorer unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client talks to the scoring service.
type Client interface {
	// Evaluate requests one risk decision. A single attempt, no retry:
	// the evaluator's fail-safe policy handles failures.
	Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResponse, error)

	// ForwardBatch delivers a validated telemetry batch for the given
	// session and stream. The payload is passed through untouched.
	ForwardBatch(ctx context.Context, sessionID, stream string, payload []byte) error
}
