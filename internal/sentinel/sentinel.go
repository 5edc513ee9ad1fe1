// Package sentinel implements the behavioral risk evaluator: it assembles
// session and MFA state into a scoring request, calls the external scorer,
// and resolves every failure mode into one of three decisions. The policy is
// fail-safe-to-CHALLENGE: a missing session or an unreachable scorer costs
// the user a typing prompt, never an outage and never a silent allow.
package sentinel

import (
	"context"
	"time"
)

// Decision is the three-way outcome of a risk evaluation.
type Decision string

const (
	DecisionAllow     Decision = "ALLOW"
	DecisionChallenge Decision = "CHALLENGE"
	DecisionBlock     Decision = "BLOCK"
)

// ModeFailSafe marks decisions produced locally when the scorer could not be
// consulted.
const ModeFailSafe = "fail-safe"

// failSafeRisk is the risk attached to fail-safe decisions.
const failSafeRisk = 0.5

// RiskDecision is the ephemeral result of one evaluation. Not persisted as
// business state; the audit store keeps a best-effort operational trail.
type RiskDecision struct {
	Decision      Decision `json:"decision"`
	Risk          float64  `json:"risk"`
	Mode          string   `json:"mode"`
	ChallengeText string   `json:"challenge_text,omitempty"`
	BanExpiresIn  int      `json:"ban_expires_in_seconds,omitempty"`
}

// Input describes the sensitive action under evaluation.
type Input struct {
	SessionID  string
	Endpoint   string
	Method     string
	ActionType string
	Resource   string
	Role       string
	DeviceID   string
}

// Record is one audit-trail entry for a completed evaluation.
type Record struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	ActionType string    `json:"actionType"`
	Resource   string    `json:"resource"`
	Decision   Decision  `json:"decision"`
	Risk       float64   `json:"risk"`
	Mode       string    `json:"mode"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists evaluation records for anomaly tracking.
type Store interface {
	Record(ctx context.Context, rec *Record) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Record, error)
}
