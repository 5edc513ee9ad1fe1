// Package mfa tracks the behavioral-verification flag per user with dual TTL
// semantics: an absolute ceiling fixed at verification time and an idle
// window that may only shorten remaining life, never extend it.
package mfa

import "context"

// Tracker records which users currently count as behaviorally verified.
// Expiry is silent: an expired or unknown user is simply not verified.
type Tracker interface {
	// SetVerified marks the user verified and sets remaining life to the
	// absolute ceiling.
	SetVerified(ctx context.Context, userID string) error

	// Status reports whether the user is currently verified. Unknown and
	// expired users are not verified — never an error.
	Status(ctx context.Context, userID string) (bool, error)

	// RefreshIdle shortens remaining life to the idle window, but only when
	// current remaining life exceeds it. Called after every ALLOW decision.
	// A no-op for unknown users.
	RefreshIdle(ctx context.Context, userID string) error
}
