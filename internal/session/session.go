// Package session implements the sentinel session store: per-session metadata
// with a sliding expiry, plus the per-stream batch sequence counters behind
// replay rejection.
//
// The store is the only shared mutable state in the gating subsystem. All
// mutation goes through two atomic primitives: CreateIfAbsent and
// ValidateAndAdvance. A store failure is a hard dependency failure — callers
// must propagate it, never fail open.
package session

import (
	"context"
	"errors"
	"time"
)

// Stream identifies one independent telemetry input stream.
type Stream string

const (
	StreamKeyboard Stream = "keyboard"
	StreamPointer  Stream = "pointer"
)

// Streams lists all known telemetry streams.
var Streams = []Stream{StreamKeyboard, StreamPointer}

// Valid reports whether s is a known stream.
func (s Stream) Valid() bool {
	return s == StreamKeyboard || s == StreamPointer
}

// Session holds per-browsing-session sentinel state. The identity fields are
// immutable once set; only the batch counters advance.
type Session struct {
	ID        string
	UserID    string
	ClientIP  string
	UserAgent string
	StartedAt time.Time
	LastBatch map[Stream]uint64
}

// ErrNotFound is returned by ValidateAndAdvance when the session does not
// exist (or has expired between contact and validation).
var ErrNotFound = errors.New("session not found")

// Store is the keyed session store with per-key sliding expiry.
type Store interface {
	// CreateIfAbsent atomically creates the session if no live record exists.
	// Returns whether this call created the record; when it did not, the
	// stored fields are the first creator's and the caller's are discarded.
	// Either way the sliding expiry is refreshed.
	CreateIfAbsent(ctx context.Context, s *Session) (created bool, err error)

	// Get returns the current session, refreshing the sliding expiry as a
	// side effect. A missing or expired session yields (nil, nil) — absence
	// is a degraded state, not an error.
	Get(ctx context.Context, id string) (*Session, error)

	// ValidateAndAdvance atomically compares candidateBatchID against the
	// last accepted value for (id, stream). Strictly greater: stores the
	// candidate, refreshes the expiry, returns true. Otherwise returns false
	// without mutating anything. Returns ErrNotFound if the session is gone.
	ValidateAndAdvance(ctx context.Context, id string, stream Stream, candidateBatchID uint64) (accepted bool, err error)
}
