// Package challenge coordinates the step-up verification handshake: a
// CHALLENGE decision suspends the original action, the user types the
// prompt, and exactly one retry of the action is permitted after resolution.
package challenge

import (
	"errors"
	"sync"
	"time"

	"github.com/kordun/tresor/internal/idgen"
	"github.com/kordun/tresor/internal/metrics"
)

// State of one pending action attempt.
type State int

const (
	StateChallenged State = iota // Prompt issued, action suspended
	StateResolved                // User completed the prompt, one retry armed
	StateRejected                // User cancelled, action must not be retried
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateChallenged:
		return "challenged"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Typed transition errors.
var (
	ErrNotFound        = errors.New("challenge not found")
	ErrAlreadyResolved = errors.New("challenge already resolved")
	ErrCancelled       = errors.New("challenge was cancelled")
)

// Pending is one suspended action attempt awaiting verification.
type Pending struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	ActionType string    `json:"actionType"`
	Resource   string    `json:"resource"`
	Text       string    `json:"text"`
	State      State     `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Coordinator tracks pending challenges. The server never blocks waiting for
// the user: the record sits here until completed, cancelled, or swept once
// its TTL lapses.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*Pending
	ttl     time.Duration
	stop    chan struct{}
	now     func() time.Time // overridable in tests
}

// NewCoordinator creates a coordinator. Pending records older than ttl are
// swept.
func NewCoordinator(ttl time.Duration) *Coordinator {
	c := &Coordinator{
		pending: make(map[string]*Pending),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor()
	return c
}

// Stop terminates the janitor goroutine.
func (c *Coordinator) Stop() {
	close(c.stop)
}

func (c *Coordinator) janitor() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			cutoff := c.now().Add(-c.ttl)
			for id, p := range c.pending {
				if p.CreatedAt.Before(cutoff) {
					delete(c.pending, id)
					metrics.ChallengesTotal.WithLabelValues("expired").Inc()
					metrics.PendingChallenges.Dec()
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

// Begin registers a new pending challenge for a suspended action.
func (c *Coordinator) Begin(sessionID, actionType, resource, text string) *Pending {
	p := &Pending{
		ID:         idgen.WithPrefix("chal_"),
		SessionID:  sessionID,
		ActionType: actionType,
		Resource:   resource,
		Text:       text,
		State:      StateChallenged,
		CreatedAt:  c.now(),
	}

	c.mu.Lock()
	c.pending[p.ID] = p
	c.mu.Unlock()

	metrics.ChallengesTotal.WithLabelValues("issued").Inc()
	metrics.PendingChallenges.Inc()
	return p
}

// Get returns the pending challenge, if any.
func (c *Coordinator) Get(id string) (*Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil, false
	}
	out := *p
	return &out, true
}

// Complete moves CHALLENGED → RESOLVED, arming the single retry.
func (c *Coordinator) Complete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return ErrNotFound
	}
	switch p.State {
	case StateResolved:
		return ErrAlreadyResolved
	case StateRejected:
		return ErrCancelled
	}

	p.State = StateResolved
	metrics.ChallengesTotal.WithLabelValues("resolved").Inc()
	return nil
}

// Cancel moves CHALLENGED → REJECTED. The suspended action reports
// "verification cancelled" and is never retried.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return ErrNotFound
	}
	switch p.State {
	case StateResolved:
		return ErrAlreadyResolved
	case StateRejected:
		return ErrCancelled
	}

	p.State = StateRejected
	metrics.ChallengesTotal.WithLabelValues("cancelled").Inc()
	return nil
}

// ConsumeRetry returns true exactly once per resolved challenge and deletes
// the record, so a retry that draws CHALLENGE or BLOCK again is terminal —
// it can never re-arm itself.
func (c *Coordinator) ConsumeRetry(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok || p.State != StateResolved {
		return false
	}
	delete(c.pending, id)
	metrics.PendingChallenges.Dec()
	return true
}
