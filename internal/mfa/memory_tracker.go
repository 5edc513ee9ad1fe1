package mfa

import (
	"context"
	"sync"
	"time"
)

// MemoryTracker is an in-memory Tracker for single-node deployments and tests.
type MemoryTracker struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	absolute  time.Duration
	idle      time.Duration
	stop      chan struct{}
	now       func() time.Time // overridable in tests
}

// NewMemoryTracker creates an in-memory tracker with the given ceiling and
// idle window.
func NewMemoryTracker(absolute, idle time.Duration) *MemoryTracker {
	tr := &MemoryTracker{
		deadlines: make(map[string]time.Time),
		absolute:  absolute,
		idle:      idle,
		stop:      make(chan struct{}),
		now:       time.Now,
	}
	go tr.janitor()
	return tr
}

// Stop terminates the janitor goroutine.
func (tr *MemoryTracker) Stop() {
	close(tr.stop)
}

func (tr *MemoryTracker) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tr.mu.Lock()
			now := tr.now()
			for user, deadline := range tr.deadlines {
				if now.After(deadline) {
					delete(tr.deadlines, user)
				}
			}
			tr.mu.Unlock()
		case <-tr.stop:
			return
		}
	}
}

func (tr *MemoryTracker) SetVerified(ctx context.Context, userID string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.deadlines[userID] = tr.now().Add(tr.absolute)
	return nil
}

func (tr *MemoryTracker) Status(ctx context.Context, userID string) (bool, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	deadline, ok := tr.deadlines[userID]
	if !ok {
		return false, nil
	}
	if tr.now().After(deadline) {
		delete(tr.deadlines, userID)
		return false, nil
	}
	return true, nil
}

func (tr *MemoryTracker) RefreshIdle(ctx context.Context, userID string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	deadline, ok := tr.deadlines[userID]
	if !ok {
		return nil
	}
	now := tr.now()
	if now.After(deadline) {
		delete(tr.deadlines, userID)
		return nil
	}

	// Only shorten: the idle window must never push the deadline out.
	if deadline.Sub(now) > tr.idle {
		tr.deadlines[userID] = now.Add(tr.idle)
	}
	return nil
}
