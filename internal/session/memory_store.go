package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for single-node deployments and tests.
// Expiry is enforced lazily on access plus a janitor goroutine that sweeps
// dead entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	stop    chan struct{}
	now     func() time.Time // overridable in tests
}

type memoryEntry struct {
	sess     *Session
	deadline time.Time
}

// NewMemoryStore creates an in-memory session store with the given sliding TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go s.janitor()
	return s
}

// Stop terminates the janitor goroutine.
func (s *MemoryStore) Stop() {
	close(s.stop)
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for id, e := range s.entries {
				if now.After(e.deadline) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// live returns the entry for id if present and unexpired. Caller holds s.mu.
func (s *MemoryStore) live(id string) *memoryEntry {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if s.now().After(e.deadline) {
		delete(s.entries, id)
		return nil
	}
	return e
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, sess *Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(sess.ID); e != nil {
		e.deadline = s.now().Add(s.ttl)
		return false, nil
	}

	stored := &Session{
		ID:        sess.ID,
		UserID:    sess.UserID,
		ClientIP:  sess.ClientIP,
		UserAgent: sess.UserAgent,
		StartedAt: sess.StartedAt,
		LastBatch: make(map[Stream]uint64, len(Streams)),
	}
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.now()
	}
	for _, stream := range Streams {
		stored.LastBatch[stream] = 0
	}

	s.entries[sess.ID] = &memoryEntry{sess: stored, deadline: s.now().Add(s.ttl)}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return nil, nil
	}
	e.deadline = s.now().Add(s.ttl)

	// Copy so callers cannot mutate stored state.
	out := *e.sess
	out.LastBatch = make(map[Stream]uint64, len(e.sess.LastBatch))
	for k, v := range e.sess.LastBatch {
		out.LastBatch[k] = v
	}
	return &out, nil
}

func (s *MemoryStore) ValidateAndAdvance(ctx context.Context, id string, stream Stream, candidateBatchID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id)
	if e == nil {
		return false, ErrNotFound
	}

	if candidateBatchID <= e.sess.LastBatch[stream] {
		return false, nil
	}

	e.sess.LastBatch[stream] = candidateBatchID
	e.deadline = s.now().Add(s.ttl)
	return true, nil
}
