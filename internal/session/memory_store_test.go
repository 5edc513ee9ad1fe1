package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(ttl)
	t.Cleanup(s.Stop)
	return s
}

func TestCreateIfAbsent_FirstCallCreates(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	created, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1", ClientIP: "10.0.0.1", UserAgent: "ua"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "someone-else"})
	require.NoError(t, err)
	assert.False(t, created)

	// First creator's fields win.
	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "10.0.0.1", sess.ClientIP)
	assert.EqualValues(t, 0, sess.LastBatch[StreamKeyboard])
	assert.EqualValues(t, 0, sess.LastBatch[StreamPointer])
}

func TestCreateIfAbsent_ConcurrentFirstContact(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	const n = 100
	var createdCount int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			created, err := s.CreateIfAbsent(ctx, &Session{ID: "race", UserID: "u1"})
			if err != nil {
				t.Error(err)
				return
			}
			if created {
				atomic.AddInt64(&createdCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, createdCount, "exactly one caller must observe created=true")
}

func TestValidateAndAdvance_ReplaySequence(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	// batch 1 → accepted
	accepted, err := s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 1)
	require.NoError(t, err)
	assert.True(t, accepted)

	// batch 1 again → replay
	accepted, err = s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 1)
	require.NoError(t, err)
	assert.False(t, accepted)

	// batch 2 → accepted
	accepted, err = s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 2)
	require.NoError(t, err)
	assert.True(t, accepted)

	// batch 0 → replay
	accepted, err = s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 0)
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestValidateAndAdvance_RejectDoesNotMutate(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	accepted, err := s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 5)
	require.NoError(t, err)
	require.True(t, accepted)

	// A rejected submission must leave the counter untouched: 6 still works.
	_, err = s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 3)
	require.NoError(t, err)
	accepted, err = s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 6)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestValidateAndAdvance_StreamsAreIndependent(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	accepted, err := s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 10)
	require.NoError(t, err)
	require.True(t, accepted)

	// Pointer stream still starts at 0.
	accepted, err = s.ValidateAndAdvance(ctx, "s1", StreamPointer, 1)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestValidateAndAdvance_GapsTolerated(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	// Strict-greater-than, not increment-by-one: gaps are fine.
	accepted, err := s.ValidateAndAdvance(ctx, "s1", StreamPointer, 7)
	require.NoError(t, err)
	assert.True(t, accepted)
	accepted, err = s.ValidateAndAdvance(ctx, "s1", StreamPointer, 42)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestValidateAndAdvance_ConcurrentSameBatch(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	// Racing retries of the same batch: exactly one wins.
	const n = 50
	var acceptedCount int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			accepted, err := s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 1)
			if err != nil {
				t.Error(err)
				return
			}
			if accepted {
				atomic.AddInt64(&acceptedCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, acceptedCount)
}

func TestValidateAndAdvance_MissingSession(t *testing.T) {
	s := newTestStore(t, time.Minute)

	_, err := s.ValidateAndAdvance(context.Background(), "ghost", StreamKeyboard, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_MissingReturnsNilNil(t *testing.T) {
	s := newTestStore(t, time.Minute)

	sess, err := s.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSlidingExpiry(t *testing.T) {
	s := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	// 8 minutes later a read refreshes the window.
	s.now = func() time.Time { return base.Add(8 * time.Minute) }
	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)

	// 17 minutes after creation but only 9 after the read: still alive.
	s.now = func() time.Time { return base.Add(17 * time.Minute) }
	sess, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, sess)

	// 11 minutes of silence: expired.
	s.now = func() time.Time { return base.Add(29 * time.Minute) }
	sess, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.CreateIfAbsent(ctx, &Session{ID: "s1", UserID: "u1"})
	require.NoError(t, err)

	sess, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	sess.LastBatch[StreamKeyboard] = 99

	accepted, err := s.ValidateAndAdvance(ctx, "s1", StreamKeyboard, 1)
	require.NoError(t, err)
	assert.True(t, accepted, "caller mutation of a Get result must not leak into the store")
}
