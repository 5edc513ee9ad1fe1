package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sentinel-session:"

// Hash field names. Batch counters live at <stream>_last_batch_id.
const (
	fieldUserID    = "user_id"
	fieldStartTime = "session_start_time"
	fieldClientIP  = "client_ip"
	fieldUserAgent = "user_agent"
)

// createIfAbsent runs the whole check-and-set server-side so concurrent first
// contacts cannot interleave. Refreshes the sliding TTL in both branches.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[2],
  "session_start_time", ARGV[3],
  "client_ip", ARGV[4],
  "user_agent", ARGV[5],
  "keyboard_last_batch_id", "0",
  "pointer_last_batch_id", "0")
redis.call("EXPIRE", KEYS[1], ARGV[1])
return 1
`)

// advanceScript is the single-round-trip compare-and-set for batch counters.
// Returns -1 when the session is gone, 0 on replay, 1 on accept.
var advanceScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local cur = tonumber(redis.call("HGET", KEYS[1], ARGV[2]) or "0")
if tonumber(ARGV[3]) <= cur then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return 1
`)

// RedisStore is the shared Redis-backed Store. Sessions live as hashes under
// sentinel-session:{id} with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing Redis client. The caller owns the client
// lifecycle; construction pings to fail fast on misconfiguration.
func NewRedisStore(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session store: redis ping: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(id string) string {
	return keyPrefix + id
}

func (s *RedisStore) ttlSeconds() int64 {
	return int64(s.ttl / time.Second)
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, sess *Session) (bool, error) {
	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	res, err := createScript.Run(ctx, s.client,
		[]string{s.key(sess.ID)},
		s.ttlSeconds(),
		sess.UserID,
		startedAt.UTC().Format(time.RFC3339),
		sess.ClientIP,
		sess.UserAgent,
	).Int()
	if err != nil {
		return false, fmt.Errorf("session store: create: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	// HGETALL + EXPIRE pipelined: every read refreshes the sliding window.
	pipe := s.client.Pipeline()
	getAll := pipe.HGetAll(ctx, s.key(id))
	pipe.Expire(ctx, s.key(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("session store: get: %w", err)
	}

	fields := getAll.Val()
	if len(fields) == 0 {
		return nil, nil
	}

	sess := &Session{
		ID:        id,
		UserID:    fields[fieldUserID],
		ClientIP:  fields[fieldClientIP],
		UserAgent: fields[fieldUserAgent],
		LastBatch: make(map[Stream]uint64, len(Streams)),
	}
	if raw := fields[fieldStartTime]; raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("session store: bad start time %q: %w", raw, err)
		}
		sess.StartedAt = t
	}
	for _, stream := range Streams {
		raw := fields[batchField(stream)]
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("session store: bad batch counter %q: %w", raw, err)
		}
		sess.LastBatch[stream] = v
	}
	return sess, nil
}

func (s *RedisStore) ValidateAndAdvance(ctx context.Context, id string, stream Stream, candidateBatchID uint64) (bool, error) {
	res, err := advanceScript.Run(ctx, s.client,
		[]string{s.key(id)},
		s.ttlSeconds(),
		batchField(stream),
		candidateBatchID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("session store: advance: %w", err)
	}
	switch res {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func batchField(stream Stream) string {
	return string(stream) + "_last_batch_id"
}
