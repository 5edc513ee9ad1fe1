package mfa

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "mfa-status:"

// refreshScript applies the idle window server-side so concurrent refreshes
// cannot race a read-then-write: the TTL is only ever lowered.
var refreshScript = redis.NewScript(`
local ttl = redis.call("TTL", KEYS[1])
if ttl > tonumber(ARGV[1]) then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return ttl
`)

// RedisTracker is the shared Redis-backed Tracker. Verified users hold a
// plain key at mfa-status:{userID} whose TTL carries all the state.
type RedisTracker struct {
	client   *redis.Client
	absolute time.Duration
	idle     time.Duration
}

// NewRedisTracker wraps an existing Redis client.
func NewRedisTracker(client *redis.Client, absolute, idle time.Duration) *RedisTracker {
	return &RedisTracker{client: client, absolute: absolute, idle: idle}
}

func (tr *RedisTracker) key(userID string) string {
	return keyPrefix + userID
}

func (tr *RedisTracker) SetVerified(ctx context.Context, userID string) error {
	if err := tr.client.Set(ctx, tr.key(userID), "verified", tr.absolute).Err(); err != nil {
		return fmt.Errorf("mfa tracker: set verified: %w", err)
	}
	return nil
}

func (tr *RedisTracker) Status(ctx context.Context, userID string) (bool, error) {
	n, err := tr.client.Exists(ctx, tr.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("mfa tracker: status: %w", err)
	}
	return n == 1, nil
}

func (tr *RedisTracker) RefreshIdle(ctx context.Context, userID string) error {
	idleSecs := int64(tr.idle / time.Second)
	if err := refreshScript.Run(ctx, tr.client, []string{tr.key(userID)}, idleSecs).Err(); err != nil {
		return fmt.Errorf("mfa tracker: refresh idle: %w", err)
	}
	return nil
}
