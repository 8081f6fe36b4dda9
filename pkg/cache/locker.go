package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultBusyTTL is the busy marker ceiling used when none is configured.
const DefaultBusyTTL = 5 * time.Second

// releaseTimeout bounds the marker delete, which runs detached from the caller.
const releaseTimeout = 2 * time.Second

// releaseScript deletes the marker only if it still carries our token, so a
// holder whose marker already expired cannot delete a successor's marker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker manages busy markers. A marker's presence, not its value, signals
// that a refresh is in flight. The TTL is a hard ceiling: a crashed holder
// can block a key for at most that long.
type Locker struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewLocker creates a locker whose markers expire after ttl.
func NewLocker(redisClient *redis.Client, ttl time.Duration) *Locker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultBusyTTL
	}
	return &Locker{redis: redisClient, ttl: ttl}
}

// TTL returns the marker ceiling.
func (l *Locker) TTL() time.Duration {
	return l.ttl
}

// Acquire tries to set the busy marker for key. ok is false when another
// caller already holds it. release is safe to call once, on every path.
func (l *Locker) Acquire(ctx context.Context, key CacheKey) (release func(), ok bool, err error) {
	token := uuid.NewString()
	busyKey := key.BusyKey()

	ok, err = l.redis.SetNX(ctx, busyKey, token, l.ttl).Result()
	if err != nil {
		CacheErrors.WithLabelValues("acquire").Inc()
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := releaseScript.Run(ctx, l.redis, []string{busyKey}, token).Err(); err != nil && err != redis.Nil {
			CacheErrors.WithLabelValues("release").Inc()
			log.Warn().Err(err).Str("key", busyKey).Msg("Failed to release busy marker")
		}
	}
	return release, true, nil
}

// Held reports whether a busy marker exists for key.
func (l *Locker) Held(ctx context.Context, key CacheKey) (bool, error) {
	n, err := l.redis.Exists(ctx, key.BusyKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("held").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}
