package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrBusyTimeout is returned when another process held the busy marker and
// never published a value within the wait deadline.
var ErrBusyTimeout = errors.New("timed out waiting for in-flight refresh")

// State describes how a resolved value was obtained.
type State string

const (
	StateFresh     State = "fresh"     // served from a fresh entry
	StateStale     State = "stale"     // served from an expired entry
	StateRefreshed State = "refreshed" // fetched from upstream for this call
)

// Info carries cache metadata for a resolved value.
type Info struct {
	State    State
	CachedAt time.Time
	Expires  time.Time
}

// FetchFunc produces a value from upstream. It receives a context bounded by
// the busy marker TTL.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Option configures a Cache.
type Option func(*options)

type options struct {
	pollMin  time.Duration
	pollMax  time.Duration
	busyWait time.Duration
}

// WithPollInterval sets the backoff range used while waiting on a marker held
// by another process.
func WithPollInterval(min, max time.Duration) Option {
	return func(o *options) {
		if min > 0 {
			o.pollMin = min
		}
		if max >= o.pollMin {
			o.pollMax = max
		}
	}
}

// WithBusyWait caps how long a caller without a stale value waits for another
// process to publish. Defaults to twice the locker TTL.
func WithBusyWait(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyWait = d
		}
	}
}

// Cache is a single-flight fetch-through cache for values of type T.
type Cache[T any] struct {
	manager *Manager
	locker  *Locker
	name    string
	group   singleflight.Group
	opts    options

	// beforeAcquire runs between the entry lookup and the marker acquire. Tests only.
	beforeAcquire func()
}

type flightResult[T any] struct {
	value T
	info  Info
}

// New creates a cache. name labels metrics and logs.
func New[T any](manager *Manager, locker *Locker, name string, opts ...Option) *Cache[T] {
	if manager == nil || locker == nil {
		panic("cache manager and locker cannot be nil")
	}
	o := options{
		pollMin:  25 * time.Millisecond,
		pollMax:  250 * time.Millisecond,
		busyWait: 2 * locker.TTL(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		manager: manager,
		locker:  locker,
		name:    name,
		opts:    o,
	}
}

// Name returns the metrics label of the cache.
func (c *Cache[T]) Name() string {
	return c.name
}

// Resolve returns the value for key, calling fetch at most once per key across
// all concurrent callers. See ResolveWithInfo.
func (c *Cache[T]) Resolve(ctx context.Context, key CacheKey, ttl time.Duration, force bool, fetch FetchFunc[T]) (T, error) {
	v, _, err := c.ResolveWithInfo(ctx, key, ttl, force, fetch)
	return v, err
}

// ResolveWithInfo returns the value for key together with its cache metadata.
//
// A fresh entry is returned as is unless force is set. A stale entry is
// returned when another caller is already refreshing it. Otherwise the caller
// joins the in-process flight for key; the flight takes the busy marker and
// calls fetch. When fetch fails the stale value, if any, is returned instead.
func (c *Cache[T]) ResolveWithInfo(ctx context.Context, key CacheKey, ttl time.Duration, force bool, fetch FetchFunc[T]) (T, Info, error) {
	var zero T
	logger := log.With().Str("cache", c.name).Str("key", key.String()).Logger()

	entry := c.lookup(ctx, key)
	if entry != nil && !force && !entry.IsExpired() {
		if v, err := decode[T](entry); err == nil {
			CacheHits.WithLabelValues(c.name, string(StateFresh)).Inc()
			logger.Debug().Msg("Cache hit")
			return v, infoOf(entry, StateFresh), nil
		}
		entry = nil
	}
	if entry == nil {
		CacheMisses.WithLabelValues(c.name).Inc()
	}

	if entry != nil && !force {
		held, err := c.locker.Held(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Msg("Busy marker check failed")
		}
		if held {
			if v, err := decode[T](entry); err == nil {
				CacheHits.WithLabelValues(c.name, string(StateStale)).Inc()
				logger.Debug().Msg("Refresh in flight, serving stale entry")
				return v, infoOf(entry, StateStale), nil
			}
		}
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), key, ttl, force, fetch)
	})

	select {
	case res := <-ch:
		if res.Shared {
			Coalesced.WithLabelValues(c.name).Inc()
		}
		if res.Err != nil {
			return zero, Info{}, res.Err
		}
		r := res.Val.(flightResult[T])
		return r.value, r.info, nil
	case <-ctx.Done():
		return zero, Info{}, ctx.Err()
	}
}

// Invalidate removes the cached entry for key. A running flight is not
// affected and may publish again.
func (c *Cache[T]) Invalidate(ctx context.Context, key CacheKey) error {
	return c.manager.Delete(ctx, key)
}

// lookup reads the entry for key. Redis errors are logged and treated as a miss.
func (c *Cache[T]) lookup(ctx context.Context, key CacheKey) *CacheEntry {
	entry, err := c.manager.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Str("cache", c.name).Str("key", key.String()).Msg("Cache read failed, treating as miss")
		}
		return nil
	}
	return entry
}

// refresh runs inside the flight. ctx is detached from any single caller.
func (c *Cache[T]) refresh(ctx context.Context, key CacheKey, ttl time.Duration, force bool, fetch FetchFunc[T]) (flightResult[T], error) {
	deadline := time.Now().Add(c.opts.busyWait)
	wait := c.opts.pollMin

	for {
		stale := c.lookup(ctx, key)
		if stale != nil && !force && !stale.IsExpired() {
			// Published by another process since the caller looked.
			if v, err := decode[T](stale); err == nil {
				CacheHits.WithLabelValues(c.name, string(StateFresh)).Inc()
				return flightResult[T]{value: v, info: infoOf(stale, StateFresh)}, nil
			}
		}

		if c.beforeAcquire != nil {
			c.beforeAcquire()
		}
		release, ok, err := c.locker.Acquire(ctx, key)
		if err != nil {
			// Without the marker store there is no cross-process
			// coordination; still fetch, the in-process flight holds.
			log.Warn().Err(err).Str("cache", c.name).Str("key", key.String()).Msg("Busy marker unavailable, fetching without it")
			return c.fetchAndStore(ctx, key, ttl, fetch, stale)
		}
		if ok {
			defer release()
			// The previous holder may have published and released between
			// our lookup and the acquire.
			if cur := c.lookup(ctx, key); cur != nil {
				if !force && !cur.IsExpired() {
					if v, err := decode[T](cur); err == nil {
						CacheHits.WithLabelValues(c.name, string(StateFresh)).Inc()
						return flightResult[T]{value: v, info: infoOf(cur, StateFresh)}, nil
					}
				}
				stale = cur
			}
			return c.fetchAndStore(ctx, key, ttl, fetch, stale)
		}

		// Marker held elsewhere.
		if stale != nil {
			if v, err := decode[T](stale); err == nil {
				state := StateStale
				if !stale.IsExpired() {
					state = StateFresh
				}
				CacheHits.WithLabelValues(c.name, string(state)).Inc()
				return flightResult[T]{value: v, info: infoOf(stale, state)}, nil
			}
		}

		BusyWaits.WithLabelValues(c.name).Inc()
		if time.Now().Add(wait).After(deadline) {
			return flightResult[T]{}, fmt.Errorf("%w: %s", ErrBusyTimeout, key.String())
		}
		time.Sleep(wait)
		wait *= 2
		if wait > c.opts.pollMax {
			wait = c.opts.pollMax
		}

		// Another process may have published while we slept.
		if entry := c.lookup(ctx, key); entry != nil && !entry.IsExpired() {
			if v, err := decode[T](entry); err == nil {
				CacheHits.WithLabelValues(c.name, string(StateFresh)).Inc()
				return flightResult[T]{value: v, info: infoOf(entry, StateFresh)}, nil
			}
		}
	}
}

func (c *Cache[T]) fetchAndStore(ctx context.Context, key CacheKey, ttl time.Duration, fetch FetchFunc[T], stale *CacheEntry) (flightResult[T], error) {
	logger := log.With().Str("cache", c.name).Str("key", key.String()).Logger()

	fetchCtx, cancel := context.WithTimeout(ctx, c.locker.TTL())
	defer cancel()

	start := time.Now()
	v, err := fetch(fetchCtx)
	FetchDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if stale != nil {
			if sv, derr := decode[T](stale); derr == nil {
				Flights.WithLabelValues(c.name, "stale").Inc()
				logger.Warn().Err(err).Msg("Refresh failed, serving stale entry")
				return flightResult[T]{value: sv, info: infoOf(stale, StateStale)}, nil
			}
		}
		Flights.WithLabelValues(c.name, "error").Inc()
		return flightResult[T]{}, err
	}
	Flights.WithLabelValues(c.name, "success").Inc()

	entry, err := newEntry(v, ttl)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to encode cache entry")
		return flightResult[T]{value: v, info: Info{State: StateRefreshed, CachedAt: start, Expires: start.Add(ttl)}}, nil
	}
	if err := c.manager.Set(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to store cache entry")
	} else {
		logger.Debug().Dur("ttl", ttl).Msg("Cache refreshed")
	}
	return flightResult[T]{value: v, info: infoOf(entry, StateRefreshed)}, nil
}

func infoOf(e *CacheEntry, s State) Info {
	return Info{State: s, CachedAt: e.CachedAt, Expires: e.Expires}
}
