package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	upstreamCreditsUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinrate_upstream_credits_used",
		Help: "Upstream API credits used in the current window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinrate_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to exhausted credits or a 429 block",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinrate_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low credit budget",
	})
)

// DefaultRetryAfter is used when a 429 carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// throttleDelay is the pause applied in the warning band.
const throttleDelay = time.Second

// Option configures a Tracker.
type Option func(*Tracker)

// WithBudget sets the credit budget per window.
func WithBudget(credits int, window time.Duration) Option {
	return func(t *Tracker) {
		if credits > 0 {
			t.budget = credits
		}
		if window > 0 {
			t.window = window
		}
	}
}

// WithLocalLimit sets the per-process token bucket. rps <= 0 disables it.
func WithLocalLimit(rps float64, burst int) Option {
	return func(t *Tracker) {
		if rps <= 0 {
			t.local = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.local = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Tracker counts upstream credits and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	budget int
	window time.Duration
	local  *rate.Limiter
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		redis:  redisClient,
		logger: logger,
		budget: DefaultBudget,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetState retrieves the current rate limit state from Redis.
// Returns a fresh healthy state if no credits were recorded in this window.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	pipe := t.redis.Pipeline()
	usedCmd := pipe.Get(ctx, RedisKeyCreditsUsed)
	ttlCmd := pipe.PTTL(ctx, RedisKeyCreditsUsed)
	blockedCmd := pipe.Get(ctx, RedisKeyBlockedUntil)
	lastCmd := pipe.Get(ctx, RedisKeyLastUpdate)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read rate limit state: %w", err)
	}

	now := time.Now()
	state := &RateLimitState{
		Budget:     t.budget,
		ResetAt:    now.Add(t.window),
		LastUpdate: now,
	}

	used, err := usedCmd.Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("parse credits used: %w", err)
	}
	state.CreditsUsed = used

	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		state.ResetAt = now.Add(ttl)
	}

	if ms, err := blockedCmd.Int64(); err == nil {
		state.BlockedUntil = time.UnixMilli(ms)
	}

	if ms, err := lastCmd.Int64(); err == nil {
		state.LastUpdate = time.UnixMilli(ms)
	}

	state.UpdateHealth()
	return state, nil
}

// RecordCredits adds credits spent by one upstream call to the shared counter.
// The first increment in a window starts the window.
func (t *Tracker) RecordCredits(ctx context.Context, credits int) error {
	if credits <= 0 {
		return nil
	}

	used, err := t.redis.IncrBy(ctx, RedisKeyCreditsUsed, int64(credits)).Result()
	if err != nil {
		return fmt.Errorf("record credits: %w", err)
	}
	if used == int64(credits) {
		if err := t.redis.PExpire(ctx, RedisKeyCreditsUsed, t.window).Err(); err != nil {
			return fmt.Errorf("start credit window: %w", err)
		}
	}
	if err := t.redis.Set(ctx, RedisKeyLastUpdate, time.Now().UnixMilli(), t.window).Err(); err != nil {
		return fmt.Errorf("store last update: %w", err)
	}

	upstreamCreditsUsed.Set(float64(used))

	remaining := t.budget - int(used)
	evt := t.logger.Debug()
	if float64(remaining) < float64(t.budget)*RemainingThresholdWarning {
		evt = t.logger.Warn()
	}
	evt.Int("credits_used", int(used)).Int("budget", t.budget).Msg("Upstream credits recorded")
	return nil
}

// Block stops all processes from calling upstream for d.
func (t *Tracker) Block(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = DefaultRetryAfter
	}
	until := time.Now().Add(d)
	if err := t.redis.Set(ctx, RedisKeyBlockedUntil, until.UnixMilli(), d).Err(); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	t.logger.Error().Time("blocked_until", until).Msg("Upstream rate limit hit, blocking requests")
	return nil
}

// UpdateFromHeaders applies an upstream response to the shared state.
// A 429 blocks requests for its Retry-After duration.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, statusCode int, headers http.Header) error {
	if statusCode != http.StatusTooManyRequests {
		return nil
	}
	d, err := parseRetryAfter(headers.Get("Retry-After"))
	if err != nil {
		t.logger.Warn().Err(err).Msg("Invalid Retry-After header, using default")
		d = DefaultRetryAfter
	}
	return t.Block(ctx, d)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) (time.Duration, error) {
	if v == "" {
		return DefaultRetryAfter, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative Retry-After: %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, fmt.Errorf("parse Retry-After %q: %w", v, err)
	}
	return time.Until(at), nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the request should be blocked.
// Returns true but may wait for throttling or the local token bucket.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	// Critical: Block all requests
	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("credits_remaining", state.Remaining()).
			Bool("blocked", state.IsBlocked()).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Upstream credits exhausted - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	// Warning: Apply throttling
	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("credits_remaining", state.Remaining()).
			Msg("Upstream credits low - throttling request")

		rateLimitThrottlesTotal.Inc()
		select {
		case <-time.After(throttleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	if err := t.Wait(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Wait blocks on the local token bucket. It returns immediately when no
// local limit is configured.
func (t *Tracker) Wait(ctx context.Context) error {
	if t.local == nil {
		return nil
	}
	if err := t.local.Wait(ctx); err != nil {
		return fmt.Errorf("local rate limit: %w", err)
	}
	return nil
}
