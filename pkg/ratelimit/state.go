// Package ratelimit tracks the upstream API credit budget and gates requests.
// Credits spent are counted in Redis so every process shares one budget; a
// 429 response blocks all processes until its Retry-After has passed.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyCreditsUsed  = "coinrate:ratelimit:credits"
	RedisKeyBlockedUntil = "coinrate:ratelimit:blocked_until"
	RedisKeyLastUpdate   = "coinrate:ratelimit:last_update"
)

// Defaults for the upstream credit window.
const (
	DefaultBudget = 30
	DefaultWindow = time.Minute
)

// Thresholds for rate limit decisions, as the fraction of the budget remaining.
const (
	// RemainingThresholdCritical blocks requests when less than this fraction
	// of the budget is left, keeping a reserve for the rest of the window.
	RemainingThresholdCritical = 0.05

	// RemainingThresholdWarning applies throttling below this fraction.
	RemainingThresholdWarning = 0.20

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 0.50
)

// RateLimitState is the shared upstream credit state.
type RateLimitState struct {
	// CreditsUsed is the number of credits spent in the current window.
	CreditsUsed int `json:"credits_used"`

	// Budget is the number of credits allowed per window.
	Budget int `json:"budget"`

	// ResetAt is when the current window ends.
	ResetAt time.Time `json:"reset_at"`

	// BlockedUntil is set after a 429 from upstream.
	BlockedUntil time.Time `json:"blocked_until,omitempty"`

	// LastUpdate is when credits were last recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when at least RemainingThresholdHealthy of the budget is left.
	IsHealthy bool `json:"is_healthy"`
}

// Remaining returns the credits left in the window, never negative.
func (s *RateLimitState) Remaining() int {
	r := s.Budget - s.CreditsUsed
	if r < 0 {
		return 0
	}
	return r
}

func (s *RateLimitState) remainingFraction() float64 {
	if s.Budget <= 0 {
		return 1
	}
	return float64(s.Remaining()) / float64(s.Budget)
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsBlocked returns true while a 429 block is active.
func (s *RateLimitState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.IsBlocked() || s.remainingFraction() < RemainingThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.remainingFraction() < RemainingThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until requests may resume: the later of
// the window reset and an active block. Returns 0 if both have passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	until := s.ResetAt
	if s.BlockedUntil.After(until) {
		until = s.BlockedUntil
	}
	duration := time.Until(until)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on the remaining budget.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = !s.IsBlocked() && s.remainingFraction() >= RemainingThresholdHealthy
}
