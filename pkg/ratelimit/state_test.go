package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.state.IsStale(tt.maxAge); result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Remaining(t *testing.T) {
	tests := []struct {
		name     string
		used     int
		budget   int
		expected int
	}{
		{name: "unused", used: 0, budget: 30, expected: 30},
		{name: "partly used", used: 12, budget: 30, expected: 18},
		{name: "overdrawn", used: 35, budget: 30, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{CreditsUsed: tt.used, Budget: tt.budget}
			if got := s.Remaining(); got != tt.expected {
				t.Errorf("Remaining() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Thresholds(t *testing.T) {
	tests := []struct {
		name           string
		used           int
		blockedUntil   time.Time
		expectBlock    bool
		expectThrottle bool
		expectHealthy  bool
	}{
		{name: "healthy", used: 10, expectHealthy: true},
		{name: "at healthy threshold", used: 50, expectHealthy: true},
		{name: "below healthy, above warning", used: 70},
		{name: "at warning threshold", used: 80},
		{name: "warning", used: 85, expectThrottle: true},
		{name: "at critical threshold", used: 95, expectThrottle: true},
		{name: "critical", used: 96, expectBlock: true},
		{name: "exhausted", used: 100, expectBlock: true},
		{name: "blocked by 429", used: 0, blockedUntil: time.Now().Add(time.Minute), expectBlock: true},
		{name: "expired block", used: 0, blockedUntil: time.Now().Add(-time.Second), expectHealthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{CreditsUsed: tt.used, Budget: 100, BlockedUntil: tt.blockedUntil}
			s.UpdateHealth()

			if got := s.NeedsCriticalBlock(); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expectBlock)
			}
			if got := s.NeedsThrottling(); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expectThrottle)
			}
			if s.IsHealthy != tt.expectHealthy {
				t.Errorf("IsHealthy = %v, want %v", s.IsHealthy, tt.expectHealthy)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	tests := []struct {
		name         string
		resetAt      time.Time
		blockedUntil time.Time
		wantMin      time.Duration
		wantMax      time.Duration
	}{
		{
			name:    "window in future",
			resetAt: time.Now().Add(30 * time.Second),
			wantMin: 29 * time.Second,
			wantMax: 30 * time.Second,
		},
		{
			name:    "window passed",
			resetAt: time.Now().Add(-30 * time.Second),
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:         "block outlasts window",
			resetAt:      time.Now().Add(10 * time.Second),
			blockedUntil: time.Now().Add(90 * time.Second),
			wantMin:      89 * time.Second,
			wantMax:      90 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RateLimitState{ResetAt: tt.resetAt, BlockedUntil: tt.blockedUntil}
			got := s.TimeUntilReset()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TimeUntilReset() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
