package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTracker(t *testing.T, opts ...Option) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return NewTracker(client, logger, opts...), mr
}

func TestTracker_GetState_Empty(t *testing.T) {
	tracker, _ := setupTracker(t)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.CreditsUsed != 0 || state.Budget != DefaultBudget {
		t.Errorf("state = %+v, want 0 used of %d", state, DefaultBudget)
	}
	if !state.IsHealthy {
		t.Error("empty state should be healthy")
	}
}

func TestTracker_RecordCredits(t *testing.T) {
	tracker, mr := setupTracker(t, WithBudget(100, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tracker.RecordCredits(ctx, 5); err != nil {
			t.Fatalf("RecordCredits() error = %v", err)
		}
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.CreditsUsed != 15 {
		t.Errorf("CreditsUsed = %d, want 15", state.CreditsUsed)
	}
	if ttl := mr.TTL(RedisKeyCreditsUsed); ttl <= 0 || ttl > time.Minute {
		t.Errorf("credit window TTL = %v, want (0, 1m]", ttl)
	}

	// Window rolls over.
	mr.FastForward(time.Minute)
	state, _ = tracker.GetState(ctx)
	if state.CreditsUsed != 0 {
		t.Errorf("CreditsUsed after window = %d, want 0", state.CreditsUsed)
	}
}

func TestTracker_RecordCredits_IgnoresNonPositive(t *testing.T) {
	tracker, mr := setupTracker(t)

	if err := tracker.RecordCredits(context.Background(), 0); err != nil {
		t.Fatalf("RecordCredits(0) error = %v", err)
	}
	if mr.Exists(RedisKeyCreditsUsed) {
		t.Error("zero credits should not start a window")
	}
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryAfter  string
		expectBlock bool
		minBlock    time.Duration
	}{
		{name: "success response", status: http.StatusOK},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "429 with seconds", status: http.StatusTooManyRequests, retryAfter: "30", expectBlock: true, minBlock: 29 * time.Second},
		{name: "429 without header", status: http.StatusTooManyRequests, expectBlock: true, minBlock: DefaultRetryAfter - time.Second},
		{name: "429 with garbage", status: http.StatusTooManyRequests, retryAfter: "soon", expectBlock: true, minBlock: DefaultRetryAfter - time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _ := setupTracker(t)
			ctx := context.Background()

			headers := http.Header{}
			if tt.retryAfter != "" {
				headers.Set("Retry-After", tt.retryAfter)
			}
			if err := tracker.UpdateFromHeaders(ctx, tt.status, headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.IsBlocked() != tt.expectBlock {
				t.Errorf("IsBlocked() = %v, want %v", state.IsBlocked(), tt.expectBlock)
			}
			if tt.expectBlock && state.TimeUntilReset() < tt.minBlock {
				t.Errorf("TimeUntilReset() = %v, want >= %v", state.TimeUntilReset(), tt.minBlock)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name   string
		used   int
		block  bool
		expect bool
	}{
		{name: "healthy - allow", used: 0, expect: true},
		{name: "critical - block", used: 99, expect: false},
		{name: "blocked by 429", used: 0, block: true, expect: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _ := setupTracker(t, WithBudget(100, time.Minute))
			ctx := context.Background()

			if err := tracker.RecordCredits(ctx, tt.used); err != nil {
				t.Fatal(err)
			}
			if tt.block {
				if err := tracker.Block(ctx, time.Minute); err != nil {
					t.Fatal(err)
				}
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.expect {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.expect)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest_ThrottleRespectsContext(t *testing.T) {
	tracker, _ := setupTracker(t, WithBudget(100, time.Minute))
	if err := tracker.RecordCredits(context.Background(), 90); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed {
		t.Error("throttled request with expired context should not be allowed")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestTracker_LocalLimit(t *testing.T) {
	tracker, _ := setupTracker(t, WithLocalLimit(1, 1))

	// Burst of one: the first call passes, the second must wait ~1s.
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tracker.Wait(ctx); err == nil {
		t.Error("second Wait() should fail before a token is available")
	}
}

func TestParseRetryAfter(t *testing.T) {
	d, err := parseRetryAfter("12")
	if err != nil || d != 12*time.Second {
		t.Errorf("parseRetryAfter(12) = %v, %v", d, err)
	}

	d, err = parseRetryAfter(time.Now().Add(time.Minute).UTC().Format(http.TimeFormat))
	if err != nil || d <= 0 || d > time.Minute {
		t.Errorf("parseRetryAfter(date) = %v, %v", d, err)
	}

	if _, err := parseRetryAfter("-5"); err == nil {
		t.Error("negative Retry-After should fail")
	}
}
