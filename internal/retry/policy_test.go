package retry_test

import (
	"testing"
	"time"

	"gister/internal/retry"
)

func TestDelayDoublesPerAttempt(t *testing.T) {
	policy := retry.NewPolicy(60*time.Second, 3)
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 60 * time.Second},
		{1, 120 * time.Second},
		{2, 240 * time.Second},
		{-1, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayCapsShift(t *testing.T) {
	policy := retry.NewPolicy(time.Second, 3)
	if got := policy.Delay(100); got != policy.Delay(16) {
		t.Fatalf("oversized attempt not capped: %v", got)
	}
	if policy.Delay(100) <= 0 {
		t.Fatal("capped delay overflowed")
	}
}

func TestShouldRetryStopsAtMaxAttempts(t *testing.T) {
	policy := retry.NewPolicy(time.Minute, 3)
	for attempt := 1; attempt < 3; attempt++ {
		if !policy.ShouldRetry(attempt) {
			t.Fatalf("attempt %d should be retriable", attempt)
		}
	}
	if policy.ShouldRetry(3) {
		t.Fatal("third failure must escalate, not retry")
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	policy := retry.NewPolicy(0, 0)
	if policy.Base != retry.DefaultBase {
		t.Fatalf("base default not applied: %v", policy.Base)
	}
	if policy.MaxAttempts != retry.DefaultMaxAttempts {
		t.Fatalf("max attempts default not applied: %d", policy.MaxAttempts)
	}
}

func TestNextRetryAt(t *testing.T) {
	policy := retry.NewPolicy(time.Minute, 3)
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if got := policy.NextRetryAt(now, 1); !got.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("NextRetryAt = %v", got)
	}
}
