package subscription

import (
	"testing"
	"time"
)

// TestBackoffDelaySequenceStaysWithinBounds covers spec.md §8: "Reconnect
// delay sequence stays within [5*2^attempt*0.75, min(5*2^attempt*1.25,
// 300)] seconds."
func TestBackoffDelaySequenceStaysWithinBounds(t *testing.T) {
	var b BackoffState
	for attempt := 0; attempt < 10; attempt++ {
		base := float64(backoffMin) * pow2(attempt)
		if base > float64(backoffMax) {
			base = float64(backoffMax)
		}
		lo := time.Duration(base * 0.75)
		hi := time.Duration(base * 1.25)
		if hi > backoffMax {
			hi = backoffMax
		}

		delay := b.NextDelay()
		if delay < lo || delay > hi {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, delay, lo, hi)
		}
	}
}

func pow2(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 2
	}
	return out
}

func TestBackoffResetClearsAttempt(t *testing.T) {
	var b BackoffState
	b.NextDelay()
	b.NextDelay()
	if b.Attempt == 0 {
		t.Fatal("expected attempt to have advanced")
	}
	b.Reset()
	if b.Attempt != 0 {
		t.Fatalf("expected attempt reset to 0, got %d", b.Attempt)
	}
}

// TestGateRateLimitFloorsAtSixtySeconds covers spec.md §8's 429 scenario:
// "on 429 the next attempt is >= 60s later", even when the platform sends
// no Retry-After (retryAfter=0) or one shorter than the floor.
func TestGateRateLimitFloorsAtSixtySeconds(t *testing.T) {
	var b BackoffState
	before := time.Now()
	b.GateRateLimit(0)
	if !b.NextAllowedConnectAt.After(before.Add(59 * time.Second)) {
		t.Fatalf("expected a >=60s floor, got %v", b.NextAllowedConnectAt.Sub(before))
	}
	if b.AllowedNow() {
		t.Fatal("expected AllowedNow to be false immediately after gating")
	}
}

// TestGateRateLimitHonoursLongerRetryAfter covers the Retry-After: 90
// scenario from spec.md §8 scenario 8.
func TestGateRateLimitHonoursLongerRetryAfter(t *testing.T) {
	var b BackoffState
	before := time.Now()
	b.GateRateLimit(90 * time.Second)
	if b.NextAllowedConnectAt.Before(before.Add(90 * time.Second)) {
		t.Fatalf("expected gate to respect the longer 90s retry-after, got %v", b.NextAllowedConnectAt.Sub(before))
	}
}

func TestAllowedNowTrueBeforeAnyGate(t *testing.T) {
	var b BackoffState
	if !b.AllowedNow() {
		t.Fatal("expected AllowedNow to be true with no gate set")
	}
}
