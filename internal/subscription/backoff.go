package subscription

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffMin = 5 * time.Second
	backoffMax = 300 * time.Second
	jitterFrac = 0.25
)

// BackoffState tracks reconnect attempts for one subscription (spec.md §3,
// §4.3). Unbounded attempts; the delay sequence clamps to [min, max].
type BackoffState struct {
	Attempt              int
	LastReconnectAt       time.Time
	TotalReconnects       int
	NextAllowedConnectAt time.Time
}

// NextDelay computes min*2^attempt with ±25% jitter, clamps the jittered
// result to [min, max] (spec.md §4.3, §8), then increments Attempt. The
// clamp must follow the jitter: clamping the base to max first lets the
// jitter push a full-backoff delay past max.
func (b *BackoffState) NextDelay() time.Duration {
	base := float64(backoffMin) * math.Pow(2, float64(b.Attempt))

	jitter := base * jitterFrac * (2*rand.Float64() - 1) // nolint:gosec
	delay := time.Duration(base + jitter)
	if delay > backoffMax {
		delay = backoffMax
	}
	if delay < backoffMin {
		delay = backoffMin
	}

	b.Attempt++
	return delay
}

// Reset clears the attempt counter after a successful connect.
func (b *BackoffState) Reset() {
	b.Attempt = 0
}

// GateRateLimit implements the 429/"Request rate exceeded" handling
// (§4.3): never retry faster than max(retryAfter, 60s).
func (b *BackoffState) GateRateLimit(retryAfter time.Duration) {
	floor := 60 * time.Second
	if retryAfter > floor {
		floor = retryAfter
	}
	b.NextAllowedConnectAt = time.Now().Add(floor)
}

// AllowedNow reports whether a connect attempt may proceed given any
// rate-limit gate set by GateRateLimit. This collapses the source's
// double-check of nextAllowedWsConnectAt into the single gate spec.md §9
// says is sufficient.
func (b *BackoffState) AllowedNow() bool {
	return time.Now().After(b.NextAllowedConnectAt)
}
