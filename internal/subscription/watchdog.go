package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/openclaw/ringcentral-bridge/internal/rcerrors"
)

// watchdogLoop runs the 30s periodic health check (spec.md §4.3): timer
// drift, socket liveness, and inbound staleness each independently trigger
// a forced reconnect. Grounded on the teacher's internal/background
// ticker-loop shape (select on ctx.Done / ticker.C).
func (m *Manager) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(watchdogPeriod)
	defer ticker.Stop()

	m.mu.Lock()
	m.lastWatchdogTick = time.Now()
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			m.runWatchdogCheck(tick)
		}
	}
}

func (m *Manager) runWatchdogCheck(tick time.Time) {
	m.mu.Lock()
	drift := tick.Sub(m.lastWatchdogTick) - watchdogPeriod
	m.lastWatchdogTick = tick

	state := m.state
	lastInbound := m.lastInboundAt
	connected := m.conn != nil
	m.mu.Unlock()

	if drift > watchdogDriftSlop {
		m.forceReconnect("timer drift exceeded watchdog period")
		return
	}

	if state == StateSubscribed && !connected {
		m.forceReconnect("socket not open while state reports subscribed")
		return
	}

	if state == StateSubscribed && !lastInbound.IsZero() && tick.Sub(lastInbound) > inboundStaleAfter {
		m.mu.Lock()
		m.lastInboundAt = time.Time{}
		m.mu.Unlock()
		m.forceReconnect("no inbound traffic within staleness window")
		return
	}
}

// isRateLimitErr reports whether err is a rate-limit classified
// *rcerrors.PlatformError.
func isRateLimitErr(err error) bool {
	_, ok := asRateLimit(err)
	return ok
}

// asRateLimit extracts the Retry-After duration from a rate-limit error,
// defaulting to 0 (letting GateRateLimit apply its own 60s floor) when the
// platform did not send one.
func asRateLimit(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var pe *rcerrors.PlatformError
	if !errors.As(err, &pe) {
		return 0, false
	}
	if pe.Kind != rcerrors.KindRateLimit {
		return 0, false
	}
	return time.Duration(pe.RetryAfter) * time.Second, true
}
