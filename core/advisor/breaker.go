package advisor

import (
	"sync"
	"time"
)

type breakerState int

const (
	closedState breakerState = iota
	openState
	halfOpenState
)

// breaker is a consecutive-failure circuit breaker: after openThreshold
// consecutive failures it opens and short-circuits calls for cooldown;
// the first call after cooldown is let through as a half-open probe.
type breaker struct {
	mu            sync.Mutex
	openThreshold int
	cooldown      time.Duration

	phase         breakerState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

func newBreaker(openThreshold int, cooldown time.Duration) *breaker {
	return &breaker{openThreshold: openThreshold, cooldown: cooldown}
}

// allow reports whether a call may proceed. In the open state, a probe is
// allowed exactly once per cooldown window.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case closedState:
		return true
	case openState:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		if b.probeInFlight {
			return false
		}
		b.phase = halfOpenState
		b.probeInFlight = true
		return true
	case halfOpenState:
		return false // a probe is already in flight
	default:
		return true
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.phase = closedState
	b.probeInFlight = false
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase == halfOpenState {
		// Probe failed: re-open immediately for a fresh cooldown.
		b.phase = openState
		b.openedAt = time.Now()
		b.probeInFlight = false
		return
	}

	b.failures++
	if b.failures >= b.openThreshold {
		b.phase = openState
		b.openedAt = time.Now()
	}
}

func (b *breaker) currentPhase() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// state returns a human-readable breaker state for health reporting.
func (b *breaker) state() string {
	switch b.currentPhase() {
	case openState:
		return "open"
	case halfOpenState:
		return "half_open"
	default:
		return "closed"
	}
}
