// Package countdown implements the resend countdown for OTP challenges.
//
// The arithmetic is a pure function of (retryDisabledUntil, now) so it can
// be recomputed anywhere without drift. The ticker that drives UI updates is
// instance-scoped: each challenge gets its own, created on Start and
// released when the countdown reaches zero or the challenge is torn down.
// There is no shared timer handle between instances.
package countdown

import (
	"sync"
	"time"
)

// SecondsRemaining returns how many whole seconds remain until resend is
// allowed again, clamped to zero. Monotonically non-increasing in now.
func SecondsRemaining(retryDisabledUntil, now time.Time) int {
	if !now.Before(retryDisabledUntil) {
		return 0
	}
	remaining := retryDisabledUntil.Sub(now)
	// Round up so the UI never shows 0 while resend is still disabled.
	return int((remaining + time.Second - 1) / time.Second)
}

// Ticker re-evaluates SecondsRemaining on a fixed cadence and reports each
// value to the callback. It stops itself once the value reaches zero.
type Ticker struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Start begins ticking at a 1 second cadence. The callback receives the
// current seconds remaining, including the final zero. Call Stop to tear
// down early; Stop is safe to call more than once and after self-stop.
func Start(retryDisabledUntil time.Time, onTick func(secondsRemaining int)) *Ticker {
	return startWithClock(retryDisabledUntil, onTick, time.Second, time.Now)
}

// startWithClock exists so tests can compress the cadence and pin the clock.
func startWithClock(retryDisabledUntil time.Time, onTick func(int), interval time.Duration, now func() time.Time) *Ticker {
	t := &Ticker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			remaining := SecondsRemaining(retryDisabledUntil, now())
			onTick(remaining)
			if remaining == 0 {
				return
			}
			select {
			case <-t.stop:
				return
			case <-ticker.C:
			}
		}
	}()

	return t
}

// Stop tears the ticker down and waits for the tick goroutine to exit, so
// no callback fires after Stop returns.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	<-t.done
}
