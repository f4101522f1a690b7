package countdown

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondsRemaining(t *testing.T) {
	deadline := time.Date(2024, 6, 15, 12, 0, 30, 0, time.UTC)

	t.Run("full window at issue time", func(t *testing.T) {
		now := deadline.Add(-30 * time.Second)
		assert.Equal(t, 30, SecondsRemaining(deadline, now))
	})

	t.Run("partial seconds round up", func(t *testing.T) {
		now := deadline.Add(-2500 * time.Millisecond)
		assert.Equal(t, 3, SecondsRemaining(deadline, now))
	})

	t.Run("zero at the deadline", func(t *testing.T) {
		assert.Equal(t, 0, SecondsRemaining(deadline, deadline))
	})

	t.Run("clamped to zero after the deadline", func(t *testing.T) {
		assert.Equal(t, 0, SecondsRemaining(deadline, deadline.Add(time.Hour)))
	})

	t.Run("monotonically non-increasing in now", func(t *testing.T) {
		start := deadline.Add(-45 * time.Second)
		prev := SecondsRemaining(deadline, start)
		for i := 1; i <= 90; i++ {
			now := start.Add(time.Duration(i) * 500 * time.Millisecond)
			cur := SecondsRemaining(deadline, now)
			assert.LessOrEqual(t, cur, prev)
			prev = cur
		}
	})
}

func TestTicker(t *testing.T) {
	t.Run("ticks down to zero and stops itself", func(t *testing.T) {
		base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
		deadline := base.Add(3 * time.Second)

		var mu sync.Mutex
		now := base
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			current := now
			now = now.Add(time.Second)
			return current
		}

		var got []int
		done := make(chan struct{})
		ticker := startWithClock(deadline, func(remaining int) {
			got = append(got, remaining)
			if remaining == 0 {
				close(done)
			}
		}, time.Millisecond, clock)
		defer ticker.Stop()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("ticker never reached zero")
		}

		require.Equal(t, []int{3, 2, 1, 0}, got)
	})

	t.Run("stop is idempotent and blocks until no more ticks", func(t *testing.T) {
		deadline := time.Now().Add(time.Hour)

		var mu sync.Mutex
		ticks := 0
		ticker := startWithClock(deadline, func(int) {
			mu.Lock()
			ticks++
			mu.Unlock()
		}, time.Millisecond, time.Now)

		time.Sleep(10 * time.Millisecond)
		ticker.Stop()
		ticker.Stop()

		mu.Lock()
		after := ticks
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		assert.Equal(t, after, ticks)
		mu.Unlock()
	})
}
