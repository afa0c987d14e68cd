package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/testutil"
)

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		name      string
		rate      float64
		burst     int
		wantRate  float64
		wantBurst int
	}{
		{"valid", 4, 2, 4, 2},
		{"zero rate", 0, 2, 1, 2},
		{"negative burst", 4, -1, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewWithClock(tt.rate, tt.burst, clockwork.NewFakeClock())
			testutil.AssertEqual(t, l.Rate(), tt.wantRate, "rate")
			testutil.AssertEqual(t, l.Burst(), tt.wantBurst, "burst")
			testutil.AssertEqual(t, l.Tokens(), float64(tt.wantBurst), "starts full")
		})
	}
}

func TestLimiter_AllowRefills(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewWithClock(2, 2, clock)

	testutil.AssertTrue(t, l.Allow(), "first")
	testutil.AssertTrue(t, l.Allow(), "second")
	testutil.AssertFalse(t, l.Allow(), "bucket empty")

	clock.Advance(500 * time.Millisecond)
	testutil.AssertTrue(t, l.Allow(), "one token refilled")
	testutil.AssertFalse(t, l.Allow(), "empty again")

	clock.Advance(time.Hour)
	testutil.AssertEqual(t, l.Tokens(), 2.0, "capped at burst")
}

func TestLimiter_Wait(t *testing.T) {
	t.Run("blocks until refill", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		l := NewWithClock(4, 1, clock)
		testutil.AssertTrue(t, l.Allow(), "drain")

		done := make(chan error, 1)
		go func() { done <- l.Wait(context.Background()) }()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		testutil.AssertNoError(t, clock.BlockUntilContext(ctx, 1), "waiter registered")
		clock.Advance(250 * time.Millisecond)

		select {
		case err := <-done:
			testutil.AssertNoError(t, err, "wait")
		case <-time.After(time.Second):
			t.Fatal("wait did not return after refill")
		}
	})

	t.Run("immediate when a token is available", func(t *testing.T) {
		l := NewWithClock(1, 3, clockwork.NewFakeClock())
		testutil.AssertNoError(t, l.Wait(context.Background()), "wait")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		l := NewWithClock(1, 1, clockwork.NewFakeClock())
		l.Allow()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		testutil.AssertErrorIs(t, l.Wait(ctx), context.Canceled, "cancelled")
	})
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := NewWithClock(100, 50, clockwork.NewFakeClock())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	testutil.AssertEqual(t, allowed, 50, "exactly burst tokens granted")
}
