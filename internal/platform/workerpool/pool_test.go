package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"phishfuse/internal/platform/logx"
	"phishfuse/internal/testutil"
)

func TestPool_RunAll(t *testing.T) {
	p := New(3, logx.Discard())

	var mu sync.Mutex
	seen := make(map[int]bool)
	stats, err := p.Run(context.Background(), 10, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})

	testutil.AssertNoError(t, err, "run")
	testutil.AssertEqual(t, stats.Items, 10, "items")
	testutil.AssertEqual(t, stats.Done, 10, "done")
	testutil.AssertLen(t, seen, 10, "every index visited")
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := New(2, logx.Discard())

	var cur, peak atomic.Int32
	_, err := p.Run(context.Background(), 8, func(_ context.Context, _ int) error {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return nil
	})

	testutil.AssertNoError(t, err, "run")
	testutil.AssertTrue(t, peak.Load() <= 2, "never more than 2 in flight")
}

func TestPool_ErrorCancelsBatch(t *testing.T) {
	p := New(1, logx.Discard())
	boom := errors.New("boom")

	var calls atomic.Int32
	stats, err := p.Run(context.Background(), 5, func(ctx context.Context, i int) error {
		calls.Add(1)
		if i == 1 {
			return boom
		}
		return ctx.Err()
	})

	testutil.AssertErrorIs(t, err, boom, "first error returned")
	testutil.AssertEqual(t, stats.Failed, 1, "failed")
	testutil.AssertTrue(t, calls.Load() < 5, "remaining items skipped")
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := New(2, logx.Discard()).Run(ctx, 4, func(context.Context, int) error { return nil })
	testutil.AssertErrorIs(t, err, context.Canceled, "cancelled")
	testutil.AssertEqual(t, stats.Done, 0, "nothing ran")
}

func TestPool_Empty(t *testing.T) {
	stats, err := New(0, logx.Discard()).Run(context.Background(), 0, nil)
	testutil.AssertNoError(t, err, "empty batch")
	testutil.AssertEqual(t, stats.Items, 0, "items")
}

func TestGate(t *testing.T) {
	var g Gate
	testutil.AssertFalse(t, g.Closed(), "starts open")

	g.Close(10 * time.Second)
	g.Close(30 * time.Second)
	g.Close(0)
	testutil.AssertTrue(t, g.Closed(), "closed")

	d, n := g.Reopen()
	testutil.AssertEqual(t, d, 30*time.Second, "longest pause wins")
	testutil.AssertEqual(t, n, 3, "trips")
	testutil.AssertFalse(t, g.Closed(), "reopened")

	d, n = g.Reopen()
	testutil.AssertEqual(t, d, time.Duration(0), "no pause pending")
	testutil.AssertEqual(t, n, 0, "no trips")
}
