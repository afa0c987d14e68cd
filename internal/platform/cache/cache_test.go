package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/testutil"
)

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"explicit", 10, 10},
		{"zero uses default", 0, DefaultCapacity},
		{"negative uses default", -3, DefaultCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New[string](tt.capacity)
			testutil.AssertEqual(t, c.Capacity(), tt.want, "capacity")
			testutil.AssertEqual(t, c.Len(), 0, "empty")
		})
	}
}

func TestLRU_SetGetDelete(t *testing.T) {
	c := New[int](4)

	_, ok := c.Get("missing")
	testutil.AssertFalse(t, ok, "missing key")

	c.Set("a", 1, 0)
	c.Set("a", 2, 0)
	v, ok := c.Get("a")
	testutil.AssertTrue(t, ok, "stored")
	testutil.AssertEqual(t, v, 2, "overwritten value")
	testutil.AssertEqual(t, c.Len(), 1, "single entry")

	c.Delete("a")
	_, ok = c.Get("a")
	testutil.AssertFalse(t, ok, "deleted")
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string](2)
	c.Set("a", "A", 0)
	c.Set("b", "B", 0)
	c.Get("a")
	c.Set("c", "C", 0)

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	testutil.AssertTrue(t, okA, "recently read entry kept")
	testutil.AssertFalse(t, okB, "least recently used evicted")
	testutil.AssertTrue(t, okC, "new entry kept")
}

func TestLRU_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewWithClock[string](10, clock)
	c.Set("short", "x", time.Minute)
	c.Set("long", "y", time.Hour)
	c.Set("forever", "z", 0)

	clock.Advance(2 * time.Minute)
	_, ok := c.Get("short")
	testutil.AssertFalse(t, ok, "expired on read")

	clock.Advance(2 * time.Hour)
	testutil.AssertEqual(t, c.CleanExpired(), 1, "long entry cleaned")
	v, ok := c.Get("forever")
	testutil.AssertTrue(t, ok, "no ttl never expires")
	testutil.AssertEqual(t, v, "z", "value")
}

func TestLRU_CleanupWorker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewWithClock[int](10, clock)
	c.Set("k", 1, time.Second)

	stop := c.StartCleanupWorker(time.Minute)
	defer stop()

	testutil.AssertNoError(t, clock.BlockUntilContext(t.Context(), 1), "ticker registered")
	clock.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	testutil.AssertEqual(t, c.Len(), 0, "worker removed expired entry")
	stop()
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int](50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", (n*j)%80)
				c.Set(key, j, 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	testutil.AssertTrue(t, c.Len() <= 50, "capacity respected")
}
