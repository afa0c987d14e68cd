package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/testutil"
)

var errDown = errors.New("down")

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreakerWithClock(3, time.Minute, 1, clock)
	fail := func() error { return errDown }
	ok := func() error { return nil }

	for i := 0; i < 3; i++ {
		testutil.AssertErrorIs(t, cb.Do(fail, nil), errDown, "failure passes through")
	}
	testutil.AssertEqual(t, cb.State(), StateOpen, "opens at threshold")
	testutil.AssertErrorIs(t, cb.Do(ok, nil), ErrCircuitOpen, "rejected while open")

	clock.Advance(time.Minute)
	testutil.AssertTrue(t, cb.Allow(), "trial call allowed after timeout")
	testutil.AssertEqual(t, cb.State(), StateHalfOpen, "half-open")
	testutil.AssertFalse(t, cb.Allow(), "only one trial call in flight")
	cb.RecordFailure()
	testutil.AssertEqual(t, cb.State(), StateOpen, "trial failure reopens")

	clock.Advance(time.Minute)
	testutil.AssertNoError(t, cb.Do(ok, nil), "trial call succeeds")
	testutil.AssertEqual(t, cb.State(), StateClosed, "closed after successful trial call")
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute, 1)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	testutil.AssertEqual(t, cb.State(), StateClosed, "failures must be consecutive")
	testutil.AssertEqual(t, cb.Stats().FailureCount, 1, "count reset by success")
}

func TestCircuitBreaker_CountablePredicate(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute, 1)
	notFound := errors.New("not found")
	err := cb.Do(func() error { return notFound }, func(err error) bool { return !errors.Is(err, notFound) })
	testutil.AssertErrorIs(t, err, notFound, "error returned")
	testutil.AssertEqual(t, cb.State(), StateClosed, "uncounted errors do not trip")

	cb.Reset()
	_ = cb.Do(func() error { return errDown }, nil)
	testutil.AssertEqual(t, cb.State(), StateOpen, "counted error trips")
	testutil.AssertEqual(t, StateHalfOpen.String(), "half-open", "state string")
}
