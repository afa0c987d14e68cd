// Package rate provides the token bucket that paces outbound calls to external
// verdict and enrichment services.
package rate

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter is a token bucket. Wait blocks; Allow never does.
type Limiter struct {
	clock clockwork.Clock

	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  int
	tokens float64
	last   time.Time
}

// New creates a limiter refilling rate tokens per second up to burst, starting full.
func New(rate float64, burst int) *Limiter {
	return NewWithClock(rate, burst, clockwork.NewRealClock())
}

// NewWithClock is New with an injectable clock.
func NewWithClock(rate float64, burst int, clock clockwork.Clock) *Limiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		clock:  clock,
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   clock.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		d := l.reserve()
		if d == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(d):
		}
	}
}

// Allow consumes a token if one is available.
func (l *Limiter) Allow() bool {
	return l.reserve() == 0
}

// Tokens returns the tokens currently in the bucket.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance()
	return l.tokens
}

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 { return l.rate }

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int { return l.burst }

// reserve takes a token and returns 0, or returns how long until one is available.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.advance()
	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	need := (1 - l.tokens) / l.rate
	d := time.Duration(need * float64(time.Second))
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// advance refills the bucket for the time elapsed since the last call. l.mu must be held.
func (l *Limiter) advance() {
	now := l.clock.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.last = now
}
