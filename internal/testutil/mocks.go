// internal/testutil/mocks.go
package testutil

import (
	"context"
	"sync"
	"time"
)

// Nota: los fakes de ports viven junto a sus consumidores.
// Este archivo contiene solo utilidades genéricas sin dependencias circulares.

// RecordingSleeper registra las pausas solicitadas sin dormir de verdad.
// Cancel, si no es nil, se invoca al alcanzar la pausa número CancelAt.
type RecordingSleeper struct {
	mu       sync.Mutex
	Calls    []time.Duration
	CancelAt int
	Cancel   context.CancelFunc
}

// Sleep cumple la firma func(ctx, d) error que usan los casos de uso.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Calls = append(s.Calls, d)
	n := len(s.Calls)
	s.mu.Unlock()

	if s.Cancel != nil && n >= s.CancelAt {
		s.Cancel()
	}
	return ctx.Err()
}

// Durations devuelve una copia de las pausas registradas.
func (s *RecordingSleeper) Durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.Calls...)
}

// Count devuelve cuántas pausas iguales a d se pidieron.
func (s *RecordingSleeper) Count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c == d {
			n++
		}
	}
	return n
}
