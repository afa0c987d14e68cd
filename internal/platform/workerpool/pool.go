// internal/platform/workerpool/pool.go
package workerpool

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"phishfuse/internal/platform/logx"
)

// Pool ejecuta lotes de trabajo independientes con concurrencia acotada.
type Pool struct {
	workers int
	logger  logx.Logger
}

// Stats resume la ejecución de un lote.
type Stats struct {
	Items    int
	Done     int
	Failed   int
	Duration time.Duration
}

// New crea un pool con workers goroutines como máximo (mínimo 1).
func New(workers int, logger logx.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		logger:  logger.With("component", "worker-pool"),
	}
}

// Workers retorna el límite de concurrencia.
func (p *Pool) Workers() int { return p.workers }

// Run ejecuta fn(ctx, i) para i en [0, n). Un error de fn cancela el contexto
// del resto y se retorna; los errores recuperables deben manejarse dentro de fn.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) (Stats, error) {
	start := time.Now()
	stats := Stats{Items: n}
	if n == 0 {
		return stats, nil
	}

	var done, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(gctx, i); err != nil {
				failed.Add(1)
				return err
			}
			done.Add(1)
			return nil
		})
	}

	err := g.Wait()
	stats.Done = int(done.Load())
	stats.Failed = int(failed.Load())
	stats.Duration = time.Since(start)

	p.logger.Debug("batch finished",
		"items", n,
		"done", stats.Done,
		"failed", stats.Failed,
		"workers", p.workers,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}
