// internal/platform/workerpool/gate.go
package workerpool

import (
	"sync"
	"time"
)

// Gate es un pestillo compartido por los workers de un lote: el primero que
// recibe una señal de rate limit lo cierra y los demás dejan de llamar al
// servicio hasta que el lote completo haga la pausa.
type Gate struct {
	mu     sync.Mutex
	closed bool
	wait   time.Duration
	trips  int
}

// Close cierra la compuerta pidiendo una pausa de al menos d.
func (g *Gate) Close(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.trips++
	if d > g.wait {
		g.wait = d
	}
}

// Closed indica si algún worker pidió pausa.
func (g *Gate) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Reopen abre la compuerta y retorna la pausa más larga solicitada y cuántas
// señales la cerraron desde la última apertura.
func (g *Gate) Reopen() (time.Duration, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, n := g.wait, g.trips
	g.closed, g.wait, g.trips = false, 0, 0
	return d, n
}
