// internal/core/usecases/fakes_test.go
package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"phishfuse/internal/core/domain"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// fakeIntel es un ports.IntelService programable. Las funciones reciben la
// URL y el número de llamada (desde 1) para esa URL.
type fakeIntel struct {
	mu       sync.Mutex
	submitFn func(url string, call int) error
	queryFn  func(url string, call int) (domain.ScanStats, error)
	submits  map[string]int
	queries  map[string]int
	order    []string
}

func newFakeIntel() *fakeIntel {
	return &fakeIntel{submits: map[string]int{}, queries: map[string]int{}}
}

func (f *fakeIntel) Name() string { return "fake-intel" }

func (f *fakeIntel) Submit(ctx context.Context, url string) error {
	f.mu.Lock()
	f.submits[url]++
	n := f.submits[url]
	f.order = append(f.order, "submit "+url)
	f.mu.Unlock()
	if f.submitFn != nil {
		return f.submitFn(url, n)
	}
	return nil
}

func (f *fakeIntel) Query(ctx context.Context, url string) (domain.ScanStats, error) {
	f.mu.Lock()
	f.queries[url]++
	n := f.queries[url]
	f.order = append(f.order, "query "+url)
	f.mu.Unlock()
	if f.queryFn != nil {
		return f.queryFn(url, n)
	}
	return domain.ScanStats{}, nil
}

func (f *fakeIntel) submitCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits[url]
}

func (f *fakeIntel) queryCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[url]
}

// fakeClassifier asigna probabilidades fijas por URL.
type fakeClassifier struct {
	probs   map[string]float64
	version string
	calls   int
	mu      sync.Mutex
}

func (c *fakeClassifier) Assess(ctx context.Context, url string) (float64, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	p, ok := c.probs[url]
	if !ok {
		return 0, fmt.Errorf("no score for %s", url)
	}
	return p, nil
}

func (c *fakeClassifier) FeatureVersion() string { return c.version }

// fakeSource devuelve textos fijos.
type fakeSource struct {
	texts []string
	err   error
}

func (s fakeSource) Name() string { return "fake-source" }

func (s fakeSource) Fetch(ctx context.Context) ([]string, error) { return s.texts, s.err }

// fakeDomainInfo responde por host conocido.
type fakeDomainInfo struct {
	info map[string]*domain.DomainInfo
}

func (f fakeDomainInfo) Lookup(ctx context.Context, url string) (*domain.DomainInfo, error) {
	return f.info[url], nil
}

// fakeExpander reemplaza URLs acortadas.
type fakeExpander map[string]string

func (f fakeExpander) Expand(ctx context.Context, url string) (string, error) {
	if to, ok := f[url]; ok {
		return to, nil
	}
	return url, nil
}

// fakePages devuelve el texto de página por URL.
type fakePages map[string]string

func (f fakePages) FetchText(ctx context.Context, url string) (string, error) {
	return f[url], nil
}

var (
	clean      = domain.ScanStats{Harmless: 60, Undetected: 10}
	malicious  = domain.ScanStats{Malicious: 4, Harmless: 60}
	suspicious = domain.ScanStats{Suspicious: 1, Harmless: 9}
)
