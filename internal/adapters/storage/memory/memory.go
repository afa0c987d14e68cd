// Package memory is a process-local ports.Repository used by tests and by
// dry runs that must not touch a database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/core/ports"
)

// Store keeps deep copies of everything it is given.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*domain.Document
	byKey  map[string]string
	intel  map[string]*domain.IntelRecord
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:  make(map[string]*domain.Document),
		byKey: make(map[string]string),
		intel: make(map[string]*domain.IntelRecord),
	}
}

var _ ports.Repository = (*Store)(nil)

// clone deep-copies v through JSON, which every domain type round-trips.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

func (s *Store) InsertDocument(_ context.Context, doc *domain.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[doc.ContentKey]; ok {
		doc.ID = id
		return false, nil
	}
	s.docs[doc.ID] = clone(doc)
	s.byKey[doc.ContentKey] = doc.ID
	return true, nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return clone(d), nil
}

func (s *Store) FindDocuments(_ context.Context, f ports.DocumentFilter) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Document, 0)
	for _, d := range s.docs {
		if f.Matches(d) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.OrderByRisk && a.RiskScore != b.RiskScore {
			return a.RiskScore > b.RiskScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountDocuments(_ context.Context, f ports.DocumentFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.docs {
		if f.Matches(d) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateDocument(_ context.Context, id string, u ports.DocumentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	u.Apply(d)
	s.docs[id] = clone(d)
	return nil
}

func (s *Store) EnsureIntel(_ context.Context, url string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intel[url]; ok {
		return false, nil
	}
	s.intel[url] = domain.NewIntelRecord(url, now)
	return true, nil
}

func (s *Store) GetIntel(_ context.Context, url string) (*domain.IntelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.intel[url]
	if !ok {
		return nil, domain.ErrIntelNotFound
	}
	return clone(r), nil
}

func (s *Store) FindIntel(_ context.Context, f ports.IntelFilter) ([]*domain.IntelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.IntelRecord, 0)
	for _, r := range s.intel {
		if f.Matches(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) UpdateIntel(_ context.Context, url string, u ports.IntelUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.intel[url]
	if !ok {
		return false, domain.ErrIntelNotFound
	}
	next := clone(r)
	if !u.Apply(next) {
		return false, nil
	}
	s.intel[url] = next
	return true, nil
}

// Close is a no-op kept for ports.Repository.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
