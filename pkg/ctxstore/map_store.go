package ctxstore

import (
	"context"
	"sync"
	"time"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// MapStore is an in-process Store used by tests and by deployments without
// a Redis: same Get/Set/Delete contract, entries expire lazily on Get.
type MapStore struct {
	mu      sync.Mutex
	entries map[string]mapEntry

	// FailNext, when set, makes every subsequent operation return it
	// until cleared — used to simulate a store outage.
	FailNext error
}

type mapEntry struct {
	sc        ctxmodel.StandardContext
	expiresAt time.Time
}

// NewMapStore returns an empty in-memory Store.
func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[string]mapEntry)}
}

func (s *MapStore) Get(_ context.Context, fingerprint string) (ctxmodel.StandardContext, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext != nil {
		return ctxmodel.StandardContext{}, false, s.FailNext
	}
	e, ok := s.entries[fingerprint]
	if !ok {
		return ctxmodel.StandardContext{}, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, fingerprint)
		return ctxmodel.StandardContext{}, false, nil
	}
	return e.sc, true, nil
}

func (s *MapStore) Set(_ context.Context, fingerprint string, sc ctxmodel.StandardContext, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext != nil {
		return s.FailNext
	}
	s.entries[fingerprint] = mapEntry{sc: sc, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MapStore) Delete(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext != nil {
		return s.FailNext
	}
	delete(s.entries, fingerprint)
	return nil
}
