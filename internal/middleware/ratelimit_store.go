package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/formdesk/internal/cache"
)

// RateStore counts hits for a key within a fixed window.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

const sweepEvery = 256

// MemoryRateStore keeps fixed-window counters in process memory. Expired
// windows are swept inline every few hundred increments.
type MemoryRateStore struct {
	mu      sync.Mutex
	windows map[string]fixedWindow
	hits    int
	clock   func() time.Time
}

type fixedWindow struct {
	count int
	ends  time.Time
}

// NewMemoryRateStore returns a store for single instance deployments and tests.
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{
		windows: make(map[string]fixedWindow),
		clock:   time.Now,
	}
}

// Increment counts one hit for key and reports the hits so far plus the time left in the window.
func (s *MemoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits++
	if s.hits%sweepEvery == 0 {
		s.sweep(now)
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.ends) {
		w = fixedWindow{ends: now.Add(window)}
	}
	w.count++
	s.windows[key] = w
	return w.count, w.ends.Sub(now), nil
}

// Len reports the number of live windows.
func (s *MemoryRateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryRateStore) sweep(now time.Time) {
	for key, w := range s.windows {
		if !now.Before(w.ends) {
			delete(s.windows, key)
		}
	}
}

// sharedRateStore counts on a cache.Store so several replicas share one budget.
type sharedRateStore struct {
	store cache.Store
}

// NewSharedRateStore counts on the Redis or database cache store. A nil store yields nil.
func NewSharedRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return sharedRateStore{store: store}
}

func (s sharedRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
