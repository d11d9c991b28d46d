package cachesvc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/syaifulazham/techlympics/core/attendance"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero: never
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is the in-process fallback used when redis is not configured.
// It only fits a single API instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	nowFunc func() time.Time
}

var (
	_ attendance.Cache     = (*MemoryStore)(nil)
	_ attendance.ScanGuard = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), nowFunc: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.expired(s.nowFunc()) {
		delete(s.entries, key)
		return nil, attendance.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.nowFunc().Add(ttl)
	}
	s.entries[key] = e
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	if e, ok := s.entries[key]; ok && !e.expired(now) {
		return false, nil
	}
	s.set(key, nil, window)
	s.sweep(now)
	return true, nil
}

// sweep drops expired entries so that scan keys do not pile up.
func (s *MemoryStore) sweep(now time.Time) {
	if len(s.entries) < 1024 {
		return
	}
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}
