package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// MemoryStore keeps attempts in process memory. Each key has its own mutex,
// created on first use and dropped once no caller holds it. The shared maps
// are guarded only for the duration of a lookup, never while fn runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Attempt
	locks   map[string]*keyLock
	now     func() time.Time
}

// MemoryOptions configures NewMemoryStore.
type MemoryOptions struct {
	// Now overrides the clock used to stamp UpdatedAt.
	Now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]*Attempt),
		locks:   make(map[string]*keyLock),
		now:     now,
	}
}

// Get returns a copy of the stored attempt or nil.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[userID].Clone(), nil
}

// Update applies fn under the key's lock and stores the result.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn UpdateFunc) (*Attempt, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.acquire(userID)
	defer s.release(userID, l)

	s.mu.Lock()
	current := s.entries[userID].Clone()
	s.mu.Unlock()

	next, err := fn(current.Clone())
	if errors.Is(err, ErrSkip) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next == nil {
		delete(s.entries, userID)
		return nil, nil
	}
	stored := next.Clone()
	stored.UpdatedAt = s.now()
	s.entries[userID] = stored
	return stored.Clone(), nil
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored attempts.
func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *MemoryStore) acquire(key string) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *MemoryStore) release(key string, l *keyLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}
