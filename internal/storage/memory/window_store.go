package memory

import (
	"context"
	"sync"

	"market-feed/internal/storage"
)

// windowList is one list guarded by its own mutex.
type windowList struct {
	mu      sync.Mutex
	entries [][]byte
}

// WindowStore is an in-memory implementation of storage.WindowStore.
// Each list has its own lock; the map lock is only taken to find or
// create a list.
type WindowStore struct {
	mu    sync.RWMutex
	lists map[string]*windowList
}

// NewWindowStore creates a new in-memory window store.
func NewWindowStore() *WindowStore {
	return &WindowStore{
		lists: make(map[string]*windowList),
	}
}

func (s *WindowStore) list(key string) *windowList {
	s.mu.RLock()
	l, ok := s.lists[key]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.lists[key]; ok {
		return l
	}
	l = &windowList{}
	s.lists[key] = l
	return l
}

// Append adds entry to the tail of every named list.
func (s *WindowStore) Append(_ context.Context, keys []string, entry []byte) error {
	if len(entry) == 0 {
		return storage.ErrInvalidInput
	}

	for _, key := range keys {
		l := s.list(key)
		l.mu.Lock()
		l.entries = append(l.entries, entry)
		l.mu.Unlock()
	}
	return nil
}

// Drain swaps the list out under its lock and returns the old contents.
func (s *WindowStore) Drain(_ context.Context, key string) ([][]byte, error) {
	l := s.list(key)
	l.mu.Lock()
	entries := l.entries
	l.entries = nil
	l.mu.Unlock()
	return entries, nil
}

// Range returns a copy of the list contents.
func (s *WindowStore) Range(_ context.Context, key string) ([][]byte, error) {
	l := s.list(key)
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([][]byte, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

// Head returns a copy of at most the first n entries.
func (s *WindowStore) Head(_ context.Context, key string, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	l := s.list(key)
	l.mu.Lock()
	defer l.mu.Unlock()

	n = min(n, len(l.entries))
	out := make([][]byte, n)
	copy(out, l.entries[:n])
	return out, nil
}

// TrimPrefix removes the first n entries of the list.
func (s *WindowStore) TrimPrefix(_ context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}

	l := s.list(key)
	l.mu.Lock()
	defer l.mu.Unlock()

	if n >= len(l.entries) {
		l.entries = nil
		return nil
	}
	rest := make([][]byte, len(l.entries)-n)
	copy(rest, l.entries[n:])
	l.entries = rest
	return nil
}

// Len returns the number of entries in a list.
func (s *WindowStore) Len(key string) int {
	l := s.list(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

var _ storage.WindowStore = (*WindowStore)(nil)
