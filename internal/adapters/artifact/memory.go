package artifact

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Useful for tests and
// for single-node runs where durability across restarts is not needed.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, _ string, body []byte) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	cp := make([]byte, len(body))
	copy(cp, body)

	s.mu.Lock()
	s.docs[key] = cp
	s.mu.Unlock()
	return "mem://" + key, nil
}

func (s *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	key, ok := trimScheme(ref, "mem://")
	if !ok {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	body, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func trimScheme(ref, scheme string) (string, bool) {
	if len(ref) <= len(scheme) || ref[:len(scheme)] != scheme {
		return "", false
	}
	return ref[len(scheme):], true
}
