// Package storage provides the in-memory object store used by tests and
// single-process deployments. Keys are prefix-scoped per the storage
// contract; refs use an s3:// display scheme over the bare key.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// MemoryStore is a prefix-scoped in-memory StorageClient. Safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// PutBytes stores payload under key and returns its display ref. Keys
// outside the allowed stage prefixes fail with a validation fault.
func (s *MemoryStore) PutBytes(_ context.Context, key string, payload []byte) (string, error) {
	if !domain.ValidStorageKey(key) {
		return "", fmt.Errorf("op=storage.PutBytes: key %q must start with an allowed stage prefix: %w", key, domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.objects[key] = buf
	return "s3://" + key, nil
}

// GetBytes returns the payload stored under key.
func (s *MemoryStore) GetBytes(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("op=storage.GetBytes: key %q: %w", key, domain.ErrNotFound)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return buf, nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
