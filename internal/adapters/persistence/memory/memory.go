// Package memory implements the persistence capability in process
// memory. Used by tests and by terminals running without a durable
// backend configured.
package memory

import (
	"context"
	"sync"

	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
)

// Store holds namespaced key-value pairs under a single lock.
type Store struct {
	db map[string]map[string][]byte
	sync.RWMutex
}

// Compile-time check that Store implements the persistence capability
var _ capability.Persistence = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{db: make(map[string]map[string][]byte)}
}

// Write stores a copy of data atomically.
func (s *Store) Write(ctx context.Context, namespace, key string, data []byte) error {
	s.Lock()
	defer s.Unlock()

	ns, ok := s.db[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.db[namespace] = ns
	}
	ns[key] = bytesutil.Clone(data)
	return nil
}

// Read returns a copy of the stored data.
func (s *Store) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	ns, ok := s.db[namespace]
	if !ok {
		return nil, capability.ErrNotFound
	}
	data, ok := ns[key]
	if !ok {
		return nil, capability.ErrNotFound
	}
	return bytesutil.Clone(data), nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	s.Lock()
	defer s.Unlock()

	if ns, ok := s.db[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

// List returns the keys of a namespace.
func (s *Store) List(ctx context.Context, namespace string) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	ns, ok := s.db[namespace]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(ns))
	for key := range ns {
		keys = append(keys, key)
	}
	return keys, nil
}
