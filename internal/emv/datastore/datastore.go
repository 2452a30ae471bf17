// Package datastore holds the per-transaction tag dictionaries: one for
// terminal-resident data, one for card-supplied data. Both are reset at
// transaction start and never survive it.
package datastore

import (
	"sync"

	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/tlv"
)

// Store maps tags to their current values for the active transaction.
type Store struct {
	db map[tlv.Tag][]byte
	sync.RWMutex
}

// New creates an empty Store.
func New() *Store {
	return &Store{db: make(map[tlv.Tag][]byte)}
}

// Put stores a copy of value under tag, replacing any previous value.
func (s *Store) Put(t tlv.Tag, value []byte) {
	s.Lock()
	defer s.Unlock()

	s.db[t] = bytesutil.Clone(value)
}

// Get retrieves a copy of the value stored under tag.
func (s *Store) Get(t tlv.Tag) ([]byte, bool) {
	s.RLock()
	defer s.RUnlock()

	v, ok := s.db[t]
	if !ok {
		return nil, false
	}
	return bytesutil.Clone(v), true
}

// Has reports whether tag is present.
func (s *Store) Has(t tlv.Tag) bool {
	s.RLock()
	defer s.RUnlock()

	_, ok := s.db[t]
	return ok
}

// Delete removes tag from the store.
func (s *Store) Delete(t tlv.Tag) {
	s.Lock()
	defer s.Unlock()

	delete(s.db, t)
}

// Reset wipes every value and empties the store. Values are overwritten
// before release so card data does not linger in freed memory.
func (s *Store) Reset() {
	s.Lock()
	defer s.Unlock()

	for t, v := range s.db {
		bytesutil.Zeroize(v)
		delete(s.db, t)
	}
}

// Len returns the number of stored tags.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()

	return len(s.db)
}

// PutTLVs stores primitive objects and recursively descends constructed
// templates, so card stores only ever hold primitive leaves.
func (s *Store) PutTLVs(objects []tlv.TLV) error {
	for _, obj := range objects {
		if obj.Tag.Constructed() {
			children, err := obj.Children()
			if err != nil {
				return err
			}
			if err := s.PutTLVs(children); err != nil {
				return err
			}
			continue
		}
		s.Put(obj.Tag, obj.Value)
	}
	return nil
}
