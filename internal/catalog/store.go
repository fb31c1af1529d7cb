package catalog

import "sync/atomic"

// Store publishes the current catalog to concurrent readers. Load never
// blocks and never observes a partially built catalog.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store holding initial, or an empty catalog when
// initial is nil.
func NewStore(initial *Catalog) *Store {
	s := &Store{}
	if initial == nil {
		initial = Empty()
	}
	s.current.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Catalog {
	return s.current.Load()
}

// Swap publishes next and returns the snapshot it replaced. A nil next is
// ignored and the current snapshot is returned.
func (s *Store) Swap(next *Catalog) *Catalog {
	if next == nil {
		return s.current.Load()
	}
	return s.current.Swap(next)
}
