// Package memstore holds named references to attribute forests so that a
// later stage can retrieve what a pipeline kept in memory.
package memstore

import (
	"sort"
	"sync"

	"github.com/afpipeline/runtime/pkg/attribute"
)

// Store is a named forest store. The zero value is ready to use.
type Store struct {
	mu      sync.RWMutex
	forests map[string]*attribute.Forest
}

// Default is the process-wide store used when a handler has none configured.
var Default = &Store{}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Put stores a shared reference to forest under name, replacing any previous one.
func (s *Store) Put(name string, forest *attribute.Forest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forests == nil {
		s.forests = make(map[string]*attribute.Forest)
	}
	s.forests[name] = forest
}

// Get returns the forest stored under name.
func (s *Store) Get(name string) (*attribute.Forest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forests[name]
	return f, ok
}

// Delete removes name from the store.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.forests, name)
}

// Names returns the stored names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.forests))
	for n := range s.forests {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
