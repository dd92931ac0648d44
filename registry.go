package hnswkv

import (
	"sync"
	"time"

	"github.com/hnswkv/hnswkv/hnsw"
)

// IndexEngine is the node-level operation set of a graph backend
// (insert, delete, get, search, count). hnsw.Index satisfies it directly.
// It is not the type the registry stores: entries hold *hnsw.Index,
// and index metadata and persistence use *hnsw.Index methods outside this
// interface, so no second backend can be registered through it as is.
type IndexEngine interface {
	NodeCount() int
	Insert(name string, vector []float32, update hnsw.UpdateFunc) error
	Delete(name string, update hnsw.UpdateFunc) error
	Get(name string) (hnsw.NodeState, error)
	Search(q []float32, k int) ([]hnsw.SearchResult, error)
}

var _ IndexEngine = (*hnsw.Index)(nil)

// entry wraps a registered index with its own read/write lock, so that
// concurrent read-only searches against one index never block each other
// while writers to that index serialize, independent of every other
// index's traffic.
type entry struct {
	mu         sync.RWMutex
	ix         *hnsw.Index
	generation string
}

// Server is the process-wide index registry (C5): a name-to-handle map
// guarded by its own read/write lock, lazily rehydrating an index from
// the host's key-value store the first time a command references a name
// not yet resident in memory. The registry lock is taken for writing to
// insert a rehydrated or newly created entry, to remove an entry, and to
// close the server; lookups of resident entries take it for reading.
type Server struct {
	mu      sync.RWMutex
	entries map[string]*entry
	store   KVStore
	options *Options
	closed  bool
}

// Open wraps an existing KVStore with a Server, mirroring the teacher's
// OpenWithDB for constructing a database over a caller-supplied store
// (used by tests and by embedding hnswkv inside an already-open host).
func Open(store KVStore, opts ...Option) *Server {
	options := applyOptions(opts...)
	return &Server{
		entries: make(map[string]*entry),
		store:   store,
		options: options,
	}
}

// Close releases the underlying store. Calling Close more than once, or
// calling any other Server method after Close, returns errClosed.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.closed = true
	return s.store.Close()
}

// lookup returns the in-memory entry for name, rehydrating it from the
// store on first reference. Rehydrate-and-insert takes the registry lock
// for writing first and constructs the index while holding it, without
// taking the index's own lock (the handle is not yet shared).
func (s *Server) lookup(name string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errClosed
	}
	if ok {
		return e, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	if e, ok := s.entries[name]; ok {
		return e, nil
	}

	ix, generation, err := loadIndex(s.store, s.options.KeyPrefix, name, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	ix.SetEfSearch(s.options.DefaultEfSearch)
	e = &entry{ix: ix, generation: generation}
	s.entries[name] = e
	return e, nil
}

// register installs a freshly created index (not rehydrated) into the
// registry under the registry write lock.
func (s *Server) register(ix *hnsw.Index) *entry {
	ix.SetEfSearch(s.options.DefaultEfSearch)
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{ix: ix}
	s.entries[ix.Name] = e
	return e
}

// forget removes an index from the registry, used by DeleteIndex.
func (s *Server) forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}
