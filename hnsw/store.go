package hnsw

import "sync/atomic"

// neighborRef is a weak, arena-indexed back-reference to a node. It never
// keeps the referenced node alive; resolving one requires checking the
// generation counter against the live slot, which catches the case where
// the slot has since been reused by a different node.
type neighborRef struct {
	idx int32
	gen uint32
}

// node is a single arena slot: a name, its vector payload, and its
// per-layer adjacency lists. Index 0 of layers is layer 0.
type node struct {
	name     string
	vector   []float32
	layers   [][]neighborRef
	topLayer int
	gen      uint32
	// refs counts outstanding strong handles plus the implicit reference
	// held by the store itself for as long as the node is live (so a
	// freshly created, unreferenced node has refs == 1). remove() requires
	// refs == 1 to proceed; refs > 1 means an external Handle is still
	// outstanding and remove fails with ErrInUse, matching the node
	// store's "reference-count ≥ 2 probe".
	refs int32
	live bool
}

// Handle is a strong, short-lived reference to a node obtained via
// Store.Get or Store.GetMut. Holding one prevents the node from being
// removed. Callers must call Release when done.
type Handle struct {
	store *Store
	idx   int32
	gen   uint32
}

// Name returns the node's name.
func (h *Handle) Name() string { return h.store.nodes[h.idx].name }

// Vector returns the node's vector payload. The returned slice must not be
// mutated.
func (h *Handle) Vector() []float32 { return h.store.nodes[h.idx].vector }

// TopLayer returns the layer this node was assigned at insertion time.
func (h *Handle) TopLayer() int { return h.store.nodes[h.idx].topLayer }

// Neighbors returns the neighbor references at the given layer. The
// returned slice is owned by the store; callers must not retain it across
// a mutation.
func (h *Handle) Neighbors(layer int) []neighborRef {
	n := h.store.nodes[h.idx]
	if layer >= len(n.layers) {
		return nil
	}
	return n.layers[layer]
}

// Ref returns the weak reference underlying this handle, suitable for
// storing in another node's adjacency list.
func (h *Handle) Ref() neighborRef { return neighborRef{idx: h.idx, gen: h.gen} }

// Release drops the strong reference held by this handle.
func (h *Handle) Release() {
	atomic.AddInt32(&h.store.nodes[h.idx].refs, -1)
}

// Store is an arena of nodes addressed by stable integer indices, keyed by
// name. It is the node store (C2): it owns vector payloads and per-layer
// adjacency, and tracks outstanding handles so that removal of a node
// currently referenced elsewhere fails loudly rather than corrupting the
// graph. The Store itself is not safe for concurrent use without an
// external lock; the owning Index serializes access to it under its own
// read/write lock, per the locking discipline described alongside the
// registry.
type Store struct {
	nodes  []*node
	free   []int32
	byName map[string]int32
}

// NewStore creates an empty node store.
func NewStore() *Store {
	return &Store{byName: make(map[string]int32)}
}

// Len returns the number of live nodes.
func (s *Store) Len() int { return len(s.byName) }

// CreateNode allocates a node with the given name and vector, with empty
// per-layer adjacency reserved through topLayer, and capacity reserved at
// layer 0 for mMax0 neighbors. Fails with ErrAlreadyExists if the name is
// already present.
func (s *Store) CreateNode(name string, vector []float32, topLayer, mMax0 int) (neighborRef, error) {
	if _, exists := s.byName[name]; exists {
		return neighborRef{}, ErrAlreadyExists
	}

	layers := make([][]neighborRef, topLayer+1)
	layers[0] = make([]neighborRef, 0, mMax0)

	v := make([]float32, len(vector))
	copy(v, vector)

	n := &node{
		name:     name,
		vector:   v,
		layers:   layers,
		topLayer: topLayer,
		refs:     1,
		live:     true,
	}

	var idx int32
	if len(s.free) > 0 {
		idx = s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
		n.gen = s.nodes[idx].gen + 1
		s.nodes[idx] = n
	} else {
		idx = int32(len(s.nodes))
		n.gen = 0
		s.nodes = append(s.nodes, n)
	}
	s.byName[name] = idx

	return neighborRef{idx: idx, gen: n.gen}, nil
}

// Get returns a strong handle to the named node, or false if it does not
// exist.
func (s *Store) Get(name string) (*Handle, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	n := s.nodes[idx]
	atomic.AddInt32(&n.refs, 1)
	return &Handle{store: s, idx: idx, gen: n.gen}, true
}

// GetMut is an alias for Get: the store has no separate read-only handle
// type, since the owning index already serializes all mutation under its
// own write lock before calling into the store.
func (s *Store) GetMut(name string) (*Handle, bool) { return s.Get(name) }

// Resolve upgrades a weak neighbor reference to a strong handle. Returns
// false if the slot has been freed or reused by a different generation
// (a dangling reference).
func (s *Store) Resolve(ref neighborRef) (*Handle, bool) {
	if int(ref.idx) >= len(s.nodes) {
		return nil, false
	}
	n := s.nodes[ref.idx]
	if n == nil || !n.live || n.gen != ref.gen {
		return nil, false
	}
	atomic.AddInt32(&n.refs, 1)
	return &Handle{store: s, idx: ref.idx, gen: n.gen}, true
}

// Peek resolves a weak reference without taking a strong handle, for
// read-only traversal during search where no deletion can race (the index
// write lock guards all mutation).
func (s *Store) Peek(ref neighborRef) (name string, vector []float32, ok bool) {
	if int(ref.idx) >= len(s.nodes) {
		return "", nil, false
	}
	n := s.nodes[ref.idx]
	if n == nil || !n.live || n.gen != ref.gen {
		return "", nil, false
	}
	return n.name, n.vector, true
}

// SetNeighbors replaces the adjacency list at the given layer for the node
// identified by ref.
func (s *Store) SetNeighbors(ref neighborRef, layer int, neighbors []neighborRef) {
	n := s.nodes[ref.idx]
	for len(n.layers) <= layer {
		n.layers = append(n.layers, nil)
	}
	n.layers[layer] = neighbors
}

// Remove deletes the named node, failing with ErrInUse if any handle
// beyond the store's own implicit reference is outstanding, and
// ErrNotFound if the name is unknown.
func (s *Store) Remove(name string) error {
	idx, ok := s.byName[name]
	if !ok {
		return ErrNotFound
	}
	n := s.nodes[idx]
	if atomic.LoadInt32(&n.refs) > 1 {
		return ErrInUse
	}
	n.live = false
	n.layers = nil
	n.vector = nil
	delete(s.byName, name)
	s.free = append(s.free, idx)
	return nil
}

// NameToRef returns the weak reference for a live name, if any.
func (s *Store) NameToRef(name string) (neighborRef, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return neighborRef{}, false
	}
	return neighborRef{idx: idx, gen: s.nodes[idx].gen}, true
}
