package hnsw

// This file implements the write and two-pass read side of the persistence
// protocol from the node store's point of view: reconstructing an Index's
// internal state (arena, membership sets, entry point) from records read
// independently by the root package's persistence adapter, without
// re-running the construction algorithm.

// NewIndexShell creates an index with no nodes, to be populated by
// RawCreateNode/RawLinkNeighbors/SetEntryPoint/SetMaxLayer during
// rehydration. Construction parameters come from the persisted header.
func NewIndexShell(name string, dim int, metric Metric, m, mMax, mMax0, efConstruction int, levelMult float64, seed int64) *Index {
	ix := NewIndex(name, dim, metric, m, efConstruction, seed)
	ix.MMax = mMax
	ix.MMax0 = mMax0
	ix.LevelMult = levelMult
	return ix
}

// RawCreateNode materializes a node with its vector and reserved layer
// slots but no adjacency yet (pass 1 of rehydration), and adds it to every
// layer membership set through topLayer.
func (ix *Index) RawCreateNode(name string, vector []float32, topLayer int) error {
	ref, err := ix.store.CreateNode(name, vector, topLayer, ix.MMax0)
	if err != nil {
		return err
	}
	for l := 0; l <= topLayer; l++ {
		ix.addToLayer(l, ref)
	}
	ix.nodeCount++
	return nil
}

// RawLinkNeighbors installs the adjacency list for name at layer (pass 2
// of rehydration), resolving each neighbor name through the name map.
// A name with no corresponding live node yields ErrCorruptSnapshot.
func (ix *Index) RawLinkNeighbors(name string, layer int, neighborNames []string) error {
	ref, exists := ix.store.NameToRef(name)
	if !exists {
		return ErrCorruptSnapshot
	}
	refs := make([]neighborRef, 0, len(neighborNames))
	for _, nn := range neighborNames {
		nref, ok := ix.store.NameToRef(nn)
		if !ok {
			return ErrCorruptSnapshot
		}
		refs = append(refs, nref)
	}
	ix.store.SetNeighbors(ref, layer, refs)
	return nil
}

// SetEntryPoint installs the entry point by name during rehydration.
// A name with no corresponding live node yields ErrCorruptSnapshot.
func (ix *Index) SetEntryPoint(name string) error {
	ref, ok := ix.store.NameToRef(name)
	if !ok {
		return ErrCorruptSnapshot
	}
	ix.entryPoint = ref
	ix.hasEntry = true
	return nil
}

// ClearEntryPoint marks the index as having no entry point, for
// rehydrating an empty index.
func (ix *Index) ClearEntryPoint() {
	ix.hasEntry = false
}

// SetMaxLayer overrides the top layer during rehydration, where it is
// read directly from the header rather than derived from insertions.
func (ix *Index) SetMaxLayer(l int) {
	ix.ensureLayer(l)
	ix.maxLayer = l
}

// AllNodeNames returns every live node name, for writing the header's flat
// node-name set.
func (ix *Index) AllNodeNames() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	names := make([]string, 0, len(ix.store.byName))
	for name := range ix.store.byName {
		names = append(names, name)
	}
	return names
}

// LayerMembers returns the names of every node present at the given
// layer, for writing the header's per-layer membership section.
func (ix *Index) LayerMembers(layer int) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if layer >= len(ix.layers) {
		return nil
	}
	names := make([]string, 0, len(ix.layers[layer]))
	for idx := range ix.layers[layer] {
		names = append(names, ix.store.nodes[idx].name)
	}
	return names
}

// NodeTopLayer returns the layer a node was assigned at insertion time.
func (ix *Index) NodeTopLayer(name string) (int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ref, ok := ix.store.NameToRef(name)
	if !ok {
		return 0, false
	}
	return ix.store.nodes[ref.idx].topLayer, true
}
