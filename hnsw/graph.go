package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
)

// UpdateFunc is invoked once for every node whose adjacency changed during
// an Insert or Delete call, with that node's post-mutation state. It is a
// plain function parameter rather than a globally registered subscriber,
// so the graph engine stays testable in isolation with a recording
// callback; the persistence adapter passes one that queues a node write.
type UpdateFunc func(NodeState)

// NodeState is the post-mutation view of a node handed to an UpdateFunc.
// Neighbors is indexed by layer and holds neighbor names in no particular
// order.
type NodeState struct {
	Name      string
	Vector    []float32
	Neighbors [][]string
}

// SearchResult is a single kANN hit: a node name and its score under the
// index's metric (larger is closer).
type SearchResult struct {
	Name  string
	Score float32
}

// Index is a single HNSW graph: construction parameters, the node arena
// backing it, and the mutable layer/entry-point state described in the
// data model. Its exported fields are construction-time parameters and
// are safe to read without locking once the index is returned from
// NewIndex; all mutable state is protected by mu.
type Index struct {
	Name           string
	Dim            int
	Metric         Metric
	M              int
	MMax           int
	MMax0          int
	EfConstruction int
	LevelMult      float64

	mu         sync.RWMutex
	store      *Store
	dist       DistanceFunc
	rng        *rand.Rand
	nodeCount  int
	maxLayer   int
	entryPoint neighborRef
	hasEntry   bool
	layers     []map[int32]struct{} // layers[l] = set of arena indices present at layer l
	seq        int64                // monotonic counter for stable tie-breaking in SEARCH_LAYER
	poisoned   error
	efSearch   int // candidate-list width floor for Search; see SetEfSearch
}

// NewIndex creates an empty HNSW index. seed drives the per-insertion
// layer-assignment RNG; two indexes built from the same seed and the same
// insertion sequence produce structurally identical graphs (invariant: a
// search result is a deterministic function of index state and the seeded
// RNG trace).
func NewIndex(name string, dim int, metric Metric, m, efConstruction int, seed int64) *Index {
	mMax0 := 2 * m
	return &Index{
		Name:           name,
		Dim:            dim,
		Metric:         metric,
		M:              m,
		MMax:           m,
		MMax0:          mMax0,
		EfConstruction: efConstruction,
		LevelMult:      1 / math.Log(float64(m)),
		store:          NewStore(),
		dist:           DistanceFor(metric),
		rng:            rand.New(rand.NewSource(seed)),
		layers:         []map[int32]struct{}{{}},
		efSearch:       efConstruction,
	}
}

// SetEfSearch overrides the candidate-list width floor Search uses once k
// is satisfied, letting the registry apply the server-wide
// DefaultEfSearch to an index after it is created or rehydrated. A
// non-positive ef is ignored.
func (ix *Index) SetEfSearch(ef int) {
	if ef <= 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.efSearch = ef
}

// NodeCount returns the number of live nodes.
func (ix *Index) NodeCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.nodeCount
}

// MaxLayer returns the current top layer.
func (ix *Index) MaxLayer() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.maxLayer
}

// EntryPointName returns the name of the current entry point, or "" with
// ok == false if the index is empty.
func (ix *Index) EntryPointName() (name string, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if !ix.hasEntry {
		return "", false
	}
	n, _, ok := ix.store.Peek(ix.entryPoint)
	return n, ok
}

func (ix *Index) assignLayer() int {
	u := 1 - ix.rng.Float64() // (0, 1]
	return int(math.Floor(-math.Log(u) * ix.LevelMult))
}

func (ix *Index) ensureLayer(l int) {
	for len(ix.layers) <= l {
		ix.layers = append(ix.layers, map[int32]struct{}{})
	}
}

func (ix *Index) addToLayer(layer int, ref neighborRef) {
	ix.ensureLayer(layer)
	ix.layers[layer][ref.idx] = struct{}{}
}

func (ix *Index) removeFromLayer(layer int, ref neighborRef) {
	if layer < len(ix.layers) {
		delete(ix.layers[layer], ref.idx)
	}
}

func capFor(layer, mMax, mMax0 int) int {
	if layer == 0 {
		return mMax0
	}
	return mMax
}

// nodeState builds the post-mutation view for ref, resolving its neighbor
// indices back to names via the store.
func (ix *Index) nodeState(ref neighborRef) NodeState {
	h, ok := ix.store.Resolve(ref)
	if !ok {
		return NodeState{}
	}
	defer h.Release()

	neighbors := make([][]string, h.TopLayer()+1)
	for l := 0; l <= h.TopLayer(); l++ {
		refs := h.Neighbors(l)
		names := make([]string, 0, len(refs))
		for _, r := range refs {
			if nm, _, ok := ix.store.Peek(r); ok {
				names = append(names, nm)
			}
		}
		neighbors[l] = names
	}

	return NodeState{Name: h.Name(), Vector: h.Vector(), Neighbors: neighbors}
}

func (ix *Index) emit(update UpdateFunc, ref neighborRef) {
	if update == nil {
		return
	}
	update(ix.nodeState(ref))
}

// Insert adds a new named vector to the index, running the full
// construction algorithm: layer assignment, greedy descent from the entry
// point, per-layer SEARCH_LAYER candidate gathering, diversity-preserving
// neighbor selection, bidirectional linking, and cap-driven pruning of any
// neighbor whose degree overflowed. update is invoked once per mutated
// neighbor, in no particular order, and then once for the inserted node.
func (ix *Index) Insert(name string, vector []float32, update UpdateFunc) error {
	if ix.poisoned != nil {
		return ix.poisoned
	}
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if len(vector) != ix.Dim {
		return ErrDimensionMismatch
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.store.NameToRef(name); exists {
		return ErrAlreadyExists
	}

	ix.seq++
	mySeq := ix.seq

	if ix.nodeCount == 0 {
		ref, err := ix.store.CreateNode(name, vector, 0, ix.MMax0)
		if err != nil {
			return err
		}
		ix.addToLayer(0, ref)
		ix.entryPoint = ref
		ix.hasEntry = true
		ix.maxLayer = 0
		ix.nodeCount++
		ix.emit(update, ref)
		return nil
	}

	ellNew := ix.assignLayer()
	ref, err := ix.store.CreateNode(name, vector, ellNew, ix.MMax0)
	if err != nil {
		return err
	}

	cur := ix.entryPoint
	for l := ix.maxLayer; l > ellNew; l-- {
		cur = ix.greedyDescend(vector, cur, l)
	}

	touched := map[int32]struct{}{}
	for l := min(ellNew, ix.maxLayer); l >= 0; l-- {
		candidates := ix.searchLayer(vector, []neighborRef{cur}, ix.EfConstruction, l, &mySeq)
		selected := ix.selectNeighbors(vector, candidates, ix.M)

		ix.addToLayer(l, ref)
		neighRefs := make([]neighborRef, 0, len(selected))
		for _, s := range selected {
			neighRefs = append(neighRefs, s.ref)
		}
		ix.store.SetNeighbors(ref, l, neighRefs)

		for _, s := range selected {
			ix.linkBack(s.ref, ref, l, touched)
			ix.pruneIfOverflowing(s.ref, l, touched)
		}

		if len(candidates) > 0 {
			cur = candidates[0].ref
		}
	}

	if ellNew > ix.maxLayer {
		for l := ix.maxLayer + 1; l <= ellNew; l++ {
			ix.addToLayer(l, ref)
		}
		ix.entryPoint = ref
		ix.maxLayer = ellNew
	}
	ix.nodeCount++

	delete(touched, ref.idx)
	for idx := range touched {
		ix.emit(update, neighborRef{idx: idx, gen: ix.store.nodes[idx].gen})
	}
	ix.emit(update, ref)

	ix.checkEntryPointInvariant()
	if ix.poisoned != nil {
		return ix.poisoned
	}
	return nil
}

// checkEntryPointInvariant verifies that a non-empty index always has a
// live entry point and an empty one has none. A violation here means a
// bug in Insert/Delete's own bookkeeping rather than anything a caller
// can trigger; the index is poisoned rather than risking a panic deeper
// in Search/greedyDescend against a dangling entry point.
func (ix *Index) checkEntryPointInvariant() {
	if ix.nodeCount == 0 {
		if ix.hasEntry {
			ix.poisoned = ErrInvariantViolation
		}
		return
	}
	if !ix.hasEntry {
		ix.poisoned = ErrInvariantViolation
		return
	}
	if _, _, ok := ix.store.Peek(ix.entryPoint); !ok {
		ix.poisoned = ErrInvariantViolation
	}
}

// linkBack adds `from` to `to`'s adjacency at layer, recording that `to`
// was touched.
func (ix *Index) linkBack(to, from neighborRef, layer int, touched map[int32]struct{}) {
	h, ok := ix.store.Resolve(to)
	if !ok {
		return
	}
	defer h.Release()
	existing := h.Neighbors(layer)
	for _, e := range existing {
		if e.idx == from.idx {
			return
		}
	}
	updated := make([]neighborRef, len(existing), len(existing)+1)
	copy(updated, existing)
	updated = append(updated, from)
	ix.store.SetNeighbors(to, layer, updated)
	touched[to.idx] = struct{}{}
}

// pruneIfOverflowing re-applies the selection heuristic to bring a
// neighbor's degree at layer back under its cap, after it gained a new
// back-link.
func (ix *Index) pruneIfOverflowing(ref neighborRef, layer int, touched map[int32]struct{}) {
	h, ok := ix.store.Resolve(ref)
	if !ok {
		return
	}
	cap := capFor(layer, ix.MMax, ix.MMax0)
	existing := h.Neighbors(layer)
	if len(existing) <= cap {
		h.Release()
		return
	}
	qVector := h.Vector()
	h.Release()

	candidates := make([]scored, 0, len(existing))
	for _, e := range existing {
		_, vec, ok := ix.store.Peek(e)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{ref: e, score: ix.dist(qVector, vec)})
	}
	sortScoredDesc(candidates)

	pruned := ix.selectNeighbors(qVector, candidates, cap)
	kept := make(map[int32]struct{}, len(pruned))
	newRefs := make([]neighborRef, 0, len(pruned))
	for _, p := range pruned {
		kept[p.ref.idx] = struct{}{}
		newRefs = append(newRefs, p.ref)
	}
	ix.store.SetNeighbors(ref, layer, newRefs)
	touched[ref.idx] = struct{}{}

	// Every candidate dropped by selectNeighbors still lists ref as a
	// neighbor at this layer; remove that reverse edge so adjacency stays
	// symmetric.
	for _, e := range existing {
		if _, stillKept := kept[e.idx]; !stillKept {
			ix.unlink(e, ref, layer, touched)
		}
	}
}

func sortScoredDesc(s []scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score > s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// greedyDescend performs the 1-NN walk used both during insertion's upper
// layers and during kANN search's descent: starting from cur, repeatedly
// move to whichever neighbor at layer is strictly closer to q than the
// current best, until none improves.
func (ix *Index) greedyDescend(q []float32, cur neighborRef, layer int) neighborRef {
	_, curVec, ok := ix.store.Peek(cur)
	if !ok {
		return cur
	}
	best := cur
	bestScore := ix.dist(q, curVec)

	for {
		h, ok := ix.store.Resolve(best)
		if !ok {
			return best
		}
		neighbors := h.Neighbors(layer)
		h.Release()

		improved := false
		for _, n := range neighbors {
			_, vec, ok := ix.store.Peek(n)
			if !ok {
				continue
			}
			s := ix.dist(q, vec)
			if s > bestScore {
				bestScore = s
				best = n
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// searchLayer implements SEARCH_LAYER: a best-first beam search over a
// single layer, bounded to ef results. candidates is a max-heap so the
// nearest unexplored node is always popped first; results is a min-heap
// so the worst kept result can be evicted in O(log ef). seq, if non-nil,
// supplies the monotonically increasing insertion sequence used to break
// exact score ties deterministically; if nil a local counter is used
// (search does not need to interact with the index's own seq counter,
// since only insertion advances it per the index's RNG-trace invariant).
func (ix *Index) searchLayer(q []float32, entries []neighborRef, ef int, layer int, seq *int64) []scored {
	var local int64
	if seq == nil {
		seq = &local
	}

	visited := map[int32]struct{}{}
	var cands candidateHeap
	var results resultHeap

	for _, e := range entries {
		_, vec, ok := ix.store.Peek(e)
		if !ok {
			continue
		}
		visited[e.idx] = struct{}{}
		*seq++
		s := scored{ref: e, score: ix.dist(q, vec), seq: *seq}
		heap.Push(&cands, s)
		heap.Push(&results, s)
	}

	for cands.Len() > 0 {
		c := heap.Pop(&cands).(scored)
		if results.Len() > 0 && c.score < results[0].score {
			break
		}

		h, ok := ix.store.Resolve(c.ref)
		if !ok {
			continue
		}
		neighbors := h.Neighbors(layer)
		h.Release()

		for _, n := range neighbors {
			if _, seen := visited[n.idx]; seen {
				continue
			}
			visited[n.idx] = struct{}{}

			_, vec, ok := ix.store.Peek(n)
			if !ok {
				continue
			}
			score := ix.dist(q, vec)

			if results.Len() < ef || score > results[0].score {
				*seq++
				s := scored{ref: n, score: score, seq: *seq}
				heap.Push(&cands, s)
				heap.Push(&results, s)
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	return sortedDescending(results)
}

// selectNeighbors implements SELECT_NEIGHBORS: from candidates (need not
// be pre-sorted), greedily accept the nearest remaining candidate only if
// it is closer to q than to every already-accepted neighbor. This
// diversity rule is what gives HNSW its long-range edges and must not be
// replaced by a plain top-M-by-distance truncation.
func (ix *Index) selectNeighbors(q []float32, candidates []scored, m int) []scored {
	w := make([]scored, len(candidates))
	copy(w, candidates)
	sortScoredDesc(w)

	r := make([]scored, 0, m)
	for _, e := range w {
		if len(r) >= m {
			break
		}
		_, eVec, ok := ix.store.Peek(e.ref)
		if !ok {
			continue
		}
		diverse := true
		for _, acc := range r {
			_, rVec, ok := ix.store.Peek(acc.ref)
			if !ok {
				continue
			}
			if ix.dist(eVec, rVec) >= ix.dist(eVec, q) {
				diverse = false
				break
			}
		}
		if diverse {
			r = append(r, e)
		}
	}
	return r
}

// Search runs kANN: greedy-descend through the upper layers from the
// entry point, then a bounded SEARCH_LAYER at layer 0, returning the top
// k results best first.
func (ix *Index) Search(q []float32, k int) ([]SearchResult, error) {
	if ix.poisoned != nil {
		return nil, ix.poisoned
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) == 0 {
		return nil, ErrEmptyVector
	}
	if len(q) != ix.Dim {
		return nil, ErrDimensionMismatch
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.nodeCount == 0 {
		return []SearchResult{}, nil
	}

	cur := ix.entryPoint
	for l := ix.maxLayer; l >= 1; l-- {
		cur = ix.greedyDescend(q, cur, l)
	}

	ef := ix.efSearch
	if k > ef {
		ef = k
	}
	candidates := ix.searchLayer(q, []neighborRef{cur}, ef, 0, nil)

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]SearchResult, 0, k)
	for _, c := range candidates[:k] {
		name, _, ok := ix.store.Peek(c.ref)
		if !ok {
			continue
		}
		out = append(out, SearchResult{Name: name, Score: c.score})
	}
	return out, nil
}

// Delete removes a named node: unlinks it from every neighbor's adjacency
// at every layer it participated in, drops it from layer membership and
// the name map, and repairs the entry point if necessary. It deliberately
// does not re-link the orphaned neighbors to each other; subsequent
// insertions repair connectivity stochastically. update is invoked once
// per neighbor whose adjacency changed.
func (ix *Index) Delete(name string, update UpdateFunc) error {
	if ix.poisoned != nil {
		return ix.poisoned
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ref, exists := ix.store.NameToRef(name)
	if !exists {
		return ErrNotFound
	}

	h, ok := ix.store.Resolve(ref)
	if !ok {
		return ErrNotFound
	}
	topLayer := h.TopLayer()
	neighborsByLayer := make([][]neighborRef, topLayer+1)
	for l := 0; l <= topLayer; l++ {
		neighborsByLayer[l] = append([]neighborRef(nil), h.Neighbors(l)...)
	}
	h.Release()

	touched := map[int32]struct{}{}
	for l := 0; l <= topLayer; l++ {
		for _, n := range neighborsByLayer[l] {
			ix.unlink(n, ref, l, touched)
		}
		ix.removeFromLayer(l, ref)
	}

	if err := ix.store.Remove(name); err != nil {
		return err
	}
	ix.nodeCount--

	if ix.hasEntry && ix.entryPoint.idx == ref.idx {
		ix.repairEntryPoint()
	}

	for idx := range touched {
		n := ix.store.nodes[idx]
		if n == nil || !n.live {
			continue
		}
		ix.emit(update, neighborRef{idx: idx, gen: n.gen})
	}

	ix.checkEntryPointInvariant()
	if ix.poisoned != nil {
		return ix.poisoned
	}
	return nil
}

func (ix *Index) unlink(from, remove neighborRef, layer int, touched map[int32]struct{}) {
	h, ok := ix.store.Resolve(from)
	if !ok {
		return
	}
	defer h.Release()
	existing := h.Neighbors(layer)
	filtered := make([]neighborRef, 0, len(existing))
	changed := false
	for _, e := range existing {
		if e.idx == remove.idx {
			changed = true
			continue
		}
		filtered = append(filtered, e)
	}
	if changed {
		ix.store.SetNeighbors(from, layer, filtered)
		touched[from.idx] = struct{}{}
	}
}

// repairEntryPoint finds a new entry point after the current one was
// deleted: the top layer is walked downward until a non-empty layer is
// found, and an arbitrary member of it is promoted.
func (ix *Index) repairEntryPoint() {
	for ix.maxLayer > 0 && len(ix.layers[ix.maxLayer]) == 0 {
		ix.maxLayer--
	}
	if len(ix.layers) == 0 || len(ix.layers[ix.maxLayer]) == 0 {
		ix.hasEntry = false
		ix.maxLayer = 0
		return
	}
	for idx := range ix.layers[ix.maxLayer] {
		ix.entryPoint = neighborRef{idx: idx, gen: ix.store.nodes[idx].gen}
		ix.hasEntry = true
		return
	}
}

// Get returns a read-only snapshot of a node's state, or ErrNotFound.
func (ix *Index) Get(name string) (NodeState, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ref, exists := ix.store.NameToRef(name)
	if !exists {
		return NodeState{}, ErrNotFound
	}
	return ix.nodeState(ref), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
