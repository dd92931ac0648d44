package hnsw

import (
	"math/rand"
	"testing"
)

func newTestIndex(dim, m, ef int) *Index {
	return NewIndex("test", dim, Cosine, m, ef, 1)
}

// S1: three axis vectors; querying near `a` should rank a, b first.
func TestSearchBasicOrdering(t *testing.T) {
	ix := NewIndex("i", 3, Euclidean, 8, 20, 1)

	for _, nv := range []struct {
		name string
		vec  []float32
	}{
		{"a", []float32{1, 0, 0}},
		{"b", []float32{0, 1, 0}},
		{"c", []float32{0, 0, 1}},
	} {
		if err := ix.Insert(nv.name, nv.vec, nil); err != nil {
			t.Fatalf("Insert(%s): %v", nv.name, err)
		}
	}

	results, err := ix.Search([]float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "a" {
		t.Errorf("expected first result 'a', got %q", results[0].Name)
	}
	if results[1].Name != "b" {
		t.Errorf("expected second result 'b', got %q", results[1].Name)
	}
}

// S4: deleting a node removes it from subsequent search results and from
// Get, without touching the remaining nodes' membership. Delete does not
// re-link a's former neighbors, so up to 2 results come back.
func TestDeleteRemovesNodeFromSearchAndGet(t *testing.T) {
	ix := NewIndex("i", 3, Euclidean, 8, 20, 1)
	for _, nv := range []struct {
		name string
		vec  []float32
	}{
		{"a", []float32{1, 0, 0}},
		{"b", []float32{0, 1, 0}},
		{"c", []float32{0, 0, 1}},
	} {
		if err := ix.Insert(nv.name, nv.vec, nil); err != nil {
			t.Fatalf("Insert(%s): %v", nv.name, err)
		}
	}

	if err := ix.Delete("a", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := ix.Get("a"); err != ErrNotFound {
		t.Fatalf("Get(a) after delete = %v, want ErrNotFound", err)
	}

	results, err := ix.Search([]float32{0.9, 0.1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || len(results) > 2 {
		t.Fatalf("expected 1 or 2 results after delete, got %d", len(results))
	}
	if results[0].Name != "b" {
		t.Errorf("expected first result 'b', got %q", results[0].Name)
	}
	for _, r := range results {
		if r.Name == "a" {
			t.Errorf("deleted node 'a' reappeared in search results")
		}
	}
}

// S5: wrong dimensionality is rejected and leaves the index unchanged.
func TestInsertWrongDimension(t *testing.T) {
	ix := NewIndex("i", 3, Euclidean, 8, 20, 1)
	err := ix.Insert("x", []float32{1, 2}, nil)
	if err != ErrDimensionMismatch {
		t.Fatalf("Insert with wrong dim = %v, want ErrDimensionMismatch", err)
	}
	if ix.NodeCount() != 0 {
		t.Fatalf("NodeCount after rejected insert = %d, want 0", ix.NodeCount())
	}
}

// S6: two indexes in the same process do not observe each other's state.
func TestIndexesAreIndependent(t *testing.T) {
	i1 := NewIndex("i1", 2, Euclidean, 8, 20, 1)
	i2 := NewIndex("i2", 2, Euclidean, 8, 20, 2)

	if err := i1.Insert("x", []float32{1, 1}, nil); err != nil {
		t.Fatalf("Insert into i1: %v", err)
	}

	if i2.NodeCount() != 0 {
		t.Fatalf("i2.NodeCount() = %d, want 0", i2.NodeCount())
	}
	if _, err := i2.Get("x"); err != ErrNotFound {
		t.Fatalf("i2.Get(x) = %v, want ErrNotFound", err)
	}

	if err := i2.Insert("y", []float32{5, 5}, nil); err != nil {
		t.Fatalf("Insert into i2: %v", err)
	}
	if i1.NodeCount() != 1 {
		t.Fatalf("i1.NodeCount() after inserting into i2 = %d, want 1", i1.NodeCount())
	}

	results, err := i1.Search([]float32{1, 1}, 5)
	if err != nil {
		t.Fatalf("Search i1: %v", err)
	}
	if len(results) != 1 || results[0].Name != "x" {
		t.Fatalf("i1 search affected by i2's insert: %+v", results)
	}
}

// Invariant 10: search on an empty index returns an empty list.
func TestSearchEmptyIndex(t *testing.T) {
	ix := newTestIndex(3, 8, 20)
	results, err := ix.Search([]float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result set, got %d", len(results))
	}
}

// Invariant 11: k > node_count returns exactly node_count results.
func TestSearchKGreaterThanNodeCount(t *testing.T) {
	ix := newTestIndex(2, 4, 10)
	for i, vec := range [][]float32{{0, 0}, {1, 1}, {2, 2}} {
		if err := ix.Insert(nameFor(i), vec, nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	results, err := ix.Search([]float32{0, 0}, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

// Invariant 7: at saturation (ef >= n), kANN with k == n recovers the
// entire input set.
func TestSearchSaturationRecall(t *testing.T) {
	const n = 200
	ix := NewIndex("sat", 4, Euclidean, 8, 200, 42)
	rng := rand.New(rand.NewSource(99))

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		vec := randomVector(4, rng)
		name := nameFor(i)
		if err := ix.Insert(name, vec, nil); err != nil {
			t.Fatalf("Insert %s: %v", name, err)
		}
		seen[name] = true
	}

	results, err := ix.Search(randomVector(4, rng), n)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != n {
		t.Fatalf("expected %d results at saturation, got %d", n, len(results))
	}
	for _, r := range results {
		if !seen[r.Name] {
			t.Errorf("unexpected result name %q", r.Name)
		}
		delete(seen, r.Name)
	}
	if len(seen) != 0 {
		t.Errorf("%d input names missing from saturated search result", len(seen))
	}
}

// Invariant 2: no node's adjacency at any layer exceeds its layer's cap.
func TestNeighborDegreeCaps(t *testing.T) {
	const n = 300
	ix := NewIndex("caps", 3, Euclidean, 6, 32, 7)
	rng := rand.New(rand.NewSource(5))

	for i := 0; i < n; i++ {
		if err := ix.Insert(nameFor(i), randomVector(3, rng), nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	for idx, nd := range ix.store.nodes {
		if nd == nil || !nd.live {
			continue
		}
		for l, neighbors := range nd.layers {
			cap := capFor(l, ix.MMax, ix.MMax0)
			if len(neighbors) > cap {
				t.Errorf("node idx=%d layer=%d has %d neighbors, cap is %d", idx, l, len(neighbors), cap)
			}
		}
	}
}

// Invariant 3: adjacency is symmetric after every operation completes.
func TestAdjacencySymmetry(t *testing.T) {
	const n = 150
	ix := NewIndex("sym", 3, Euclidean, 6, 32, 3)
	rng := rand.New(rand.NewSource(21))

	for i := 0; i < n; i++ {
		if err := ix.Insert(nameFor(i), randomVector(3, rng), nil); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	for idx, nd := range ix.store.nodes {
		if nd == nil || !nd.live {
			continue
		}
		for l, neighbors := range nd.layers {
			for _, nref := range neighbors {
				other := ix.store.nodes[nref.idx]
				if other == nil || !other.live || other.gen != nref.gen {
					t.Errorf("dangling neighbor ref from node %d at layer %d", idx, l)
					continue
				}
				found := false
				for _, back := range other.layers[l] {
					if back.idx == int32(idx) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("asymmetric adjacency: node %d lists %d at layer %d but not vice versa", idx, nref.idx, l)
				}
			}
		}
	}
}

func randomVector(dims int, rng *rand.Rand) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func nameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return string(letters[i])
	}
	return string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}
