package hnswkv

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/hnswkv/hnswkv/hnsw"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return Open(store)
}

func TestDispatchIndexLifecycle(t *testing.T) {
	s := newTestServer(t)

	reply, err := s.Dispatch("index.create", []string{"i", "dim", "3", "m", "8", "efcon", "20"})
	if err != nil {
		t.Fatalf("index.create: %v", err)
	}
	if reply != "OK" {
		t.Fatalf("index.create reply = %v, want OK", reply)
	}

	if _, err := s.Dispatch("index.create", []string{"i", "dim", "3", "m", "8", "efcon", "20"}); err == nil {
		t.Fatal("expected AlreadyExists on duplicate index.create")
	} else if !errors.Is(err, &CommandError{Kind: AlreadyExists}) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	info, err := s.Dispatch("index.get", []string{"i"})
	if err != nil {
		t.Fatalf("index.get: %v", err)
	}
	if info.(IndexInfo)["node_count"] != 0 {
		t.Fatalf("fresh index node_count = %v, want 0", info.(IndexInfo)["node_count"])
	}

	if _, err := s.Dispatch("index.del", []string{"i"}); err != nil {
		t.Fatalf("index.del: %v", err)
	}
	if _, err := s.Dispatch("index.get", []string{"i"}); err == nil {
		t.Fatal("expected NotFound after index.del")
	}
}

// S5 at the command layer: wrong dimensionality is BadArgument and leaves
// node_count at zero.
func TestDispatchNodeAddWrongDimension(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.Dispatch("index.create", []string{"i", "dim", "3", "m", "8", "efcon", "20"}); err != nil {
		t.Fatalf("index.create: %v", err)
	}

	_, err := s.Dispatch("node.add", []string{"i", "x", "1", "2"})
	if err == nil || !errors.Is(err, &CommandError{Kind: BadArgument}) {
		t.Fatalf("node.add with wrong dim = %v, want BadArgument", err)
	}

	info, err := s.Dispatch("index.get", []string{"i"})
	if err != nil {
		t.Fatalf("index.get: %v", err)
	}
	if info.(IndexInfo)["node_count"] != 0 {
		t.Fatalf("node_count after rejected add = %v, want 0", info.(IndexInfo)["node_count"])
	}
}

func TestDispatchWrongArity(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.Dispatch("index.get", []string{}); err == nil || !errors.Is(err, &CommandError{Kind: WrongArity}) {
		t.Fatalf("index.get with no args = %v, want WrongArity", err)
	}
}

func TestDispatchSearchKANN(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.Dispatch("index.create", []string{"i", "dim", "3", "m", "8", "efcon", "20"}); err != nil {
		t.Fatalf("index.create: %v", err)
	}
	for _, nv := range []struct {
		name string
		vec  []string
	}{
		{"a", []string{"1", "0", "0"}},
		{"b", []string{"0", "1", "0"}},
		{"c", []string{"0", "0", "1"}},
	} {
		if _, err := s.Dispatch("node.add", append([]string{"i", nv.name}, nv.vec...)); err != nil {
			t.Fatalf("node.add(%s): %v", nv.name, err)
		}
	}

	reply, err := s.Dispatch("search.kann", []string{"i", "2", "0.9", "0.1", "0"})
	if err != nil {
		t.Fatalf("search.kann: %v", err)
	}
	sr := reply.(SearchReply)
	if sr.Count != 2 {
		t.Fatalf("search.kann count = %d, want 2", sr.Count)
	}
}

// Rehydration round trip: save a populated index, reopen the same on-disk
// store under a fresh Server, and verify the same search result comes
// back (invariant 6, scenario S3).
func TestRehydrationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "round-trip.db")

	store, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	s := Open(store)

	if err := s.CreateIndex("i", 2, hnsw.Cosine, 4, 10); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	names := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		name := nameFor(i)
		vec := []float32{rng.Float32(), rng.Float32()}
		if err := s.AddNode("i", name, vec); err != nil {
			t.Fatalf("AddNode(%s): %v", name, err)
		}
		names = append(names, name)
	}

	query := []float32{0.5, 0.5}
	before, err := s.SearchKNN("i", query, 10)
	if err != nil {
		t.Fatalf("SearchKNN before close: %v", err)
	}
	s.Close()

	store2, err := OpenStore(dbPath)
	if err != nil {
		t.Fatalf("reopen OpenStore: %v", err)
	}
	s2 := Open(store2)
	defer s2.Close()

	after, err := s2.SearchKNN("i", query, 10)
	if err != nil {
		t.Fatalf("SearchKNN after reopen: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count changed across reload: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].Name != after[i].Name {
			t.Errorf("result[%d] name changed: before=%q after=%q", i, before[i].Name, after[i].Name)
		}
		if before[i].Score != after[i].Score {
			t.Errorf("result[%d] score changed: before=%v after=%v", i, before[i].Score, after[i].Score)
		}
	}
}

func nameFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return string(letters[i])
	}
	return string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}
