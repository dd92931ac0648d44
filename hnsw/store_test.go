package hnsw

import "testing"

func TestStoreCreateGetRemove(t *testing.T) {
	s := NewStore()

	ref, err := s.CreateNode("a", []float32{1, 2, 3}, 0, 8)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if _, err := s.CreateNode("a", []float32{1, 2, 3}, 0, 8); err != ErrAlreadyExists {
		t.Fatalf("CreateNode duplicate = %v, want ErrAlreadyExists", err)
	}

	h, ok := s.Get("a")
	if !ok {
		t.Fatal("Get(a) not found")
	}
	if h.Name() != "a" {
		t.Errorf("Name() = %q, want a", h.Name())
	}

	if err := s.Remove("a"); err != ErrInUse {
		t.Fatalf("Remove while handle outstanding = %v, want ErrInUse", err)
	}

	h.Release()
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove after release: %v", err)
	}

	if _, ok := s.Get("a"); ok {
		t.Fatal("Get(a) after remove should fail")
	}

	if _, ok := s.Resolve(ref); ok {
		t.Fatal("Resolve of removed ref should fail")
	}
}

func TestStoreRemoveNotFound(t *testing.T) {
	s := NewStore()
	if err := s.Remove("missing"); err != ErrNotFound {
		t.Fatalf("Remove(missing) = %v, want ErrNotFound", err)
	}
}

func TestStoreSlotReuseBumpsGeneration(t *testing.T) {
	s := NewStore()
	ref1, err := s.CreateNode("a", []float32{1}, 0, 4)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	ref2, err := s.CreateNode("b", []float32{2}, 0, 4)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if ref2.idx == ref1.idx && ref2.gen == ref1.gen {
		t.Fatal("reused slot did not bump generation")
	}
	if _, ok := s.Resolve(ref1); ok {
		t.Fatal("stale ref into reused slot should not resolve")
	}
}
