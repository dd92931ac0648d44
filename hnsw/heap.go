package hnsw

import "container/heap"

// scored pairs a node reference with its score against the active query
// (larger score == closer, per the DistanceFunc convention) and the
// sequence number it was inserted under, used to break exact ties
// deterministically.
type scored struct {
	ref   neighborRef
	score float32
	seq   int64
}

// candidateHeap is the SEARCH_LAYER frontier: a max-heap on score so that
// Pop always returns the nearest unexplored candidate first. On an exact
// score tie the earlier-inserted (smaller seq) candidate is treated as
// closer, per the spec's stable tie-breaking rule.
type candidateHeap []scored

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(scored)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// resultHeap keeps the current best-ef results. It is a min-heap on score
// so that the worst kept result sits at index 0, ready to be evicted when
// a better candidate arrives. On an exact score tie the later-inserted
// (larger seq) entry is treated as less close and therefore sorts as the
// eviction candidate, matching candidateHeap's tie convention.
type resultHeap []scored

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].seq > h[j].seq
}
func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)   { *h = append(*h, x.(scored)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// sortedDescending drains a resultHeap into a slice ordered best (highest
// score) first.
func sortedDescending(h resultHeap) []scored {
	out := make([]scored, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(scored)
	}
	return out
}
