package hnsw

import "container/heap"

// Candidate is one node considered during a layer search, using the
// package-wide "lower is closer" distance convention.
type Candidate struct {
	NodeID   uint32
	Distance float32
}

// less reports whether a is strictly preferred to b: closer distance
// wins, and on an exact tie the lower node id wins. Ties are broken
// deterministically so that repeated searches over the same graph
// return identical results.
func less(a, b Candidate) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.NodeID < b.NodeID
}

// minHeap is a binary min-heap of candidates ordered by less: the
// worklist used to expand the closest unvisited candidate first.
type minHeap []Candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newMinHeap() *minHeap {
	h := make(minHeap, 0, 16)
	return &h
}

func (h *minHeap) push(c Candidate) { heap.Push(h, c) }
func (h *minHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *minHeap) peek() Candidate  { return (*h)[0] }

// maxHeap is a binary max-heap (worst candidate on top) bounded to a
// fixed capacity, used to retain the ef closest candidates seen so far
// while letting the current worst be evicted in O(log ef).
type maxHeap []Candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return less(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newMaxHeap() *maxHeap {
	h := make(maxHeap, 0, 16)
	return &h
}

func (h *maxHeap) push(c Candidate) { heap.Push(h, c) }
func (h *maxHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *maxHeap) top() Candidate   { return (*h)[0] }

// sortedAscending drains a maxHeap into a slice ordered closest-first.
func (h *maxHeap) sortedAscending() []Candidate {
	out := make([]Candidate, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = h.pop()
	}
	return out
}
