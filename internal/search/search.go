// Package search implements the exact, brute-force top-k fallback that
// coexists with the approximate HNSW path: a linear scan over the
// memtable and every segment, scored with a bounded min-heap.
package search

import (
	"container/heap"
	"sort"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/errs"
)

// Candidate scans a single document: its external id, internal id
// (for deterministic tie-breaking), vector, and payload (for
// filtering).
type Candidate struct {
	ExternalID string
	InternalID uint32
	Vector     []float32
	Payload    map[string]any
}

// Source yields every live candidate document in scan order
// (memtable first, then segments oldest to newest). Implementations
// should skip tombstoned documents before calling yield.
type Source func(yield func(Candidate) error) error

// Filter evaluates whether a payload matches; Search rejects a
// candidate if f is non-nil and f(payload) is false. A nil payload is
// rejected by any non-nil filter, matching the convention that
// payload-absent documents never satisfy a filter predicate.
type Filter func(payload map[string]any) bool

// Result is one ranked match, in the metric's natural scale: higher is
// better for dot product and cosine, while Euclidean is returned as a
// positive distance where lower is better.
type Result struct {
	ExternalID string
	InternalID uint32
	Score      float32
}

// scored is the internal heap entry: score kept in "higher is better"
// form regardless of metric, by negating Euclidean distances so every
// metric shares one heap comparator.
type scored struct {
	externalID string
	internalID uint32
	score      float32
}

type minHeap []scored

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].internalID > h[j].internalID
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Search scans source, scoring every non-tombstoned candidate under
// metric and offering it to a bounded min-heap of capacity k. Results
// are returned best first (descending score, or ascending distance for
// Euclidean), ties broken by ascending internal id, truncated to k.
func Search(query []float32, k int, metric distance.Metric, filter Filter, source Source) ([]Result, error) {
	if k <= 0 {
		return nil, errs.InvalidArgument("k", "must be positive")
	}

	h := make(minHeap, 0, k)

	err := source(func(c Candidate) error {
		if filter != nil {
			if c.Payload == nil || !filter(c.Payload) {
				return nil
			}
		}

		raw, err := metric.Compute(query, c.Vector)
		if err != nil {
			return err
		}

		// Internally, a higher score is always better; Euclidean's
		// natural scale is lower-is-better, so it is negated for the
		// heap and restored before being returned.
		s := raw
		if metric == distance.Euclidean {
			s = -raw
		}
		entry := scored{externalID: c.ExternalID, internalID: c.InternalID, score: s}

		switch {
		case h.Len() < k:
			heap.Push(&h, entry)
		case worseThan(entry, h[0]):
			// entry loses to the current worst kept candidate; drop it.
		default:
			heap.Pop(&h)
			heap.Push(&h, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(h))
	for i, e := range h {
		score := e.score
		if metric == distance.Euclidean {
			score = -score
		}
		results[i] = Result{ExternalID: e.externalID, InternalID: e.internalID, Score: score}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			if metric == distance.Euclidean {
				return results[i].Score < results[j].Score
			}
			return results[i].Score > results[j].Score
		}
		return results[i].InternalID < results[j].InternalID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// worseThan reports whether candidate loses to worst, the current
// worst-kept heap entry, meaning candidate should be discarded rather
// than replacing it. On an equal score, candidate loses when its
// internal id is higher, so the lower internal id is kept.
func worseThan(candidate, worst scored) bool {
	if candidate.score != worst.score {
		return candidate.score < worst.score
	}
	return candidate.internalID > worst.internalID
}
