package hnsw

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/errs"
)

// VectorFunc resolves a node's internal id to its vector. ok is false
// if the vector is no longer available (e.g. the document was deleted
// after the index was built).
type VectorFunc func(nodeID uint32) (vector []float32, ok bool)

// Result is one ranked match from Search, in the original metric's
// natural units (not the internal "lower is closer" convention).
type Result struct {
	NodeID uint32
	Score  float32
}

// Index is an immutable, queryable HNSW graph: per-layer adjacency
// stored in CSR form (a flat neighbor array plus an offsets table of
// length numNodes+1), so search touches no per-node allocations beyond
// the working heaps.
type Index struct {
	params     Params
	dimension  int
	metric     distance.Metric
	numNodes   uint32
	entryPoint uint32
	numLayers  int

	// layerNeighbors[l] is the flat neighbor list for layer l;
	// layerOffsets[l][n]..layerOffsets[l][n+1] slices it for node n.
	layerNeighbors [][]uint32
	layerOffsets   [][]int

	// nodeLayers[n] is the highest layer node n participates in.
	nodeLayers []int
}

// Dimension returns the vector width this index was built for.
func (idx *Index) Dimension() int { return idx.dimension }

// NumNodes returns the number of nodes in the graph.
func (idx *Index) NumNodes() uint32 { return idx.numNodes }

// Metric returns the distance metric the index was built under.
func (idx *Index) Metric() distance.Metric { return idx.metric }

func (idx *Index) neighbors(layer int, node uint32) []uint32 {
	offsets := idx.layerOffsets[layer]
	return idx.layerNeighbors[layer][offsets[node]:offsets[node+1]]
}

// Search returns up to k approximate nearest neighbors of query. ef
// sets the candidate list breadth at layer 0; values below k are
// raised to k. vectorFn resolves node ids to vectors lazily so the
// index itself never has to own vector storage.
func (idx *Index) Search(query []float32, k, ef int, vectorFn VectorFunc) ([]Result, error) {
	if len(query) != idx.dimension {
		return nil, errs.WrongDimension(idx.dimension, len(query))
	}
	if idx.numNodes == 0 {
		return nil, nil
	}
	if k <= 0 {
		return nil, errs.InvalidArgument("k", "must be positive")
	}
	if ef < k {
		ef = k
	}

	entry := idx.entryPoint
	if idx.numNodes == 1 {
		vec, ok := vectorFn(entry)
		if !ok {
			return nil, nil
		}
		return []Result{{NodeID: entry, Score: score(idx.metric, query, vec)}}, nil
	}

	// Greedy single-step descent through the upper layers (ef=1) to
	// find a good entry point into layer 0.
	for layer := idx.numLayers - 1; layer > 0; layer-- {
		found := idx.searchLayerGreedy(query, entry, layer, vectorFn)
		entry = found
	}

	candidates := idx.searchLayerMulti(query, entry, 0, ef, vectorFn)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{NodeID: c.NodeID, Score: score(idx.metric, idx.mustVector(c.NodeID, vectorFn), query)}
	}
	return results, nil
}

func (idx *Index) mustVector(id uint32, vectorFn VectorFunc) []float32 {
	v, _ := vectorFn(id)
	return v
}

// score converts the internal "lower is closer" distance back to the
// metric's natural scale so callers see familiar similarity scores.
func score(metric distance.Metric, a, b []float32) float32 {
	switch metric {
	case distance.DotProduct:
		return distance.Dot(a, b)
	case distance.Cosine:
		return distance.Cos(a, b)
	default:
		return distance.Euclid(a, b)
	}
}

// searchLayerGreedy performs a single best-first walk (effectively
// ef=1) from entry at layer, returning the closest node reached.
func (idx *Index) searchLayerGreedy(query []float32, entry uint32, layer int, vectorFn VectorFunc) uint32 {
	best := entry
	bestVec, ok := vectorFn(best)
	if !ok {
		return entry
	}
	bestDist := graphDistance(idx.metric, query, bestVec)

	improved := true
	for improved {
		improved = false
		for _, n := range idx.neighbors(layer, best) {
			vec, ok := vectorFn(n)
			if !ok {
				continue
			}
			d := graphDistance(idx.metric, query, vec)
			if d < bestDist {
				bestDist = d
				best = n
				improved = true
			}
		}
	}
	return best
}

// searchLayerMulti performs a bounded best-first search at layer,
// returning up to ef candidates ordered closest-first.
func (idx *Index) searchLayerMulti(query []float32, entry uint32, layer, ef int, vectorFn VectorFunc) []Candidate {
	visited := bitset.New(uint(idx.numNodes))

	entryVec, ok := vectorFn(entry)
	if !ok {
		return nil
	}
	entryCandidate := Candidate{NodeID: entry, Distance: graphDistance(idx.metric, query, entryVec)}

	work := newMinHeap()
	work.push(entryCandidate)
	visited.Set(uint(entry))

	best := newMaxHeap()
	best.push(entryCandidate)

	for work.Len() > 0 {
		current := work.pop()

		if best.Len() >= ef && less(best.top(), current) {
			break
		}

		for _, n := range idx.neighbors(layer, current.NodeID) {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			vec, ok := vectorFn(n)
			if !ok {
				continue
			}
			cand := Candidate{NodeID: n, Distance: graphDistance(idx.metric, query, vec)}

			if best.Len() < ef || less(cand, best.top()) {
				work.push(cand)
				best.push(cand)
				if best.Len() > ef {
					best.pop()
				}
			}
		}
	}

	return best.sortedAscending()
}
