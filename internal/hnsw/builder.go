package hnsw

import (
	"math"
	"math/rand"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/errs"
)

// Builder assembles an HNSW graph incrementally via Add, then freezes
// it into an immutable, CSR-backed Index via Build. A Builder is not
// safe for concurrent use.
type Builder struct {
	params    Params
	dimension int
	metric    distance.Metric

	vectors    [][]float32
	nodeLayers []int

	// graphs[layer][node] is node's adjacency list at layer, built as
	// plain slices and only flattened into CSR form at Build time.
	graphs [][][]uint32

	entryPoint uint32
	hasEntry   bool

	rng *rand.Rand
}

// NewBuilder creates an empty builder for dimension-wide vectors under
// metric, using params for graph shape and search breadth.
func NewBuilder(dimension int, metric distance.Metric, params Params) *Builder {
	return &Builder{
		params:    params,
		dimension: dimension,
		metric:    metric,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// Len returns the number of vectors added so far.
func (b *Builder) Len() int { return len(b.vectors) }

// randomLevel draws this node's top layer via the standard HNSW
// exponential decay: floor(-ln(r) * levelFactor), capped at MaxLevel.
func (b *Builder) randomLevel() int {
	r := b.rng.Float64()
	for r == 0 {
		r = b.rng.Float64()
	}
	level := int(math.Floor(-math.Log(r) * b.params.LevelFactor))
	if level > MaxLevel {
		level = MaxLevel
	}
	return level
}

// Add inserts vector into the graph and returns its assigned internal
// node id, which is always one past the previous id (ids are dense
// and sequential from 0).
func (b *Builder) Add(vector []float32) (uint32, error) {
	if len(vector) != b.dimension {
		return 0, errs.WrongDimension(b.dimension, len(vector))
	}

	id := uint32(len(b.vectors))
	vec := make([]float32, len(vector))
	copy(vec, vector)
	b.vectors = append(b.vectors, vec)

	level := b.randomLevel()
	b.nodeLayers = append(b.nodeLayers, level)

	for len(b.graphs) <= level {
		adj := make([][]uint32, len(b.vectors)-1)
		b.graphs = append(b.graphs, adj)
	}
	for l := range b.graphs {
		for len(b.graphs[l]) < len(b.vectors) {
			b.graphs[l] = append(b.graphs[l], nil)
		}
	}

	if !b.hasEntry {
		b.entryPoint = id
		b.hasEntry = true
		return id, nil
	}

	b.insertNode(id, level)

	if level > b.nodeLayers[b.entryPoint] {
		b.entryPoint = id
	}

	return id, nil
}

func (b *Builder) vectorFunc() VectorFunc {
	return func(id uint32) ([]float32, bool) {
		if int(id) >= len(b.vectors) {
			return nil, false
		}
		return b.vectors[id], true
	}
}

// insertNode wires newNode into every layer from its assigned level
// down to 0: a greedy ef=1 descent locates an entry point in the
// layers above newNode's top layer, then each layer from newNode's top
// down to 0 runs a full ef_construction search and adds bidirectional,
// truncated edges.
func (b *Builder) insertNode(newNode uint32, level int) {
	vectorFn := b.vectorFunc()
	query := b.vectors[newNode]

	entry := b.entryPoint
	topLayer := len(b.graphs) - 1

	for layer := topLayer; layer > level; layer-- {
		entry = b.searchLayerGreedyBuilder(query, entry, layer, vectorFn)
	}

	for layer := min(level, topLayer); layer >= 0; layer-- {
		candidates := b.searchLayerMultiBuilder(query, entry, layer, b.params.EfConstruction, vectorFn)
		if len(candidates) > 0 {
			entry = candidates[0].NodeID
		}

		maxM := b.params.M
		selected := selectNeighbors(candidates, maxM)
		b.addEdges(newNode, selected, layer, maxM)
	}
}

func (b *Builder) searchLayerGreedyBuilder(query []float32, entry uint32, layer int, vectorFn VectorFunc) uint32 {
	best := entry
	bestVec, _ := vectorFn(best)
	bestDist := graphDistance(b.metric, query, bestVec)

	improved := true
	for improved {
		improved = false
		for _, n := range b.graphs[layer][best] {
			vec, ok := vectorFn(n)
			if !ok {
				continue
			}
			d := graphDistance(b.metric, query, vec)
			if d < bestDist {
				bestDist = d
				best = n
				improved = true
			}
		}
	}
	return best
}

func (b *Builder) searchLayerMultiBuilder(query []float32, entry uint32, layer, ef int, vectorFn VectorFunc) []Candidate {
	visited := make(map[uint32]struct{}, ef*2)

	entryVec, _ := vectorFn(entry)
	entryCandidate := Candidate{NodeID: entry, Distance: graphDistance(b.metric, query, entryVec)}

	work := newMinHeap()
	work.push(entryCandidate)
	visited[entry] = struct{}{}

	best := newMaxHeap()
	best.push(entryCandidate)

	for work.Len() > 0 {
		current := work.pop()
		if best.Len() >= ef && less(best.top(), current) {
			break
		}

		for _, n := range b.graphs[layer][current.NodeID] {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}

			vec, ok := vectorFn(n)
			if !ok {
				continue
			}
			cand := Candidate{NodeID: n, Distance: graphDistance(b.metric, query, vec)}

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

// selectNeighbors keeps the maxM closest candidates. Candidates arrive
// already sorted closest-first from searchLayerMultiBuilder.
func selectNeighbors(candidates []Candidate, maxM int) []Candidate {
	if len(candidates) <= maxM {
		return candidates
	}
	return candidates[:maxM]
}

// addEdges wires bidirectional edges between newNode and each selected
// neighbor at layer. A neighbor's back-edge list that grows past maxM
// is truncated to its first maxM entries, in insertion order.
func (b *Builder) addEdges(newNode uint32, selected []Candidate, layer, maxM int) {
	neighborIDs := make([]uint32, len(selected))
	for i, c := range selected {
		neighborIDs[i] = c.NodeID
	}
	b.graphs[layer][newNode] = neighborIDs

	vectorFn := b.vectorFunc()
	for _, c := range selected {
		back := b.graphs[layer][c.NodeID]
		back = append(back, newNode)
		if len(back) > maxM {
			back = b.truncateClosest(c.NodeID, back, maxM, layer, vectorFn)
		}
		b.graphs[layer][c.NodeID] = back
	}
}

// truncateClosest drops neighbors past index maxM, keeping insertion
// order rather than re-sorting by distance.
func (b *Builder) truncateClosest(_ uint32, neighbors []uint32, maxM, _ int, _ VectorFunc) []uint32 {
	return neighbors[:maxM]
}
