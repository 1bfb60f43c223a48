package hnsw

import (
	"golang.org/x/sync/errgroup"

	"github.com/xDarkicex/ndb/internal/errs"
)

// Build freezes the builder's adjacency-list graph into an immutable,
// CSR-backed Index. The builder remains usable afterward but Build
// does not observe subsequent Add calls already snapshotted here.
func (b *Builder) Build() (*Index, error) {
	if len(b.vectors) == 0 {
		return nil, errs.InvalidArgument("vectors", "cannot build an index with zero nodes")
	}

	numNodes := uint32(len(b.vectors))
	numLayers := len(b.graphs)
	if numLayers == 0 {
		numLayers = 1
		b.graphs = [][][]uint32{make([][]uint32, numNodes)}
	}

	layerNeighbors := make([][]uint32, numLayers)
	layerOffsets := make([][]int, numLayers)

	// Each layer's adjacency list flattens independently, so layers
	// above a handful of nodes are worth assembling concurrently.
	var g errgroup.Group
	for layer := 0; layer < numLayers; layer++ {
		layer := layer
		g.Go(func() error {
			offsets := make([]int, numNodes+1)
			var flat []uint32
			for node := uint32(0); node < numNodes; node++ {
				offsets[node] = len(flat)
				if int(node) < len(b.graphs[layer]) {
					flat = append(flat, b.graphs[layer][node]...)
				}
			}
			offsets[numNodes] = len(flat)
			layerNeighbors[layer] = flat
			layerOffsets[layer] = offsets
			return nil
		})
	}
	_ = g.Wait()

	nodeLayers := make([]int, numNodes)
	copy(nodeLayers, b.nodeLayers)

	return &Index{
		params:         b.params,
		dimension:      b.dimension,
		metric:         b.metric,
		numNodes:       numNodes,
		entryPoint:     b.entryPoint,
		numLayers:      numLayers,
		layerNeighbors: layerNeighbors,
		layerOffsets:   layerOffsets,
		nodeLayers:     nodeLayers,
	}, nil
}
