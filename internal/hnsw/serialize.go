package hnsw

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/errs"
)

// magic identifies an encoded index blob.
var magic = [4]byte{'n', 'H', 'N', 'W'}

// formatVersion is the encoded blob format this package writes and
// expects to read.
const formatVersion = uint32(1)

// ToBytes encodes idx as a single binary blob: parameters, dimension,
// metric, node count, entry point, layer count, per-node layer tags,
// and per-layer (neighbor array, offset table).
func (idx *Index) ToBytes() []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeU32(&buf, formatVersion)

	writeU32(&buf, uint32(idx.params.M))
	writeU32(&buf, uint32(idx.params.EfConstruction))
	writeU32(&buf, uint32(idx.params.EfSearch))
	writeF64(&buf, idx.params.LevelFactor)

	writeU32(&buf, uint32(idx.dimension))
	writeU32(&buf, uint32(idx.metric))
	writeU32(&buf, idx.numNodes)
	writeU32(&buf, idx.entryPoint)
	writeU32(&buf, uint32(idx.numLayers))

	for _, level := range idx.nodeLayers {
		writeU32(&buf, uint32(level))
	}

	for layer := 0; layer < idx.numLayers; layer++ {
		offsets := idx.layerOffsets[layer]
		writeU32(&buf, uint32(len(offsets)))
		for _, off := range offsets {
			writeU32(&buf, uint32(off))
		}

		neighbors := idx.layerNeighbors[layer]
		writeU32(&buf, uint32(len(neighbors)))
		for _, n := range neighbors {
			writeU32(&buf, n)
		}
	}

	return buf.Bytes()
}

// FromBytes decodes a blob produced by ToBytes.
func FromBytes(data []byte) (*Index, error) {
	r := bytes.NewReader(data)

	var gotMagic [4]byte
	if _, err := r.Read(gotMagic[:]); err != nil || gotMagic != magic {
		return nil, errs.Corruption("", 0, "bad hnsw index magic")
	}

	version, err := readU32(r)
	if err != nil {
		return nil, errs.Corruption("", 4, "truncated hnsw index header")
	}
	if version != formatVersion {
		return nil, errs.Corruption("", 8, "unsupported hnsw index version")
	}

	m, err1 := readU32(r)
	efc, err2 := readU32(r)
	efs, err3 := readU32(r)
	levelFactor, err4 := readF64(r)
	dimension, err5 := readU32(r)
	metric, err6 := readU32(r)
	numNodes, err7 := readU32(r)
	entryPoint, err8 := readU32(r)
	numLayers, err9 := readU32(r)
	for _, err := range []error{err1, err2, err3, err4, err5, err6, err7, err8, err9} {
		if err != nil {
			return nil, errs.Corruption("", 0, "truncated hnsw index header")
		}
	}

	idx := &Index{
		params: Params{
			M:              int(m),
			EfConstruction: int(efc),
			EfSearch:       int(efs),
			LevelFactor:    levelFactor,
		},
		dimension:  int(dimension),
		metric:     distance.Metric(metric),
		numNodes:   numNodes,
		entryPoint: entryPoint,
		numLayers:  int(numLayers),
	}

	idx.nodeLayers = make([]int, numNodes)
	for i := range idx.nodeLayers {
		v, err := readU32(r)
		if err != nil {
			return nil, errs.Corruption("", 0, "truncated node layer tags")
		}
		idx.nodeLayers[i] = int(v)
	}

	idx.layerOffsets = make([][]int, idx.numLayers)
	idx.layerNeighbors = make([][]uint32, idx.numLayers)
	for layer := 0; layer < idx.numLayers; layer++ {
		offsetLen, err := readU32(r)
		if err != nil {
			return nil, errs.Corruption("", 0, "truncated layer offsets length")
		}
		offsets := make([]int, offsetLen)
		for i := range offsets {
			v, err := readU32(r)
			if err != nil {
				return nil, errs.Corruption("", 0, "truncated layer offsets")
			}
			offsets[i] = int(v)
		}
		idx.layerOffsets[layer] = offsets

		neighborLen, err := readU32(r)
		if err != nil {
			return nil, errs.Corruption("", 0, "truncated layer neighbors length")
		}
		neighbors := make([]uint32, neighborLen)
		for i := range neighbors {
			v, err := readU32(r)
			if err != nil {
				return nil, errs.Corruption("", 0, "truncated layer neighbors")
			}
			neighbors[i] = v
		}
		idx.layerNeighbors[layer] = neighbors
	}

	return idx, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeF64(buf *bytes.Buffer, v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readF64(r *bytes.Reader) (float64, error) {
	var tmp [8]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(tmp[:])), nil
}
