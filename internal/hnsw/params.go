// Package hnsw implements an approximate nearest-neighbor index over
// float32 vectors: a greedy multi-layer graph built incrementally and
// frozen into a flat CSR (compressed sparse row) layout for search.
package hnsw

import "math"

// DefaultM is the maximum number of bidirectional edges per node per
// layer, used when no override is supplied.
const DefaultM = 16

// MaxLevel bounds how many layers a single inserted node can span.
const MaxLevel = 16

// Params configures graph construction and search breadth.
type Params struct {
	// M is the maximum number of edges per node per layer.
	M int
	// EfConstruction is the candidate list size used while inserting.
	EfConstruction int
	// EfSearch is the default candidate list size used at query time
	// when a caller doesn't request a larger one.
	EfSearch int
	// LevelFactor scales the exponential level-assignment draw; the
	// idiomatic choice is 1/ln(M).
	LevelFactor float64
}

// DefaultParams returns the standard parameter set: M=16,
// ef_construction=4*M, ef_search=2*M, level_factor=1/ln(M).
func DefaultParams() Params {
	return WithM(DefaultM)
}

// WithM derives a full Params set from a single M, scaling
// EfConstruction and EfSearch and recomputing LevelFactor so a caller
// never has to get level_factor right by hand.
func WithM(m int) Params {
	if m < 1 {
		m = 1
	}
	logBase := m
	if logBase < 2 {
		logBase = 2
	}
	return Params{
		M:              m,
		EfConstruction: 4 * m,
		EfSearch:       2 * m,
		LevelFactor:    1.0 / math.Log(float64(logBase)),
	}
}
