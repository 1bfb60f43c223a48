// Package distance implements the similarity kernels used by exact search
// and HNSW: dot product, cosine, and Euclidean, each with a SIMD-backed
// path and a scalar reference path.
package distance

import (
	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"

	"github.com/xDarkicex/ndb/internal/errs"
)

// Metric selects a distance kernel.
type Metric int

const (
	DotProduct Metric = iota
	Cosine
	Euclidean
)

func (m Metric) String() string {
	switch m {
	case DotProduct:
		return "dot"
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	default:
		return "unknown"
	}
}

// HigherIsBetter reports whether a greater score indicates greater
// similarity for this metric.
func (m Metric) HigherIsBetter() bool {
	return m == DotProduct || m == Cosine
}

// Compute returns the similarity/distance score between a and b under m.
// For DotProduct and Cosine, higher is more similar; for Euclidean, lower
// is more similar. Returns a wrong-dimension error when len(a) != len(b).
func (m Metric) Compute(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, errs.WrongDimension(len(a), len(b))
	}
	switch m {
	case DotProduct:
		return Dot(a, b), nil
	case Cosine:
		return Cos(a, b), nil
	case Euclidean:
		return Euclid(a, b), nil
	default:
		return 0, errs.InvalidArgument("metric", "unknown distance metric")
	}
}

// Dot computes the dot product using vek's vectorized float32 kernel.
func Dot(a, b []float32) float32 {
	return vek32.Dot(a, b)
}

// Norm computes the L2 norm (magnitude) of v.
func Norm(v []float32) float32 {
	return math32.Sqrt(vek32.Dot(v, v))
}

// Cos computes cosine similarity, 0 when either vector has zero magnitude.
func Cos(a, b []float32) float32 {
	normA := Norm(a)
	normB := Norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return Dot(a, b) / (normA * normB)
}

// Euclid computes the (unsquared) Euclidean distance between a and b.
func Euclid(a, b []float32) float32 {
	diff := vek32.Sub(a, b)
	return math32.Sqrt(vek32.Dot(diff, diff))
}

// Scalar holds plain-loop reference implementations used for
// property-based cross-checks against the vek-backed kernels above, and
// for callers on platforms where vek's SIMD paths aren't available.
var Scalar = scalarKernels{}

type scalarKernels struct{}

func (scalarKernels) Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func (s scalarKernels) norm(v []float32) float32 {
	return math32.Sqrt(s.Dot(v, v))
}

func (s scalarKernels) Cos(a, b []float32) float32 {
	normA, normB := s.norm(a), s.norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return s.Dot(a, b) / (normA * normB)
}

func (s scalarKernels) Euclid(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math32.Sqrt(sum)
}
