package hnsw

import "github.com/xDarkicex/ndb/internal/distance"

// graphDistance scores a against b under the "lower is closer"
// convention the graph is built and searched under, regardless of
// whether the underlying metric's natural scale has higher-is-better
// semantics. Dot product is negated; cosine becomes 1 - similarity
// (1.0, the maximum, for a zero-norm vector); Euclidean is used as-is.
func graphDistance(metric distance.Metric, a, b []float32) float32 {
	switch metric {
	case distance.DotProduct:
		return -distance.Dot(a, b)
	case distance.Cosine:
		return 1.0 - distance.Cos(a, b)
	default:
		return distance.Euclid(a, b)
	}
}
