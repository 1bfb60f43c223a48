package ndb

import (
	"go.uber.org/zap"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/manifest"
	"github.com/xDarkicex/ndb/internal/obs"
)

// Metric selects a distance kernel for search and index construction.
type Metric = distance.Metric

// Distance metrics, re-exported from internal/distance.
const (
	DotProduct = distance.DotProduct
	Cosine     = distance.Cosine
	Euclidean  = distance.Euclidean
)

// Durability selects how aggressively writes are flushed to disk.
// It is immutable for the lifetime of a collection once created.
type Durability = manifest.Durability

// Durability levels, re-exported from internal/manifest.
const (
	Buffered       = manifest.Buffered
	FsyncEachBatch = manifest.FsyncEachBatch
)

// config holds every setting an Option can influence, applied over a
// set of defaults before a collection is created or opened.
type config struct {
	dimension  int
	durability Durability
	metric     Metric

	logger  *zap.SugaredLogger
	metrics *obs.Metrics

	getCacheSize int
}

func defaultConfig() *config {
	return &config{
		durability:   Buffered,
		metric:       Cosine,
		getCacheSize: 0,
	}
}

// Option configures a collection at Open time.
type Option func(*config)

// WithDimension declares the vector dimension for a collection being
// created. Ignored when opening an already-existing collection, whose
// dimension is fixed by its manifest; a mismatch between a supplied
// WithDimension and an existing manifest's dimension is reported as a
// wrong-dimension error.
func WithDimension(d int) Option {
	return func(c *config) { c.dimension = d }
}

// WithDurability sets the durability mode for a collection being
// created. Ignored when opening an already-existing collection.
func WithDurability(d Durability) Option {
	return func(c *config) { c.durability = d }
}

// WithMetric sets the default distance metric used by Search and
// RebuildIndex when the caller doesn't override it per-call.
func WithMetric(m Metric) Option {
	return func(c *config) { c.metric = m }
}

// WithLogger injects a structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetrics injects a Prometheus metrics collector. Defaults to a
// freshly created, privately registered one.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithGetCache enables a read-through LRU cache of recently-Get-ed
// documents, keyed by external id, sized for up to size entries.
// Disabled by default; the cache is invalidated per-id on every
// Insert, InsertBatch, and Delete, and cleared entirely by Compact.
func WithGetCache(size int) Option {
	return func(c *config) { c.getCacheSize = size }
}
