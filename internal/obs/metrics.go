// Package obs provides the structured logging and Prometheus metrics
// shared by the collection orchestrator and compactor.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector a collection reports against.
// Each Metrics owns a private registry rather than registering into the
// global default one, since a process may embed more than one
// collection and each needs its own counters.
type Metrics struct {
	registry *prometheus.Registry

	Inserts        prometheus.Counter
	Deletes        prometheus.Counter
	Gets           prometheus.Counter
	Flushes        prometheus.Counter
	Compactions    prometheus.Counter
	IndexRebuilds  prometheus.Counter
	SearchQueries  prometheus.Counter
	SearchApprox   prometheus.Counter
	SearchExact    prometheus.Counter
	SearchErrors   prometheus.Counter
	SearchLatency  prometheus.Histogram
	FlushLatency   prometheus.Histogram
	CompactLatency prometheus.Histogram
	CompactedDocs  prometheus.Counter
	DroppedDocs    prometheus.Counter
}

// NewMetrics creates a fresh Metrics instance registered against its
// own private registry, retrievable via Registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Inserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_inserts_total",
			Help: "Total documents inserted, including batch inserts.",
		}),
		Deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_deletes_total",
			Help: "Total delete operations.",
		}),
		Gets: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_gets_total",
			Help: "Total get-by-id operations.",
		}),
		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_flushes_total",
			Help: "Total memtable flushes to a new segment.",
		}),
		Compactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_compactions_total",
			Help: "Total compaction runs.",
		}),
		IndexRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_index_rebuilds_total",
			Help: "Total HNSW index rebuilds.",
		}),
		SearchQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_search_queries_total",
			Help: "Total search queries, approximate and exact combined.",
		}),
		SearchApprox: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_search_approximate_total",
			Help: "Search queries served by the HNSW approximate path.",
		}),
		SearchExact: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_search_exact_total",
			Help: "Search queries served by the brute-force exact path.",
		}),
		SearchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_search_errors_total",
			Help: "Total search queries that returned an error.",
		}),
		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "ndb_search_latency_seconds",
			Help: "Search query latency in seconds.",
		}),
		FlushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "ndb_flush_latency_seconds",
			Help: "Memtable flush latency in seconds.",
		}),
		CompactLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "ndb_compact_latency_seconds",
			Help: "Compaction run latency in seconds.",
		}),
		CompactedDocs: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_compacted_documents_total",
			Help: "Documents retained across all compaction runs.",
		}),
		DroppedDocs: factory.NewCounter(prometheus.CounterOpts{
			Name: "ndb_dropped_documents_total",
			Help: "Tombstoned or superseded documents dropped by compaction.",
		}),
	}
}

// Registry returns the private Prometheus registry this Metrics
// instance registered its collectors against, for callers that want to
// expose it via their own /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
