package ndb

import (
	"github.com/xDarkicex/ndb/internal/errs"
	"github.com/xDarkicex/ndb/internal/filter"
	"github.com/xDarkicex/ndb/internal/search"
)

// SearchRequest configures a single top-k similarity search.
type SearchRequest struct {
	// Query is the vector to search against; its length must match
	// the collection's dimension.
	Query []float32
	// K is the number of results to return. Must be positive.
	K int
	// Metric overrides the collection's default distance metric for
	// this query. Nil uses the default configured via WithMetric.
	Metric *Metric
	// Filter, if non-nil, restricts results to documents whose
	// payload satisfies it. Documents with a nil payload never match
	// a non-nil filter.
	Filter filter.Filter
	// Approximate requests the HNSW index when one exists and was
	// built under the same metric this query resolves to. A query
	// whose metric doesn't match the loaded index's build metric, or
	// that finds no index at all, transparently falls back to exact
	// search regardless of this flag's value.
	Approximate bool
	// Ef overrides the HNSW candidate list breadth at query time. Ef
	// values below K are raised to K. Zero selects a default of 2*K.
	Ef int
}

// Match is one ranked search result.
type Match struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Search finds the K documents most similar to req.Query. When
// req.Approximate is set and an index exists that was built under the
// resolved metric, the HNSW graph is queried and its results are
// resolved and post-filtered; with a filter the query over-fetches 2x,
// and the over-fetch is doubled again, once, if filtering still leaves
// fewer than K matches. The approximate results are returned even if
// fewer than K remain. Otherwise an exact brute-force scan over the
// memtable and every segment is used.
func (c *Collection) Search(req SearchRequest) ([]Match, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if len(req.Query) != c.dimension {
		return nil, errs.WrongDimension(c.dimension, len(req.Query))
	}
	if req.K <= 0 {
		return nil, errs.InvalidArgument("k", "must be positive")
	}

	c.metrics.SearchQueries.Inc()

	metric := c.metric
	if req.Metric != nil {
		metric = *req.Metric
	}

	if req.Approximate {
		if matches, ok := c.searchApproximate(req, metric); ok {
			c.metrics.SearchApprox.Inc()
			return matches, nil
		}
	}

	c.metrics.SearchExact.Inc()
	matches, err := c.searchExact(req, metric)
	if err != nil {
		c.metrics.SearchErrors.Inc()
		return nil, err
	}
	return matches, nil
}

// searchApproximate attempts the HNSW path, returning ok=false if no
// usable index exists (none loaded, or its build metric doesn't match
// the resolved query metric) so the caller can fall back to exact
// search.
func (c *Collection) searchApproximate(req SearchRequest, metric Metric) ([]Match, bool) {
	st := c.index.Load()
	if st == nil || st.index == nil || st.index.Metric() != metric {
		return nil, false
	}

	ef := req.Ef
	if ef <= 0 {
		ef = 2 * req.K
	}

	fetchK := req.K
	if req.Filter != nil {
		fetchK = req.K * 2
	}

	matches, err := c.runApproximateSearch(st, req, fetchK, ef)
	if err != nil {
		return nil, false
	}

	if req.Filter != nil && len(matches) < req.K {
		matches, err = c.runApproximateSearch(st, req, fetchK*2, ef*2)
		if err != nil {
			return nil, false
		}
	}

	if len(matches) > req.K {
		matches = matches[:req.K]
	}
	return matches, true
}

func (c *Collection) runApproximateSearch(st *indexState, req SearchRequest, fetchK, ef int) ([]Match, error) {
	vectorFn := func(nodeID uint32) ([]float32, bool) {
		if int(nodeID) >= len(st.ids) {
			return nil, false
		}
		doc, ok := c.lookup(st.ids[nodeID])
		if !ok {
			return nil, false
		}
		return doc.Vector, true
	}

	results, err := st.index.Search(req.Query, fetchK, ef, vectorFn)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		if int(r.NodeID) >= len(st.ids) {
			continue
		}
		id := st.ids[r.NodeID]
		doc, ok := c.lookup(id)
		if !ok {
			continue
		}
		if req.Filter != nil {
			if doc.Payload == nil || !req.Filter.Evaluate(doc.Payload) {
				continue
			}
		}
		matches = append(matches, Match{ID: id, Score: r.Score, Payload: doc.Payload})
	}
	return matches, nil
}

func (c *Collection) searchExact(req SearchRequest, metric Metric) ([]Match, error) {
	var searchFilter search.Filter
	if req.Filter != nil {
		searchFilter = func(payload map[string]any) bool { return req.Filter.Evaluate(payload) }
	}

	source := func(yield func(search.Candidate) error) error {
		c.memtableMu.RLock()
		entries := c.memtable.Iter()
		c.memtableMu.RUnlock()

		for _, e := range entries {
			if err := yield(search.Candidate{
				ExternalID: e.ExternalID,
				InternalID: e.InternalID,
				Vector:     e.Vector,
				Payload:    e.Payload,
			}); err != nil {
				return err
			}
		}

		segs := c.loadSegments()
		for _, seg := range segs {
			for _, entry := range seg.All() {
				payload, _ := seg.Payload(entry.InternalID)
				if err := yield(search.Candidate{
					ExternalID: entry.ExternalID,
					InternalID: entry.InternalID,
					Vector:     entry.Vector,
					Payload:    payload,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	results, err := search.Search(req.Query, req.K, metric, searchFilter, source)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		doc, _ := c.lookup(r.ExternalID)
		matches[i] = Match{ID: r.ExternalID, Score: r.Score, Payload: doc.Payload}
	}
	return matches, nil
}

