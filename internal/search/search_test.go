package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/errs"
)

func fixedSource(candidates []Candidate) Source {
	return func(yield func(Candidate) error) error {
		for _, c := range candidates {
			if err := yield(c); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestSearchEuclideanOrdersClosestFirst(t *testing.T) {
	candidates := []Candidate{
		{ExternalID: "a", InternalID: 0, Vector: []float32{0, 0}},
		{ExternalID: "b", InternalID: 1, Vector: []float32{1, 0}},
		{ExternalID: "c", InternalID: 2, Vector: []float32{5, 5}},
	}
	results, err := Search([]float32{0, 0}, 2, distance.Euclidean, nil, fixedSource(candidates))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ExternalID)
	assert.Equal(t, "b", results[1].ExternalID)
	assert.Equal(t, float32(0), results[0].Score)
}

func TestSearchCosineOrdersMostSimilarFirst(t *testing.T) {
	candidates := []Candidate{
		{ExternalID: "same", InternalID: 0, Vector: []float32{1, 0}},
		{ExternalID: "orth", InternalID: 1, Vector: []float32{0, 1}},
		{ExternalID: "opp", InternalID: 2, Vector: []float32{-1, 0}},
	}
	results, err := Search([]float32{1, 0}, 3, distance.Cosine, nil, fixedSource(candidates))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "same", results[0].ExternalID)
	assert.Equal(t, "opp", results[2].ExternalID)
}

func TestSearchTieBreaksByLowerInternalID(t *testing.T) {
	candidates := []Candidate{
		{ExternalID: "hi", InternalID: 5, Vector: []float32{1, 0}},
		{ExternalID: "lo", InternalID: 1, Vector: []float32{1, 0}},
	}
	results, err := Search([]float32{1, 0}, 1, distance.Cosine, nil, fixedSource(candidates))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lo", results[0].ExternalID)
}

func TestSearchAppliesFilter(t *testing.T) {
	candidates := []Candidate{
		{ExternalID: "keep", InternalID: 0, Vector: []float32{1, 0}, Payload: map[string]any{"kind": "a"}},
		{ExternalID: "drop", InternalID: 1, Vector: []float32{1, 0}, Payload: map[string]any{"kind": "b"}},
	}
	filter := func(p map[string]any) bool { return p["kind"] == "a" }
	results, err := Search([]float32{1, 0}, 5, distance.Cosine, filter, fixedSource(candidates))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].ExternalID)
}

func TestSearchRejectsNilPayloadUnderFilter(t *testing.T) {
	candidates := []Candidate{
		{ExternalID: "no-payload", InternalID: 0, Vector: []float32{1, 0}},
	}
	filter := func(map[string]any) bool { return true }
	results, err := Search([]float32{1, 0}, 5, distance.Cosine, filter, fixedSource(candidates))
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestSearchInvalidKRejected(t *testing.T) {
	_, err := Search([]float32{1}, 0, distance.Cosine, nil, fixedSource(nil))
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindInvalidArgument, k)
}

func TestSearchPropagatesDimensionMismatch(t *testing.T) {
	candidates := []Candidate{{ExternalID: "x", InternalID: 0, Vector: []float32{1, 2, 3}}}
	_, err := Search([]float32{1, 2}, 1, distance.Euclidean, nil, fixedSource(candidates))
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWrongDimension, k)
}

func TestSearchTruncatesToK(t *testing.T) {
	candidates := make([]Candidate, 10)
	for i := range candidates {
		candidates[i] = Candidate{ExternalID: "x", InternalID: uint32(i), Vector: []float32{float32(i), 0}}
	}
	results, err := Search([]float32{0, 0}, 3, distance.Euclidean, nil, fixedSource(candidates))
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
