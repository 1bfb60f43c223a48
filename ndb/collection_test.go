package ndb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(dim int, fill func(i int) float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill(i)
	}
	return v
}

// Scenario A (basic round-trip): insert three documents, flush, reopen,
// and confirm a mid-set document survives exactly.
func TestRoundTripSurvivesFlushAndReopen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, WithDimension(4))
	require.NoError(t, err)

	docs := []Document{
		{ID: "doc1", Vector: []float32{0, 1, 2, 3}, Payload: map[string]any{"n": 1}},
		{ID: "doc2", Vector: []float32{4, 5, 6, 7}, Payload: map[string]any{"n": 2}},
		{ID: "doc3", Vector: []float32{8, 9, 10, 11}, Payload: map[string]any{"n": 3}},
	}
	for _, d := range docs {
		require.NoError(t, c.Insert(d))
	}
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())

	c2, err := Open(dir, WithDimension(4))
	require.NoError(t, err)
	defer c2.Close()

	got, err := c2.Get("doc2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "doc2", got.ID)
	assert.Equal(t, []float32{4, 5, 6, 7}, got.Vector)
	assert.Equal(t, map[string]any{"n": 2}, got.Payload)
}

// Scenario C (delete + compact), exercised at the orchestrator level:
// stats track segment docs before and after, and deleted ids disappear
// while survivors remain reachable.
func TestDeleteThenCompactDropsTombstones(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, WithDimension(4))
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 10; i++ {
		id := "doc" + string(rune('0'+i))
		require.NoError(t, c.Insert(Document{ID: id, Vector: vec(4, func(j int) float32 { return float32(i*4 + j) })}))
	}
	require.NoError(t, c.Flush())

	for _, id := range []string{"doc0", "doc1", "doc2"} {
		_, err := c.Delete(id)
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.Equal(t, 10, stats.TotalSegmentDocs)

	result, err := c.Compact()
	require.NoError(t, err)
	assert.Equal(t, 7, result.DocsAfter)

	stats = c.Stats()
	assert.Equal(t, 7, stats.TotalSegmentDocs)
	assert.Equal(t, 1, stats.SegmentCount)

	got, err := c.Get("doc0")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Get("doc5")
	require.NoError(t, err)
	require.NotNil(t, got)
}

// Scenario F (lock contention): a second Open against the same path
// fails with collection-locked while the first is still open, and
// succeeds once it is closed.
func TestOpenFailsWhileLockHeld(t *testing.T) {
	dir := t.TempDir()

	c1, err := Open(dir, WithDimension(4))
	require.NoError(t, err)

	_, err = Open(dir, WithDimension(4))
	require.Error(t, err)
	kind, ok := ErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCollectionLocked, kind)

	require.NoError(t, c1.Close())

	c2, err := Open(dir, WithDimension(4))
	require.NoError(t, err)
	require.NoError(t, c2.Close())
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, WithDimension(4))
	require.NoError(t, err)
	defer c.Close()

	err = c.Insert(Document{ID: "bad", Vector: []float32{1, 2, 3}})
	require.Error(t, err)
	kind, ok := ErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, KindWrongDimension, kind)
}

func TestGetCacheServesRepeatGetAndDeleteInvalidates(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, WithDimension(4), WithGetCache(16))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Insert(Document{ID: "doc1", Vector: []float32{1, 2, 3, 4}, Payload: map[string]any{"a": 1}}))
	require.NoError(t, c.Flush())

	first, err := c.Get("doc1")
	require.NoError(t, err)
	require.NotNil(t, first)

	cached, err := c.Get("doc1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "doc1", cached.ID)

	_, err = c.Delete("doc1")
	require.NoError(t, err)

	gone, err := c.Get("doc1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCompactRebuildsExistingIndex(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, WithDimension(4))
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Insert(Document{ID: "doc" + string(rune('0'+i)), Vector: vec(4, func(j int) float32 { return float32(i + j) })}))
	}
	require.NoError(t, c.Flush())
	require.NoError(t, c.RebuildIndex())
	require.True(t, c.HasIndex())

	_, err = c.Delete("doc0")
	require.NoError(t, err)

	_, err = c.Compact()
	require.NoError(t, err)
	assert.True(t, c.HasIndex())

	matches, err := c.Search(SearchRequest{
		Query:       vec(4, func(j int) float32 { return float32(3 + j) }),
		K:           1,
		Approximate: true,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestDeleteIndexClearsState(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, WithDimension(4))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Insert(Document{ID: "doc1", Vector: []float32{1, 2, 3, 4}}))
	require.NoError(t, c.Flush())
	require.NoError(t, c.RebuildIndex())
	require.True(t, c.HasIndex())

	require.NoError(t, c.DeleteIndex())
	assert.False(t, c.HasIndex())

	_, err = filepath.Abs(dir)
	require.NoError(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, WithDimension(4))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err = c.Insert(Document{ID: "doc1", Vector: []float32{1, 2, 3, 4}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollectionClosed)
}
