package memtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/ndb/internal/errs"
	"github.com/xDarkicex/ndb/internal/segment"
)

func testDoc(id string, dim int) segment.Document {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i)
	}
	return segment.Document{ID: id, Vector: vec, Payload: map[string]any{"id": id}}
}

func TestInsertAndGet(t *testing.T) {
	m := New(4)
	internalID, err := m.Insert(testDoc("doc1", 4))
	require.NoError(t, err)

	doc, vec, ok := m.Get(internalID)
	require.True(t, ok)
	assert.Equal(t, "doc1", doc.ExternalID)
	assert.Equal(t, []float32{0, 1, 2, 3}, vec)

	doc2, vec2, ok := m.GetByExternal("doc1")
	require.True(t, ok)
	assert.Equal(t, internalID, doc2.InternalID)
	assert.Equal(t, vec, vec2)
}

func TestInsertDimensionMismatch(t *testing.T) {
	m := New(4)
	_, err := m.Insert(segment.Document{ID: "doc1", Vector: []float32{1, 2, 3}})
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWrongDimension, k)
}

func TestDelete(t *testing.T) {
	m := New(4)
	m.Insert(testDoc("doc1", 4))

	_, _, ok := m.GetByExternal("doc1")
	require.True(t, ok)

	internalID, present := m.Delete("doc1")
	assert.True(t, present)

	_, _, ok = m.GetByExternal("doc1")
	assert.False(t, ok)

	got, ok := m.InternalID("doc1")
	require.True(t, ok)
	assert.Equal(t, internalID, got)
}

func TestDeleteNotPresentStillTombstones(t *testing.T) {
	m := New(4)
	internalID, present := m.Delete("never-inserted")
	assert.False(t, present)
	assert.Equal(t, uint32(0), internalID)
	assert.True(t, m.IsDeletedByExternal("never-inserted"))
}

func TestIterSkipsDeleted(t *testing.T) {
	m := New(4)
	m.Insert(testDoc("doc1", 4))
	m.Insert(testDoc("doc2", 4))
	m.Insert(testDoc("doc3", 4))
	m.Delete("doc2")

	entries := m.Iter()
	require.Len(t, entries, 2)
	ids := map[string]bool{entries[0].ExternalID: true, entries[1].ExternalID: true}
	assert.True(t, ids["doc1"])
	assert.True(t, ids["doc3"])
	assert.False(t, ids["doc2"])
}

func TestReplaceKeepsInternalID(t *testing.T) {
	m := New(4)
	id1, err := m.Insert(testDoc("doc1", 4))
	require.NoError(t, err)

	id2, err := m.Insert(segment.Document{ID: "doc1", Vector: []float32{10, 20, 30, 40}})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, vec, ok := m.Get(id2)
	require.True(t, ok)
	assert.Equal(t, []float32{10, 20, 30, 40}, vec)
}

func TestSoALayout(t *testing.T) {
	m := New(4)
	m.Insert(testDoc("doc1", 4))
	m.Insert(testDoc("doc2", 4))

	entries := m.Iter()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, []float32{0, 1, 2, 3}, e.Vector)
	}
}

func TestActiveCount(t *testing.T) {
	m := New(4)
	m.Insert(testDoc("doc1", 4))
	m.Insert(testDoc("doc2", 4))
	m.Insert(testDoc("doc3", 4))
	assert.Equal(t, 3, m.ActiveCount())

	m.Delete("doc2")
	assert.Equal(t, 2, m.ActiveCount())
	assert.Equal(t, 3, m.Len())
}

func TestFreeze(t *testing.T) {
	m := New(4)
	m.Insert(testDoc("doc1", 4))
	m.Insert(testDoc("doc2", 4))
	m.Delete("doc1")

	frozen := m.Freeze()
	entries := frozen.IterActive()
	require.Len(t, entries, 1)
	assert.Equal(t, "doc2", entries[0].ExternalID)
	assert.Equal(t, 1, frozen.ActiveCount())

	// Mutating the live memtable after freezing must not affect the snapshot.
	m.Insert(testDoc("doc3", 4))
	assert.Equal(t, 1, frozen.ActiveCount())
}

func TestReinsertAfterDeleteClearsTombstone(t *testing.T) {
	m := New(4)
	m.Insert(testDoc("doc1", 4))
	m.Delete("doc1")
	_, _, ok := m.GetByExternal("doc1")
	require.False(t, ok)

	m.Insert(testDoc("doc1", 4))
	_, _, ok = m.GetByExternal("doc1")
	assert.True(t, ok)
}
