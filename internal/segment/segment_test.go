package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/ndb/internal/errs"
)

func testDoc(id string, dim int) Document {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i)
	}
	return Document{ID: id, Vector: vec, Payload: map[string]any{"id": id}}
}

func TestBuildAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.segment")

	b := NewBuilder(4)
	require.NoError(t, b.Add(testDoc("doc1", 4)))
	require.NoError(t, b.Add(testDoc("doc2", 4)))
	require.NoError(t, b.Add(testDoc("doc3", 4)))
	require.NoError(t, b.Build(path))

	seg, err := Open(path)
	require.NoError(t, err)
	defer seg.Close()

	assert.Equal(t, 4, seg.Dimension())
	assert.Equal(t, 3, seg.DocCount())

	v0, ok := seg.Vector(0)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 2, 3}, v0)

	ext, ok := seg.ExternalID(0)
	require.True(t, ok)
	assert.Equal(t, "doc1", ext)

	internal, ok := seg.InternalID("doc2")
	require.True(t, ok)
	assert.Equal(t, uint32(1), internal)

	payload, ok := seg.Payload(0)
	require.True(t, ok)
	assert.Equal(t, "doc1", payload["id"])

	_, ok = seg.Vector(99)
	assert.False(t, ok)
}

func TestBuilderRejectsWrongDimension(t *testing.T) {
	b := NewBuilder(4)
	err := b.Add(Document{ID: "doc1", Vector: []float32{1, 2, 3}})
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWrongDimension, k)
}

func TestBuildEmptySegmentFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.segment")
	b := NewBuilder(4)
	err := b.Build(path)
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindInvalidArgument, k)
}

func TestChecksumVerification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.segment")

	b := NewBuilder(4)
	require.NoError(t, b.Add(testDoc("doc1", 4)))
	require.NoError(t, b.Build(path))

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff, 0xff, 0xff, 0xff}, 100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.Error(t, err)
	k, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindChecksumMismatch, k)
}

func TestAllIteratesInInternalIDOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "all.segment")

	b := NewBuilder(3)
	require.NoError(t, b.Add(testDoc("a", 3)))
	require.NoError(t, b.Add(testDoc("b", 3)))
	require.NoError(t, b.Build(path))

	seg, err := Open(path)
	require.NoError(t, err)
	defer seg.Close()

	entries := seg.All()
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(0), entries[0].InternalID)
	assert.Equal(t, "a", entries[0].ExternalID)
	assert.Equal(t, uint32(1), entries[1].InternalID)
	assert.Equal(t, "b", entries[1].ExternalID)
}

func TestDocumentWithoutPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nopayload.segment")

	b := NewBuilder(2)
	require.NoError(t, b.Add(Document{ID: "doc1", Vector: []float32{1, 2}}))
	require.NoError(t, b.Build(path))

	seg, err := Open(path)
	require.NoError(t, err)
	defer seg.Close()

	_, ok := seg.Payload(0)
	assert.False(t, ok)
}
