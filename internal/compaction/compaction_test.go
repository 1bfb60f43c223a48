package compaction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/manifest"
	"github.com/xDarkicex/ndb/internal/memtable"
	"github.com/xDarkicex/ndb/internal/segment"
)

func testDoc(id string, dim int) segment.Document {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i + 1)
	}
	return segment.Document{ID: id, Vector: vec, Payload: map[string]any{"id": id}}
}

func buildSegment(t *testing.T, dir, filename string, docs ...segment.Document) *segment.Segment {
	t.Helper()
	path := filepath.Join(dir, filename)
	b := segment.NewBuilder(len(docs[0].Vector))
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	require.NoError(t, b.Build(path))
	s, err := segment.Open(path)
	require.NoError(t, err)
	return s
}

func TestMergeSegmentsBasic(t *testing.T) {
	dir := t.TempDir()
	seg1 := buildSegment(t, dir, "0001.ndb", testDoc("doc1", 4), testDoc("doc2", 4))
	seg2 := buildSegment(t, dir, "0002.ndb", testDoc("doc3", 4), testDoc("doc4", 4))

	merged := MergeSegments([]*segment.Segment{seg1, seg2}, nil)

	require.Len(t, merged, 4)
	ids := make([]string, len(merged))
	for i, d := range merged {
		ids[i] = d.ID
	}
	assert.ElementsMatch(t, []string{"doc1", "doc2", "doc3", "doc4"}, ids)
}

func TestMergeSegmentsWithDeletes(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir, "0001.ndb", testDoc("doc1", 4), testDoc("doc2", 4), testDoc("doc3", 4))

	deleted := map[string]struct{}{"doc2": {}}
	merged := MergeSegments([]*segment.Segment{seg}, deleted)

	require.Len(t, merged, 2)
	ids := make([]string, len(merged))
	for i, d := range merged {
		ids[i] = d.ID
	}
	assert.ElementsMatch(t, []string{"doc1", "doc3"}, ids)
}

func TestMergeSegmentsNewerWins(t *testing.T) {
	dir := t.TempDir()
	oldDoc := testDoc("doc1", 4)
	oldDoc.Vector = []float32{1, 1, 1, 1}
	seg1 := buildSegment(t, dir, "0001.ndb", oldDoc)

	newDoc := testDoc("doc1", 4)
	newDoc.Vector = []float32{2, 2, 2, 2}
	seg2 := buildSegment(t, dir, "0002.ndb", newDoc)

	merged := MergeSegments([]*segment.Segment{seg1, seg2}, nil)

	require.Len(t, merged, 1)
	assert.Equal(t, "doc1", merged[0].ID)
	assert.Equal(t, []float32{2, 2, 2, 2}, merged[0].Vector)
}

func setupManifest(t *testing.T, dir string, dim int) *manifest.Manager {
	t.Helper()
	cfg := manifest.NewConfig(dim)
	mgr, err := manifest.Open(filepath.Join(dir, manifest.FileName), &cfg)
	require.NoError(t, err)
	return mgr
}

func TestCompactEmptyCollection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "segments"), 0o755))
	mgr := setupManifest(t, dir, 4)

	result, err := Compact(nil, nil, 4, distance.Cosine, dir, mgr, false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.DocsBefore)
	assert.Equal(t, 0, result.DocsAfter)
	assert.Equal(t, 0, result.SegmentsMerged)
}

func TestCompactMergesAndDropsTombstones(t *testing.T) {
	dir := t.TempDir()
	segDir := filepath.Join(dir, "segments")
	require.NoError(t, os.MkdirAll(segDir, 0o755))

	seg1 := buildSegment(t, segDir, "0001.ndb", testDoc("doc1", 4), testDoc("doc2", 4))
	seg2 := buildSegment(t, segDir, "0002.ndb", testDoc("doc3", 4))

	mgr := setupManifest(t, dir, 4)
	mgr.Manifest().AddSegment(manifest.SegmentEntry{Filename: "0001.ndb", DocCount: 2})
	mgr.Manifest().AddSegment(manifest.SegmentEntry{Filename: "0002.ndb", DocCount: 1})

	deleted := map[string]struct{}{"doc2": {}}

	result, err := Compact([]*segment.Segment{seg1, seg2}, deleted, 4, distance.Cosine, dir, mgr, true)
	require.NoError(t, err)

	assert.Equal(t, 3, result.DocsBefore)
	assert.Equal(t, 2, result.DocsAfter)
	assert.Equal(t, 2, result.SegmentsMerged)
	assert.True(t, result.IndexRebuilt)
	assert.FileExists(t, result.NewSegment)
	assert.FileExists(t, filepath.Join(dir, "index.hnsw"))

	assert.NoFileExists(t, filepath.Join(segDir, "0001.ndb"))
	assert.NoFileExists(t, filepath.Join(segDir, "0002.ndb"))

	m := mgr.Manifest()
	assert.Len(t, m.Segments, 1)
	assert.EqualValues(t, 2, m.Segments[0].DocCount)
	assert.Equal(t, "index.hnsw", m.IndexFile)
	assert.EqualValues(t, 1, m.IndexGeneration)
	assert.EqualValues(t, 0, m.LastWALSeq)

	reopened, err := segment.Open(result.NewSegment)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.DocCount())
}

func TestCollectDeletedIDs(t *testing.T) {
	mt := memtable.New(4)
	_, err := mt.Insert(testDoc("doc1", 4))
	require.NoError(t, err)
	mt.Delete("doc1")
	mt.Delete("doc2")

	ids := CollectDeletedIDs(mt)
	assert.Len(t, ids, 2)
	_, ok := ids["doc1"]
	assert.True(t, ok)
	_, ok = ids["doc2"]
	assert.True(t, ok)
}

func TestCleanupTempFiles(t *testing.T) {
	dir := t.TempDir()
	segDir := filepath.Join(dir, "segments")
	require.NoError(t, os.MkdirAll(segDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(segDir, "0001.ndb.tmp"), []byte("temp"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(segDir, "0002.ndb.tmp"), []byte("temp"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.hnsw.tmp"), []byte("temp"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MANIFEST.tmp"), []byte("temp"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(segDir, "0001.ndb"), []byte("real"), 0o644))

	cleaned, err := CleanupTempFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, cleaned)

	assert.NoFileExists(t, filepath.Join(segDir, "0001.ndb.tmp"))
	assert.NoFileExists(t, filepath.Join(segDir, "0002.ndb.tmp"))
	assert.NoFileExists(t, filepath.Join(dir, "index.hnsw.tmp"))
	assert.NoFileExists(t, filepath.Join(dir, "MANIFEST.tmp"))
	assert.FileExists(t, filepath.Join(segDir, "0001.ndb"))
}
