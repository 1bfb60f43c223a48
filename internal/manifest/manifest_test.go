package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	m := New(NewConfig(768))
	m.AddSegment(SegmentEntry{Filename: "0001.ndb", DocCount: 100, IDRangeLow: 0, IDRangeHigh: 100})
	m.LastWALSeq = 42

	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 768, loaded.Config.Dimension)
	require.Len(t, loaded.Segments, 1)
	assert.Equal(t, "0001.ndb", loaded.Segments[0].Filename)
	assert.Equal(t, uint64(42), loaded.LastWALSeq)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	loaded, err := Load(filepath.Join(dir, "NONEXISTENT"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestAtomicUpdateLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	m := New(NewConfig(768))
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	loaded.AddSegment(SegmentEntry{Filename: "0002.ndb", DocCount: 50, IDRangeLow: 100, IDRangeHigh: 150})
	require.NoError(t, loaded.Save(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestManager(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := NewConfig(768)
	mgr, err := Open(path, &cfg)
	require.NoError(t, err)

	err = mgr.Update(func(m *Manifest) {
		m.AddSegment(SegmentEntry{Filename: "0001.ndb", DocCount: 100, IDRangeLow: 0, IDRangeHigh: 100})
		m.LastWALSeq = 10
	})
	require.NoError(t, err)

	mgr2, err := Open(path, nil)
	require.NoError(t, err)
	assert.Len(t, mgr2.Manifest().Segments, 1)
	assert.Equal(t, uint64(10), mgr2.LastWALSeq())
}

func TestManagerOpenMissingWithoutDefaultFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "NONEXISTENT"), nil)
	require.Error(t, err)
}

func TestRemoveSegments(t *testing.T) {
	m := New(NewConfig(768))
	m.AddSegment(SegmentEntry{Filename: "0001.ndb", DocCount: 100})
	m.AddSegment(SegmentEntry{Filename: "0002.ndb", DocCount: 50})

	m.RemoveSegments([]string{"0001.ndb"})

	require.Len(t, m.Segments, 1)
	assert.Equal(t, "0002.ndb", m.Segments[0].Filename)
}

func TestTotalDocCount(t *testing.T) {
	m := New(NewConfig(768))
	m.AddSegment(SegmentEntry{Filename: "0001.ndb", DocCount: 100})
	m.AddSegment(SegmentEntry{Filename: "0002.ndb", DocCount: 50})
	assert.Equal(t, uint64(150), m.TotalDocCount())
}

func TestDurabilityJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := NewConfig(4).WithDurability(FsyncEachBatch)
	m := New(cfg)
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FsyncEachBatch, loaded.Config.Durability)
}
