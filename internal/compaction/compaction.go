// Package compaction merges a collection's segments into one, dropping
// tombstoned documents, optionally rebuilding the HNSW index, and
// atomically swapping the manifest to reference the result.
package compaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xDarkicex/ndb/internal/distance"
	"github.com/xDarkicex/ndb/internal/errs"
	"github.com/xDarkicex/ndb/internal/hnsw"
	"github.com/xDarkicex/ndb/internal/manifest"
	"github.com/xDarkicex/ndb/internal/memtable"
	"github.com/xDarkicex/ndb/internal/segment"
)

// IndexIDsFileName is the conventional name of the sidecar file that
// records, in build order, the external ids backing an HNSW index.
// The serialized index blob itself stores only graph topology keyed by
// positional node id, so this list is what lets a node id be resolved
// back to a document after a process restart.
const IndexIDsFileName = "index.ids"

// WriteIndexIDs atomically persists ids, the external id list backing
// an HNSW index, alongside it.
func WriteIndexIDs(collectionPath string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return errs.Serialization("failed to marshal index id list: " + err.Error())
	}
	tmpPath := filepath.Join(collectionPath, IndexIDsFileName+".tmp")
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errs.IO(tmpPath, "failed to write index id list", err)
	}
	finalPath := filepath.Join(collectionPath, IndexIDsFileName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errs.IO(finalPath, "failed to rename index id list", err)
	}
	return nil
}

// ReadIndexIDs loads the external id list persisted by WriteIndexIDs.
// Returns (nil, nil) if no such file exists.
func ReadIndexIDs(collectionPath string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(collectionPath, IndexIDsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO(collectionPath, "failed to read index id list", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errs.Serialization("failed to unmarshal index id list: " + err.Error())
	}
	return ids, nil
}

// Result summarizes one compaction run.
type Result struct {
	DocsBefore     int
	DocsAfter      int
	SegmentsMerged int
	// NewSegment is the final segment's path, empty if the merged set
	// was empty (the collection became empty).
	NewSegment   string
	IndexRebuilt bool
}

// CollectDeletedIDs snapshots every tombstoned external id from mt. The
// caller must collect this before a flush clears the memtable, since a
// flush does not otherwise preserve delete evidence for documents that
// only ever lived in segments.
func CollectDeletedIDs(mt *memtable.Memtable) map[string]struct{} {
	ids := mt.DeletedExternalIDs()
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// MergeSegments walks segments from newest to oldest, keeping the first
// (i.e. newest) version of each external id seen and dropping any id in
// deletedIDs. Segments are assumed ordered oldest-first, matching how a
// collection appends them as it flushes.
func MergeSegments(segments []*segment.Segment, deletedIDs map[string]struct{}) []segment.Document {
	var merged []segment.Document
	seen := make(map[string]struct{})

	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		for _, entry := range seg.All() {
			if _, ok := seen[entry.ExternalID]; ok {
				continue
			}
			seen[entry.ExternalID] = struct{}{}

			if _, deleted := deletedIDs[entry.ExternalID]; deleted {
				continue
			}

			payload, _ := seg.Payload(entry.InternalID)
			merged = append(merged, segment.Document{
				ID:      entry.ExternalID,
				Vector:  entry.Vector,
				Payload: payload,
			})
		}
	}

	return merged
}

// buildHNSWIndex builds a fresh HNSW index over docs under metric and
// the default graph parameters.
func buildHNSWIndex(docs []segment.Document, dim int, metric distance.Metric) (*hnsw.Index, error) {
	if len(docs) == 0 {
		return nil, errs.InvalidArgument("docs", "cannot build index from empty documents")
	}

	builder := hnsw.NewBuilder(dim, metric, hnsw.DefaultParams())
	for _, doc := range docs {
		if _, err := builder.Add(doc.Vector); err != nil {
			return nil, err
		}
	}
	return builder.Build()
}

// NextSegmentNumber returns one past the largest NNNN segment number
// referenced by filenames, so a new segment never collides with a
// still-live one. Shared by flush and compaction.
func NextSegmentNumber(filenames []string) int {
	max := 0
	for _, name := range filenames {
		base := strings.TrimSuffix(filepath.Base(name), ".ndb")
		if n, err := strconv.Atoi(base); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// SegmentFilename renders a segment number as its conventional
// "NNNN.ndb" zero-padded filename.
func SegmentFilename(n int) string {
	return fmt.Sprintf("%04d.ndb", n)
}

// Compact performs the full merge-dedupe-rebuild cycle described by the
// collection's compaction contract:
//  1. merge segments, dropping deletedIDs and older duplicate versions;
//  2. if nothing survives, clear the manifest's segments and index and
//     return early;
//  3. otherwise write the merged segment to a temp file, optionally
//     rebuild the HNSW index to its own temp file, then rename both
//     into place and update the manifest atomically;
//  4. delete now-unreferenced old segment files.
//
// mgr's manifest is mutated and saved in place; segments must be the
// full current segment list in oldest-first order.
func Compact(
	segments []*segment.Segment,
	deletedIDs map[string]struct{},
	dim int,
	metric distance.Metric,
	collectionPath string,
	mgr *manifest.Manager,
	rebuildIndex bool,
) (Result, error) {
	segmentsDir := filepath.Join(collectionPath, "segments")

	docsBefore := 0
	for _, s := range segments {
		docsBefore += s.DocCount()
	}

	merged := MergeSegments(segments, deletedIDs)

	m := mgr.Manifest()
	oldFilenames := m.SegmentFilenames()

	if len(merged) == 0 {
		os.Remove(filepath.Join(collectionPath, "index.hnsw"))
		os.Remove(filepath.Join(collectionPath, IndexIDsFileName))
		if err := mgr.Update(func(m *manifest.Manifest) {
			m.RemoveSegments(oldFilenames)
			m.IndexFile = ""
			m.LastWALSeq = 0
		}); err != nil {
			return Result{}, err
		}
		return Result{
			DocsBefore:     docsBefore,
			DocsAfter:      0,
			SegmentsMerged: len(segments),
		}, nil
	}

	builder := segment.NewBuilder(dim)
	for _, doc := range merged {
		if err := builder.Add(doc); err != nil {
			return Result{}, err
		}
	}

	tempSegmentPath := filepath.Join(segmentsDir, "compact.ndb.tmp")
	if err := builder.Build(tempSegmentPath); err != nil {
		return Result{}, err
	}

	indexRebuilt := false
	if rebuildIndex {
		index, err := buildHNSWIndex(merged, dim, metric)
		if err != nil {
			os.Remove(tempSegmentPath)
			return Result{}, err
		}

		tempIndexPath := filepath.Join(collectionPath, "index.hnsw.tmp")
		if err := os.WriteFile(tempIndexPath, index.ToBytes(), 0o644); err != nil {
			os.Remove(tempSegmentPath)
			return Result{}, errs.IO(tempIndexPath, "failed to write HNSW index", err)
		}

		indexPath := filepath.Join(collectionPath, "index.hnsw")
		if err := os.Rename(tempIndexPath, indexPath); err != nil {
			os.Remove(tempSegmentPath)
			return Result{}, errs.IO(indexPath, "failed to rename HNSW index", err)
		}

		ids := make([]string, len(merged))
		for i, doc := range merged {
			ids[i] = doc.ID
		}
		if err := WriteIndexIDs(collectionPath, ids); err != nil {
			os.Remove(tempSegmentPath)
			return Result{}, err
		}
		indexRebuilt = true
	}

	finalNumber := NextSegmentNumber(oldFilenames)
	finalFilename := SegmentFilename(finalNumber)
	finalSegmentPath := filepath.Join(segmentsDir, finalFilename)
	if err := os.Rename(tempSegmentPath, finalSegmentPath); err != nil {
		return Result{}, errs.IO(finalSegmentPath, "failed to rename compacted segment", err)
	}

	if err := mgr.Update(func(m *manifest.Manifest) {
		m.RemoveSegments(oldFilenames)
		m.AddSegment(manifest.SegmentEntry{
			Filename:    finalFilename,
			DocCount:    uint64(len(merged)),
			IDRangeLow:  0,
			IDRangeHigh: uint32(len(merged)),
		})
		m.LastWALSeq = 0
		if rebuildIndex {
			m.IndexFile = "index.hnsw"
			m.IncrementIndexGeneration()
		}
	}); err != nil {
		return Result{}, err
	}

	for _, filename := range oldFilenames {
		if filename == finalFilename {
			continue
		}
		oldPath := filepath.Join(segmentsDir, filename)
		os.Remove(oldPath)
	}

	return Result{
		DocsBefore:     docsBefore,
		DocsAfter:      len(merged),
		SegmentsMerged: len(segments),
		NewSegment:     finalSegmentPath,
		IndexRebuilt:   indexRebuilt,
	}, nil
}

// CleanupTempFiles removes orphaned *.tmp artifacts left behind by an
// interrupted compaction: segments/*.tmp, index.hnsw.tmp, index.ids.tmp,
// and MANIFEST.tmp. Intended to run once when a collection is opened.
func CleanupTempFiles(collectionPath string) (int, error) {
	cleaned := 0

	segmentsDir := filepath.Join(collectionPath, "segments")
	entries, err := os.ReadDir(segmentsDir)
	if err != nil && !os.IsNotExist(err) {
		return cleaned, errs.IO(segmentsDir, "failed to list segments directory", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			if err := os.Remove(filepath.Join(segmentsDir, entry.Name())); err == nil {
				cleaned++
			}
		}
	}

	indexTmp := filepath.Join(collectionPath, "index.hnsw.tmp")
	if _, err := os.Stat(indexTmp); err == nil {
		if err := os.Remove(indexTmp); err == nil {
			cleaned++
		}
	}

	indexIDsTmp := filepath.Join(collectionPath, IndexIDsFileName+".tmp")
	if _, err := os.Stat(indexIDsTmp); err == nil {
		if err := os.Remove(indexIDsTmp); err == nil {
			cleaned++
		}
	}

	manifestTmp := filepath.Join(collectionPath, "MANIFEST.tmp")
	if _, err := os.Stat(manifestTmp); err == nil {
		if err := os.Remove(manifestTmp); err == nil {
			cleaned++
		}
	}

	return cleaned, nil
}
