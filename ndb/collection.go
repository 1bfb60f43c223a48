// Package ndb is an embedded, single-process vector database: a
// log-structured storage engine over one collection of fixed-dimension
// vectors, backed by a checksummed write-ahead log, an in-memory
// memtable, immutable memory-mapped segments, and an optional HNSW
// approximate index, with an exact brute-force fallback and a recursive
// metadata filter language.
package ndb

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xDarkicex/ndb/internal/compaction"
	"github.com/xDarkicex/ndb/internal/errs"
	"github.com/xDarkicex/ndb/internal/hnsw"
	"github.com/xDarkicex/ndb/internal/lock"
	"github.com/xDarkicex/ndb/internal/manifest"
	"github.com/xDarkicex/ndb/internal/memtable"
	"github.com/xDarkicex/ndb/internal/obs"
	"github.com/xDarkicex/ndb/internal/segment"
	"github.com/xDarkicex/ndb/internal/wal"
)

const segmentsDirName = "segments"

// indexState bundles a loaded HNSW index with the external ids used to
// build it, in build order. The index blob itself stores only graph
// topology keyed by positional node id; ids[nodeID] is what lets a
// search result be resolved back to a document.
type indexState struct {
	index *hnsw.Index
	ids   []string
}

// Collection is a single collection of vectors: the storage engine
// described by the package doc, bound together with a file lock,
// recovery-on-open, and flush/compaction triggers.
type Collection struct {
	path       string
	dimension  int
	durability Durability
	metric     Metric

	lock *lock.CollectionLock

	manifestMu  sync.Mutex
	manifestMgr *manifest.Manager

	memtableMu sync.RWMutex
	memtable   *memtable.Memtable

	segments atomic.Pointer[[]*segment.Segment]

	walMu sync.Mutex
	wal   *wal.WAL

	indexMu sync.Mutex
	index   atomic.Pointer[indexState]

	logger  *zap.SugaredLogger
	metrics *obs.Metrics

	getCache *lru.Cache[string, Document]

	closed atomic.Bool
}

// Open opens the collection directory at path, creating it (and an
// empty manifest and WAL) if it doesn't already exist. WithDimension
// is required for a fresh collection; it is ignored (and checked for
// consistency) when the collection already exists.
//
// On open: an advisory exclusive lock is acquired (a held lock
// surfaces as a collection-locked error); stray .tmp files from an
// interrupted compaction are removed; the manifest and every segment
// it names are opened; the WAL is opened (scanning and truncating any
// corrupt tail); and any WAL records past the manifest's last applied
// sequence are replayed into a fresh memtable.
func Open(path string, opts ...Option) (*Collection, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := os.MkdirAll(filepath.Join(path, segmentsDirName), 0o755); err != nil {
		return nil, errs.IO(path, "failed to create collection directory", err)
	}

	name := filepath.Base(path)
	collLock, err := lock.Acquire(path, name)
	if err != nil {
		return nil, err
	}

	c, err := open(path, cfg, collLock)
	if err != nil {
		collLock.Release()
		return nil, err
	}
	return c, nil
}

// IsLocked reports whether another process currently holds the
// collection lock at path, without acquiring it.
func IsLocked(path string) (bool, error) {
	return lock.IsLocked(path)
}

func open(path string, cfg *config, collLock *lock.CollectionLock) (*Collection, error) {
	if _, err := compaction.CleanupTempFiles(path); err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(path, manifest.FileName)
	var defaultCfg *manifest.Config
	if cfg.dimension > 0 {
		mc := manifest.NewConfig(cfg.dimension).WithDurability(cfg.durability)
		defaultCfg = &mc
	}
	mgr, err := manifest.Open(manifestPath, defaultCfg)
	if err != nil {
		return nil, err
	}

	dimension := mgr.Manifest().Config.Dimension
	if cfg.dimension > 0 && cfg.dimension != dimension {
		return nil, errs.WrongDimension(dimension, cfg.dimension)
	}

	segDir := filepath.Join(path, segmentsDirName)
	segs := make([]*segment.Segment, 0, len(mgr.Manifest().Segments))
	for _, name := range mgr.Manifest().SegmentFilenames() {
		seg, err := segment.Open(filepath.Join(segDir, name))
		if err != nil {
			for _, s := range segs {
				s.Close()
			}
			return nil, err
		}
		segs = append(segs, seg)
	}

	walPath := filepath.Join(path, wal.FileName)
	w, err := wal.Open(walPath)
	if err != nil {
		for _, s := range segs {
			s.Close()
		}
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = obs.NewNopLogger()
	}
	metrics := cfg.metrics
	if metrics == nil {
		metrics = obs.NewMetrics()
	}

	var getCache *lru.Cache[string, Document]
	if cfg.getCacheSize > 0 {
		getCache, err = lru.New[string, Document](cfg.getCacheSize)
		if err != nil {
			return nil, errs.InvalidArgument("get_cache_size", err.Error())
		}
	}

	c := &Collection{
		path:        path,
		dimension:   dimension,
		durability:  mgr.Manifest().Config.Durability,
		metric:      cfg.metric,
		lock:        collLock,
		manifestMgr: mgr,
		memtable:    memtable.New(dimension),
		wal:         w,
		logger:      logger,
		metrics:     metrics,
		getCache:    getCache,
	}
	c.segments.Store(&segs)
	c.index.Store(loadIndexState(path, mgr.Manifest()))

	if err := c.recover(); err != nil {
		return nil, err
	}

	logger.Infow("collection opened", "path", path, "dimension", dimension,
		"segments", len(segs), "has_index", c.HasIndex())

	return c, nil
}

func loadIndexState(path string, m *manifest.Manifest) *indexState {
	if m.IndexFile == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, m.IndexFile))
	if err != nil {
		return nil
	}
	idx, err := hnsw.FromBytes(data)
	if err != nil {
		return nil
	}
	ids, err := compaction.ReadIndexIDs(path)
	if err != nil || ids == nil {
		return nil
	}
	return &indexState{index: idx, ids: ids}
}

// recover replays WAL records past the manifest's last applied
// sequence into the fresh memtable, then updates the manifest if the
// WAL's true tail is further along than what was last persisted.
func (c *Collection) recover() error {
	lastSeq := c.manifestMgr.LastWALSeq()

	lastApplied, err := c.wal.Replay(lastSeq+1, c.dimension, func(_ uint64, rec wal.Record) error {
		switch rec.Op {
		case wal.OpInsert:
			_, err := c.memtable.Insert(segment.Document{ID: rec.ID, Vector: rec.Vector, Payload: rec.Payload})
			return err
		case wal.OpDelete:
			c.memtable.Delete(rec.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if lastApplied > lastSeq {
		return c.manifestMgr.Update(func(m *manifest.Manifest) {
			m.LastWALSeq = lastApplied
		})
	}
	return nil
}

// Path returns the collection's directory.
func (c *Collection) Path() string { return c.path }

// Dimension returns the collection's declared vector dimension.
func (c *Collection) Dimension() int { return c.dimension }

// HasIndex reports whether an HNSW index is currently loaded.
func (c *Collection) HasIndex() bool {
	st := c.index.Load()
	return st != nil && st.index != nil
}

func (c *Collection) checkOpen() error {
	if c.closed.Load() {
		return ErrCollectionClosed
	}
	return nil
}

func (c *Collection) loadSegments() []*segment.Segment {
	p := c.segments.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (c *Collection) invalidateCache(id string) {
	if c.getCache != nil {
		c.getCache.Remove(id)
	}
}

// Insert adds or replaces doc. If a document with the same id already
// exists, it is replaced: the delete is implicit (re-inserting a
// tombstoned id clears the tombstone). The operation is appended to
// the WAL before it is visible in the memtable. If the WAL now exceeds
// the flush threshold, a flush is triggered synchronously before
// Insert returns.
func (c *Collection) Insert(doc Document) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(doc.Vector) != c.dimension {
		return errs.WrongDimension(c.dimension, len(doc.Vector))
	}

	record := doc.toInsertRecord()

	c.walMu.Lock()
	var err error
	if c.durability == FsyncEachBatch {
		_, err = c.wal.AppendAndSync(record, c.dimension)
	} else {
		_, err = c.wal.Append(record, c.dimension)
	}
	c.walMu.Unlock()
	if err != nil {
		return err
	}

	c.memtableMu.Lock()
	_, err = c.memtable.Insert(doc.toSegmentDocument())
	c.memtableMu.Unlock()
	if err != nil {
		return err
	}

	c.invalidateCache(doc.ID)
	c.metrics.Inserts.Inc()

	return c.checkFlush()
}

// InsertBatch inserts docs as a single logical unit: every document's
// dimension is validated up front, the estimated serialized size is
// checked against the WAL's batch cap, then each document is appended
// as its own WAL record with a single trailing sync (if durable)
// before any are inserted into the memtable.
func (c *Collection) InsertBatch(docs []Document) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	estimatedSize := 0
	for _, doc := range docs {
		if len(doc.Vector) != c.dimension {
			return errs.WrongDimension(c.dimension, len(doc.Vector))
		}
		estimatedSize += len(doc.Vector)*4 + len(doc.ID)
	}
	if estimatedSize > wal.MaxBatchSize {
		return errs.InvalidArgument("batch", "batch size exceeds maximum")
	}

	c.walMu.Lock()
	for _, doc := range docs {
		if _, err := c.wal.Append(doc.toInsertRecord(), c.dimension); err != nil {
			c.walMu.Unlock()
			return err
		}
	}
	var syncErr error
	if c.durability == FsyncEachBatch {
		syncErr = c.wal.Sync()
	}
	c.walMu.Unlock()
	if syncErr != nil {
		return syncErr
	}

	c.memtableMu.Lock()
	for _, doc := range docs {
		if _, err := c.memtable.Insert(doc.toSegmentDocument()); err != nil {
			c.memtableMu.Unlock()
			return err
		}
	}
	c.memtableMu.Unlock()

	for _, doc := range docs {
		c.invalidateCache(doc.ID)
	}
	c.metrics.Inserts.Add(float64(len(docs)))

	return c.checkFlush()
}

// Get looks up id, checking the memtable first and then every segment
// newest to oldest; the first hit wins. A tombstoned memtable entry
// suppresses the result even if an older segment still carries it.
func (c *Collection) Get(id string) (*Document, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.metrics.Gets.Inc()

	if c.getCache != nil {
		if doc, ok := c.getCache.Get(id); ok {
			return &doc, nil
		}
	}

	doc, ok := c.lookup(id)
	if !ok {
		return nil, nil
	}
	c.cachePut(id, doc)
	return &doc, nil
}

// lookup resolves id to its current document, checking the memtable
// first (respecting tombstones) and then every segment newest to
// oldest. Used by both Get and the HNSW search path's vector
// resolution, so a document deleted or superseded since an index was
// built is consistently reported as absent.
func (c *Collection) lookup(id string) (Document, bool) {
	c.memtableMu.RLock()
	if doc, vec, ok := c.memtable.GetByExternal(id); ok {
		vecCopy := make([]float32, len(vec))
		copy(vecCopy, vec)
		c.memtableMu.RUnlock()
		return Document{ID: doc.ExternalID, Vector: vecCopy, Payload: doc.Payload}, true
	}
	if c.memtable.IsDeletedByExternal(id) {
		c.memtableMu.RUnlock()
		return Document{}, false
	}
	c.memtableMu.RUnlock()

	segs := c.loadSegments()
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		internalID, ok := seg.InternalID(id)
		if !ok {
			continue
		}
		vec, _ := seg.Vector(internalID)
		payload, _ := seg.Payload(internalID)
		return Document{ID: id, Vector: vec, Payload: payload}, true
	}

	return Document{}, false
}

func (c *Collection) cachePut(id string, doc Document) {
	if c.getCache != nil {
		c.getCache.Add(id, doc)
	}
}

// Delete tombstones id: a delete record is appended to the WAL, then
// the id is marked deleted in the memtable. Reports whether the
// document was materially present in the memtable (not whether it
// existed anywhere at all — a document that lives only in a segment
// still returns false, matching the memtable-local tombstone
// contract).
func (c *Collection) Delete(id string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}

	record := wal.DeleteRecord(id)

	c.walMu.Lock()
	var err error
	if c.durability == FsyncEachBatch {
		_, err = c.wal.AppendAndSync(record, 0)
	} else {
		_, err = c.wal.Append(record, 0)
	}
	c.walMu.Unlock()
	if err != nil {
		return false, err
	}

	c.memtableMu.Lock()
	_, existed := c.memtable.Delete(id)
	c.memtableMu.Unlock()

	c.invalidateCache(id)
	c.metrics.Deletes.Inc()

	return existed, nil
}

// Flush atomically replaces the memtable with a fresh empty one,
// builds a new segment from the frozen memtable's active documents,
// publishes it into the segment list, updates the manifest (new
// segment entry, last WAL sequence reset to 0), and truncates the
// WAL. A no-op if the memtable was empty.
func (c *Collection) Flush() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.flush()
}

func (c *Collection) flush() error {
	c.memtableMu.Lock()
	frozen := c.memtable.Freeze()
	c.memtable = memtable.New(c.dimension)
	c.memtableMu.Unlock()

	if frozen.ActiveCount() == 0 {
		return nil
	}

	builder := segment.NewBuilder(c.dimension)
	for _, entry := range frozen.IterActive() {
		if err := builder.Add(segment.Document{ID: entry.ExternalID, Vector: entry.Vector, Payload: entry.Payload}); err != nil {
			return err
		}
	}

	c.manifestMu.Lock()
	defer c.manifestMu.Unlock()

	filenames := c.manifestMgr.Manifest().SegmentFilenames()
	number := compaction.NextSegmentNumber(filenames)
	filename := compaction.SegmentFilename(number)
	segPath := filepath.Join(c.path, segmentsDirName, filename)

	if err := builder.Build(segPath); err != nil {
		return err
	}

	newSegment, err := segment.Open(segPath)
	if err != nil {
		return err
	}

	old := c.loadSegments()
	updated := make([]*segment.Segment, len(old)+1)
	copy(updated, old)
	updated[len(old)] = newSegment
	c.segments.Store(&updated)

	if err := c.manifestMgr.Update(func(m *manifest.Manifest) {
		m.AddSegment(manifest.SegmentEntry{
			Filename:    filename,
			DocCount:    uint64(builder.Len()),
			IDRangeLow:  0,
			IDRangeHigh: uint32(builder.Len()),
		})
		m.LastWALSeq = 0
	}); err != nil {
		return err
	}

	c.walMu.Lock()
	err = c.wal.Reset()
	c.walMu.Unlock()
	if err != nil {
		return err
	}

	c.metrics.Flushes.Inc()
	return nil
}

// checkFlush triggers a flush if the WAL has grown past the flush
// threshold.
func (c *Collection) checkFlush() error {
	c.walMu.Lock()
	size, err := c.wal.FileSize()
	c.walMu.Unlock()
	if err != nil {
		return err
	}
	if size >= wal.FlushThreshold {
		return c.flush()
	}
	return nil
}

// Sync forces the WAL to fsync without flushing the memtable.
func (c *Collection) Sync() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.walMu.Lock()
	defer c.walMu.Unlock()
	return c.wal.Sync()
}

// Compact collects the current tombstone set, flushes the memtable,
// then merges every segment into one, dropping tombstoned and
// superseded documents and rebuilding the HNSW index if one currently
// exists. The new segment and (if rebuilt) index are published, and
// the WAL is reset.
func (c *Collection) Compact() (compaction.Result, error) {
	if err := c.checkOpen(); err != nil {
		return compaction.Result{}, err
	}

	c.memtableMu.RLock()
	deletedIDs := compaction.CollectDeletedIDs(c.memtable)
	c.memtableMu.RUnlock()

	if err := c.flush(); err != nil {
		return compaction.Result{}, err
	}

	segs := c.loadSegments()
	if len(segs) == 0 {
		return compaction.Result{}, nil
	}

	rebuildIndex := c.HasIndex()

	c.manifestMu.Lock()
	result, err := compaction.Compact(segs, deletedIDs, c.dimension, c.metric, c.path, c.manifestMgr, rebuildIndex)
	c.manifestMu.Unlock()
	if err != nil {
		return compaction.Result{}, err
	}

	if result.DocsAfter > 0 {
		newSegment, err := segment.Open(result.NewSegment)
		if err != nil {
			return result, err
		}
		replacement := []*segment.Segment{newSegment}
		c.segments.Store(&replacement)

		if result.IndexRebuilt {
			if st := loadIndexState(c.path, c.manifestMgr.Manifest()); st != nil {
				c.index.Store(st)
			}
		}
	} else {
		empty := []*segment.Segment{}
		c.segments.Store(&empty)
		c.index.Store(nil)
	}

	for _, s := range segs {
		s.Close()
	}

	c.walMu.Lock()
	err = c.wal.Reset()
	c.walMu.Unlock()
	if err != nil {
		return result, err
	}

	c.metrics.Compactions.Inc()
	c.metrics.CompactedDocs.Add(float64(result.DocsAfter))
	c.metrics.DroppedDocs.Add(float64(result.DocsBefore - result.DocsAfter))

	if c.getCache != nil {
		c.getCache.Purge()
	}

	return result, nil
}

// RebuildIndex collects every vector currently in segments and the
// memtable, builds a fresh HNSW index under the collection's default
// metric and default graph parameters, writes it to disk atomically,
// updates the manifest, and swaps it into the live index reference.
func (c *Collection) RebuildIndex() error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	segs := c.loadSegments()
	var docs []segment.Document
	for _, seg := range segs {
		for _, entry := range seg.All() {
			payload, _ := seg.Payload(entry.InternalID)
			docs = append(docs, segment.Document{ID: entry.ExternalID, Vector: entry.Vector, Payload: payload})
		}
	}

	c.memtableMu.RLock()
	for _, entry := range c.memtable.Iter() {
		docs = append(docs, segment.Document{ID: entry.ExternalID, Vector: entry.Vector, Payload: entry.Payload})
	}
	c.memtableMu.RUnlock()

	if len(docs) == 0 {
		return errs.InvalidArgument("collection", "cannot build index from empty collection")
	}

	builder := hnsw.NewBuilder(c.dimension, c.metric, hnsw.DefaultParams())
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if _, err := builder.Add(doc.Vector); err != nil {
			return err
		}
		ids[i] = doc.ID
	}
	idx, err := builder.Build()
	if err != nil {
		return err
	}

	indexPath := filepath.Join(c.path, "index.hnsw")
	tmpPath := indexPath + ".tmp"
	if err := os.WriteFile(tmpPath, idx.ToBytes(), 0o644); err != nil {
		return errs.IO(tmpPath, "failed to write HNSW index", err)
	}
	if err := os.Rename(tmpPath, indexPath); err != nil {
		return errs.IO(indexPath, "failed to rename HNSW index", err)
	}
	if err := compaction.WriteIndexIDs(c.path, ids); err != nil {
		return err
	}

	c.manifestMu.Lock()
	err = c.manifestMgr.Update(func(m *manifest.Manifest) {
		m.IndexFile = "index.hnsw"
		m.IncrementIndexGeneration()
	})
	c.manifestMu.Unlock()
	if err != nil {
		return err
	}

	c.index.Store(&indexState{index: idx, ids: ids})
	c.metrics.IndexRebuilds.Inc()
	return nil
}

// DeleteIndex removes the HNSW index file, clears the manifest's
// reference to it, and drops the in-memory index. Subsequent
// approximate searches fall back to exact search.
func (c *Collection) DeleteIndex() error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	c.indexMu.Lock()
	defer c.indexMu.Unlock()

	c.manifestMu.Lock()
	indexFile := c.manifestMgr.Manifest().IndexFile
	if indexFile != "" {
		indexPath := filepath.Join(c.path, indexFile)
		if _, statErr := os.Stat(indexPath); statErr == nil {
			if err := os.Remove(indexPath); err != nil {
				c.manifestMu.Unlock()
				return errs.IO(indexPath, "failed to delete HNSW index", err)
			}
		}
		os.Remove(filepath.Join(c.path, compaction.IndexIDsFileName))
	}
	err := c.manifestMgr.Update(func(m *manifest.Manifest) {
		m.IndexFile = ""
	})
	c.manifestMu.Unlock()
	if err != nil {
		return err
	}

	c.index.Store(nil)
	return nil
}

// Stats reports the collection's current size.
type Stats struct {
	MemtableDocs     int
	SegmentCount     int
	TotalSegmentDocs int
	HasIndex         bool
	IndexGeneration  uint32
}

// Stats returns a snapshot of the collection's current size.
func (c *Collection) Stats() Stats {
	c.memtableMu.RLock()
	memtableDocs := c.memtable.ActiveCount()
	c.memtableMu.RUnlock()

	segs := c.loadSegments()
	total := 0
	for _, s := range segs {
		total += s.DocCount()
	}

	return Stats{
		MemtableDocs:     memtableDocs,
		SegmentCount:     len(segs),
		TotalSegmentDocs: total,
		HasIndex:         c.HasIndex(),
		IndexGeneration:  c.manifestMgr.Manifest().IndexGeneration,
	}
}

// Close releases the collection's file lock and closes every open
// segment and the WAL. Safe to call more than once. Combines every
// close error encountered via multierr rather than stopping at the
// first.
func (c *Collection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	var err error

	segs := c.loadSegments()
	for _, s := range segs {
		err = multierr.Append(err, s.Close())
	}

	c.walMu.Lock()
	err = multierr.Append(err, c.wal.Close())
	c.walMu.Unlock()

	err = multierr.Append(err, c.lock.Release())

	if c.logger != nil {
		c.logger.Infow("collection closed", "path", c.path)
	}

	return err
}
