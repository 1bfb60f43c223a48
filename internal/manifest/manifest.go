// Package manifest tracks a collection's durable state: its active
// segments, configuration, last-applied WAL sequence number, and HNSW
// index bookkeeping. Updates are atomic via write-temp + fsync + rename.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/xDarkicex/ndb/internal/errs"
)

// FileName is the conventional manifest file name within a collection
// directory.
const FileName = "MANIFEST"

// CurrentVersion is the manifest format version this package writes and
// expects to read.
const CurrentVersion = 1

// Durability selects how aggressively writes are flushed to disk.
type Durability int

const (
	// Buffered acknowledges writes once they reach the OS page cache.
	Buffered Durability = iota
	// FsyncEachBatch acknowledges writes only after fsync completes.
	FsyncEachBatch
)

func (d Durability) String() string {
	if d == FsyncEachBatch {
		return "fsync_each_batch"
	}
	return "buffered"
}

// MarshalJSON renders Durability as its string form.
func (d Durability) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses Durability from its string form.
func (d *Durability) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "fsync_each_batch":
		*d = FsyncEachBatch
	default:
		*d = Buffered
	}
	return nil
}

// Config is a collection's immutable-after-creation configuration.
type Config struct {
	Dimension  int        `json:"dim"`
	Durability Durability `json:"durability"`
}

// NewConfig creates a Config with default (Buffered) durability.
func NewConfig(dimension int) Config {
	return Config{Dimension: dimension, Durability: Buffered}
}

// WithDurability returns a copy of c with durability set.
func (c Config) WithDurability(d Durability) Config {
	c.Durability = d
	return c
}

// SegmentEntry records one active segment's file name, document count,
// and internal-id range.
type SegmentEntry struct {
	Filename    string `json:"filename"`
	DocCount    uint64 `json:"doc_count"`
	IDRangeLow  uint32 `json:"id_range_low"`
	IDRangeHigh uint32 `json:"id_range_high"`
}

// Manifest is the full on-disk state of one collection.
type Manifest struct {
	Config          Config         `json:"config"`
	Segments        []SegmentEntry `json:"segments"`
	LastWALSeq      uint64         `json:"last_wal_seq"`
	Version         int            `json:"version"`
	IndexFile       string         `json:"index_file,omitempty"`
	IndexGeneration uint32         `json:"index_generation"`
}

// New creates an empty manifest for a freshly created collection.
func New(config Config) *Manifest {
	return &Manifest{Config: config, Version: CurrentVersion}
}

// Load reads and parses the manifest at path. Returns (nil, nil) if the
// file does not exist.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.IO(path, "failed to read manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Corruption(path, 0, "invalid manifest JSON: "+err.Error())
	}
	if m.Version != CurrentVersion {
		return nil, errs.Corruption(path, 0, "unsupported manifest version")
	}
	return &m, nil
}

// Save serializes m to path atomically: written to a temp file in the
// same directory, fsynced, then renamed into place.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errs.Serialization("failed to marshal manifest: " + err.Error())
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errs.IO(path, "failed to atomically write manifest", err)
	}
	return nil
}

// AddSegment appends entry to the segment list.
func (m *Manifest) AddSegment(entry SegmentEntry) {
	m.Segments = append(m.Segments, entry)
}

// RemoveSegments drops every segment entry whose filename is in
// filenames.
func (m *Manifest) RemoveSegments(filenames []string) {
	drop := make(map[string]struct{}, len(filenames))
	for _, f := range filenames {
		drop[f] = struct{}{}
	}
	kept := m.Segments[:0]
	for _, s := range m.Segments {
		if _, ok := drop[s.Filename]; !ok {
			kept = append(kept, s)
		}
	}
	m.Segments = kept
}

// SegmentFilenames returns the filenames of every active segment.
func (m *Manifest) SegmentFilenames() []string {
	out := make([]string, len(m.Segments))
	for i, s := range m.Segments {
		out[i] = s.Filename
	}
	return out
}

// TotalDocCount sums doc_count across all active segments.
func (m *Manifest) TotalDocCount() uint64 {
	var total uint64
	for _, s := range m.Segments {
		total += s.DocCount
	}
	return total
}

// IncrementIndexGeneration bumps the HNSW index generation counter,
// called after a successful rebuild.
func (m *Manifest) IncrementIndexGeneration() {
	m.IndexGeneration++
}

// Manager owns a manifest and its on-disk path, serializing every
// mutation through Update so callers can't forget to persist a change.
type Manager struct {
	path     string
	manifest *Manifest
}

// Open loads the manifest at path, or creates one from defaultConfig if
// absent. Returns a collection-not-found error if the manifest is
// missing and no defaultConfig was supplied.
func Open(path string, defaultConfig *Config) (*Manager, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if defaultConfig == nil {
			return nil, errs.CollectionNotFound(path)
		}
		m = New(*defaultConfig)
	}
	return &Manager{path: path, manifest: m}, nil
}

// Manifest returns the current in-memory manifest state.
func (mgr *Manager) Manifest() *Manifest { return mgr.manifest }

// Path returns the manifest's on-disk path.
func (mgr *Manager) Path() string { return mgr.path }

// LastWALSeq returns the last WAL sequence applied, per the manifest.
func (mgr *Manager) LastWALSeq() uint64 { return mgr.manifest.LastWALSeq }

// Save persists the current manifest state atomically.
func (mgr *Manager) Save() error {
	return mgr.manifest.Save(mgr.path)
}

// Update applies f to the manifest and saves the result atomically. If
// the save fails, the in-memory manifest retains the mutation (matching
// the teacher's closure-then-save sequencing); callers should treat a
// failed Update as leaving manifest state undefined and retry or abort.
func (mgr *Manager) Update(f func(*Manifest)) error {
	f(mgr.manifest)
	return mgr.Save()
}

// EnsureDir creates the collection directory if it doesn't exist.
func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.IO(path, "failed to create collection directory", err)
	}
	return nil
}
