package ndb

import (
	"github.com/xDarkicex/ndb/internal/segment"
	"github.com/xDarkicex/ndb/internal/wal"
)

// Document is a single record: an externally supplied id, a
// fixed-length vector matching the collection's declared dimension,
// and an optional JSON-compatible payload.
type Document struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

func (d Document) toSegmentDocument() segment.Document {
	return segment.Document{ID: d.ID, Vector: d.Vector, Payload: d.Payload}
}

func (d Document) toInsertRecord() wal.Record {
	return wal.InsertRecord(d.ID, d.Vector, d.Payload)
}
