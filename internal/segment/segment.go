// Package segment implements the immutable, memory-mapped on-disk segment
// format: a 64-byte header followed by a 64-byte-aligned vector region, an
// id-mapping region, and a payload region, checksummed with BLAKE3.
package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"lukechampine.com/blake3"

	"github.com/xDarkicex/ndb/internal/errs"
	"github.com/xDarkicex/ndb/internal/idmap"
)

// Magic identifies a segment file.
var Magic = [4]byte{'n', 'D', 'B', 0}

const (
	// Version is the current segment format version.
	Version = uint16(1)
	// HeaderSize is the fixed, aligned header length in bytes.
	HeaderSize = 64
	// Alignment is the byte boundary the vector region starts on.
	Alignment = 64
)

// Header describes the layout of a segment file.
type Header struct {
	Version         uint16
	Dimension       uint32
	DocCount        uint64
	VectorOffset    uint64
	IDMappingOffset uint64
	PayloadOffset   uint64
	Checksum        uint64
}

func (h Header) encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimension)
	binary.LittleEndian.PutUint64(buf[12:20], h.DocCount)
	binary.LittleEndian.PutUint64(buf[20:28], h.VectorOffset)
	binary.LittleEndian.PutUint64(buf[28:36], h.IDMappingOffset)
	binary.LittleEndian.PutUint64(buf[36:44], h.PayloadOffset)
	binary.LittleEndian.PutUint64(buf[44:52], h.Checksum)
	return buf
}

func decodeHeader(path string, buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, errs.Corruption(path, 0, "header shorter than 64 bytes")
	}
	if !bytes.Equal(buf[0:4], Magic[:]) {
		return h, errs.Corruption(path, 0, "bad magic")
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != Version {
		return h, errs.Corruption(path, 4, "unsupported segment version")
	}
	h.Dimension = binary.LittleEndian.Uint32(buf[8:12])
	h.DocCount = binary.LittleEndian.Uint64(buf[12:20])
	h.VectorOffset = binary.LittleEndian.Uint64(buf[20:28])
	h.IDMappingOffset = binary.LittleEndian.Uint64(buf[28:36])
	h.PayloadOffset = binary.LittleEndian.Uint64(buf[36:44])
	h.Checksum = binary.LittleEndian.Uint64(buf[44:52])
	return h, nil
}

// checksum computes the truncated-to-64-bit BLAKE3 hash of body, matching
// the convention: little-endian interpretation of the first 8 hash bytes.
func checksum(body []byte) uint64 {
	sum := blake3.Sum256(body)
	return binary.LittleEndian.Uint64(sum[:8])
}

// Document is a single record to be stored in a segment.
type Document struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

func alignUp(v, alignment int) int {
	return (v + alignment - 1) &^ (alignment - 1)
}

// Builder accumulates documents and writes them out as a segment file.
type Builder struct {
	dimension int
	documents []Document
	ids       *idmap.Map
}

// NewBuilder creates a Builder for vectors of the given dimension.
func NewBuilder(dimension int) *Builder {
	return &Builder{dimension: dimension, ids: idmap.New()}
}

// Add appends doc to the builder, assigning it the next internal id.
// Returns a wrong-dimension error if doc.Vector doesn't match the builder's
// dimension.
func (b *Builder) Add(doc Document) error {
	if len(doc.Vector) != b.dimension {
		return errs.WrongDimension(b.dimension, len(doc.Vector))
	}
	b.ids.Insert(doc.ID)
	b.documents = append(b.documents, doc)
	return nil
}

// Len returns the number of documents added so far.
func (b *Builder) Len() int { return len(b.documents) }

// IsEmpty reports whether no documents have been added.
func (b *Builder) IsEmpty() bool { return len(b.documents) == 0 }

// Build serializes the accumulated documents to path, fsyncing before
// returning. Refuses to write an empty segment.
func (b *Builder) Build(path string) error {
	if b.IsEmpty() {
		return errs.InvalidArgument("documents", "cannot build empty segment")
	}

	vectorOffset := alignUp(HeaderSize, Alignment)

	vectorData := make([]byte, 0, len(b.documents)*b.dimension*4)
	for _, doc := range b.documents {
		for _, v := range doc.Vector {
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], float32bits(v))
			vectorData = append(vectorData, tmp[:]...)
		}
	}

	idBytes, err := encodeIDEntries(b.ids.ToPairs())
	if err != nil {
		return errs.Serialization("failed to encode id mapping: " + err.Error())
	}
	idMappingOffset := uint64(vectorOffset) + uint64(len(vectorData))

	payloadEntries := make([]payloadEntry, 0, len(b.documents))
	for _, doc := range b.documents {
		internal, _ := b.ids.Internal(doc.ID)
		var raw []byte
		if doc.Payload != nil {
			raw, err = json.Marshal(doc.Payload)
			if err != nil {
				return errs.Serialization("failed to marshal payload: " + err.Error())
			}
		}
		payloadEntries = append(payloadEntries, payloadEntry{internalID: internal, payload: raw})
	}
	payloadBytes := encodePayloadEntries(payloadEntries)
	payloadOffset := idMappingOffset + uint64(len(idBytes))

	body := make([]byte, 0, (vectorOffset-HeaderSize)+len(vectorData)+len(idBytes)+len(payloadBytes))
	body = append(body, make([]byte, vectorOffset-HeaderSize)...)
	body = append(body, vectorData...)
	body = append(body, idBytes...)
	body = append(body, payloadBytes...)

	sum := checksum(body)

	header := Header{
		Version:         Version,
		Dimension:       uint32(b.dimension),
		DocCount:        uint64(len(b.documents)),
		VectorOffset:    uint64(vectorOffset),
		IDMappingOffset: idMappingOffset,
		PayloadOffset:   payloadOffset,
		Checksum:        sum,
	}
	headerBytes := header.encode()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.IO(path, "failed to create segment directory", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.IO(path, "failed to create segment file", err)
	}
	defer f.Close()

	if _, err := f.Write(headerBytes[:]); err != nil {
		return errs.IO(path, "failed to write segment header", err)
	}
	if _, err := f.Write(body); err != nil {
		return errs.IO(path, "failed to write segment body", err)
	}
	if err := f.Sync(); err != nil {
		return errs.IO(path, "failed to fsync segment file", err)
	}
	return nil
}

// Segment is an immutable, memory-mapped, checksum-verified vector segment.
// It is safe for concurrent read access from multiple goroutines.
type Segment struct {
	path   string
	header Header
	data   mmap.MMap
	file   *os.File

	ids      *idmap.Map
	payloads map[uint32][]byte
}

// Open memory-maps the segment file at path, validates its header and
// checksum, and decodes its id-mapping and payload regions.
func Open(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO(path, "failed to open segment file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errs.IO(path, "failed to stat segment file", err)
	}
	if info.Size() < HeaderSize {
		f.Close()
		return nil, errs.Corruption(path, 0, "file shorter than header")
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errs.IO(path, "failed to mmap segment", err)
	}

	header, err := decodeHeader(path, data[:HeaderSize])
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}

	body := data[HeaderSize:]
	got := checksum(body)
	if got != header.Checksum {
		data.Unmap()
		f.Close()
		return nil, errs.ChecksumMismatch(path, header.Checksum, got)
	}

	idData := data[header.IDMappingOffset:header.PayloadOffset]
	pairs, err := decodeIDEntries(idData)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, errs.Serialization("failed to decode id mapping: " + err.Error())
	}
	ids, err := idmap.FromPairs(pairs)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}

	payloadData := data[header.PayloadOffset:]
	entries, err := decodePayloadEntries(payloadData)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, errs.Serialization("failed to decode payloads: " + err.Error())
	}
	payloads := make(map[uint32][]byte, len(entries))
	for _, e := range entries {
		if e.payload != nil {
			payloads[e.internalID] = e.payload
		}
	}

	return &Segment{
		path:     path,
		header:   header,
		data:     data,
		file:     f,
		ids:      ids,
		payloads: payloads,
	}, nil
}

// Close unmaps the segment and closes its underlying file handle.
func (s *Segment) Close() error {
	if err := s.data.Unmap(); err != nil {
		return errs.IO(s.path, "failed to unmap segment", err)
	}
	if err := s.file.Close(); err != nil {
		return errs.IO(s.path, "failed to close segment file", err)
	}
	return nil
}

// Path returns the segment's file path.
func (s *Segment) Path() string { return s.path }

// Header returns a copy of the segment header.
func (s *Segment) Header() Header { return s.header }

// Dimension returns the vector dimension stored in this segment.
func (s *Segment) Dimension() int { return int(s.header.Dimension) }

// DocCount returns the number of documents stored in this segment.
func (s *Segment) DocCount() int { return int(s.header.DocCount) }

// Vector returns the vector for internalID, decoded from the mapped
// byte region into a newly allocated slice.
func (s *Segment) Vector(internalID uint32) ([]float32, bool) {
	if uint64(internalID) >= s.header.DocCount {
		return nil, false
	}
	dim := s.Dimension()
	start := int(s.header.VectorOffset) + int(internalID)*dim*4
	raw := s.data[start : start+dim*4]
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		out[i] = float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
	}
	return out, true
}

// ExternalID returns the external document id mapped to internalID.
func (s *Segment) ExternalID(internalID uint32) (string, bool) {
	return s.ids.External(internalID)
}

// InternalID returns the internal id mapped to an external document id.
func (s *Segment) InternalID(externalID string) (uint32, bool) {
	return s.ids.Internal(externalID)
}

// Payload returns the decoded JSON payload for internalID, if it has one.
func (s *Segment) Payload(internalID uint32) (map[string]any, bool) {
	raw, ok := s.payloads[internalID]
	if !ok {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Entry is a single (internal id, external id, vector) record yielded by
// All.
type Entry struct {
	InternalID uint32
	ExternalID string
	Vector     []float32
}

// All returns every document stored in the segment, in internal-id order.
func (s *Segment) All() []Entry {
	out := make([]Entry, 0, s.DocCount())
	for i := uint32(0); i < uint32(s.DocCount()); i++ {
		ext, ok := s.ExternalID(i)
		if !ok {
			continue
		}
		vec, ok := s.Vector(i)
		if !ok {
			continue
		}
		out = append(out, Entry{InternalID: i, ExternalID: ext, Vector: vec})
	}
	return out
}
