// Package memtable implements the mutable, in-memory write buffer: a
// structure-of-arrays vector region for SIMD-friendly scans, a document
// descriptor map for O(1) lookups, and an external-id tombstone set for
// soft deletes that survive past the original insert's memtable.
package memtable

import (
	"sort"
	"sync"

	"github.com/xDarkicex/ndb/internal/errs"
	"github.com/xDarkicex/ndb/internal/idmap"
	"github.com/xDarkicex/ndb/internal/segment"
)

// Doc describes one record held by a Memtable. Its vector lives in the
// memtable's shared SoA buffer at [VectorOffset, VectorOffset+dimension).
type Doc struct {
	InternalID   uint32
	ExternalID   string
	VectorOffset int
	Payload      map[string]any
}

// Memtable is the mutable write buffer a collection inserts into before a
// flush converts it into an immutable segment. Every method takes the
// memtable's own RWMutex; Collection additionally holds a RWMutex around
// its memtable reference so a flush can swap in a fresh one.
type Memtable struct {
	mu sync.RWMutex

	dimension int
	ids       *idmap.Map
	documents map[uint32]*Doc
	vectors   []float32
	deleted   map[string]struct{}

	estimatedSize int
}

// New creates an empty Memtable for vectors of the given dimension.
func New(dimension int) *Memtable {
	return &Memtable{
		dimension: dimension,
		ids:       idmap.New(),
		documents: make(map[uint32]*Doc),
		deleted:   make(map[string]struct{}),
	}
}

// WithCapacity creates an empty Memtable pre-sized for docCapacity
// documents.
func WithCapacity(dimension, docCapacity int) *Memtable {
	return &Memtable{
		dimension: dimension,
		ids:       idmap.WithCapacity(docCapacity),
		documents: make(map[uint32]*Doc, docCapacity),
		vectors:   make([]float32, 0, docCapacity*dimension),
		deleted:   make(map[string]struct{}),
	}
}

// Dimension returns the vector dimension this memtable was created with.
func (m *Memtable) Dimension() int { return m.dimension }

// Len returns the number of documents ever inserted, including ones
// since soft-deleted.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}

// IsEmpty reports whether no documents have ever been inserted.
func (m *Memtable) IsEmpty() bool { return m.Len() == 0 }

// ActiveCount returns the number of documents not currently tombstoned.
func (m *Memtable) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for id := range m.documents {
		if !m.isDeletedLocked(id) {
			count++
		}
	}
	return count
}

// EstimatedSize returns a rough byte-size estimate, used to decide when to
// flush.
func (m *Memtable) EstimatedSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.estimatedSize
}

func (m *Memtable) isDeletedLocked(internalID uint32) bool {
	external, ok := m.ids.External(internalID)
	if !ok {
		return false
	}
	_, deleted := m.deleted[external]
	return deleted
}

// IsDeleted reports whether internalID's document is currently tombstoned.
func (m *Memtable) IsDeleted(internalID uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isDeletedLocked(internalID)
}

// IsDeletedByExternal reports whether externalID is currently tombstoned.
func (m *Memtable) IsDeletedByExternal(externalID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.deleted[externalID]
	return ok
}

// InternalID returns the internal id assigned to externalID, if any.
func (m *Memtable) InternalID(externalID string) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids.Internal(externalID)
}

// Get returns the descriptor and vector for an active document, or
// ok=false if absent or tombstoned.
func (m *Memtable) Get(internalID uint32) (Doc, []float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.isDeletedLocked(internalID) {
		return Doc{}, nil, false
	}
	doc, ok := m.documents[internalID]
	if !ok {
		return Doc{}, nil, false
	}
	vec := m.vectors[doc.VectorOffset : doc.VectorOffset+m.dimension]
	return *doc, vec, true
}

// GetByExternal returns the descriptor and vector for an active document
// looked up by external id.
func (m *Memtable) GetByExternal(externalID string) (Doc, []float32, bool) {
	m.mu.RLock()
	internalID, ok := m.ids.Internal(externalID)
	m.mu.RUnlock()
	if !ok {
		return Doc{}, nil, false
	}
	return m.Get(internalID)
}

// Insert adds or replaces a document, returning its internal id.
// Re-inserting a previously deleted external id clears its tombstone.
func (m *Memtable) Insert(doc segment.Document) (uint32, error) {
	if len(doc.Vector) != m.dimension {
		return 0, errs.WrongDimension(m.dimension, len(doc.Vector))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	internalID := m.ids.Insert(doc.ID)

	offset := len(m.vectors)
	m.vectors = append(m.vectors, doc.Vector...)

	m.estimatedSize += m.dimension*4 + len(doc.ID)

	delete(m.deleted, doc.ID)
	m.documents[internalID] = &Doc{
		InternalID:   internalID,
		ExternalID:   doc.ID,
		VectorOffset: offset,
		Payload:      doc.Payload,
	}

	return internalID, nil
}

// Delete tombstones externalID. The tombstone is recorded even if the
// document is not present in this memtable, so deletes apply across
// segments too. Returns the internal id if the document was present here.
func (m *Memtable) Delete(externalID string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleted[externalID] = struct{}{}

	internalID, ok := m.ids.Internal(externalID)
	if !ok {
		return 0, false
	}
	if _, present := m.documents[internalID]; !present {
		return 0, false
	}
	return internalID, true
}

// DeletedExternalIDs returns a snapshot of every tombstoned external id.
func (m *Memtable) DeletedExternalIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.deleted))
	for id := range m.deleted {
		out = append(out, id)
	}
	return out
}

// Entry is a single (internal id, external id, vector) record yielded by
// Iter.
type Entry struct {
	InternalID uint32
	ExternalID string
	Vector     []float32
	Payload    map[string]any
}

// Iter returns every active (non-tombstoned) document, in internal-id
// order.
func (m *Memtable) Iter() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.documents))
	for internalID, doc := range m.documents {
		if m.isDeletedLocked(internalID) {
			continue
		}
		vec := m.vectors[doc.VectorOffset : doc.VectorOffset+m.dimension]
		out = append(out, Entry{
			InternalID: doc.InternalID,
			ExternalID: doc.ExternalID,
			Vector:     vec,
			Payload:    doc.Payload,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out
}

// Frozen is an immutable snapshot of a Memtable, taken for flushing to a
// segment. The live Memtable can keep accepting writes into a fresh
// buffer while Frozen is converted on another goroutine.
type Frozen struct {
	dimension int
	ids       *idmap.Map
	documents map[uint32]*Doc
	vectors   []float32
	deleted   map[string]struct{}
}

// Freeze takes an immutable snapshot of the memtable's current contents.
// The caller is responsible for swapping in a fresh Memtable afterward;
// Freeze itself does not clear m.
func (m *Memtable) Freeze() *Frozen {
	m.mu.RLock()
	defer m.mu.RUnlock()

	documents := make(map[uint32]*Doc, len(m.documents))
	for id, doc := range m.documents {
		docCopy := *doc
		documents[id] = &docCopy
	}
	deleted := make(map[string]struct{}, len(m.deleted))
	for id := range m.deleted {
		deleted[id] = struct{}{}
	}
	vectors := make([]float32, len(m.vectors))
	copy(vectors, m.vectors)

	return &Frozen{
		dimension: m.dimension,
		ids:       m.ids,
		documents: documents,
		vectors:   vectors,
		deleted:   deleted,
	}
}

// Dimension returns the frozen snapshot's vector dimension.
func (f *Frozen) Dimension() int { return f.dimension }

func (f *Frozen) isDeleted(internalID uint32) bool {
	external, ok := f.ids.External(internalID)
	if !ok {
		return false
	}
	_, deleted := f.deleted[external]
	return deleted
}

// ActiveCount returns the number of non-tombstoned documents in the
// snapshot.
func (f *Frozen) ActiveCount() int {
	count := 0
	for id := range f.documents {
		if !f.isDeleted(id) {
			count++
		}
	}
	return count
}

// IterActive returns every active document in the frozen snapshot.
func (f *Frozen) IterActive() []Entry {
	out := make([]Entry, 0, len(f.documents))
	for internalID, doc := range f.documents {
		if f.isDeleted(internalID) {
			continue
		}
		vec := f.vectors[doc.VectorOffset : doc.VectorOffset+f.dimension]
		out = append(out, Entry{
			InternalID: doc.InternalID,
			ExternalID: doc.ExternalID,
			Vector:     vec,
			Payload:    doc.Payload,
		})
	}
	return out
}
