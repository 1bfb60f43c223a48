// Package idmap provides the bidirectional mapping between externally
// supplied string document ids and the dense uint32 internal ids used by
// the memtable, segments, and the HNSW graph.
package idmap

import "github.com/xDarkicex/ndb/internal/errs"

// Map is a bidirectional string<->uint32 mapping, local to a single
// memtable or segment: a document's internal id in one Map carries no
// relationship to its internal id in another.
type Map struct {
	strToInt map[string]uint32
	intToStr map[uint32]string
	nextID   uint32
}

// New creates an empty Map.
func New() *Map {
	return &Map{
		strToInt: make(map[string]uint32),
		intToStr: make(map[uint32]string),
	}
}

// WithCapacity creates an empty Map pre-sized for capacity entries.
func WithCapacity(capacity int) *Map {
	return &Map{
		strToInt: make(map[string]uint32, capacity),
		intToStr: make(map[uint32]string, capacity),
	}
}

// Insert assigns id an internal id, returning the existing one if id was
// already present.
func (m *Map) Insert(id string) uint32 {
	if internal, ok := m.strToInt[id]; ok {
		return internal
	}
	internal := m.nextID
	m.strToInt[id] = internal
	m.intToStr[internal] = id
	m.nextID++
	return internal
}

// Internal returns the internal id for an external id, if present.
func (m *Map) Internal(id string) (uint32, bool) {
	v, ok := m.strToInt[id]
	return v, ok
}

// External returns the external id for an internal id, if present.
func (m *Map) External(internal uint32) (string, bool) {
	v, ok := m.intToStr[internal]
	return v, ok
}

// ContainsExternal reports whether id has a mapping.
func (m *Map) ContainsExternal(id string) bool {
	_, ok := m.strToInt[id]
	return ok
}

// Remove deletes the mapping for id, returning its former internal id.
func (m *Map) Remove(id string) (uint32, bool) {
	internal, ok := m.strToInt[id]
	if !ok {
		return 0, false
	}
	delete(m.strToInt, id)
	delete(m.intToStr, internal)
	return internal, true
}

// Len returns the number of mappings.
func (m *Map) Len() int { return len(m.strToInt) }

// NextID returns the internal id that would be assigned next.
func (m *Map) NextID() uint32 { return m.nextID }

// Pair is an (internal id, external id) entry, as serialized into a
// segment's id-mapping region.
type Pair struct {
	Internal uint32
	External string
}

// ToPairs returns every mapping as a slice of pairs, suitable for
// serialization to a segment file. Order is unspecified.
func (m *Map) ToPairs() []Pair {
	pairs := make([]Pair, 0, len(m.intToStr))
	for internal, external := range m.intToStr {
		pairs = append(pairs, Pair{Internal: internal, External: external})
	}
	return pairs
}

// FromPairs reconstructs a Map from pairs, failing on a duplicate internal
// or external id. nextID is set to one past the maximum internal id seen.
func FromPairs(pairs []Pair) (*Map, error) {
	m := WithCapacity(len(pairs))
	for _, p := range pairs {
		if _, exists := m.intToStr[p.Internal]; exists {
			return nil, errs.InvalidArgument("id_mapping", "duplicate internal id")
		}
		if _, exists := m.strToInt[p.External]; exists {
			return nil, errs.InvalidArgument("id_mapping", "duplicate external id")
		}
		m.intToStr[p.Internal] = p.External
		m.strToInt[p.External] = p.Internal
		if p.Internal >= m.nextID {
			m.nextID = p.Internal + 1
		}
	}
	return m, nil
}
