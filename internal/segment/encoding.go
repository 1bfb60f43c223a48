package segment

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xDarkicex/ndb/internal/idmap"
)

func float32bits(v float32) uint32    { return math.Float32bits(v) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

// encodeIDEntries serializes id-mapping pairs as:
// [count: u32] + ([internal: u32, external_len: u32, external_bytes...])*
func encodeIDEntries(pairs []idmap.Pair) ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(pairs)))
	for _, p := range pairs {
		var head [8]byte
		binary.LittleEndian.PutUint32(head[0:4], p.Internal)
		binary.LittleEndian.PutUint32(head[4:8], uint32(len(p.External)))
		buf = append(buf, head[:]...)
		buf = append(buf, p.External...)
	}
	return buf, nil
}

func decodeIDEntries(data []byte) ([]idmap.Pair, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("id mapping region truncated")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	off := 4
	pairs := make([]idmap.Pair, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+8 > len(data) {
			return nil, fmt.Errorf("id mapping entry %d truncated", i)
		}
		internal := binary.LittleEndian.Uint32(data[off : off+4])
		strLen := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if off+strLen > len(data) {
			return nil, fmt.Errorf("id mapping entry %d string truncated", i)
		}
		external := string(data[off : off+strLen])
		off += strLen
		pairs = append(pairs, idmap.Pair{Internal: internal, External: external})
	}
	return pairs, nil
}

type payloadEntry struct {
	internalID uint32
	payload    []byte
}

// encodePayloadEntries serializes payload entries as:
// [count: u32] + ([internal_id: u32, has_payload: u8, payload_len: u32?, payload_bytes...?])*
func encodePayloadEntries(entries []payloadEntry) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], e.internalID)
		buf = append(buf, idBuf[:]...)
		if e.payload == nil {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.payload)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, e.payload...)
	}
	return buf
}

func decodePayloadEntries(data []byte) ([]payloadEntry, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("payload region truncated")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	off := 4
	entries := make([]payloadEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+5 > len(data) {
			return nil, fmt.Errorf("payload entry %d truncated", i)
		}
		internalID := binary.LittleEndian.Uint32(data[off : off+4])
		hasPayload := data[off+4]
		off += 5
		var payload []byte
		if hasPayload != 0 {
			if off+4 > len(data) {
				return nil, fmt.Errorf("payload entry %d length truncated", i)
			}
			plen := int(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
			if off+plen > len(data) {
				return nil, fmt.Errorf("payload entry %d bytes truncated", i)
			}
			payload = append(payload, data[off:off+plen]...)
			off += plen
		}
		entries = append(entries, payloadEntry{internalID: internalID, payload: payload})
	}
	return entries, nil
}
