package manager

import (
	"encoding/binary"
	"sort"

	"tachyfont.dev/incrfont"
)

// encodeCharList serializes the set of loaded code points as a sorted,
// length-prefixed array of big-endian uint32s, for the Charlist persisted
// slot.
func encodeCharList(chars []incrfont.CodePoint) []byte {
	sorted := append([]incrfont.CodePoint(nil), chars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]byte, 4+4*len(sorted))
	binary.BigEndian.PutUint32(out, uint32(len(sorted)))
	for i, c := range sorted {
		binary.BigEndian.PutUint32(out[4+4*i:], uint32(c))
	}
	return out
}

// decodeCharList is the inverse of encodeCharList. A truncated or empty
// slot decodes to an empty list rather than an error: a corrupt charlist
// only costs a few redundant backend requests, not a failed font.
func decodeCharList(data []byte) []incrfont.CodePoint {
	if len(data) < 4 {
		return nil
	}
	n := binary.BigEndian.Uint32(data)
	var out []incrfont.CodePoint
	for i := uint32(0); i < n; i++ {
		off := 4 + 4*int(i)
		if off+4 > len(data) {
			break
		}
		out = append(out, incrfont.CodePoint(binary.BigEndian.Uint32(data[off:])))
	}
	return out
}
