// Package rle expands the run-length-encoded base payload delivered by the
// backend into raw font bytes. File Info offsets are computed against the
// expanded font, not the RLE stream, so Decode must reproduce the build
// tool's exact expansion (spec.md §4.2).
package rle

import "tachyfont.dev/incrfont"

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptRle, SubSystem: "rle", Reason: reason}
}

// Decode expands an RLE-encoded body and prepends headerPrefix verbatim.
//
// The opcode stream consists of records: a byte op followed by its payload.
//   - op in [0x00, 0x7F]: a literal run — the next op+1 bytes are copied
//     verbatim into the output.
//   - op in [0x80, 0xFF]: a repeat run — the single byte that follows is
//     repeated op-0x7F times in the output.
//
// Runs longer than 128 bytes are simply split across consecutive records;
// there is no separate big-count escape.
func Decode(headerPrefix, body []byte) ([]byte, error) {
	out := make([]byte, len(headerPrefix), len(headerPrefix)+len(body))
	copy(out, headerPrefix)

	i := 0
	for i < len(body) {
		op := body[i]
		i++
		if op <= 0x7F {
			n := int(op) + 1
			if i+n > len(body) {
				return nil, corrupt("literal run exceeds stream")
			}
			out = append(out, body[i:i+n]...)
			i += n
		} else {
			n := int(op) - 0x7F
			if i >= len(body) {
				return nil, corrupt("repeat run missing value byte")
			}
			v := body[i]
			i++
			for k := 0; k < n; k++ {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

// Encode is the inverse of Decode; it is used by tests (and could be used
// by a build tool) to produce a stream Decode can expand back to data. It
// always emits maximal literal runs — it never attempts to detect repeats —
// which keeps the encoder trivially correct rather than space-optimal.
func Encode(data []byte) []byte {
	var out []byte
	for len(data) > 0 {
		n := len(data)
		if n > 128 {
			n = 128
		}
		out = append(out, byte(n-1))
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out
}
