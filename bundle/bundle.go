// Package bundle decodes the server-delivered glyph Bundle wire format
// described in spec.md §3 and §6.
package bundle

import (
	"encoding/binary"
	"io"

	"tachyfont.dev/incrfont"
)

// Flags is a bitmask over the optional per-record fields a Bundle carries.
type Flags uint16

const (
	HasHmtx Flags = 1 << 0
	HasVmtx Flags = 1 << 1
	HasCFF  Flags = 1 << 2
)

// Record is one glyph delivered by the backend.
type Record struct {
	GlyphID incrfont.GlyphID
	Hmtx    *int16 // side bearing, present iff Flags&HasHmtx
	Vmtx    *int16 // side bearing, present iff Flags&HasVmtx
	Offset  uint32 // offset into the base's glyph region
	Length  uint16 // may be 0 for an empty glyph
	Bytes   []byte
}

// Bundle is a decoded backend response.
type Bundle struct {
	Flags   Flags
	Records []Record
}

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "bundle", Reason: reason}
}

// Parse decodes a Bundle from the wire format of spec.md §6:
//
//	u16 flags; u16 glyphCount
//	repeat glyphCount:
//	  u16 glyphId
//	  [u16 hmtx if HAS_HMTX]
//	  [u16 vmtx if HAS_VMTX]
//	  u32 offset; u16 length; u8 bytes[length]
func Parse(r io.Reader) (*Bundle, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, corrupt("truncated bundle header")
	}
	b := &Bundle{
		Flags: Flags(binary.BigEndian.Uint16(hdr[0:2])),
	}
	glyphCount := binary.BigEndian.Uint16(hdr[2:4])

	for i := 0; i < int(glyphCount); i++ {
		rec, err := parseRecord(r, b.Flags)
		if err != nil {
			return nil, err
		}
		b.Records = append(b.Records, rec)
	}
	return b, nil
}

func parseRecord(r io.Reader, flags Flags) (Record, error) {
	var rec Record

	var gid [2]byte
	if _, err := io.ReadFull(r, gid[:]); err != nil {
		return rec, corrupt("truncated glyph id")
	}
	rec.GlyphID = incrfont.GlyphID(binary.BigEndian.Uint16(gid[:]))

	if flags&HasHmtx != 0 {
		v, err := readI16(r)
		if err != nil {
			return rec, corrupt("truncated hmtx")
		}
		rec.Hmtx = &v
	}
	if flags&HasVmtx != 0 {
		v, err := readI16(r)
		if err != nil {
			return rec, corrupt("truncated vmtx")
		}
		rec.Vmtx = &v
	}

	var offLen [6]byte
	if _, err := io.ReadFull(r, offLen[:]); err != nil {
		return rec, corrupt("truncated offset/length")
	}
	rec.Offset = binary.BigEndian.Uint32(offLen[0:4])
	rec.Length = binary.BigEndian.Uint16(offLen[4:6])

	if rec.Length > 0 {
		rec.Bytes = make([]byte, rec.Length)
		if _, err := io.ReadFull(r, rec.Bytes); err != nil {
			return rec, corrupt("truncated glyph bytes")
		}
	}
	return rec, nil
}

func readI16(r io.Reader) (int16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(buf[:])), nil
}

// Encode serializes b back into the wire format, for tests and for fake
// backend implementations.
func (b *Bundle) Encode() []byte {
	var out []byte
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(b.Flags))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(b.Records)))
	out = append(out, hdr[:]...)

	for _, rec := range b.Records {
		var gid [2]byte
		binary.BigEndian.PutUint16(gid[:], uint16(rec.GlyphID))
		out = append(out, gid[:]...)

		if b.Flags&HasHmtx != 0 {
			var v [2]byte
			if rec.Hmtx != nil {
				binary.BigEndian.PutUint16(v[:], uint16(*rec.Hmtx))
			}
			out = append(out, v[:]...)
		}
		if b.Flags&HasVmtx != 0 {
			var v [2]byte
			if rec.Vmtx != nil {
				binary.BigEndian.PutUint16(v[:], uint16(*rec.Vmtx))
			}
			out = append(out, v[:]...)
		}

		var offLen [6]byte
		binary.BigEndian.PutUint32(offLen[0:4], rec.Offset)
		binary.BigEndian.PutUint16(offLen[4:6], rec.Length)
		out = append(out, offLen[:]...)
		out = append(out, rec.Bytes...)
	}
	return out
}
