// Package header parses the TachyFont header prefix: a small build-tool
// generated preamble that precedes the RLE-compressed (or already-expanded)
// font bytes and that drives every later table write. Info is a pure parse
// result — it is never mutated after Parse returns, per the redesign note
// that lifts "dirty" bookkeeping out of the header and into the font
// manager's PersistState (see SPEC_FULL.md, manager package).
package header

import (
	"encoding/binary"

	"tachyfont.dev/incrfont"
)

const magic = 0x74616368 // "tach"

// TableRef locates a cmap subtable within the expanded font.
type TableRef struct {
	Offset uint32
	Length uint32
}

// Cmap12Ref locates the cmap format 12 group array.
type Cmap12Ref struct {
	Offset  uint32
	NGroups uint32
}

// Cmap4Segment is one authoritative, compact cmap format 4 segment as
// produced by the build step.
type Cmap4Segment struct {
	StartCode     uint16
	EndCode       uint16
	IDDelta       uint16
	IDRangeOffset uint16
}

// Cmap12Segment is one authoritative, compact cmap format 12 segment as
// produced by the build step.
type Cmap12Segment struct {
	StartCode    uint32
	Length       uint32
	StartGlyphID uint32
}

// CompactGOS holds the compact glyph-ordered-segments arrays: the
// authoritative cmap layout the build step computed, independent of what
// (possibly emptied-out) bytes currently sit in the font's cmap tables.
type CompactGOS struct {
	Cmap4Segments   []Cmap4Segment
	Cmap4GlyphIDs   []uint16
	Cmap12Segments  []Cmap12Segment
}

// Info is the File Info / Header entity of spec.md §3.
type Info struct {
	HeaderSize int

	IsTTF bool // true: TrueType (loca+glyf); false: CFF

	GlyphOffset     uint32 // offset of the glyf/CharStrings table
	GlyphDataOffset uint32 // offset of loca / CharStrings INDEX
	OffsetSize      int    // TrueType: 2 (short loca) or 4 (long loca); CFF: the CharStrings INDEX offSize (1 to 4)
	NumGlyphs       int

	HmtxOffset      uint32
	HmetricCount    int
	VmtxOffset      uint32
	VmetricCount    int

	Cmap4  *TableRef
	Cmap12 *Cmap12Ref

	CompactGOS CompactGOS
}

// HasOneCharPerSeg reports whether every cmap4 segment covers exactly one
// code point with no indirection, and every cmap12 segment covers exactly
// one code point (spec.md §3, "One-Char-Per-Segment Flag").
func (info *Info) HasOneCharPerSeg() bool {
	for _, seg := range info.CompactGOS.Cmap4Segments {
		if seg.StartCode != seg.EndCode || seg.IDRangeOffset != 0 {
			return false
		}
	}
	for _, seg := range info.CompactGOS.Cmap12Segments {
		if seg.Length != 1 {
			return false
		}
	}
	return true
}

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "header", Reason: reason}
}

// Parse decodes a header prefix. It returns the parsed Info and the number
// of bytes consumed (the header size), so the caller can slice off the
// remainder (RLE body or expanded font bytes).
func Parse(data []byte) (*Info, int, error) {
	r := newReader(data)

	gotMagic, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	if gotMagic != magic {
		return nil, 0, corrupt("bad magic")
	}

	headerSize, err := r.u16()
	if err != nil {
		return nil, 0, err
	}

	flags, err := r.u8()
	if err != nil {
		return nil, 0, err
	}
	info := &Info{
		HeaderSize: int(headerSize),
		IsTTF:      flags&1 != 0,
	}

	info.GlyphOffset, err = r.u32()
	if err != nil {
		return nil, 0, err
	}
	info.GlyphDataOffset, err = r.u32()
	if err != nil {
		return nil, 0, err
	}
	offsetSize, err := r.u8()
	if err != nil {
		return nil, 0, err
	}
	info.OffsetSize = int(offsetSize)
	numGlyphs, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	info.NumGlyphs = int(numGlyphs)

	info.HmtxOffset, err = r.u32()
	if err != nil {
		return nil, 0, err
	}
	hmetricCount, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	info.HmetricCount = int(hmetricCount)

	info.VmtxOffset, err = r.u32()
	if err != nil {
		return nil, 0, err
	}
	vmetricCount, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	info.VmetricCount = int(vmetricCount)

	hasCmap4, err := r.u8()
	if err != nil {
		return nil, 0, err
	}
	if hasCmap4 != 0 {
		offset, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		length, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		info.Cmap4 = &TableRef{Offset: offset, Length: length}
	}

	hasCmap12, err := r.u8()
	if err != nil {
		return nil, 0, err
	}
	if hasCmap12 != 0 {
		offset, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		nGroups, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		info.Cmap12 = &Cmap12Ref{Offset: offset, NGroups: nGroups}
	}

	nCmap4Seg, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < int(nCmap4Seg); i++ {
		start, err := r.u16()
		if err != nil {
			return nil, 0, err
		}
		end, err := r.u16()
		if err != nil {
			return nil, 0, err
		}
		delta, err := r.u16()
		if err != nil {
			return nil, 0, err
		}
		idRangeOffset, err := r.u16()
		if err != nil {
			return nil, 0, err
		}
		info.CompactGOS.Cmap4Segments = append(info.CompactGOS.Cmap4Segments, Cmap4Segment{
			StartCode: start, EndCode: end, IDDelta: delta, IDRangeOffset: idRangeOffset,
		})
	}

	nGlyphIDArray, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < int(nGlyphIDArray); i++ {
		v, err := r.u16()
		if err != nil {
			return nil, 0, err
		}
		info.CompactGOS.Cmap4GlyphIDs = append(info.CompactGOS.Cmap4GlyphIDs, v)
	}

	nCmap12Seg, err := r.u16()
	if err != nil {
		return nil, 0, err
	}
	for i := 0; i < int(nCmap12Seg); i++ {
		start, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		length, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		startGlyphID, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		info.CompactGOS.Cmap12Segments = append(info.CompactGOS.Cmap12Segments, Cmap12Segment{
			StartCode: start, Length: length, StartGlyphID: startGlyphID,
		})
	}

	if info.HeaderSize != r.pos {
		return nil, 0, corrupt("declared header size does not match parsed fields")
	}

	return info, info.HeaderSize, nil
}

// Encode produces the binary header prefix for info, for use by tests and
// by store round trips (the persisted base carries its header verbatim).
func (info *Info) Encode() []byte {
	w := newWriter()

	w.u32(magic)

	var flags byte
	if info.IsTTF {
		flags |= 1
	}

	// headerSize is self-referential; write a placeholder then patch it.
	w.u16(0)
	w.u8(flags)
	w.u32(info.GlyphOffset)
	w.u32(info.GlyphDataOffset)
	w.u8(byte(info.OffsetSize))
	w.u16(uint16(info.NumGlyphs))
	w.u32(info.HmtxOffset)
	w.u16(uint16(info.HmetricCount))
	w.u32(info.VmtxOffset)
	w.u16(uint16(info.VmetricCount))

	if info.Cmap4 != nil {
		w.u8(1)
		w.u32(info.Cmap4.Offset)
		w.u32(info.Cmap4.Length)
	} else {
		w.u8(0)
	}

	if info.Cmap12 != nil {
		w.u8(1)
		w.u32(info.Cmap12.Offset)
		w.u32(info.Cmap12.NGroups)
	} else {
		w.u8(0)
	}

	w.u16(uint16(len(info.CompactGOS.Cmap4Segments)))
	for _, seg := range info.CompactGOS.Cmap4Segments {
		w.u16(seg.StartCode)
		w.u16(seg.EndCode)
		w.u16(seg.IDDelta)
		w.u16(seg.IDRangeOffset)
	}

	w.u16(uint16(len(info.CompactGOS.Cmap4GlyphIDs)))
	for _, v := range info.CompactGOS.Cmap4GlyphIDs {
		w.u16(v)
	}

	w.u16(uint16(len(info.CompactGOS.Cmap12Segments)))
	for _, seg := range info.CompactGOS.Cmap12Segments {
		w.u32(seg.StartCode)
		w.u32(seg.Length)
		w.u32(seg.StartGlyphID)
	}

	data := w.bytes()
	binary.BigEndian.PutUint16(data[4:6], uint16(len(data)))
	return data
}

type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return corrupt("header prefix truncated")
	}
	return nil
}

func (r *reader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{} }

func (w *writer) u8(v byte)     { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}
func (w *writer) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}
func (w *writer) bytes() []byte { return w.buf }
