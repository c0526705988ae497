// Package editor implements a bounds-checked, big-endian cursor over a
// mutable byte buffer, plus a handful of OpenType-aware helpers for reading
// and writing loca/CFF glyph offsets and hmtx/vmtx side bearings.
//
// All table mutation in the rest of this module goes through a Buffer: it is
// the single owner of the font's bytes, per the "mutable binary buffer
// shared by multiple logical references" redesign note (see SPEC_FULL.md).
package editor

import (
	"encoding/binary"

	"tachyfont.dev/incrfont"
)

// Buffer is a stateful cursor over a mutable byte slice.
type Buffer struct {
	data []byte
	pos  int64
}

// New wraps data in a Buffer. The Buffer does not copy data; callers that
// need an independent buffer must copy before constructing one.
func New(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the underlying byte slice. Mutations to it are reflected in
// the Buffer and vice versa.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the length of the underlying buffer.
func (b *Buffer) Len() int { return len(b.data) }

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "editor", Reason: reason}
}

// Seek moves the cursor to an absolute byte offset.
func (b *Buffer) Seek(abs int64) error {
	if abs < 0 || abs > int64(len(b.data)) {
		return corrupt("seek out of range")
	}
	b.pos = abs
	return nil
}

// Skip advances the cursor by n bytes (n may be negative).
func (b *Buffer) Skip(n int64) error {
	return b.Seek(b.pos + n)
}

// Tell returns the current cursor position.
func (b *Buffer) Tell() int64 { return b.pos }

func (b *Buffer) need(n int64) error {
	if b.pos < 0 || n < 0 || b.pos+n > int64(len(b.data)) {
		return corrupt("access out of range")
	}
	return nil
}

// U8 reads an unsigned 8-bit integer and advances the cursor.
func (b *Buffer) U8() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// SetU8 writes an unsigned 8-bit integer at an absolute offset (cursor
// unaffected).
func (b *Buffer) SetU8(off int64, v byte) error {
	if off < 0 || off >= int64(len(b.data)) {
		return corrupt("write out of range")
	}
	b.data[off] = v
	return nil
}

// I8 reads a signed 8-bit integer and advances the cursor.
func (b *Buffer) I8() (int8, error) {
	v, err := b.U8()
	return int8(v), err
}

// SetI8 writes a signed 8-bit integer at an absolute offset.
func (b *Buffer) SetI8(off int64, v int8) error {
	return b.SetU8(off, byte(v))
}

// U16 reads a big-endian unsigned 16-bit integer and advances the cursor.
func (b *Buffer) U16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

// SetU16 writes a big-endian unsigned 16-bit integer at an absolute offset.
func (b *Buffer) SetU16(off int64, v uint16) error {
	if off < 0 || off+2 > int64(len(b.data)) {
		return corrupt("write out of range")
	}
	binary.BigEndian.PutUint16(b.data[off:], v)
	return nil
}

// I16 reads a big-endian signed 16-bit integer and advances the cursor.
func (b *Buffer) I16() (int16, error) {
	v, err := b.U16()
	return int16(v), err
}

// SetI16 writes a big-endian signed 16-bit integer at an absolute offset.
func (b *Buffer) SetI16(off int64, v int16) error {
	return b.SetU16(off, uint16(v))
}

// U32 reads a big-endian unsigned 32-bit integer and advances the cursor.
func (b *Buffer) U32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// SetU32 writes a big-endian unsigned 32-bit integer at an absolute offset.
func (b *Buffer) SetU32(off int64, v uint32) error {
	if off < 0 || off+4 > int64(len(b.data)) {
		return corrupt("write out of range")
	}
	binary.BigEndian.PutUint32(b.data[off:], v)
	return nil
}

// I32 reads a big-endian signed 32-bit integer and advances the cursor.
func (b *Buffer) I32() (int32, error) {
	v, err := b.U32()
	return int32(v), err
}

// SetI32 writes a big-endian signed 32-bit integer at an absolute offset.
func (b *Buffer) SetI32(off int64, v int32) error {
	return b.SetU32(off, uint32(v))
}

// ByteSlice returns a read-only copy of n bytes starting at the cursor, and
// advances the cursor.
func (b *Buffer) ByteSlice(n int) ([]byte, error) {
	if err := b.need(int64(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+int64(n)])
	b.pos += int64(n)
	return out, nil
}

// SetBytes writes raw bytes at an absolute offset (cursor unaffected).
func (b *Buffer) SetBytes(off int64, p []byte) error {
	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return corrupt("write out of range")
	}
	copy(b.data[off:], p)
	return nil
}

// GlyphDataOffset reads the loca-style offset entry for glyphID, at
// tableOffset, using offsetSize (2 for "short loca", 16-bit entries scaled
// by 2; 4 for "long loca", 32-bit entries used verbatim).
func (b *Buffer) GlyphDataOffset(tableOffset int64, offsetSize int, glyphID incrfont.GlyphID) (uint32, error) {
	switch offsetSize {
	case 2:
		v, err := b.u16At(tableOffset + 2*int64(glyphID))
		if err != nil {
			return 0, err
		}
		return uint32(v) * 2, nil
	case 4:
		return b.u32At(tableOffset + 4*int64(glyphID))
	default:
		return 0, corrupt("unsupported loca offset size")
	}
}

// SetGlyphDataOffset writes a loca-style offset entry. value is the true
// byte offset into the glyph data region; for 16-bit ("short loca") tables
// it is transparently divided by 2.
func (b *Buffer) SetGlyphDataOffset(tableOffset int64, offsetSize int, glyphID incrfont.GlyphID, value uint32) error {
	switch offsetSize {
	case 2:
		if value%2 != 0 {
			return corrupt("short loca offset not word-aligned")
		}
		return b.SetU16(tableOffset+2*int64(glyphID), uint16(value/2))
	case 4:
		return b.SetU32(tableOffset+4*int64(glyphID), value)
	default:
		return corrupt("unsupported loca offset size")
	}
}

// CffIndexOffset reads the i-th entry of a CFF CharStrings INDEX offset
// array at tableOffset, whose entries are offSize bytes wide (1 to 4, per
// the CFF spec) and hold the raw byte offset directly (no /2 scaling, unlike
// the TrueType short-loca case).
func (b *Buffer) CffIndexOffset(tableOffset int64, offSize, index int) (uint32, error) {
	off := tableOffset + int64(offSize*index)
	if err := b.need2(off, int64(offSize)); err != nil {
		return 0, err
	}
	var v uint32
	for k := 0; k < offSize; k++ {
		v = v<<8 | uint32(b.data[off+int64(k)])
	}
	return v, nil
}

// SetCffIndexOffset writes the i-th entry of a CFF CharStrings INDEX offset
// array.
func (b *Buffer) SetCffIndexOffset(tableOffset int64, offSize, index int, value uint32) error {
	off := tableOffset + int64(offSize*index)
	if err := b.need2(off, int64(offSize)); err != nil {
		return err
	}
	for k := 0; k < offSize; k++ {
		shift := uint(8 * (offSize - k - 1))
		b.data[off+int64(k)] = byte(value >> shift)
	}
	return nil
}

func (b *Buffer) need2(off, n int64) error {
	if off < 0 || n < 0 || off+n > int64(len(b.data)) {
		return corrupt("access out of range")
	}
	return nil
}

// SetMtxSideBearing writes the 16-bit side bearing for glyphID into an
// hmtx/vmtx table at tableOffset. Glyphs below longMetricCount have a full
// (advanceWidth, sideBearing) record (4 bytes); glyphs at or beyond it share
// the last advanceWidth and have only a 2-byte side-bearing array entry.
func (b *Buffer) SetMtxSideBearing(tableOffset int64, longMetricCount int, glyphID incrfont.GlyphID, value int16) error {
	var off int64
	if int(glyphID) < longMetricCount {
		off = tableOffset + 4*int64(glyphID) + 2
	} else {
		off = tableOffset + 4*int64(longMetricCount) + 2*(int64(glyphID)-int64(longMetricCount))
	}
	return b.SetI16(off, value)
}

func (b *Buffer) u16At(off int64) (uint16, error) {
	if off < 0 || off+2 > int64(len(b.data)) {
		return 0, corrupt("read out of range")
	}
	return binary.BigEndian.Uint16(b.data[off:]), nil
}

func (b *Buffer) u32At(off int64) (uint32, error) {
	if off < 0 || off+4 > int64(len(b.data)) {
		return 0, corrupt("read out of range")
	}
	return binary.BigEndian.Uint32(b.data[off:]), nil
}
