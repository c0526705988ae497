// Package cmap writes, validates, and per-glyph activates entries in cmap
// format 4 and format 12 subtables (spec.md §4.4).
//
// Mapping is a dense map keyed by the numeric code point, replacing the
// build tool's stringified-codepoint records per the redesign note in
// spec.md §9.
package cmap

import (
	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/editor"
	"tachyfont.dev/incrfont/header"
)

// CharCmapInfo records where a single code point's glyph lives in the cmap
// subtables, as produced by the build step.
type CharCmapInfo struct {
	CodePoint   incrfont.CodePoint
	GlyphID     incrfont.GlyphID
	Format4Seg  *int // index into header.Info.CompactGOS.Cmap4Segments, nil if none
	Format12Seg *int // index into header.Info.CompactGOS.Cmap12Segments, nil if none
}

// Mapping is the build-step-provided code-point-to-cmap-location table. It
// is loaded once per font and never mutated.
type Mapping map[incrfont.CodePoint]CharCmapInfo

const (
	cmap4HeaderSize = 14
	cmap12GroupSize = 12
)

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "cmap", Reason: reason}
}

// Manager writes and activates cmap4/cmap12 entries against a base buffer,
// using the offsets and compact segment arrays recorded in the font's
// header.Info.
type Manager struct {
	info *header.Info
	base *editor.Buffer
}

// New constructs a Manager bound to base using the cmap layout described by
// info.
func New(info *header.Info, base *editor.Buffer) *Manager {
	return &Manager{info: info, base: base}
}

// segCount reads the live segCountX2 field from the cmap4 subtable header
// and returns segCount, used both to locate fields and to cross-check
// against the compact segment array (spec.md §4.4.2).
func (m *Manager) segCount() (int, error) {
	if m.info.Cmap4 == nil {
		return 0, corrupt("font has no cmap4 subtable")
	}
	if err := m.base.Seek(int64(m.info.Cmap4.Offset) + 6); err != nil {
		return 0, err
	}
	segCountX2, err := m.base.U16()
	if err != nil {
		return 0, err
	}
	return int(segCountX2) / 2, nil
}

// WriteCmap12 performs the initial-write pass of spec.md §4.4.1: it
// overwrites the in-font cmap12 group array with the compact segments from
// the header, substituting glyph id 0 for every segment when
// hasOneCharPerSeg is set (keeping the cmap authoritative-but-empty until
// glyphs are injected).
func (m *Manager) WriteCmap12(hasOneCharPerSeg bool) error {
	if m.info.Cmap12 == nil {
		return nil
	}
	base := int64(m.info.Cmap12.Offset)
	for i, seg := range m.info.CompactGOS.Cmap12Segments {
		startGlyphID := seg.StartGlyphID
		if hasOneCharPerSeg {
			startGlyphID = 0
		}
		off := base + int64(i)*cmap12GroupSize
		if err := m.base.SetU32(off, seg.StartCode); err != nil {
			return err
		}
		endCode := seg.StartCode + seg.Length - 1
		if err := m.base.SetU32(off+4, endCode); err != nil {
			return err
		}
		if err := m.base.SetU32(off+8, startGlyphID); err != nil {
			return err
		}
	}
	return nil
}

// WriteCmap4 performs the initial-write pass of spec.md §4.4.1 for format 4:
// it overwrites the full payload (endCode, reservedPad, startCode, idDelta,
// idRangeOffset, glyphIdArray) from the header's compact segment array. When
// hasOneCharPerSeg is set, every idDelta is replaced with
// (0x10000-startCode)&0xFFFF so every code point resolves to glyph 0 until
// activated; otherwise the segment's native idDelta is used unchanged.
func (m *Manager) WriteCmap4(hasOneCharPerSeg bool) error {
	if m.info.Cmap4 == nil {
		return nil
	}
	liveSegCount, err := m.segCount()
	if err != nil {
		return err
	}
	segs := m.info.CompactGOS.Cmap4Segments
	if liveSegCount != len(segs) {
		return corrupt("cmap4 segCount disagrees with compact segment array")
	}

	n := len(segs)
	payload := int64(m.info.Cmap4.Offset) + cmap4HeaderSize
	endCodeOff := payload
	startCodeOff := payload + 2*int64(n) + 2 // skip reservedPad
	idDeltaOff := startCodeOff + 2*int64(n)
	idRangeOff := idDeltaOff + 2*int64(n)
	glyphArrOff := idRangeOff + 2*int64(n)

	for i, seg := range segs {
		if err := m.base.SetU16(endCodeOff+2*int64(i), seg.EndCode); err != nil {
			return err
		}
		if err := m.base.SetU16(startCodeOff+2*int64(i), seg.StartCode); err != nil {
			return err
		}
		delta := seg.IDDelta
		if hasOneCharPerSeg {
			delta = uint16((0x10000 - uint32(seg.StartCode)) & 0xFFFF)
		}
		if err := m.base.SetU16(idDeltaOff+2*int64(i), uint16(delta)); err != nil {
			return err
		}
		if err := m.base.SetU16(idRangeOff+2*int64(i), seg.IDRangeOffset); err != nil {
			return err
		}
	}
	if err := m.base.SetU16(payload+2*int64(n), 0); err != nil { // reservedPad
		return err
	}
	for i, v := range m.info.CompactGOS.Cmap4GlyphIDs {
		if err := m.base.SetU16(glyphArrOff+2*int64(i), v); err != nil {
			return err
		}
	}
	return nil
}

// GlyphCodePair is one injected (glyphID, codePoint) pair to activate.
type GlyphCodePair struct {
	GlyphID   incrfont.GlyphID
	CodePoint incrfont.CodePoint
}

// ActivateCmap12 flips the cmap12 group for each pair's code point to point
// at the segment's real glyph id. A pair whose code point is absent from
// mapping is silently skipped (spec.md §4.4.2: "the glyph exists but is not
// reachable via cmap").
func (m *Manager) ActivateCmap12(pairs []GlyphCodePair, mapping Mapping) error {
	if m.info.Cmap12 == nil {
		return nil
	}
	base := int64(m.info.Cmap12.Offset)
	for _, pair := range pairs {
		info, ok := mapping[pair.CodePoint]
		if !ok {
			continue
		}
		if info.Format12Seg == nil {
			continue
		}
		seg := m.info.CompactGOS.Cmap12Segments[*info.Format12Seg]
		off := base + int64(*info.Format12Seg)*cmap12GroupSize + 8
		if err := m.base.SetU32(off, seg.StartGlyphID); err != nil {
			return err
		}
	}
	return nil
}

// ActivateCmap4 flips the idDelta of the segment for each pair's code point
// back to its native value, exposing the real glyph through a format 4
// lookup. Tie-breaks follow spec.md §4.4.2 exactly:
//   - cmap info absent: skip.
//   - Format4Seg nil and codePoint <= 0xFFFF: CorruptFont (inconsistent
//     build metadata).
//   - Format4Seg nil and codePoint > 0xFFFF: skip (outside the BMP, format 4
//     cannot represent it).
func (m *Manager) ActivateCmap4(pairs []GlyphCodePair, mapping Mapping) error {
	if m.info.Cmap4 == nil {
		return nil
	}
	liveSegCount, err := m.segCount()
	if err != nil {
		return err
	}
	segs := m.info.CompactGOS.Cmap4Segments
	if liveSegCount != len(segs) {
		return corrupt("cmap4 segCount disagrees with compact segment array")
	}
	n := len(segs)
	idDeltaOff := int64(m.info.Cmap4.Offset) + cmap4HeaderSize + 2*int64(n) + 2 + 2*int64(n)

	for _, pair := range pairs {
		info, ok := mapping[pair.CodePoint]
		if !ok {
			continue
		}
		if info.Format4Seg == nil {
			if pair.CodePoint <= 0xFFFF {
				return corrupt("glyph mapped but missing format4Seg for BMP code point")
			}
			continue
		}
		seg := segs[*info.Format4Seg]
		off := idDeltaOff + 2*int64(*info.Format4Seg)
		if err := m.base.SetU16(off, seg.IDDelta); err != nil {
			return err
		}
	}
	return nil
}

// Activate performs the combined per-glyph activation of spec.md §4.5:
// cmap12 first, then cmap4. When hasOneCharPerSeg is false the cmap was
// already fully populated by the build step, so both passes are no-ops
// (spec.md §4.4.2's last tie-break).
func (m *Manager) Activate(pairs []GlyphCodePair, mapping Mapping, hasOneCharPerSeg bool) error {
	if !hasOneCharPerSeg {
		return nil
	}
	if err := m.ActivateCmap12(pairs, mapping); err != nil {
		return err
	}
	return m.ActivateCmap4(pairs, mapping)
}
