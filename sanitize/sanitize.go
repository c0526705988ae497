// Package sanitize installs sentinel glyphs into a freshly-expanded base so
// that OTS (the OpenType Sanitizer every installed font must pass) accepts a
// font whose glyph table is mostly empty, per spec.md §4.3.
package sanitize

import (
	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/editor"
	"tachyfont.dev/incrfont/header"
)

// LocaBlockSize is the stride, in glyph IDs, at which the TrueType pass
// installs a sentinel composite-glyph header.
const LocaBlockSize = 64

// cffEndchar is the CFF "endchar" operator: the shortest valid CharString.
const cffEndchar = 14

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "sanitize", Reason: reason}
}

// Run walks the glyph table described by info and patches base in place so
// every glyph slot parses, installing sentinel glyphs into slots the build
// step left empty.
func Run(info *header.Info, base *editor.Buffer) error {
	if info.IsTTF {
		return sanitizeTrueType(info, base)
	}
	return sanitizeCFF(info, base)
}

// sanitizeTrueType writes a single big-endian int16(-1) at every
// LocaBlockSize-th glyph's position, provided that glyph's current slot size
// is nonzero. int16(-1) is interpreted by OTS as a composite-glyph header
// with zero components: a valid, empty glyph.
func sanitizeTrueType(info *header.Info, base *editor.Buffer) error {
	// loca has NumGlyphs+1 entries; the last is the total glyph data length.
	for gid := 0; gid < info.NumGlyphs; gid += LocaBlockSize {
		start, err := base.GlyphDataOffset(int64(info.GlyphDataOffset), info.OffsetSize, incrfont.GlyphID(gid))
		if err != nil {
			return err
		}
		end, err := base.GlyphDataOffset(int64(info.GlyphDataOffset), info.OffsetSize, incrfont.GlyphID(gid+1))
		if err != nil {
			return err
		}
		if end == start {
			continue // already empty, nothing to sanitize
		}
		if err := base.SetI16(int64(info.GlyphOffset)+int64(start), -1); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeCFF walks the CharStrings INDEX offset array. Whenever consecutive
// offsets collapse to the same value (the build step's way of marking an
// entry empty) it bumps the new offset by one and stamps a single endchar
// byte there, keeping a running delta so later empties stay monotone.
func sanitizeCFF(info *header.Info, base *editor.Buffer) error {
	tableOffset := int64(info.GlyphDataOffset)
	offSize := info.OffsetSize
	if offSize < 1 || offSize > 4 {
		return corrupt("invalid CFF INDEX offSize")
	}

	var delta uint32
	prev, err := base.CffIndexOffset(tableOffset, offSize, 0)
	if err != nil {
		return err
	}
	for gid := 1; gid <= info.NumGlyphs; gid++ {
		cur, err := base.CffIndexOffset(tableOffset, offSize, gid)
		if err != nil {
			return err
		}
		newCur := cur + delta
		if newCur == prev {
			newCur++
			delta++
			if err := base.SetU8(int64(info.GlyphOffset)+int64(prev), cffEndchar); err != nil {
				return err
			}
		}
		if delta != 0 {
			if err := base.SetCffIndexOffset(tableOffset, offSize, gid, newCur); err != nil {
				return err
			}
		}
		prev = newCur
	}
	return nil
}
