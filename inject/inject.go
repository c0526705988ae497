// Package inject implements the Glyph Injector (spec.md §4.5): given a
// Bundle, it rewrites loca (TrueType) or CFF CharStrings INDEX offsets,
// copies glyph bytes into the glyph region, fixes metrics, and drives the
// cmap Manager to expose the newly-injected glyphs.
package inject

import (
	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/bundle"
	"tachyfont.dev/incrfont/cmap"
	"tachyfont.dev/incrfont/editor"
	"tachyfont.dev/incrfont/header"
)

const cffEndchar = 14

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "inject", Reason: reason}
}

// Apply mutates base in place with the glyphs in bndl, following spec.md
// §4.5. glyphToCode maps each injected glyph id to the code point it was
// requested for, used to build the cmap activation pairs after all records
// have been spliced in. Bundle records are processed in the order received;
// when two records affect overlapping offset ranges the later one wins (the
// build step guarantees non-overlapping allocations, so this is purely
// defensive).
func Apply(info *header.Info, base *editor.Buffer, bndl *bundle.Bundle, mapping cmap.Mapping,
	glyphToCode map[incrfont.GlyphID]incrfont.CodePoint, cm *cmap.Manager, hasOneCharPerSeg bool) error {

	for _, rec := range bndl.Records {
		if err := applyMetrics(info, base, bndl.Flags, rec); err != nil {
			return err
		}
		if info.IsTTF {
			if err := applyLoca(info, base, rec); err != nil {
				return err
			}
		} else {
			if err := applyCFF(info, base, rec); err != nil {
				return err
			}
		}
		if err := base.SetBytes(int64(info.GlyphOffset)+int64(rec.Offset), rec.Bytes); err != nil {
			return err
		}
	}

	var pairs []cmap.GlyphCodePair
	for _, rec := range bndl.Records {
		cp, ok := glyphToCode[rec.GlyphID]
		if !ok {
			continue
		}
		pairs = append(pairs, cmap.GlyphCodePair{GlyphID: rec.GlyphID, CodePoint: cp})
	}
	return cm.Activate(pairs, mapping, hasOneCharPerSeg)
}

func applyMetrics(info *header.Info, base *editor.Buffer, flags bundle.Flags, rec bundle.Record) error {
	if flags&bundle.HasHmtx != 0 && rec.Hmtx != nil {
		if err := base.SetMtxSideBearing(int64(info.HmtxOffset), info.HmetricCount, rec.GlyphID, *rec.Hmtx); err != nil {
			return err
		}
	}
	if flags&bundle.HasVmtx != 0 && rec.Vmtx != nil {
		if err := base.SetMtxSideBearing(int64(info.VmtxOffset), info.VmetricCount, rec.GlyphID, *rec.Vmtx); err != nil {
			return err
		}
	}
	return nil
}

// applyLoca implements the TrueType branch of spec.md §4.5 step 2.
func applyLoca(info *header.Info, base *editor.Buffer, rec bundle.Record) error {
	id := rec.GlyphID
	tableOffset := int64(info.GlyphDataOffset)
	offsetSize := info.OffsetSize

	oldNextOne, err := base.GlyphDataOffset(tableOffset, offsetSize, id+1)
	if err != nil {
		return err
	}

	if err := base.SetGlyphDataOffset(tableOffset, offsetSize, id, rec.Offset); err != nil {
		return err
	}
	newNextOne := rec.Offset + uint32(rec.Length)
	if err := base.SetGlyphDataOffset(tableOffset, offsetSize, id+1, newNextOne); err != nil {
		return err
	}

	// Backward fixup: repair sentinel-sparse entries left of the injection.
	j := id
	for j > 0 {
		prev, err := base.GlyphDataOffset(tableOffset, offsetSize, j-1)
		if err != nil {
			return err
		}
		if prev <= rec.Offset {
			break
		}
		if err := base.SetGlyphDataOffset(tableOffset, offsetSize, j-1, rec.Offset); err != nil {
			return err
		}
		j--
	}

	// Forward fixup: keep the following slot a valid sentinel/composite.
	if oldNextOne != newNextOne && int(id)+1 < info.NumGlyphs {
		if rec.Length > 0 {
			if err := base.SetI16(int64(info.GlyphOffset)+int64(newNextOne), -1); err != nil {
				return err
			}
		} else {
			zero, err := isZero64(base, int64(info.GlyphOffset)+int64(newNextOne))
			if err != nil {
				return err
			}
			if zero {
				if err := base.SetI16(int64(info.GlyphOffset)+int64(newNextOne), -1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// isZero64 reports whether the two 32-bit words (8 bytes) at off are both
// zero, i.e. the slot still looks like an empty sentinel.
func isZero64(base *editor.Buffer, off int64) (bool, error) {
	if err := base.Seek(off); err != nil {
		return false, err
	}
	a, err := base.U32()
	if err != nil {
		return false, err
	}
	b, err := base.U32()
	if err != nil {
		return false, err
	}
	return a == 0 && b == 0, nil
}

// applyCFF implements the CFF branch of spec.md §4.5 step 3.
func applyCFF(info *header.Info, base *editor.Buffer, rec bundle.Record) error {
	id := int(rec.GlyphID)
	tableOffset := int64(info.GlyphDataOffset)
	offSize := info.OffsetSize

	oldNextOne, err := base.CffIndexOffset(tableOffset, offSize, id+1)
	if err != nil {
		return err
	}

	if err := base.SetCffIndexOffset(tableOffset, offSize, id, rec.Offset); err != nil {
		return err
	}
	newNextOne := rec.Offset + uint32(rec.Length)
	if err := base.SetCffIndexOffset(tableOffset, offSize, id+1, newNextOne); err != nil {
		return err
	}

	if oldNextOne < newNextOne && id+1 < info.NumGlyphs {
		if err := base.SetU8(int64(info.GlyphOffset)+int64(newNextOne), cffEndchar); err != nil {
			return err
		}
	}

	current := newNextOne
	nextID := id + 2
	for nextID <= info.NumGlyphs {
		cur, err := base.CffIndexOffset(tableOffset, offSize, nextID)
		if err != nil {
			return err
		}
		if cur > current {
			break
		}
		current++
		if err := base.SetCffIndexOffset(tableOffset, offSize, nextID, current); err != nil {
			return err
		}
		if nextID < info.NumGlyphs {
			if err := base.SetU8(int64(info.GlyphOffset)+int64(current), cffEndchar); err != nil {
				return err
			}
		}
		nextID++
	}
	return nil
}
