package cmap

import (
	"sort"

	"tachyfont.dev/incrfont/cmap/internal/dijkstra"
	"tachyfont.dev/incrfont/header"
)

// segHeaderCost is the number of bytes one format 4 segment contributes
// across the four parallel arrays (endCode, startCode, idDelta,
// idRangeOffset), each a uint16.
const segHeaderCost = 8

// noMerge is a cost high enough that dijkstra.ShortestPath never prefers a
// segment grouping that isn't a valid consecutive-code-point, constant-delta
// run; every single-pair segment is always a legal (and cheap) fallback, so
// a finite total path always exists.
const noMerge = 1 << 30

// BuildFormat4Segments is the build-tool-side counterpart to Manager: given
// the font's code-point-to-glyph assignment, it produces the compact cmap
// format 4 segment array a header.Info carries, choosing the
// fewest-segments partition by a shortest-path search over legal merges
// (spec.md's File Info is silent on how CompactGOS is computed; this is one
// reasonable build step, grounded on the teacher's shortest-path allocator
// used elsewhere in the corpus for optimal run segmentation).
//
// Only contiguous, constant-delta runs are merged into one segment
// (IDRangeOffset stays 0, as required by the one-char-per-segment
// activation path); a glyph assignment that needs the indirect
// glyphIdArray form is out of scope for this builder and is left as
// individual one-code-point segments instead.
func BuildFormat4Segments(pairs []GlyphCodePair) []header.Cmap4Segment {
	if len(pairs) == 0 {
		return nil
	}
	sorted := append([]GlyphCodePair(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CodePoint < sorted[j].CodePoint })

	n := len(sorted)
	cost := func(i, j int) int {
		if !isConsecutiveConstantDelta(sorted[i:j]) {
			return noMerge
		}
		return segHeaderCost
	}
	_, boundaries := dijkstra.ShortestPath(cost, n)

	segs := make([]header.Cmap4Segment, 0, len(boundaries)-1)
	for b := 0; b+1 < len(boundaries); b++ {
		i, j := boundaries[b], boundaries[b+1]
		run := sorted[i:j]
		delta := uint16(uint32(run[0].GlyphID) - uint32(run[0].CodePoint))
		segs = append(segs, header.Cmap4Segment{
			StartCode:     uint16(run[0].CodePoint),
			EndCode:       uint16(run[len(run)-1].CodePoint),
			IDDelta:       delta,
			IDRangeOffset: 0,
		})
	}
	return segs
}

// isConsecutiveConstantDelta reports whether run's code points are
// consecutive and every pair shares the same (glyphID - codePoint) delta,
// i.e. run can be represented as a single format 4 segment with
// IDRangeOffset 0.
func isConsecutiveConstantDelta(run []GlyphCodePair) bool {
	if len(run) == 0 {
		return false
	}
	delta := int32(run[0].GlyphID) - int32(run[0].CodePoint)
	for k, p := range run {
		if int32(p.CodePoint) != int32(run[0].CodePoint)+int32(k) {
			return false
		}
		if int32(p.GlyphID)-int32(p.CodePoint) != delta {
			return false
		}
	}
	return true
}
