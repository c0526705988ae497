package cmap

import (
	"testing"
)

func TestBuildFormat4SegmentsMergesConsecutiveRun(t *testing.T) {
	pairs := []GlyphCodePair{
		{CodePoint: 'a', GlyphID: 1},
		{CodePoint: 'b', GlyphID: 2},
		{CodePoint: 'c', GlyphID: 3},
	}
	segs := BuildFormat4Segments(pairs)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	seg := segs[0]
	if seg.StartCode != 'a' || seg.EndCode != 'c' || seg.IDRangeOffset != 0 {
		t.Errorf("unexpected merged segment: %+v", seg)
	}
	if want := uint16(0x10000 + 1 - 'a'); seg.IDDelta != want {
		t.Errorf("idDelta: got %d, want %d", seg.IDDelta, want)
	}
}

func TestBuildFormat4SegmentsSplitsOnGap(t *testing.T) {
	pairs := []GlyphCodePair{
		{CodePoint: 'a', GlyphID: 1},
		{CodePoint: 'b', GlyphID: 2},
		{CodePoint: 'z', GlyphID: 3}, // gap breaks the run
	}
	segs := BuildFormat4Segments(pairs)
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].StartCode != 'a' || segs[0].EndCode != 'b' {
		t.Errorf("first segment: got %+v", segs[0])
	}
	if segs[1].StartCode != 'z' || segs[1].EndCode != 'z' {
		t.Errorf("second segment: got %+v", segs[1])
	}
}

func TestBuildFormat4SegmentsSplitsOnInconsistentDelta(t *testing.T) {
	pairs := []GlyphCodePair{
		{CodePoint: 'a', GlyphID: 1},
		{CodePoint: 'b', GlyphID: 50}, // delta jump: not a linear run with 'a'
	}
	segs := BuildFormat4Segments(pairs)
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
}

func TestBuildFormat4SegmentsEmpty(t *testing.T) {
	if segs := BuildFormat4Segments(nil); segs != nil {
		t.Errorf("expected nil for empty input, got %v", segs)
	}
}

func TestBuildFormat4SegmentsUnsortedInput(t *testing.T) {
	pairs := []GlyphCodePair{
		{CodePoint: 'c', GlyphID: 3},
		{CodePoint: 'a', GlyphID: 1},
		{CodePoint: 'b', GlyphID: 2},
	}
	segs := BuildFormat4Segments(pairs)
	if len(segs) != 1 || segs[0].StartCode != 'a' || segs[0].EndCode != 'c' {
		t.Fatalf("expected one merged segment covering a-c, got %+v", segs)
	}
}
