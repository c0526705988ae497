// Package backend declares the HTTP/RPC transport collaborator (out of
// scope per spec.md §1) and provides an in-memory fake for tests.
package backend

import (
	"context"

	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/bundle"
)

// Service is the backend collaborator of spec.md §6.
type Service interface {
	// RequestFontBase returns the header prefix followed by the
	// RLE-encoded font body for fontName.
	RequestFontBase(ctx context.Context, fontName string) ([]byte, error)

	// RequestCodepoints requests glyphs for the given code points.
	// len(codepoints) must be <= the manager's configured req_size.
	RequestCodepoints(ctx context.Context, fontName string, codepoints []incrfont.CodePoint) (*bundle.Bundle, error)
}

// Fake is an in-memory Service for tests: it serves a fixed base and
// synthesizes a Bundle containing one zero-length record per requested code
// point (sufficient to exercise the engine's control flow without real
// glyph data). It records every call so tests can assert on request
// batching.
type Fake struct {
	Base []byte

	// RequestedBatches records the codepoints argument of every
	// RequestCodepoints call, in order.
	RequestedBatches [][]incrfont.CodePoint

	// FailNext, if >0, causes that many subsequent RequestCodepoints calls
	// to fail with a BackendError before succeeding again.
	FailNext int

	// BundleGlyphID maps a requested code point to the glyph id the fake
	// bundle should report for it. Code points absent from this map are
	// reported with GlyphID 0.
	BundleGlyphID map[incrfont.CodePoint]incrfont.GlyphID
}

func (f *Fake) RequestFontBase(ctx context.Context, fontName string) ([]byte, error) {
	return f.Base, nil
}

func (f *Fake) RequestCodepoints(ctx context.Context, fontName string, codepoints []incrfont.CodePoint) (*bundle.Bundle, error) {
	batch := append([]incrfont.CodePoint(nil), codepoints...)
	f.RequestedBatches = append(f.RequestedBatches, batch)

	if f.FailNext > 0 {
		f.FailNext--
		return nil, &incrfont.Error{Kind: incrfont.BackendError, SubSystem: "backend", Reason: "fake induced failure"}
	}

	b := &bundle.Bundle{}
	for _, c := range codepoints {
		gid := f.BundleGlyphID[c]
		b.Records = append(b.Records, bundle.Record{GlyphID: gid, Offset: 0, Length: 0})
	}
	return b, nil
}
