// Command tachyfontd drives the Font Manager end to end against in-memory
// fakes for the backend, store, and face binder: a cold start, one
// LoadChars round, a SetFont swap, and a warm restart from the persisted
// base that requests an already-loaded char. It exists to exercise manager.Font's wiring outside of a test
// binary, the way the teacher's own demo commands exercise a PDF writer
// against a throwaway output file.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/backend"
	"tachyfont.dev/incrfont/cmap"
	"tachyfont.dev/incrfont/face"
	"tachyfont.dev/incrfont/header"
	"tachyfont.dev/incrfont/manager"
	"tachyfont.dev/incrfont/rle"
	"tachyfont.dev/incrfont/store"
	"tachyfont.dev/incrfont/tachylog"
)

const fontName = "NotoSansDemo"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tachyfontd:", err)
		os.Exit(1)
	}
}

func run() error {
	log := tachylog.New(os.Stdout, fontName)
	ctx := context.Background()

	numGlyphs := 64
	glyphOffset := uint32(2 * (numGlyphs + 1))
	info := &header.Info{
		IsTTF:           true,
		GlyphOffset:     glyphOffset,
		GlyphDataOffset: 0,
		OffsetSize:      2,
		NumGlyphs:       numGlyphs,
	}
	headerBytes := info.Encode()
	fontBytes := make([]byte, glyphOffset+2048)
	base := append(append([]byte(nil), headerBytes...), rle.Encode(fontBytes)...)

	be := &backend.Fake{
		Base: base,
		BundleGlyphID: map[incrfont.CodePoint]incrfont.GlyphID{
			'h': 10, 'e': 11, 'l': 12, 'o': 13,
		},
	}
	st := store.NewFake()
	fb := face.NewFake()
	mapping := cmap.Mapping{} // no cmap subtables in this toy base

	cfg := manager.DefaultConfig()
	cfg.PersistDelay = 30 * time.Millisecond

	log.Info("cold start")
	font := manager.New(fontName, cfg, be, st, fb, mapping, log)
	if err := font.Open(ctx); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	log.Info("opened", "state", font.State().String())

	if err := <-font.RequestChars([]incrfont.CodePoint{'h', 'e', 'l', 'l', 'o'}); err != nil {
		return fmt.Errorf("load chars: %w", err)
	}
	log.Info("loaded chars", "needToSetFont", font.NeedToSetFont())

	if err := <-font.SetFont(ctx, "NotoSansDemo", "400"); err != nil {
		return fmt.Errorf("set font: %w", err)
	}
	log.Info("set font installed")

	time.Sleep(100 * time.Millisecond) // let the persist coalescing window settle
	log.Info("persisted slots", "puts", len(st.Puts))

	log.Info("warm restart")
	warm := manager.New(fontName, cfg, be, st, fb, mapping, log)
	if err := warm.Open(ctx); err != nil {
		return fmt.Errorf("warm open: %w", err)
	}
	log.Info("warm opened", "state", warm.State().String())

	if err := <-warm.RequestChars([]incrfont.CodePoint{'h'}); err != nil {
		return fmt.Errorf("warm load chars: %w", err)
	}
	log.Info("warm font already had 'h' loaded", "backendCalls", len(be.RequestedBatches))

	return nil
}
