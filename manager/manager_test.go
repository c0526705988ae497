package manager

import (
	"context"
	"testing"
	"time"

	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/backend"
	"tachyfont.dev/incrfont/cmap"
	"tachyfont.dev/incrfont/face"
	"tachyfont.dev/incrfont/header"
	"tachyfont.dev/incrfont/rle"
	"tachyfont.dev/incrfont/store"
)

// buildFixture returns a tiny TTF-flavored header and the (header-prefix,
// RLE-encoded body) pair a backend.Fake would serve for it. The font has no
// cmap subtables, keeping injection's cmap activation a no-op so tests can
// focus on the manager's own control flow.
func buildFixture(numGlyphs int) (*header.Info, []byte) {
	locaOffset := uint32(0)
	glyphOffset := uint32(2 * (numGlyphs + 1))
	info := &header.Info{
		IsTTF:           true,
		GlyphOffset:     glyphOffset,
		GlyphDataOffset: locaOffset,
		OffsetSize:      2,
		NumGlyphs:       numGlyphs,
	}
	headerBytes := info.Encode()
	fontBytes := make([]byte, glyphOffset+64)
	body := rle.Encode(fontBytes)
	return info, append(append([]byte(nil), headerBytes...), body...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinNonObfuscationLength = 0 // deterministic batches
	cfg.PersistDelay = 20 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestOpenColdStartThenLoadChars(t *testing.T) {
	_, raw := buildFixture(5)
	be := &backend.Fake{Base: raw, BundleGlyphID: map[incrfont.CodePoint]incrfont.GlyphID{}}
	st := store.NewFake()
	fb := face.NewFake()

	f := New("testfont", testConfig(), be, st, fb, cmap.Mapping{}, nil)
	if err := f.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.State(); got != Ready {
		t.Fatalf("state after cold open: got %v, want Ready", got)
	}

	chars := []incrfont.CodePoint{'a', 'b', 'c'}
	if err := <-f.RequestChars(chars); err != nil {
		t.Fatal(err)
	}

	if len(be.RequestedBatches) != 1 {
		t.Fatalf("backend calls: got %d, want 1", len(be.RequestedBatches))
	}
	if len(be.RequestedBatches[0]) != 3 {
		t.Fatalf("requested batch size: got %d, want 3", len(be.RequestedBatches[0]))
	}

	f.mu.Lock()
	for _, c := range chars {
		if _, ok := f.charList[c]; !ok {
			t.Errorf("charList missing %c after load", rune(c))
		}
	}
	f.mu.Unlock()

	waitFor(t, time.Second, func() bool { return len(st.Puts) >= 2 })
}

func TestOpenWarmStart(t *testing.T) {
	info, raw := buildFixture(5)
	headerBytes := info.Encode()
	expanded, err := rle.Decode(nil, raw[len(headerBytes):])
	if err != nil {
		t.Fatal(err)
	}

	st := store.NewFake()
	baseBlob := append(append([]byte(nil), headerBytes...), expanded...)
	if err := st.Put(context.Background(), "testfont", store.Base, baseBlob); err != nil {
		t.Fatal(err)
	}
	charlistBlob := encodeCharList([]incrfont.CodePoint{'x', 'y'})
	if err := st.Put(context.Background(), "testfont", store.Charlist, charlistBlob); err != nil {
		t.Fatal(err)
	}

	be := &backend.Fake{}
	fb := face.NewFake()
	f := New("testfont", testConfig(), be, st, fb, cmap.Mapping{}, nil)
	if err := f.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.State(); got != Ready {
		t.Fatalf("state after warm open: got %v, want Ready", got)
	}

	f.mu.Lock()
	_, hasX := f.charList['x']
	_, hasY := f.charList['y']
	f.mu.Unlock()
	if !hasX || !hasY {
		t.Fatal("warm-started charList missing persisted entries")
	}

	// A request for chars already in the warm-started charList issues no
	// backend call.
	if err := <-f.RequestChars([]incrfont.CodePoint{'x'}); err != nil {
		t.Fatal(err)
	}
	if len(be.RequestedBatches) != 0 {
		t.Fatalf("backend calls for already-loaded chars: got %d, want 0", len(be.RequestedBatches))
	}
}

func TestLoadCharsSplitsAtReqSize(t *testing.T) {
	_, raw := buildFixture(5)
	be := &backend.Fake{Base: raw}
	st := store.NewFake()
	fb := face.NewFake()

	cfg := testConfig()
	cfg.ReqSize = 2
	f := New("testfont", cfg, be, st, fb, cmap.Mapping{}, nil)
	if err := f.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := <-f.RequestChars([]incrfont.CodePoint{'a', 'b', 'c'}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return len(be.RequestedBatches) >= 2 })

	if len(be.RequestedBatches[0]) != 2 {
		t.Errorf("first batch size: got %d, want 2", len(be.RequestedBatches[0]))
	}
	if len(be.RequestedBatches[1]) != 1 {
		t.Errorf("second (macro-task) batch size: got %d, want 1", len(be.RequestedBatches[1]))
	}
}

func TestPersistCoalescesRapidCalls(t *testing.T) {
	_, raw := buildFixture(5)
	be := &backend.Fake{Base: raw}
	st := store.NewFake()
	fb := face.NewFake()

	cfg := testConfig()
	cfg.PersistDelay = 50 * time.Millisecond
	f := New("testfont", cfg, be, st, fb, cmap.Mapping{}, nil)
	if err := f.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Cold-open itself already armed one persist; let it fire and drain the
	// bookkeeping before the real assertion below.
	waitFor(t, time.Second, func() bool { return len(st.Puts) >= 2 })
	baseCalls := 0
	for _, p := range st.Puts {
		if p.Slot == store.Base {
			baseCalls++
		}
	}
	if baseCalls != 1 {
		t.Fatalf("base Put calls after cold-open settle: got %d, want 1", baseCalls)
	}

	for i := 0; i < 5; i++ {
		f.schedulePersist(true, false)
	}
	waitFor(t, time.Second, func() bool {
		calls := 0
		for _, p := range st.Puts {
			if p.Slot == store.Base {
				calls++
			}
		}
		return calls == 2
	})

	calls := 0
	for _, p := range st.Puts {
		if p.Slot == store.Base {
			calls++
		}
	}
	if calls != 2 {
		t.Fatalf("base Put calls after 5 rapid schedulePersist: got %d, want 2 (one from cold-open, one coalesced)", calls)
	}
}

func TestLoadCharsBackendFailureRollsBackCharList(t *testing.T) {
	_, raw := buildFixture(5)
	be := &backend.Fake{Base: raw, FailNext: 1}
	st := store.NewFake()
	fb := face.NewFake()

	f := New("testfont", testConfig(), be, st, fb, cmap.Mapping{}, nil)
	if err := f.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := <-f.RequestChars([]incrfont.CodePoint{'q'})
	if err == nil {
		t.Fatal("expected backend failure to surface")
	}
	f.mu.Lock()
	_, inCharList := f.charList['q']
	f.mu.Unlock()
	if inCharList {
		t.Fatal("charList was not rolled back after backend failure")
	}

	// Retry succeeds now that FailNext is exhausted; requesting 'q' again
	// issues a new backend call because the failed attempt left it out of
	// charList.
	if err := <-f.RequestChars([]incrfont.CodePoint{'q'}); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	_, inCharList = f.charList['q']
	f.mu.Unlock()
	if !inCharList {
		t.Fatal("retry did not load the char after the transient failure cleared")
	}
}

func TestSetFontTwoStageSwap(t *testing.T) {
	_, raw := buildFixture(5)
	be := &backend.Fake{Base: raw}
	st := store.NewFake()
	fb := face.NewFake()

	f := New("testfont", testConfig(), be, st, fb, cmap.Mapping{}, nil)
	if err := f.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := <-f.SetFont(context.Background(), "MyFont", "400"); err != nil {
		t.Fatal(err)
	}
	if len(fb.Installed) != 1 || len(fb.Preloaded) != 1 || len(fb.Promoted) != 1 {
		t.Fatalf("expected one install/preload/promote, got %d/%d/%d", len(fb.Installed), len(fb.Preloaded), len(fb.Promoted))
	}
	if !fb.Visible[f.class] {
		t.Fatal("class not marked visible after promote")
	}
}
