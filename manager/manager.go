// Package manager implements the Font Manager (spec.md §4.6): the
// per-font state machine that owns the in-memory base, drives LoadChars,
// SetFont, and persistence, and serializes each against the others through
// an explicit taskqueue.Queue per the redesign note in spec.md §9.
package manager

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"tachyfont.dev/incrfont"
	"tachyfont.dev/incrfont/backend"
	"tachyfont.dev/incrfont/cmap"
	"tachyfont.dev/incrfont/editor"
	"tachyfont.dev/incrfont/face"
	"tachyfont.dev/incrfont/header"
	"tachyfont.dev/incrfont/inject"
	"tachyfont.dev/incrfont/rle"
	"tachyfont.dev/incrfont/sanitize"
	"tachyfont.dev/incrfont/store"
	"tachyfont.dev/incrfont/tachylog"
	"tachyfont.dev/incrfont/taskqueue"

	"golang.org/x/text/unicode/norm"
)

// State is a Font's position in the lifecycle of spec.md §4.6.
type State int

const (
	Opening State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Opening:
		return "Opening"
	case Loading:
		return "Loading"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// PersistState tracks which persisted slots are stale, lifted out of the
// header the way spec.md §9's redesign note calls for: Info is a pure parse
// result, and "dirty" bookkeeping lives here instead.
type PersistState struct {
	BaseDirty     bool
	CharlistDirty bool
}

// Config holds the Font Manager's tunables (spec.md §4.6), each with the
// default spec.md gives it.
type Config struct {
	// Visibility is the font-face CSS class's initial visibility rule,
	// applied when Open completes: "hidden" or "visible".
	Visibility string

	// MaxVisibilityTimeout unconditionally flips the class visible after
	// this long, even if SetFont never ran, so a slow network never hides
	// text forever.
	MaxVisibilityTimeout time.Duration

	// ReqSize caps how many code points one RequestCodepoints call may
	// carry; a larger LoadChars is split into sequential batches.
	ReqSize int

	// PersistData disables all Store traffic when false (useful for
	// environments with no durable storage).
	PersistData bool

	// PersistDelay is the single-shot coalescing window of spec.md §4.6.2.
	PersistDelay time.Duration

	// MinNonObfuscationLength is the request size at or above which
	// obfuscation padding (spec.md §4.6.1) is skipped entirely. Tests set
	// this to 0 to get deterministic, unpadded batches.
	MinNonObfuscationLength int

	// ObfuscationRange is the width of the window, centered on a real
	// requested code point, that a synthetic padding code point is drawn
	// from.
	ObfuscationRange incrfont.CodePoint
}

// DefaultConfig returns the spec.md §4.6 defaults.
func DefaultConfig() Config {
	return Config{
		Visibility:              "hidden",
		MaxVisibilityTimeout:    3000 * time.Millisecond,
		ReqSize:                 2200,
		PersistData:             true,
		PersistDelay:            1000 * time.Millisecond,
		MinNonObfuscationLength: 20,
		ObfuscationRange:        256,
	}
}

// Font is one managed, incrementally-patched font instance.
type Font struct {
	name  string
	cfg   Config
	class string // font-face CSS class name

	backend backend.Service
	store   store.Store
	face    face.Binder
	mapping cmap.Mapping
	log     *slog.Logger
	rand    *rand.Rand

	loadQueue    *taskqueue.Queue
	setFontQueue *taskqueue.Queue
	persistQueue *taskqueue.Queue

	mu               sync.Mutex
	state            State
	headerPrefix     []byte
	info             *header.Info
	base             *editor.Buffer
	cm               *cmap.Manager
	hasOneCharPerSeg bool
	charList         map[incrfont.CodePoint]struct{}
	charsToLoad      map[incrfont.CodePoint]struct{}
	persistState     PersistState
	persistTimer     *time.Timer
	visTimer         *time.Timer
	needToSetFont    bool
}

// New constructs a Font in the Opening state. Call Open to bring it to
// Ready before calling RequestChars or SetFont.
func New(name string, cfg Config, be backend.Service, st store.Store, fb face.Binder, mapping cmap.Mapping, log *slog.Logger) *Font {
	if log == nil {
		log = tachylog.Discard()
	}
	return &Font{
		name:  name,
		cfg:   cfg,
		class: "tachyfont-" + norm.NFC.String(name),
		backend:     be,
		store:       st,
		face:        fb,
		mapping:     mapping,
		log:         log,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		loadQueue:    taskqueue.New(),
		setFontQueue: taskqueue.New(),
		persistQueue: taskqueue.New(),
		state:        Opening,
		charList:    make(map[incrfont.CodePoint]struct{}),
		charsToLoad: make(map[incrfont.CodePoint]struct{}),
	}
}

// State returns the Font's current lifecycle state.
func (f *Font) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// NeedToSetFont reports whether any LoadChars call since the last SetFont
// injected glyph bytes, meaning the installed face is now stale.
func (f *Font) NeedToSetFont() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.needToSetFont
}

func corrupt(reason string) error {
	return &incrfont.Error{Kind: incrfont.CorruptFont, SubSystem: "manager", Reason: reason}
}

// Open brings the Font from Opening to Ready, loading its base either from
// the persistent Store (warm start) or the backend (cold start), per
// spec.md §4.6.
func (f *Font) Open(ctx context.Context) error {
	f.mu.Lock()
	f.state = Loading
	f.mu.Unlock()

	var baseBytes []byte
	var fromStore bool
	if f.cfg.PersistData {
		b, err := f.store.Get(ctx, f.name, store.Base)
		switch {
		case err == nil:
			baseBytes, fromStore = b, true
		case incrfont.Is(err, incrfont.PersistMiss):
			// fall through to cold start
		default:
			f.fail()
			return err
		}
	}

	if fromStore {
		if err := f.openWarm(ctx, baseBytes); err != nil {
			f.fail()
			return err
		}
	} else {
		if err := f.openCold(ctx); err != nil {
			f.fail()
			return err
		}
	}

	f.mu.Lock()
	f.cm = cmap.New(f.info, f.base)
	f.state = Ready
	f.mu.Unlock()

	f.armVisibilityTimer()
	return nil
}

func (f *Font) fail() {
	f.mu.Lock()
	f.state = Failed
	f.mu.Unlock()
}

func (f *Font) openWarm(ctx context.Context, baseBytes []byte) error {
	info, n, err := header.Parse(baseBytes)
	if err != nil {
		return err
	}
	headerPrefix := append([]byte(nil), baseBytes[:n]...)
	expanded := append([]byte(nil), baseBytes[n:]...)

	charList := make(map[incrfont.CodePoint]struct{})
	if clBytes, err := f.store.Get(ctx, f.name, store.Charlist); err == nil {
		for _, c := range decodeCharList(clBytes) {
			charList[c] = struct{}{}
		}
	} else if !incrfont.Is(err, incrfont.PersistMiss) {
		return err
	}

	f.mu.Lock()
	f.info = info
	f.headerPrefix = headerPrefix
	f.base = editor.New(expanded)
	f.hasOneCharPerSeg = info.HasOneCharPerSeg()
	f.charList = charList
	f.mu.Unlock()
	return nil
}

func (f *Font) openCold(ctx context.Context) error {
	raw, err := f.backend.RequestFontBase(ctx, f.name)
	if err != nil {
		return err
	}
	info, n, err := header.Parse(raw)
	if err != nil {
		return err
	}
	headerPrefix := append([]byte(nil), raw[:n]...)
	expanded, err := rle.Decode(nil, raw[n:])
	if err != nil {
		return err
	}
	buf := editor.New(expanded)
	if err := sanitize.Run(info, buf); err != nil {
		return err
	}

	cm := cmap.New(info, buf)
	hasOneCharPerSeg := info.HasOneCharPerSeg()
	if err := cm.WriteCmap12(hasOneCharPerSeg); err != nil {
		return err
	}
	if err := cm.WriteCmap4(hasOneCharPerSeg); err != nil {
		return err
	}

	f.mu.Lock()
	f.info = info
	f.headerPrefix = headerPrefix
	f.base = buf
	f.hasOneCharPerSeg = hasOneCharPerSeg
	f.charList = make(map[incrfont.CodePoint]struct{})
	f.persistState.BaseDirty = true
	f.persistState.CharlistDirty = true
	f.mu.Unlock()

	f.schedulePersist(true, true)
	return nil
}

func (f *Font) armVisibilityTimer() {
	visible := f.cfg.Visibility == "visible"
	f.face.SetVisibility(f.class, visible)
	if !visible {
		f.visTimer = time.AfterFunc(f.cfg.MaxVisibilityTimeout, func() {
			f.face.SetVisibility(f.class, true)
		})
	}
}

// RequestChars queues chars for the next LoadChars pass and runs it,
// serialized behind any LoadChars already in flight. The returned channel
// carries the outcome of this specific call once it (and everything ahead
// of it) has run.
func (f *Font) RequestChars(chars []incrfont.CodePoint) <-chan error {
	f.mu.Lock()
	for _, c := range chars {
		f.charsToLoad[c] = struct{}{}
	}
	f.mu.Unlock()
	return f.loadQueue.Submit(func() error {
		_, err := f.loadCharsOnce(context.Background())
		return err
	})
}

// loadCharsOnce implements the 12-step algorithm of spec.md §4.6. It
// returns whether a backend request was actually issued.
func (f *Font) loadCharsOnce(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if f.state != Ready {
		f.mu.Unlock()
		return false, corrupt("loadChars called while not Ready")
	}
	requested := make([]incrfont.CodePoint, 0, len(f.charsToLoad))
	for c := range f.charsToLoad {
		requested = append(requested, c)
	}
	f.mu.Unlock()

	if len(requested) == 0 {
		return false, nil
	}

	f.mu.Lock()
	var needed []incrfont.CodePoint
	for _, c := range requested {
		if _, ok := f.charList[c]; !ok {
			needed = append(needed, c)
		}
	}
	for _, c := range requested {
		delete(f.charsToLoad, c)
	}
	f.mu.Unlock()

	if len(needed) == 0 {
		return false, nil
	}

	needed = f.obfuscate(needed)
	sort.Slice(needed, func(i, j int) bool { return needed[i] < needed[j] })

	var remaining []incrfont.CodePoint
	batch := needed
	if len(batch) > f.cfg.ReqSize {
		remaining = append(remaining, batch[f.cfg.ReqSize:]...)
		batch = batch[:f.cfg.ReqSize]
	}

	if err := f.sendBatch(ctx, batch); err != nil {
		return false, err
	}

	if len(remaining) > 0 {
		// Schedule the rest as a follow-up task on the same queue (a
		// "macro-task", spec.md §4.6 step 6) rather than recursing inline,
		// so an in-flight LoadChars never blocks newly requested chars from
		// being queued.
		f.loadQueue.Submit(func() error {
			return f.sendBatch(context.Background(), remaining)
		})
	}
	return true, nil
}

// sendBatch performs steps 7-12 of spec.md §4.6's loadChars algorithm for
// one request-sized batch: optimistic charList update, the backend fetch,
// glyph injection, and scheduling the resulting persist.
func (f *Font) sendBatch(ctx context.Context, batch []incrfont.CodePoint) error {
	f.mu.Lock()
	for _, c := range batch {
		f.charList[c] = struct{}{}
	}
	f.mu.Unlock()

	bndl, err := f.backend.RequestCodepoints(ctx, f.name, batch)
	if err != nil {
		f.log.Error("backend request failed", "err", err)
		f.mu.Lock()
		for _, c := range batch {
			delete(f.charList, c)
		}
		f.mu.Unlock()
		return err
	}

	glyphToCode := make(map[incrfont.GlyphID]incrfont.CodePoint, len(batch))
	for _, c := range batch {
		if info, ok := f.mapping[c]; ok {
			glyphToCode[info.GlyphID] = c
		}
	}

	f.mu.Lock()
	err = inject.Apply(f.info, f.base, bndl, f.mapping, glyphToCode, f.cm, f.hasOneCharPerSeg)
	if err == nil {
		for _, rec := range bndl.Records {
			if rec.Length > 0 {
				f.needToSetFont = true
				break
			}
		}
	}
	f.mu.Unlock()
	if err != nil {
		if incrfont.Is(err, incrfont.CorruptFont) {
			f.fail()
		}
		return err
	}

	f.schedulePersist(true, true)
	return nil
}

// obfuscate implements spec.md §4.6.1: when a requested batch is small
// enough that its size alone would reveal the true code points to a
// backend-log observer, pad it with code points drawn from a window
// centered on each real one, until it clears MinNonObfuscationLength or the
// attempt budget runs out.
func (f *Font) obfuscate(needed []incrfont.CodePoint) []incrfont.CodePoint {
	if len(needed) == 0 || len(needed) >= f.cfg.MinNonObfuscationLength {
		return needed
	}

	have := make(map[incrfont.CodePoint]struct{}, len(needed)*2)
	out := append([]incrfont.CodePoint(nil), needed...)
	for _, c := range needed {
		have[c] = struct{}{}
	}

	deficit := f.cfg.MinNonObfuscationLength - len(needed)
	maxAttempts := 10*deficit + 100
	half := f.cfg.ObfuscationRange / 2

	for attempt := 0; attempt < maxAttempts && len(out) < f.cfg.MinNonObfuscationLength; attempt++ {
		center := needed[attempt%len(needed)]
		var lo incrfont.CodePoint
		if center > half {
			lo = center - half
		}
		hi := center + half
		span := int64(hi-lo) + 1
		candidate := lo + incrfont.CodePoint(f.rand.Int63n(span))
		if _, ok := have[candidate]; ok {
			continue
		}
		have[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

// schedulePersist marks the given dirty flags and, if no coalescing timer
// is already armed, arms one (spec.md §4.6.2).
func (f *Font) schedulePersist(baseDirty, charlistDirty bool) {
	f.mu.Lock()
	if baseDirty {
		f.persistState.BaseDirty = true
	}
	if charlistDirty {
		f.persistState.CharlistDirty = true
	}
	alreadyArmed := f.persistTimer != nil
	if !alreadyArmed {
		f.persistTimer = time.AfterFunc(f.cfg.PersistDelay, f.firePersist)
	}
	f.mu.Unlock()
}

func (f *Font) firePersist() {
	f.mu.Lock()
	f.persistTimer = nil
	f.mu.Unlock()
	<-f.persistQueue.Submit(f.persistTask)
}

// persistTask implements spec.md §4.6.2: snapshot and clear the dirty
// flags, then write whichever slots were dirty. A failed write re-raises
// its flag so the next coalescing window retries it.
func (f *Font) persistTask() error {
	if !f.cfg.PersistData {
		f.mu.Lock()
		f.persistState = PersistState{}
		f.mu.Unlock()
		return nil
	}

	f.mu.Lock()
	baseDirty := f.persistState.BaseDirty
	charlistDirty := f.persistState.CharlistDirty
	f.persistState = PersistState{}
	var baseBytes []byte
	if baseDirty {
		baseBytes = append(append([]byte(nil), f.headerPrefix...), f.base.Bytes()...)
	}
	var charlistBytes []byte
	if charlistDirty {
		chars := make([]incrfont.CodePoint, 0, len(f.charList))
		for c := range f.charList {
			chars = append(chars, c)
		}
		charlistBytes = encodeCharList(chars)
	}
	f.mu.Unlock()

	ctx := context.Background()
	var firstErr error
	if baseDirty {
		if err := f.store.Put(ctx, f.name, store.Base, baseBytes); err != nil {
			f.log.Error("persist base failed", "err", err)
			f.schedulePersist(true, false)
			firstErr = err
		}
	}
	if charlistDirty {
		if err := f.store.Put(ctx, f.name, store.Charlist, charlistBytes); err != nil {
			f.log.Error("persist charlist failed", "err", err)
			f.schedulePersist(false, true)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SetFont performs the two-stage face swap of spec.md §4.6.3: install the
// current base under a temporary family, preload it so OTS has accepted it
// and glyphs are rasterized, then promote it to the real family/weight.
func (f *Font) SetFont(ctx context.Context, family, weight string) <-chan error {
	return f.setFontQueue.Submit(func() error {
		return f.setFontTask(ctx, family, weight)
	})
}

func (f *Font) setFontTask(ctx context.Context, family, weight string) error {
	family = norm.NFC.String(family)

	f.mu.Lock()
	snapshot := append(append([]byte(nil), f.headerPrefix...), f.base.Bytes()...)
	f.mu.Unlock()

	handle, err := f.face.InstallTemporary(ctx, family, weight, snapshot)
	if err != nil {
		return err
	}
	if err := f.face.Preload(ctx, handle, "abcdefghijklmnopqrstuvwxyz", 20); err != nil {
		return err
	}
	if err := f.face.Promote(ctx, handle, family, weight); err != nil {
		return err
	}
	f.face.SetVisibility(f.class, true)

	f.mu.Lock()
	f.needToSetFont = false
	f.mu.Unlock()
	return nil
}
