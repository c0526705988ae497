// Package face declares the Font Face Binder collaborator (out of scope per
// spec.md §1) and provides a no-op fake for tests.
//
// A Binder installs a byte blob under a family/weight and swaps it in
// atomically, and owns the process-global style sheet's visibility rule
// for a font's CSS class (spec.md §4.6, §6).
package face

import (
	"context"
	"strconv"
)

// Binder is the font-face-binder collaborator of spec.md §6.
type Binder interface {
	// SetVisibility marks class visible or hidden.
	SetVisibility(class string, visible bool)

	// InstallTemporary installs data under a temporary family
	// ("tmp-"+family) with the given weight, returning an opaque handle
	// the caller passes to Preload and Promote.
	InstallTemporary(ctx context.Context, family, weight string, data []byte) (handle string, err error)

	// Preload synchronously renders sampleText at sizePx in the temporary
	// family identified by handle, returning once OTS has accepted the
	// font and glyphs are rasterized.
	Preload(ctx context.Context, handle string, sampleText string, sizePx int) error

	// Promote removes any existing @font-face for family+weight and
	// renames the temporary rule identified by handle to family. There is
	// at most one moment during Promote when no rule names family.
	Promote(ctx context.Context, handle string, family, weight string) error
}

// Fake is a no-op Binder for tests: it records calls without touching any
// real style sheet.
type Fake struct {
	Visible      map[string]bool
	Installed    []string // "family/weight" pairs
	Preloaded    []string // handles
	Promoted     []string // handles
	nextHandleID int
}

func NewFake() *Fake {
	return &Fake{Visible: make(map[string]bool)}
}

func (f *Fake) SetVisibility(class string, visible bool) {
	f.Visible[class] = visible
}

func (f *Fake) InstallTemporary(ctx context.Context, family, weight string, data []byte) (string, error) {
	f.nextHandleID++
	handle := family + "/" + weight + "#" + strconv.Itoa(f.nextHandleID)
	f.Installed = append(f.Installed, family+"/"+weight)
	return handle, nil
}

func (f *Fake) Preload(ctx context.Context, handle string, sampleText string, sizePx int) error {
	f.Preloaded = append(f.Preloaded, handle)
	return nil
}

func (f *Fake) Promote(ctx context.Context, handle string, family, weight string) error {
	f.Promoted = append(f.Promoted, handle)
	return nil
}
