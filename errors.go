// Package incrfont implements the TachyFont incremental font engine: binary
// patching of an OpenType/TrueType base font with glyph bundles delivered
// incrementally as a page requests new characters.
package incrfont

// Kind identifies which member of the error taxonomy a Error value reports.
type Kind int

const (
	// CorruptFont indicates a header inconsistency, cmap segCount
	// mismatch, or out-of-bounds buffer access. Fatal for the font.
	CorruptFont Kind = iota + 1
	// CorruptRle indicates a malformed RLE opcode stream. Fatal.
	CorruptRle
	// PersistMiss indicates an expected persistent-store slot was empty.
	// Recovered by fetching from the backend.
	PersistMiss
	// PersistIoError indicates a persistent-store read or write failed.
	PersistIoError
	// BackendError indicates a backend fetch failed.
	BackendError
	// MappingMiss indicates a bundle delivered a glyph whose code point is
	// absent from the cmap mapping. Non-fatal.
	MappingMiss
)

func (k Kind) String() string {
	switch k {
	case CorruptFont:
		return "CorruptFont"
	case CorruptRle:
		return "CorruptRle"
	case PersistMiss:
		return "PersistMiss"
	case PersistIoError:
		return "PersistIoError"
	case BackendError:
		return "BackendError"
	case MappingMiss:
		return "MappingMiss"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every layer of the incremental font
// engine. SubSystem names the component that raised it (e.g. "cmap",
// "inject", "rle"); Reason is a short human-readable description.
type Error struct {
	Kind      Kind
	SubSystem string
	Reason    string
	Err       error // optional wrapped cause
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.SubSystem + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Fatal reports whether an error of this Kind aborts the owning font (moves
// it to the Failed state) rather than merely failing the current operation.
func (k Kind) Fatal() bool {
	return k == CorruptFont || k == CorruptRle
}
