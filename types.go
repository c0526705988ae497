package incrfont

// GlyphID is a glyph index into a font's glyph table.
type GlyphID uint16

// CodePoint is a Unicode code point, the key used throughout the engine
// instead of the build tool's stringified-codepoint maps (see spec §9).
type CodePoint uint32
