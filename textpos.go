package textcore

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
)

// TextProvider is the view of a text that the anchor engine needs.
// Lines and columns are 1-based; a column advances by one per code point.
type TextProvider interface {
	// Len returns the size of the text in bytes.
	Len() int

	// LineColumn converts a byte offset to a line and column.
	LineColumn(offset int) (line, column int)

	// Offset converts a line and column to a byte offset. Line or column 0
	// is treated as 1; positions past a line's end clamp to that end and
	// lines past the end of the text clamp to Len.
	Offset(line, column int) int
}

// Text is an immutable string with a line index for position conversion.
type Text struct {
	data  string
	index *LineIndex
}

// NewText indexes s for line/column lookups.
func NewText(s string) *Text {
	return &Text{data: s, index: buildLineIndexString(s)}
}

// Len returns the size of the text in bytes.
func (t *Text) Len() int {
	return len(t.data)
}

// String returns the text.
func (t *Text) String() string {
	return t.data
}

// LineCount returns the number of lines, not counting an empty line after a
// trailing newline.
func (t *Text) LineCount() int {
	return t.index.Lines()
}

// Line returns line n (0-indexed) without its terminator.
func (t *Text) Line(n int) (string, bool) {
	if n < 0 || n >= t.index.Lines() {
		return "", false
	}
	return trimLineEnding(t.data[t.index.Start(n):t.index.End(n)]), true
}

// LineColumn converts a byte offset to a 1-based line and column.
// Offsets outside the text are clamped first; an offset inside a multi-byte
// sequence reports the column of the code point it falls in. A "\r\n"
// terminator is one column, so its "\n" reports the column of its "\r".
func (t *Text) LineColumn(offset int) (line, column int) {
	offset = clampOffset(offset, len(t.data))
	n := t.index.LineOf(int64(offset))
	start := int(t.index.Start(n))
	for offset > start && offset < len(t.data) && !utf8.RuneStart(t.data[offset]) {
		offset--
	}
	if offset > start && offset < len(t.data) && t.data[offset] == '\n' && t.data[offset-1] == '\r' {
		offset--
	}
	return n + 1, utf8.RuneCountInString(t.data[start:offset]) + 1
}

// Offset converts a 1-based line and column to a byte offset.
func (t *Text) Offset(line, column int) int {
	if line < 1 {
		line = 1
	}
	if column < 1 {
		column = 1
	}

	// The empty line after a trailing newline is addressable.
	if line > len(t.index.starts) {
		return len(t.data)
	}

	start := int(t.index.Start(line - 1))
	end := int(t.index.End(line - 1))
	content := trimLineEnding(t.data[start:end])

	pos := 0
	for i := 1; i < column && pos < len(content); i++ {
		_, size := utf8.DecodeRuneInString(content[pos:])
		pos += size
	}
	return start + pos
}

// trimLineEnding strips a trailing "\n" or "\r\n".
func trimLineEnding(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// decodeLossy converts raw bytes to a string, replacing ill-formed UTF-8
// sequences with U+FFFD.
func decodeLossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return runes.ReplaceIllFormed().String(string(b))
}
