package textcore

import (
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Source identifies which backing string a piece refers to.
type Source int

const (
	// SourceOriginal refers to the immutable text the buffer was seeded with.
	SourceOriginal Source = iota

	// SourceAdded refers to the append-only text accumulated by inserts.
	SourceAdded
)

// String returns a human-readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceOriginal:
		return "original"
	case SourceAdded:
		return "added"
	default:
		return "unknown"
	}
}

// Piece references a contiguous byte range of one of the backing strings.
type Piece struct {
	Source Source
	Start  int
	Len    int
}

// end returns the exclusive end of the piece within its source.
func (p Piece) end() int {
	return p.Start + p.Len
}

// joins reports whether next continues p in the same source with no gap.
func (p Piece) joins(next Piece) bool {
	return p.Source == next.Source && p.end() == next.Start
}

// Buffer is a piece table: an immutable original string, an append-only
// added buffer, and an ordered list of pieces whose concatenation is the
// logical content. Offsets are byte offsets.
//
// A Buffer is not safe for concurrent mutation; the owning Document
// serialises access.
type Buffer struct {
	original string
	added    []byte
	pieces   []Piece
	length   int

	// text caches line/column lookups until the next mutation. Readers
	// sharing a Buffer under a read lock may fill it concurrently.
	text atomic.Pointer[Text]
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferFromText returns a buffer seeded with s as its original text.
func NewBufferFromText(s string) *Buffer {
	b := &Buffer{original: s, length: len(s)}
	if len(s) > 0 {
		b.pieces = []Piece{{Source: SourceOriginal, Start: 0, Len: len(s)}}
	}
	return b
}

// Clone returns an independent copy of the buffer. The original string and
// the current prefix of the added buffer are shared, not copied.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{
		original: b.original,
		// Capping the capacity forces the clone to reallocate on its first
		// append instead of writing into the shared array.
		added:  b.added[:len(b.added):len(b.added)],
		pieces: slices.Clone(b.pieces),
		length: b.length,
	}
	c.text.Store(b.text.Load())
	return c
}

// Len returns the length of the content in bytes.
func (b *Buffer) Len() int {
	return b.length
}

// IsEmpty returns true if the buffer holds no bytes.
func (b *Buffer) IsEmpty() bool {
	return b.length == 0
}

// CharCount returns the number of Unicode code points in the content.
func (b *Buffer) CharCount() int {
	return utf8.RuneCountInString(b.String())
}

// Pieces returns a copy of the current piece list.
func (b *Buffer) Pieces() []Piece {
	return slices.Clone(b.pieces)
}

// String returns the entire content.
func (b *Buffer) String() string {
	return b.Slice(0, b.length)
}

// Slice returns the bytes in [start, end). Bounds are clamped to
// [0, Len()]; an inverted range yields the empty string.
func (b *Buffer) Slice(start, end int) string {
	start = clampOffset(start, b.length)
	end = clampOffset(end, b.length)
	if start >= end {
		return ""
	}

	var sb strings.Builder
	sb.Grow(end - start)

	pos := 0
	for _, p := range b.pieces {
		pStart, pEnd := pos, pos+p.Len
		pos = pEnd
		if pEnd <= start {
			continue
		}
		if pStart >= end {
			break
		}
		from := max(start, pStart) - pStart
		to := min(end, pEnd) - pStart
		b.writePiece(&sb, p, from, to)
	}

	return sb.String()
}

// writePiece appends bytes [from, to) of piece p to sb.
func (b *Buffer) writePiece(sb *strings.Builder, p Piece, from, to int) {
	switch p.Source {
	case SourceOriginal:
		sb.WriteString(b.original[p.Start+from : p.Start+to])
	case SourceAdded:
		sb.Write(b.added[p.Start+from : p.Start+to])
	}
}

// locate returns the index of the piece containing offset and the offset
// within that piece. An offset on a piece boundary resolves to the piece that
// starts there; Len() resolves to (len(pieces), 0).
func (b *Buffer) locate(offset int) (int, int) {
	pos := 0
	for i, p := range b.pieces {
		if offset < pos+p.Len {
			return i, offset - pos
		}
		pos += p.Len
	}
	return len(b.pieces), 0
}

// Insert places text at offset. Existing bytes are never moved: the text is
// appended to the added buffer and referenced by a new piece.
func (b *Buffer) Insert(offset int, text string) error {
	if offset < 0 || offset > b.length {
		return ErrOffsetOutOfRange
	}
	if text == "" {
		return nil
	}

	p := Piece{Source: SourceAdded, Start: len(b.added), Len: len(text)}
	b.added = append(b.added, text...)

	idx, inner := b.locate(offset)
	if inner == 0 {
		if idx > 0 && b.pieces[idx-1].joins(p) {
			// Typing at the end of the previous insert extends it in place.
			b.pieces[idx-1].Len += p.Len
		} else {
			b.pieces = slices.Insert(b.pieces, idx, p)
		}
	} else {
		cur := b.pieces[idx]
		left := Piece{Source: cur.Source, Start: cur.Start, Len: inner}
		right := Piece{Source: cur.Source, Start: cur.Start + inner, Len: cur.Len - inner}
		b.pieces = slices.Replace(b.pieces, idx, idx+1, left, p, right)
	}

	b.length += len(text)
	b.text.Store(nil)
	return nil
}

// Delete removes the bytes in [start, end).
func (b *Buffer) Delete(start, end int) error {
	if start < 0 || end > b.length || start > end {
		return ErrOffsetOutOfRange
	}
	if start == end {
		return nil
	}

	out := make([]Piece, 0, len(b.pieces)+1)
	pos := 0
	for _, p := range b.pieces {
		pStart, pEnd := pos, pos+p.Len
		pos = pEnd

		if pEnd <= start || pStart >= end {
			out = append(out, p)
			continue
		}
		// Keep the uncovered head and tail. A piece straddling the whole
		// range contributes both and is thereby split in two.
		if pStart < start {
			out = append(out, Piece{Source: p.Source, Start: p.Start, Len: start - pStart})
		}
		if pEnd > end {
			out = append(out, Piece{Source: p.Source, Start: p.Start + (end - pStart), Len: pEnd - end})
		}
	}

	b.pieces = coalescePieces(out)
	b.length -= end - start
	b.text.Store(nil)
	return nil
}

// Replace deletes [start, end) and inserts text at start as one operation.
// The range is validated before anything changes.
func (b *Buffer) Replace(start, end int, text string) error {
	if start < 0 || end > b.length || start > end {
		return ErrOffsetOutOfRange
	}
	if err := b.Delete(start, end); err != nil {
		return err
	}
	return b.Insert(start, text)
}

// coalescePieces drops empty pieces and merges neighbours that reference
// contiguous bytes of the same source.
func coalescePieces(pieces []Piece) []Piece {
	out := pieces[:0]
	for _, p := range pieces {
		if p.Len == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].joins(p) {
			out[n-1].Len += p.Len
			continue
		}
		out = append(out, p)
	}
	return out
}

// snapshot returns the cached line-indexed view of the current content.
func (b *Buffer) snapshot() *Text {
	if t := b.text.Load(); t != nil {
		return t
	}
	t := NewText(b.String())
	b.text.Store(t)
	return t
}

// LineColumn converts a byte offset to a 1-based line and column.
func (b *Buffer) LineColumn(offset int) (line, column int) {
	return b.snapshot().LineColumn(offset)
}

// Offset converts a 1-based line and column to a byte offset.
func (b *Buffer) Offset(line, column int) int {
	return b.snapshot().Offset(line, column)
}

// LineCount returns the number of lines in the content.
func (b *Buffer) LineCount() int {
	return b.snapshot().LineCount()
}

// Line returns line n (0-indexed) without its line terminator.
func (b *Buffer) Line(n int) (string, bool) {
	return b.snapshot().Line(n)
}

// clampOffset limits offset to [0, length].
func clampOffset(offset, length int) int {
	if offset < 0 {
		return 0
	}
	if offset > length {
		return length
	}
	return offset
}
