package textcore

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

// checkBuffer verifies the structural invariants of b.
func checkBuffer(t *testing.T, b *Buffer) {
	t.Helper()

	sum := 0
	for i, p := range b.pieces {
		if p.Len <= 0 {
			t.Fatalf("piece %d has length %d", i, p.Len)
		}
		var srcLen int
		switch p.Source {
		case SourceOriginal:
			srcLen = len(b.original)
		case SourceAdded:
			srcLen = len(b.added)
		}
		if p.Start < 0 || p.end() > srcLen {
			t.Fatalf("piece %d [%d,%d) outside %s source of %d bytes", i, p.Start, p.end(), p.Source, srcLen)
		}
		if i > 0 && b.pieces[i-1].joins(p) {
			t.Fatalf("pieces %d and %d should have been coalesced: %+v %+v", i-1, i, b.pieces[i-1], p)
		}
		sum += p.Len
	}
	if sum != b.Len() {
		t.Fatalf("piece lengths sum to %d, Len() = %d", sum, b.Len())
	}
	if got := len(b.String()); got != b.Len() {
		t.Fatalf("String() has %d bytes, Len() = %d", got, b.Len())
	}
}

func TestNewBuffer(t *testing.T) {
	b := NewBuffer()
	if b.Len() != 0 || !b.IsEmpty() {
		t.Errorf("Expected empty buffer, got Len=%d", b.Len())
	}
	if len(b.Pieces()) != 0 {
		t.Errorf("Expected no pieces, got %d", len(b.Pieces()))
	}
	if b.String() != "" {
		t.Errorf("Expected empty string, got %q", b.String())
	}
	checkBuffer(t, b)
}

func TestBufferFromText(t *testing.T) {
	b := NewBufferFromText("hello")
	if b.Len() != 5 {
		t.Errorf("Expected Len 5, got %d", b.Len())
	}
	pieces := b.Pieces()
	if len(pieces) != 1 || pieces[0] != (Piece{Source: SourceOriginal, Start: 0, Len: 5}) {
		t.Errorf("Expected one original piece, got %+v", pieces)
	}
	checkBuffer(t, b)
}

func TestBufferBasicEdit(t *testing.T) {
	b := NewBufferFromText("hello world")

	if err := b.Insert(5, ", brave"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if got := b.Slice(0, b.Len()); got != "hello, brave world" {
		t.Errorf("After insert expected %q, got %q", "hello, brave world", got)
	}
	checkBuffer(t, b)

	if err := b.Delete(5, 12); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := b.String(); got != "hello world" {
		t.Errorf("After delete expected %q, got %q", "hello world", got)
	}
	checkBuffer(t, b)

	// Deleting exactly the inserted text leaves the original pieces, which
	// coalesce back into one.
	if n := len(b.Pieces()); n != 1 {
		t.Errorf("Expected 1 piece after undoing the insert, got %d: %+v", n, b.Pieces())
	}
}

func TestBufferUnicodeDelete(t *testing.T) {
	b := NewBufferFromText("😀你好🌍")
	if b.Len() != 14 {
		t.Fatalf("Expected 14 bytes, got %d", b.Len())
	}

	if err := b.Delete(0, 4); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := b.String(); got != "你好🌍" {
		t.Errorf("Expected %q, got %q", "你好🌍", got)
	}
	if got := b.CharCount(); got != 3 {
		t.Errorf("Expected 3 chars, got %d", got)
	}
	checkBuffer(t, b)
}

func TestBufferInsertOutOfRange(t *testing.T) {
	b := NewBufferFromText("abc")

	if err := b.Insert(4, "x"); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("Expected ErrOffsetOutOfRange, got %v", err)
	}
	if err := b.Insert(-1, "x"); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("Expected ErrOffsetOutOfRange for negative offset, got %v", err)
	}
	if b.String() != "abc" {
		t.Errorf("Failed insert changed content to %q", b.String())
	}

	// Insert at the very end is allowed.
	if err := b.Insert(3, "d"); err != nil {
		t.Fatalf("Insert at end failed: %v", err)
	}
	if b.String() != "abcd" {
		t.Errorf("Expected %q, got %q", "abcd", b.String())
	}
}

func TestBufferDeleteOutOfRange(t *testing.T) {
	b := NewBufferFromText("abc")

	cases := [][2]int{{0, 4}, {-1, 2}, {2, 1}}
	for _, c := range cases {
		if err := b.Delete(c[0], c[1]); !errors.Is(err, ErrOffsetOutOfRange) {
			t.Errorf("Delete(%d, %d): expected ErrOffsetOutOfRange, got %v", c[0], c[1], err)
		}
	}
	if b.String() != "abc" {
		t.Errorf("Failed deletes changed content to %q", b.String())
	}
}

func TestBufferNoOps(t *testing.T) {
	b := NewBufferFromText("abc")
	before := b.Pieces()

	if err := b.Insert(1, ""); err != nil {
		t.Fatalf("Empty insert failed: %v", err)
	}
	if err := b.Delete(2, 2); err != nil {
		t.Fatalf("Empty delete failed: %v", err)
	}

	after := b.Pieces()
	if len(before) != len(after) || before[0] != after[0] {
		t.Errorf("No-op edits changed pieces: %+v -> %+v", before, after)
	}
	if len(b.added) != 0 {
		t.Errorf("Empty insert grew the added buffer to %d bytes", len(b.added))
	}
}

func TestBufferSliceClamping(t *testing.T) {
	b := NewBufferFromText("hello")
	b.Insert(5, " world")

	tests := []struct {
		start, end int
		want       string
	}{
		{0, 11, "hello world"},
		{-5, 3, "hel"},
		{3, 100, "lo world"},
		{4, 7, "o w"},
		{8, 2, ""},
		{11, 11, ""},
	}
	for _, tt := range tests {
		if got := b.Slice(tt.start, tt.end); got != tt.want {
			t.Errorf("Slice(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestBufferTypingCoalesces(t *testing.T) {
	b := NewBufferFromText("ac")

	// Typing "b", "b", "b" one byte at a time at consecutive offsets keeps a
	// single added piece.
	for i := 0; i < 3; i++ {
		if err := b.Insert(1+i, "b"); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	if b.String() != "abbbc" {
		t.Fatalf("Expected %q, got %q", "abbbc", b.String())
	}
	if n := len(b.Pieces()); n != 3 {
		t.Errorf("Expected 3 pieces (original, added, original), got %d: %+v", n, b.Pieces())
	}
	checkBuffer(t, b)
}

func TestBufferReplace(t *testing.T) {
	b := NewBufferFromText("The quick brown fox")
	if err := b.Replace(4, 9, "slow"); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if b.String() != "The slow brown fox" {
		t.Errorf("Expected %q, got %q", "The slow brown fox", b.String())
	}
	checkBuffer(t, b)

	// An invalid range leaves the buffer untouched.
	if err := b.Replace(10, 100, "x"); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("Expected ErrOffsetOutOfRange, got %v", err)
	}
	if b.String() != "The slow brown fox" {
		t.Errorf("Failed replace changed content to %q", b.String())
	}
}

func TestBufferClone(t *testing.T) {
	b := NewBufferFromText("base")
	b.Insert(4, "-one")

	c := b.Clone()
	b.Insert(0, "A:")
	c.Insert(0, "B:")
	c.Insert(c.Len(), "-two")

	if b.String() != "A:base-one" {
		t.Errorf("Original: expected %q, got %q", "A:base-one", b.String())
	}
	if c.String() != "B:base-one-two" {
		t.Errorf("Clone: expected %q, got %q", "B:base-one-two", c.String())
	}
	checkBuffer(t, b)
	checkBuffer(t, c)
}

func TestBufferLines(t *testing.T) {
	b := NewBufferFromText("one\ntwo\n")
	b.Insert(4, "middle\n")

	if n := b.LineCount(); n != 3 {
		t.Fatalf("Expected 3 lines, got %d", n)
	}
	want := []string{"one", "middle", "two"}
	for i, w := range want {
		got, ok := b.Line(i)
		if !ok || got != w {
			t.Errorf("Line(%d) = %q, %v; want %q", i, got, ok, w)
		}
	}
	if _, ok := b.Line(3); ok {
		t.Error("Line(3) should not exist")
	}

	line, col := b.LineColumn(6)
	if line != 2 || col != 3 {
		t.Errorf("LineColumn(6) = %d:%d, want 2:3", line, col)
	}
	if off := b.Offset(3, 2); off != 12 {
		t.Errorf("Offset(3, 2) = %d, want 12", off)
	}
}

// randomEdit applies one random operation to both b and the model string.
func randomEdit(t *testing.T, rng *rand.Rand, b *Buffer, model string) string {
	t.Helper()
	words := []string{"a", "xyz", "\n", "😀", "你好", "line\n", ""}

	switch rng.IntN(3) {
	case 0:
		at := rng.IntN(len(model) + 1)
		s := words[rng.IntN(len(words))]
		if err := b.Insert(at, s); err != nil {
			t.Fatalf("Insert(%d, %q) failed: %v", at, s, err)
		}
		return model[:at] + s + model[at:]
	case 1:
		start := rng.IntN(len(model) + 1)
		end := start + rng.IntN(len(model)-start+1)
		if err := b.Delete(start, end); err != nil {
			t.Fatalf("Delete(%d, %d) failed: %v", start, end, err)
		}
		return model[:start] + model[end:]
	default:
		start := rng.IntN(len(model) + 1)
		end := start + rng.IntN(len(model)-start+1)
		s := words[rng.IntN(len(words))]
		if err := b.Replace(start, end, s); err != nil {
			t.Fatalf("Replace(%d, %d, %q) failed: %v", start, end, s, err)
		}
		return model[:start] + s + model[end:]
	}
}

func TestBufferRandomEditsMatchModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for round := 0; round < 20; round++ {
		model := strings.Repeat("seed text\n", round)
		b := NewBufferFromText(model)
		for step := 0; step < 200; step++ {
			model = randomEdit(t, rng, b, model)
			if got := b.String(); got != model {
				t.Fatalf("round %d step %d: buffer %q, model %q", round, step, got, model)
			}
			checkBuffer(t, b)
		}
	}
}

func TestBufferInsertDeleteInverse(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	texts := []string{"", "abc", "hello world", "😀你好🌍", "a\nb\nc\n"}
	inserts := []string{"x", "你好", "multi\nline", "🌍🌍"}

	for _, text := range texts {
		for _, s := range inserts {
			b := NewBufferFromText(text)
			// Scramble the piece structure first.
			for i := 0; i < 5; i++ {
				at := rng.IntN(b.Len() + 1)
				b.Insert(at, "#")
				b.Delete(at, at+1)
			}
			o := rng.IntN(len(text) + 1)
			if err := b.Insert(o, s); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
			if err := b.Delete(o, o+len(s)); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if b.String() != text {
				t.Errorf("insert/delete of %q at %d in %q gave %q", s, o, text, b.String())
			}
			checkBuffer(t, b)
		}
	}
}

func TestBufferReplaceEquivalence(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	text := "The quick brown fox jumps over the lazy dog\n"

	for i := 0; i < 100; i++ {
		start := rng.IntN(len(text) + 1)
		end := start + rng.IntN(len(text)-start+1)
		s := []string{"", "cat", "🐈", "two\nlines"}[rng.IntN(4)]

		a := NewBufferFromText(text)
		if err := a.Replace(start, end, s); err != nil {
			t.Fatalf("Replace failed: %v", err)
		}

		b := NewBufferFromText(text)
		b.Delete(start, end)
		b.Insert(start, s)

		if a.String() != b.String() {
			t.Errorf("Replace(%d, %d, %q) = %q, delete+insert = %q", start, end, s, a.String(), b.String())
		}
	}
}
