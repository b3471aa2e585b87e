package textcore

import (
	"testing"
)

func TestTextLineColumn(t *testing.T) {
	text := NewText("héllo\nwörld\n")

	tests := []struct {
		offset       int
		line, column int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{3, 1, 3}, // after the two-byte é
		{6, 1, 6}, // the newline itself
		{7, 2, 1},
		{9, 2, 3}, // after ö
		{14, 3, 1},
		{-4, 1, 1},
		{99, 3, 1},
	}
	for _, tt := range tests {
		line, col := text.LineColumn(tt.offset)
		if line != tt.line || col != tt.column {
			t.Errorf("LineColumn(%d) = %d:%d, want %d:%d", tt.offset, line, col, tt.line, tt.column)
		}
	}
}

func TestTextOffset(t *testing.T) {
	text := NewText("héllo\nwörld\nend")

	tests := []struct {
		line, column int
		offset       int
	}{
		{1, 1, 0},
		{1, 3, 3},
		{0, 0, 0},    // zero is treated as one
		{1, 99, 6},   // clamps before the newline
		{2, 3, 10},   // after ö
		{3, 4, 17},   // end of a line without newline
		{3, 99, 17},  // clamps to the end
		{10, 1, 17},  // past the last line
		{2, 0, 7},
	}
	for _, tt := range tests {
		if got := text.Offset(tt.line, tt.column); got != tt.offset {
			t.Errorf("Offset(%d, %d) = %d, want %d", tt.line, tt.column, got, tt.offset)
		}
	}
}

func TestTextOffsetCRLF(t *testing.T) {
	text := NewText("ab\r\ncd")

	// Past-end columns clamp before the whole "\r\n" terminator.
	for _, col := range []int{3, 4, 99} {
		if got := text.Offset(1, col); got != 2 {
			t.Errorf("Offset(1, %d) = %d, want 2", col, got)
		}
	}
	if line, col := text.LineColumn(3); line != 1 || col != 3 {
		t.Errorf("LineColumn(3) = %d:%d, want 1:3", line, col)
	}
	if got := text.Offset(2, 1); got != 4 {
		t.Errorf("Offset(2, 1) = %d, want 4", got)
	}
}

func TestTextRoundTrip(t *testing.T) {
	s := "a😀b\n\n你好\r\nend"
	text := NewText(s)
	for offset := 0; offset <= len(s); offset++ {
		line, col := text.LineColumn(offset)
		back := text.Offset(line, col)
		// Offsets inside a multi-byte rune map to the rune's own column.
		line2, col2 := text.LineColumn(back)
		if line2 != line || col2 != col {
			t.Errorf("offset %d -> %d:%d -> %d -> %d:%d", offset, line, col, back, line2, col2)
		}
	}
}

func TestTextLine(t *testing.T) {
	text := NewText("one\r\ntwo\nthree")
	want := []string{"one", "two", "three"}
	if text.LineCount() != len(want) {
		t.Fatalf("LineCount() = %d, want %d", text.LineCount(), len(want))
	}
	for i, w := range want {
		if got, ok := text.Line(i); !ok || got != w {
			t.Errorf("Line(%d) = %q, %v; want %q", i, got, ok, w)
		}
	}
	if _, ok := text.Line(3); ok {
		t.Error("Line(3) should not exist")
	}
}

func TestDecodeLossy(t *testing.T) {
	if got := decodeLossy([]byte("plain")); got != "plain" {
		t.Errorf("decodeLossy(plain) = %q", got)
	}
	got := decodeLossy([]byte{'a', 0xff, 'b'})
	if got != "a�b" {
		t.Errorf("decodeLossy(invalid) = %q, want %q", got, "a�b")
	}
}
