package textcore

import (
	"bytes"
	"sort"
	"strings"
)

// LineIndex is a sorted list of the byte offsets at which lines start.
// The first entry is always 0 and every other entry is one past a newline.
// A newline at the very end of the text produces an entry equal to the text
// size; that entry marks an empty trailing line which is not counted by Lines.
type LineIndex struct {
	starts []int64
	size   int64
}

// BuildLineIndex scans data for newlines.
func BuildLineIndex(data []byte) *LineIndex {
	return &LineIndex{
		starts: appendLineStarts([]int64{0}, data, 0),
		size:   int64(len(data)),
	}
}

// buildLineIndexString scans s for newlines.
func buildLineIndexString(s string) *LineIndex {
	starts := []int64{0}
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '\n')
		if j < 0 {
			break
		}
		i += j + 1
		starts = append(starts, int64(i))
	}
	return &LineIndex{starts: starts, size: int64(len(s))}
}

// appendLineStarts appends the offset following every newline in data,
// shifted by base, to starts.
func appendLineStarts(starts []int64, data []byte, base int64) []int64 {
	for i := 0; i < len(data); {
		j := bytes.IndexByte(data[i:], '\n')
		if j < 0 {
			break
		}
		i += j + 1
		starts = append(starts, base+int64(i))
	}
	return starts
}

// countedLines returns the number of lines described by starts over a text of
// the given size. An empty text has no lines.
func countedLines(starts []int64, size int64) int64 {
	n := int64(len(starts))
	if n > 0 && starts[n-1] == size {
		n--
	}
	return n
}

// Lines returns the number of lines.
func (ix *LineIndex) Lines() int {
	return int(countedLines(ix.starts, ix.size))
}

// Size returns the size in bytes of the indexed text.
func (ix *LineIndex) Size() int64 {
	return ix.size
}

// Start returns the offset at which line n (0-indexed) begins.
// Line numbers past the last entry clamp to the text size.
func (ix *LineIndex) Start(n int) int64 {
	if n < 0 {
		return 0
	}
	if n >= len(ix.starts) {
		return ix.size
	}
	return ix.starts[n]
}

// End returns the exclusive end of line n including its newline, if any.
func (ix *LineIndex) End(n int) int64 {
	if n+1 < len(ix.starts) {
		return ix.starts[n+1]
	}
	return ix.size
}

// LineOf returns the 0-indexed line containing offset. An offset equal to the
// size of a text that ends in a newline belongs to the empty trailing line.
func (ix *LineIndex) LineOf(offset int64) int {
	// Index of the last start <= offset.
	i := sort.Search(len(ix.starts), func(i int) bool {
		return ix.starts[i] > offset
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// Starts returns a copy of the line start offsets.
func (ix *LineIndex) Starts() []int64 {
	out := make([]int64, len(ix.starts))
	copy(out, ix.starts)
	return out
}
