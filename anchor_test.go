package textcore

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestAnchorInsertBefore(t *testing.T) {
	buf := NewBufferFromText("abc")
	set := NewAnchorSet()
	if err := set.Add(7, 1, "note", buf); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := buf.Insert(1, "XY"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	set.Rebase(nil, &Span{Start: 1, Len: 2}, buf)

	a, ok := set.Get(7)
	if !ok {
		t.Fatal("anchor 7 missing after rebase")
	}
	if a.Offset != 3 || a.Line != 1 || a.Column != 4 {
		t.Errorf("anchor = offset %d at %d:%d, want offset 3 at 1:4", a.Offset, a.Line, a.Column)
	}
	if a.Content != "note" {
		t.Errorf("content = %q", a.Content)
	}
}

func TestAnchorInsideDeletion(t *testing.T) {
	buf := NewBufferFromText("abcdef")
	set := NewAnchorSet()
	if err := set.Add(1, 3, "", buf); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := buf.Delete(2, 5); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	set.Rebase(&Span{Start: 2, Len: 3}, nil, buf)

	a, _ := set.Get(1)
	if a.Offset != 2 || a.Line != 1 || a.Column != 3 {
		t.Errorf("anchor = offset %d at %d:%d, want offset 2 at 1:3", a.Offset, a.Line, a.Column)
	}
}

func TestAnchorRebaseCases(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		del, ins *Span
		want     int
	}{
		{"before deletion", 1, &Span{2, 3}, nil, 1},
		{"at deletion start", 2, &Span{2, 3}, nil, 2},
		{"at deletion end", 5, &Span{2, 3}, nil, 2},
		{"after deletion", 8, &Span{2, 3}, nil, 5},
		{"before insertion", 1, nil, &Span{2, 4}, 1},
		{"at insertion", 2, nil, &Span{2, 4}, 6},
		{"replace covering", 3, &Span{2, 3}, &Span{2, 1}, 3},
		{"replace after", 9, &Span{2, 3}, &Span{2, 1}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Twenty bytes is enough for every case not to clamp.
			text := NewText("0123456789abcdefghij")
			set := NewAnchorSet()
			if err := set.Add(1, tt.offset, "", text); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
			set.Rebase(tt.del, tt.ins, text)
			a, _ := set.Get(1)
			if a.Offset != tt.want {
				t.Errorf("offset = %d, want %d", a.Offset, tt.want)
			}
		})
	}
}

func TestAnchorAddErrors(t *testing.T) {
	text := NewText("hello")
	set := NewAnchorSet()
	if err := set.Add(1, 0, "", text); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := set.Add(1, 2, "", text); !errors.Is(err, ErrDuplicateAnchor) {
		t.Errorf("duplicate Add = %v, want ErrDuplicateAnchor", err)
	}
	if err := set.Add(2, 6, "", text); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("Add past end = %v, want ErrOffsetOutOfRange", err)
	}
	if err := set.Add(3, -1, "", text); !errors.Is(err, ErrOffsetOutOfRange) {
		t.Errorf("Add at -1 = %v, want ErrOffsetOutOfRange", err)
	}
	if err := set.Add(4, 5, "", text); err != nil {
		t.Errorf("Add at end failed: %v", err)
	}
	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2", set.Len())
	}

	if !set.Remove(1) {
		t.Error("Remove(1) should report true")
	}
	if set.Remove(1) {
		t.Error("second Remove(1) should report false")
	}
	if err := set.SetContent(1, "x"); !errors.Is(err, ErrAnchorNotFound) {
		t.Errorf("SetContent on missing = %v", err)
	}
}

func TestAnchorOrderingAndRange(t *testing.T) {
	text := NewText("one\ntwo\nthree\n")
	set := NewAnchorSet()
	set.Add(30, 8, "c", text)
	set.Add(10, 0, "a", text)
	set.Add(20, 8, "b", text)
	set.Add(40, 4, "d", text)

	var ids []uint64
	for _, a := range set.Anchors() {
		ids = append(ids, a.ID)
	}
	want := []uint64{10, 40, 20, 30}
	if len(ids) != len(want) {
		t.Fatalf("Anchors() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Anchors() ids = %v, want %v", ids, want)
		}
	}

	in := set.InRange(4, 8)
	if len(in) != 1 || in[0].ID != 40 {
		t.Errorf("InRange(4, 8) = %+v", in)
	}
}

func TestAnchorRecordsClamp(t *testing.T) {
	text := NewText("ab\ncd")
	records := []Record{
		{ID: 1, Line: 1, Column: 99, Content: "eol"},
		{ID: 2, Line: 9, Column: 1, Content: "past"},
		{ID: 3, Line: 2, Column: 2, Content: "exact"},
		{ID: 1, Line: 2, Column: 1, Content: "dup"},
		{ID: 4, Line: 0, Column: 0, Content: "zero"},
	}
	set := AnchorSetFromRecords(records, text)

	tests := []struct {
		id           uint64
		offset       int
		line, column int
		content      string
	}{
		{1, 2, 1, 3, "eol"},
		{2, 5, 2, 3, "past"},
		{3, 4, 2, 2, "exact"},
		{4, 0, 1, 1, "zero"},
	}
	if set.Len() != len(tests) {
		t.Fatalf("Len() = %d, want %d", set.Len(), len(tests))
	}
	for _, tt := range tests {
		a, ok := set.Get(tt.id)
		if !ok {
			t.Fatalf("anchor %d missing", tt.id)
		}
		if a.Offset != tt.offset || a.Line != tt.line || a.Column != tt.column || a.Content != tt.content {
			t.Errorf("anchor %d = %+v, want offset %d at %d:%d %q",
				tt.id, a, tt.offset, tt.line, tt.column, tt.content)
		}
	}
}

func TestAnchorRecordsRoundTrip(t *testing.T) {
	text := NewText("fn main() {\n\tprintln(\"héllo\")\n}\n")
	set := NewAnchorSet()
	for i, off := range []int{0, 5, 12, 20, len("fn main() {\n\tprintln(\"hé")} {
		if err := set.Add(uint64(i+1), off, "n", text); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	records := set.Records("main.go")
	for _, rec := range records {
		if rec.File != "main.go" {
			t.Errorf("record file = %q", rec.File)
		}
	}

	restored := AnchorSetFromRecords(records, text)
	for _, a := range set.Anchors() {
		b, ok := restored.Get(a.ID)
		if !ok || b != a {
			t.Errorf("restored anchor %d = %+v, want %+v", a.ID, b, a)
		}
	}
}

// Random edits keep every anchor inside the text with a line and column that
// agree with its offset, and never move an anchor that lies before the edit.
func TestAnchorPropertiesUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []string{"a", "b", "\n", "é", "😀", "xyz", "\r\n"}

	buf := NewBufferFromText("seed text\nwith lines\n")
	set := NewAnchorSet()
	for id := uint64(1); id <= 12; id++ {
		if err := set.Add(id, rng.IntN(buf.Len()+1), "", buf); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	for step := 0; step < 500; step++ {
		before := set.Anchors()

		var del, ins *Span
		var editStart int
		if buf.Len() > 0 && rng.IntN(3) == 0 {
			start := rng.IntN(buf.Len())
			end := start + 1 + rng.IntN(min(5, buf.Len()-start))
			// Keep deletions on rune boundaries.
			s := buf.String()
			for start > 0 && !isRuneStart(s, start) {
				start--
			}
			for end < len(s) && !isRuneStart(s, end) {
				end++
			}
			if err := buf.Delete(start, end); err != nil {
				t.Fatalf("step %d: Delete failed: %v", step, err)
			}
			del = &Span{Start: start, Len: end - start}
			editStart = start
		} else {
			s := buf.String()
			at := rng.IntN(buf.Len() + 1)
			for at > 0 && at < len(s) && !isRuneStart(s, at) {
				at--
			}
			text := alphabet[rng.IntN(len(alphabet))]
			if err := buf.Insert(at, text); err != nil {
				t.Fatalf("step %d: Insert failed: %v", step, err)
			}
			ins = &Span{Start: at, Len: len(text)}
			editStart = at
		}
		set.Rebase(del, ins, buf)

		snapshot := NewText(buf.String())
		for _, a := range set.Anchors() {
			if a.Offset < 0 || a.Offset > buf.Len() {
				t.Fatalf("step %d: anchor %d offset %d outside [0, %d]", step, a.ID, a.Offset, buf.Len())
			}
			line, col := snapshot.LineColumn(a.Offset)
			if a.Line != line || a.Column != col {
				t.Fatalf("step %d: anchor %d at %d:%d, text says %d:%d", step, a.ID, a.Line, a.Column, line, col)
			}
		}
		for _, b := range before {
			if b.Offset >= editStart {
				continue
			}
			a, _ := set.Get(b.ID)
			if a.Offset != b.Offset {
				t.Fatalf("step %d: anchor %d before the edit moved %d -> %d", step, b.ID, b.Offset, a.Offset)
			}
		}
	}
}

func isRuneStart(s string, i int) bool {
	return i >= len(s) || s[i]&0xC0 != 0x80
}
