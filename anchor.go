package textcore

import (
	"cmp"
	"slices"
)

// Anchor is a sticky note: a payload attached to a byte offset whose line and
// column are kept in sync with the text as it is edited.
type Anchor struct {
	ID      uint64
	Offset  int
	Line    int
	Column  int
	Content string
}

// Record is the persisted form of an anchor.
type Record struct {
	ID      uint64 `json:"id"`
	File    string `json:"file"`
	Line    uint32 `json:"line"`
	Column  uint32 `json:"column"`
	Content string `json:"content"`
}

// Span is a byte range given as a start and a length.
type Span struct {
	Start int
	Len   int
}

// AnchorSet holds anchors keyed by caller-assigned ids.
type AnchorSet struct {
	anchors map[uint64]*Anchor
}

// NewAnchorSet returns an empty set.
func NewAnchorSet() *AnchorSet {
	return &AnchorSet{anchors: make(map[uint64]*Anchor)}
}

// AnchorSetFromRecords rebuilds a set from persisted records. Each record's
// line and column are resolved against text; positions past the end clamp to
// the end. When two records share an id, the first one wins.
func AnchorSetFromRecords(records []Record, text TextProvider) *AnchorSet {
	s := NewAnchorSet()
	for _, rec := range records {
		if _, dup := s.anchors[rec.ID]; dup {
			continue
		}
		offset := clampOffset(text.Offset(int(rec.Line), int(rec.Column)), text.Len())
		line, column := text.LineColumn(offset)
		s.anchors[rec.ID] = &Anchor{
			ID:      rec.ID,
			Offset:  offset,
			Line:    line,
			Column:  column,
			Content: rec.Content,
		}
	}
	return s
}

// Len returns the number of anchors.
func (s *AnchorSet) Len() int {
	return len(s.anchors)
}

// Add places a new anchor at offset.
func (s *AnchorSet) Add(id uint64, offset int, content string, text TextProvider) error {
	if _, dup := s.anchors[id]; dup {
		return ErrDuplicateAnchor
	}
	if offset < 0 || offset > text.Len() {
		return ErrOffsetOutOfRange
	}
	line, column := text.LineColumn(offset)
	s.anchors[id] = &Anchor{
		ID:      id,
		Offset:  offset,
		Line:    line,
		Column:  column,
		Content: content,
	}
	return nil
}

// Remove deletes the anchor with the given id, reporting whether it existed.
func (s *AnchorSet) Remove(id uint64) bool {
	if _, ok := s.anchors[id]; !ok {
		return false
	}
	delete(s.anchors, id)
	return true
}

// Get returns a copy of the anchor with the given id.
func (s *AnchorSet) Get(id uint64) (Anchor, bool) {
	a, ok := s.anchors[id]
	if !ok {
		return Anchor{}, false
	}
	return *a, true
}

// SetContent replaces an anchor's payload.
func (s *AnchorSet) SetContent(id uint64, content string) error {
	a, ok := s.anchors[id]
	if !ok {
		return ErrAnchorNotFound
	}
	a.Content = content
	return nil
}

// Anchors returns copies of all anchors ordered by offset, then id.
func (s *AnchorSet) Anchors() []Anchor {
	out := make([]Anchor, 0, len(s.anchors))
	for _, a := range s.anchors {
		out = append(out, *a)
	}
	sortAnchors(out)
	return out
}

// InRange returns the anchors whose offset lies in [start, end), in order.
func (s *AnchorSet) InRange(start, end int) []Anchor {
	var out []Anchor
	for _, a := range s.anchors {
		if a.Offset >= start && a.Offset < end {
			out = append(out, *a)
		}
	}
	sortAnchors(out)
	return out
}

func sortAnchors(anchors []Anchor) {
	slices.SortFunc(anchors, func(a, b Anchor) int {
		if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Rebase moves every anchor through one edit. The deletion, if any, is
// applied before the insertion, and text is the content after the edit.
//
// An anchor inside a deleted range collapses to its start; an anchor after it
// shifts left. An anchor at or after an insertion point shifts right, so a
// note stays with the text that followed the insertion.
func (s *AnchorSet) Rebase(del, ins *Span, text TextProvider) {
	for _, a := range s.anchors {
		offset := a.Offset

		if del != nil {
			end := del.Start + del.Len
			switch {
			case offset >= del.Start && offset < end:
				offset = del.Start
			case offset >= end:
				offset -= del.Len
			}
		}
		if ins != nil && offset >= ins.Start {
			offset += ins.Len
		}

		a.Offset = clampOffset(offset, text.Len())
		a.Line, a.Column = text.LineColumn(a.Offset)
	}
}

// Relocate clamps every anchor to text and recomputes its line and column.
func (s *AnchorSet) Relocate(text TextProvider) {
	for _, a := range s.anchors {
		a.Offset = clampOffset(a.Offset, text.Len())
		a.Line, a.Column = text.LineColumn(a.Offset)
	}
}

// Records snapshots the set for persistence under the given file name.
func (s *AnchorSet) Records(file string) []Record {
	anchors := s.Anchors()
	records := make([]Record, len(anchors))
	for i, a := range anchors {
		records[i] = Record{
			ID:      a.ID,
			File:    file,
			Line:    uint32(a.Line),
			Column:  uint32(a.Column),
			Content: a.Content,
		}
	}
	return records
}
