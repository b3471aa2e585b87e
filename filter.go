package textcore

import (
	"strings"

	"golang.org/x/text/cases"
)

// FilterState narrows which nodes VisibleRows reports. It never removes
// nodes from the tree.
type FilterState struct {
	// Query keeps nodes whose name contains it. Empty matches everything.
	Query string

	MatchCase   bool
	FilesOnly   bool
	FoldersOnly bool
	ShowHidden  bool
}

// IsZero reports whether the filter shows every non-hidden node.
func (f FilterState) IsZero() bool {
	return f == FilterState{}
}

// Row is one visible line of the tree.
type Row struct {
	ID    NodeID
	Depth int
}

// nameMatcher evaluates a FilterState's query. A matcher holds a Caser and
// is used by a single goroutine.
type nameMatcher struct {
	filter FilterState
	fold   cases.Caser
	query  string
}

func newNameMatcher(f FilterState) *nameMatcher {
	m := &nameMatcher{filter: f, query: f.Query}
	if !f.MatchCase && f.Query != "" {
		m.fold = cases.Fold()
		m.query = m.fold.String(f.Query)
	}
	return m
}

func (m *nameMatcher) matches(name string) bool {
	if m.query == "" {
		return true
	}
	if m.filter.MatchCase {
		return strings.Contains(name, m.query)
	}
	return strings.Contains(m.fold.String(name), m.query)
}

// VisibleRows returns the rows a renderer would draw, in pre-order, starting
// with the root at depth 0. Only expanded folders contribute children.
//
// A folder row is kept when its own name matches the query or when one of
// its visible descendants does. FilesOnly drops folder rows but still lists
// matching files inside expanded folders; FoldersOnly drops file rows.
func (t *WorkspaceTree) VisibleRows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.visibleRowsUnlocked()
}

func (t *WorkspaceTree) visibleRowsUnlocked() []Row {
	m := newNameMatcher(t.filter)
	rows := []Row{{ID: t.root, Depth: 0}}
	return t.appendVisibleUnlocked(rows, t.root, 1, m)
}

func (t *WorkspaceTree) appendVisibleUnlocked(rows []Row, id NodeID, depth int, m *nameMatcher) []Row {
	if !t.expanded[id] {
		return rows
	}
	n := t.nodeUnlocked(id)
	if n == nil {
		return rows
	}

	for _, cid := range n.children {
		c := t.nodeUnlocked(cid)
		if c == nil || (c.meta.Hidden && !m.filter.ShowHidden) {
			continue
		}

		if !c.folderish() {
			if !m.filter.FoldersOnly && m.matches(c.name) {
				rows = append(rows, Row{ID: cid, Depth: depth})
			}
			continue
		}

		sub := t.appendVisibleUnlocked(nil, cid, depth+1, m)
		if !m.filter.FilesOnly && (len(sub) > 0 || m.matches(c.name)) {
			rows = append(rows, Row{ID: cid, Depth: depth})
		}
		rows = append(rows, sub...)
	}
	return rows
}

// SetFilter replaces the filter.
func (t *WorkspaceTree) SetFilter(f FilterState) {
	t.mu.Lock()
	t.filter = f
	t.mu.Unlock()
}

// Filter returns the current filter.
func (t *WorkspaceTree) Filter() FilterState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.filter
}

// ClearFilter resets the filter to show every non-hidden node.
func (t *WorkspaceTree) ClearFilter() {
	t.SetFilter(FilterState{})
}
