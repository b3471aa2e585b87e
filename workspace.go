package textcore

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// NodeID identifies a node in a WorkspaceTree. Ids stay valid for the life
// of the node; a freed id may be handed out again. Zero is never a node.
type NodeID uint32

// DefaultSkipNames are directory entries a workspace never lists.
var DefaultSkipNames = []string{".git", "target", "node_modules", ".idea", ".vscode"}

// DefaultRefreshConcurrency bounds concurrent directory reads during Refresh.
const DefaultRefreshConcurrency = 8

// WorkspaceOptions configures OpenWorkspace.
type WorkspaceOptions struct {
	// SkipNames are added to DefaultSkipNames. Matching is case-insensitive.
	SkipNames []string

	RefreshConcurrency int

	Logger *slog.Logger
}

// NodeInfo is a snapshot of one node.
type NodeInfo struct {
	ID       NodeID
	Name     string
	RelPath  string
	Kind     Kind
	LinkKind Kind
	Size     int64
	Modified time.Time
	Hidden   bool
	Parent   NodeID // zero for the root
	Loaded   bool   // children have been read
}

// IsFolder reports whether the node can hold children.
func (n NodeInfo) IsFolder() bool {
	return n.Kind == KindFolder || (n.Kind == KindSymlink && n.LinkKind == KindFolder)
}

type node struct {
	id       NodeID
	name     string
	relPath  string
	kind     Kind
	linkKind Kind
	meta     Meta
	parent   NodeID
	children []NodeID
	loaded   bool
}

func (n *node) folderish() bool {
	return n.kind == KindFolder || (n.kind == KindSymlink && n.linkKind == KindFolder)
}

func (n *node) info() NodeInfo {
	return NodeInfo{
		ID:       n.id,
		Name:     n.name,
		RelPath:  n.relPath,
		Kind:     n.kind,
		LinkKind: n.linkKind,
		Size:     n.meta.Size,
		Modified: n.meta.Modified,
		Hidden:   n.meta.Hidden,
		Parent:   n.parent,
		Loaded:   n.loaded,
	}
}

// WorkspaceTree is a lazily loaded directory hierarchy with selection and a
// view filter. All methods are safe for concurrent use; provider I/O is
// performed without holding the tree lock.
type WorkspaceTree struct {
	mu       sync.RWMutex
	provider Provider
	logger   *slog.Logger
	workers  int
	skip     map[string]bool

	slots []*node
	free  []NodeID
	live  int
	root  NodeID

	expanded  map[NodeID]bool
	selection []NodeID
	selected  map[NodeID]bool
	cursor    NodeID
	filter    FilterState
}

// OpenWorkspace creates a tree over provider and expands its root.
func OpenWorkspace(provider Provider, options WorkspaceOptions) (*WorkspaceTree, error) {
	if provider == nil {
		return nil, ErrNoDataSource
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.RefreshConcurrency <= 0 {
		options.RefreshConcurrency = DefaultRefreshConcurrency
	}

	fold := cases.Fold()
	skip := make(map[string]bool)
	for _, name := range slices.Concat(DefaultSkipNames, options.SkipNames) {
		skip[fold.String(name)] = true
	}

	t := &WorkspaceTree{
		provider: provider,
		logger:   options.Logger,
		workers:  options.RefreshConcurrency,
		skip:     skip,
		expanded: make(map[NodeID]bool),
		selected: make(map[NodeID]bool),
	}

	meta, err := provider.ReadMeta("")
	if err != nil {
		meta = Meta{Size: -1}
	}
	root := t.allocUnlocked(&node{kind: KindFolder, meta: meta})
	t.root = root.id
	t.selection = []NodeID{t.root}
	t.selected[t.root] = true
	t.cursor = t.root

	if err := t.Expand(t.root); err != nil {
		return nil, err
	}
	return t, nil
}

// allocUnlocked places n in a free slot and assigns its id.
func (t *WorkspaceTree) allocUnlocked(n *node) *node {
	if k := len(t.free); k > 0 {
		n.id = t.free[k-1]
		t.free = t.free[:k-1]
		t.slots[n.id-1] = n
	} else {
		t.slots = append(t.slots, n)
		n.id = NodeID(len(t.slots))
	}
	t.live++
	return n
}

func (t *WorkspaceTree) nodeUnlocked(id NodeID) *node {
	if id == 0 || int(id) > len(t.slots) {
		return nil
	}
	return t.slots[id-1]
}

// freeSubtreeUnlocked releases id and all of its descendants. The caller
// detaches id from its parent and repairs the selection afterwards.
func (t *WorkspaceTree) freeSubtreeUnlocked(id NodeID) int {
	n := t.nodeUnlocked(id)
	if n == nil {
		return 0
	}
	freed := t.freeChildrenUnlocked(n)

	delete(t.expanded, id)
	delete(t.selected, id)
	t.slots[id-1] = nil
	t.free = append(t.free, id)
	t.live--
	return freed + 1
}

func (t *WorkspaceTree) freeChildrenUnlocked(n *node) int {
	freed := 0
	for _, cid := range n.children {
		freed += t.freeSubtreeUnlocked(cid)
	}
	n.children = nil
	n.loaded = false
	delete(t.expanded, n.id)
	return freed
}

// repairSelectionUnlocked drops freed ids from the selection and keeps the
// cursor inside it. An empty selection falls back to the root.
func (t *WorkspaceTree) repairSelectionUnlocked() {
	t.selection = slices.DeleteFunc(t.selection, func(id NodeID) bool {
		return !t.selected[id]
	})
	if len(t.selection) == 0 {
		t.selection = append(t.selection, t.root)
		t.selected[t.root] = true
	}
	if !t.selected[t.cursor] {
		t.cursor = t.selection[len(t.selection)-1]
	}
}

// sortEntries orders folders before files, then by case-folded name with the
// raw name as tiebreak.
func sortEntries(entries []DirEntry) {
	fold := cases.Fold()
	keys := make(map[string]string, len(entries))
	for _, e := range entries {
		keys[e.Name] = fold.String(e.Name)
	}
	slices.SortFunc(entries, func(a, b DirEntry) int {
		af, bf := entryFolderish(a), entryFolderish(b)
		if af != bf {
			if af {
				return -1
			}
			return 1
		}
		if c := strings.Compare(keys[a.Name], keys[b.Name]); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func entryFolderish(e DirEntry) bool {
	return e.Kind == KindFolder || (e.Kind == KindSymlink && e.LinkKind == KindFolder)
}

// applyEntriesUnlocked reconciles n's children with a fresh directory
// listing. Surviving children keep their ids.
func (t *WorkspaceTree) applyEntriesUnlocked(n *node, entries []DirEntry) (added, removed int) {
	fold := cases.Fold()
	kept := entries[:0:0]
	for _, e := range entries {
		if !t.skip[fold.String(e.Name)] {
			kept = append(kept, e)
		}
	}
	sortEntries(kept)

	existing := make(map[string]NodeID, len(n.children))
	for _, cid := range n.children {
		if c := t.nodeUnlocked(cid); c != nil {
			existing[c.name] = cid
		}
	}

	children := make([]NodeID, 0, len(kept))
	for _, e := range kept {
		if cid, ok := existing[e.Name]; ok {
			delete(existing, e.Name)
			c := t.slots[cid-1]
			if c.kind != e.Kind || c.linkKind != e.LinkKind {
				removed += t.freeChildrenUnlocked(c)
				c.kind, c.linkKind = e.Kind, e.LinkKind
			}
			c.meta = e.Meta
			children = append(children, cid)
			continue
		}

		c := t.allocUnlocked(&node{
			name:     e.Name,
			relPath:  joinRel(n.relPath, e.Name),
			kind:     e.Kind,
			linkKind: e.LinkKind,
			meta:     e.Meta,
			parent:   n.id,
		})
		children = append(children, c.id)
		added++
	}

	for _, cid := range existing {
		removed += t.freeSubtreeUnlocked(cid)
	}
	n.children = children
	n.loaded = true
	if removed > 0 {
		t.repairSelectionUnlocked()
	}
	return added, removed
}

// Expand loads a folder's children if needed and marks it expanded.
// Expanding an already loaded folder does not touch the provider.
func (t *WorkspaceTree) Expand(id NodeID) error {
	t.mu.Lock()
	n := t.nodeUnlocked(id)
	if n == nil {
		t.mu.Unlock()
		return ErrNodeNotFound
	}
	if !n.folderish() {
		t.mu.Unlock()
		return ErrNotAFolder
	}
	if n.loaded {
		t.expanded[id] = true
		t.mu.Unlock()
		return nil
	}
	rel := n.relPath
	t.mu.Unlock()

	if err := t.reload(id, rel); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nodeUnlocked(id) == nil {
		return ErrNodeNotFound
	}
	t.expanded[id] = true
	return nil
}

// RefreshNode re-reads a folder whether or not it was loaded.
func (t *WorkspaceTree) RefreshNode(id NodeID) error {
	t.mu.RLock()
	n := t.nodeUnlocked(id)
	if n == nil {
		t.mu.RUnlock()
		return ErrNodeNotFound
	}
	if !n.folderish() {
		t.mu.RUnlock()
		return ErrNotAFolder
	}
	rel := n.relPath
	t.mu.RUnlock()

	return t.reload(id, rel)
}

// reload reads rel and applies the listing to id, provided id still names
// the same folder once the read returns.
func (t *WorkspaceTree) reload(id NodeID, rel string) error {
	entries, err := t.provider.ReadDir(rel)
	if err != nil {
		return &FileReadError{Path: rel, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.nodeUnlocked(id)
	if n == nil || n.relPath != rel {
		return ErrNodeNotFound
	}
	added, removed := t.applyEntriesUnlocked(n, entries)
	if added > 0 || removed > 0 {
		t.logger.Debug("folder reloaded", "path", rel, "added", added, "removed", removed)
	}
	return nil
}

// Collapse hides a folder's children. The children stay loaded and keep
// their ids. It reports whether id exists.
func (t *WorkspaceTree) Collapse(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nodeUnlocked(id) == nil {
		return false
	}
	delete(t.expanded, id)
	return true
}

// Refresh re-reads every loaded folder, breadth first, and reconciles the
// tree with what it finds. Reads at each depth run concurrently. Folders
// that vanished or cannot be read for lack of permission are skipped; other
// read failures are collected and returned after the walk.
func (t *WorkspaceTree) Refresh(ctx context.Context) error {
	type job struct {
		id      NodeID
		rel     string
		entries []DirEntry
		err     error
	}

	var errs []error
	var folders, added, removed int

	t.mu.RLock()
	level := []job{{id: t.root, rel: ""}}
	t.mu.RUnlock()

	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(t.workers)
		for i := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				level[i].entries, level[i].err = t.provider.ReadDir(level[i].rel)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var next []job
		t.mu.Lock()
		for _, j := range level {
			n := t.nodeUnlocked(j.id)
			if n == nil || n.relPath != j.rel {
				continue
			}
			if j.err != nil {
				if isSkippableReadError(j.err) {
					t.logger.Debug("refresh skipped folder", "path", j.rel, "err", j.err)
				} else {
					errs = append(errs, &FileReadError{Path: j.rel, Err: j.err})
				}
				continue
			}

			a, r := t.applyEntriesUnlocked(n, j.entries)
			added += a
			removed += r
			folders++
			for _, cid := range n.children {
				if c := t.slots[cid-1]; c.loaded {
					next = append(next, job{id: cid, rel: c.relPath})
				}
			}
		}
		t.mu.Unlock()
		level = next
	}

	t.logger.Debug("workspace refreshed", "folders", folders, "added", added, "removed", removed)
	return errors.Join(errs...)
}

// Select makes id the only selected node and moves the cursor to it.
func (t *WorkspaceTree) Select(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selectUnlocked(id)
}

func (t *WorkspaceTree) selectUnlocked(id NodeID) bool {
	if t.nodeUnlocked(id) == nil {
		return false
	}
	clear(t.selected)
	t.selection = append(t.selection[:0], id)
	t.selected[id] = true
	t.cursor = id
	return true
}

// ToggleSelect adds id to or removes it from the selection. Adding moves the
// cursor to id. Removing the node under the cursor moves the cursor to the
// most recently selected remaining node, or back to the root when nothing is
// left.
func (t *WorkspaceTree) ToggleSelect(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nodeUnlocked(id) == nil {
		return false
	}

	if t.selected[id] {
		delete(t.selected, id)
		t.repairSelectionUnlocked()
		return true
	}
	t.selected[id] = true
	t.selection = append(t.selection, id)
	t.cursor = id
	return true
}

// SelectRange selects every visible row between the cursor and id, both
// inclusive, in display order. If either end is not visible it behaves like
// Select.
func (t *WorkspaceTree) SelectRange(id NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nodeUnlocked(id) == nil {
		return false
	}

	rows := t.visibleRowsUnlocked()
	from := slices.IndexFunc(rows, func(r Row) bool { return r.ID == t.cursor })
	to := slices.IndexFunc(rows, func(r Row) bool { return r.ID == id })
	if from < 0 || to < 0 {
		return t.selectUnlocked(id)
	}
	if from > to {
		from, to = to, from
	}

	clear(t.selected)
	t.selection = t.selection[:0]
	for _, r := range rows[from : to+1] {
		t.selection = append(t.selection, r.ID)
		t.selected[r.ID] = true
	}
	t.cursor = id
	return true
}

// Selection returns the selected ids in selection order.
func (t *WorkspaceTree) Selection() []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.selection)
}

// Cursor returns the node the cursor is on.
func (t *WorkspaceTree) Cursor() NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

// IsSelected reports whether id is selected.
func (t *WorkspaceTree) IsSelected(id NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected[id]
}

// CreateFile creates an empty file named name inside parent and returns the
// new node.
func (t *WorkspaceTree) CreateFile(parent NodeID, name string) (NodeID, error) {
	return t.create(parent, name, false)
}

// CreateDir creates a folder named name inside parent and returns the new
// node.
func (t *WorkspaceTree) CreateDir(parent NodeID, name string) (NodeID, error) {
	return t.create(parent, name, true)
}

func (t *WorkspaceTree) create(parent NodeID, name string, dir bool) (NodeID, error) {
	if err := validName(name); err != nil {
		return 0, err
	}

	t.mu.RLock()
	p := t.nodeUnlocked(parent)
	if p == nil {
		t.mu.RUnlock()
		return 0, ErrNodeNotFound
	}
	if !p.folderish() {
		t.mu.RUnlock()
		return 0, ErrNotAFolder
	}
	rel := joinRel(p.relPath, name)
	t.mu.RUnlock()

	var err error
	if dir {
		err = t.provider.CreateDir(rel)
	} else {
		err = t.provider.CreateFile(rel)
	}
	if err != nil {
		return 0, err
	}

	if err := t.RefreshNode(parent); err != nil {
		return 0, err
	}
	id, ok := t.Lookup(rel)
	if !ok {
		// Created but hidden by the skip list.
		return 0, ErrNodeNotFound
	}
	return id, nil
}

// Rename renames a node in place. The node and its descendants keep their
// ids.
func (t *WorkspaceTree) Rename(id NodeID, newName string) error {
	if err := validName(newName); err != nil {
		return err
	}

	t.mu.RLock()
	n := t.nodeUnlocked(id)
	if n == nil {
		t.mu.RUnlock()
		return ErrNodeNotFound
	}
	if id == t.root {
		t.mu.RUnlock()
		return ErrInvalidName
	}
	from := n.relPath
	to := joinRel(parentRel(from), newName)
	parent := n.parent
	t.mu.RUnlock()

	if from == to {
		return nil
	}
	if err := t.provider.Rename(from, to); err != nil {
		return err
	}

	t.mu.Lock()
	if n := t.nodeUnlocked(id); n != nil && n.relPath == from {
		n.name = newName
		t.moveSubtreeUnlocked(n, to)
	}
	t.mu.Unlock()

	// Re-sorts the parent and picks up anything else that changed.
	return t.RefreshNode(parent)
}

// moveSubtreeUnlocked rewrites relative paths below n.
func (t *WorkspaceTree) moveSubtreeUnlocked(n *node, rel string) {
	n.relPath = rel
	for _, cid := range n.children {
		if c := t.nodeUnlocked(cid); c != nil {
			t.moveSubtreeUnlocked(c, joinRel(rel, c.name))
		}
	}
}

// Remove deletes a node from the provider and frees it and its subtree.
func (t *WorkspaceTree) Remove(id NodeID) error {
	t.mu.RLock()
	n := t.nodeUnlocked(id)
	if n == nil {
		t.mu.RUnlock()
		return ErrNodeNotFound
	}
	if id == t.root {
		t.mu.RUnlock()
		return ErrInvalidName
	}
	rel := n.relPath
	t.mu.RUnlock()

	if err := t.provider.Remove(rel); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	n = t.nodeUnlocked(id)
	if n == nil || n.relPath != rel {
		return nil
	}
	if p := t.nodeUnlocked(n.parent); p != nil {
		p.children = slices.DeleteFunc(p.children, func(c NodeID) bool { return c == id })
	}
	t.freeSubtreeUnlocked(id)
	t.repairSelectionUnlocked()
	return nil
}

// ApplyEvent reconciles the tree with one external file system change.
// Changes inside folders that were never loaded are ignored.
func (t *WorkspaceTree) ApplyEvent(ev Event) error {
	if ev.Op == EventModify {
		id, ok := t.Lookup(ev.RelPath)
		if !ok {
			return nil
		}
		meta, err := t.provider.ReadMeta(ev.RelPath)
		if err != nil {
			if isSkippableReadError(err) {
				return nil
			}
			return &FileReadError{Path: ev.RelPath, Err: err}
		}
		t.mu.Lock()
		if n := t.nodeUnlocked(id); n != nil && n.relPath == ev.RelPath {
			n.meta = meta
		}
		t.mu.Unlock()
		return nil
	}

	rel := parentRel(ev.RelPath)
	parent, ok := t.Lookup(rel)
	if !ok {
		return nil
	}
	return t.reconcileFolder(parent, rel)
}

// reconcileFolder re-reads the loaded folder id. The id came from an earlier
// lookup, so the folder may have been freed or its slot reused since; either
// way there is nothing left to reconcile.
func (t *WorkspaceTree) reconcileFolder(id NodeID, rel string) error {
	t.mu.RLock()
	n := t.nodeUnlocked(id)
	live := n != nil && n.relPath == rel && n.loaded
	t.mu.RUnlock()
	if !live {
		return nil
	}

	err := t.reload(id, rel)
	if errors.Is(err, ErrNodeNotFound) || isSkippableReadError(err) {
		return nil
	}
	return err
}

// Root returns the root node's id.
func (t *WorkspaceTree) Root() NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Len returns the number of live nodes.
func (t *WorkspaceTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Node returns a snapshot of id.
func (t *WorkspaceTree) Node(id NodeID) (NodeInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.nodeUnlocked(id)
	if n == nil {
		return NodeInfo{}, false
	}
	return n.info(), true
}

// Children returns a folder's child ids. The result is false for stale ids
// and for folders whose children have not been read.
func (t *WorkspaceTree) Children(id NodeID) ([]NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.nodeUnlocked(id)
	if n == nil || !n.loaded {
		return nil, false
	}
	return slices.Clone(n.children), true
}

// Parent returns the parent of id. The root has no parent.
func (t *WorkspaceTree) Parent(id NodeID) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.nodeUnlocked(id)
	if n == nil || n.parent == 0 {
		return 0, false
	}
	return n.parent, true
}

// IsExpanded reports whether id is expanded.
func (t *WorkspaceTree) IsExpanded(id NodeID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expanded[id]
}

// Lookup finds the node at a slash-separated relative path. Only loaded
// folders are searched.
func (t *WorkspaceTree) Lookup(relPath string) (NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cur := t.nodeUnlocked(t.root)
	for _, part := range splitRel(relPath) {
		var next *node
		for _, cid := range cur.children {
			if c := t.nodeUnlocked(cid); c != nil && c.name == part {
				next = c
				break
			}
		}
		if next == nil {
			return 0, false
		}
		cur = next
	}
	return cur.id, true
}

// loadedFolders returns the relative paths of every loaded folder.
func (t *WorkspaceTree) loadedFolders() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	var walk func(n *node)
	walk = func(n *node) {
		if !n.loaded {
			return
		}
		out = append(out, n.relPath)
		for _, cid := range n.children {
			if c := t.nodeUnlocked(cid); c != nil {
				walk(c)
			}
		}
	}
	walk(t.nodeUnlocked(t.root))
	return out
}
