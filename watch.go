package textcore

import (
	"cmp"
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of an external file system change.
type EventOp int

const (
	EventCreate EventOp = iota
	EventRemove
	EventRename
	EventModify
)

// String returns a human-readable name for the op.
func (op EventOp) String() string {
	switch op {
	case EventCreate:
		return "create"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	case EventModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Event is a change to the entry at RelPath, a slash-separated path relative
// to the workspace root.
type Event struct {
	Op      EventOp
	RelPath string
}

// DefaultWatchDebounce is how long the watcher waits for a quiet period.
const DefaultWatchDebounce = 100 * time.Millisecond

// WatcherOptions configures NewWatcher.
type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher keeps a WorkspaceTree in step with a local directory by feeding
// file system notifications to ApplyEvent. Only loaded folders are watched.
type Watcher struct {
	tree     *WorkspaceTree
	root     string
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool // relative paths
}

// NewWatcher starts watching the loaded folders of tree, which must have been
// opened over a local provider rooted at root.
func NewWatcher(tree *WorkspaceTree, root string, options WatcherOptions) (*Watcher, error) {
	if options.Debounce <= 0 {
		options.Debounce = DefaultWatchDebounce
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		tree:     tree,
		root:     root,
		debounce: options.Debounce,
		logger:   options.Logger,
		fsw:      fsw,
		watched:  make(map[string]bool),
	}
	w.syncWatches()
	return w, nil
}

// syncWatches adds watches for newly loaded folders and drops watches for
// folders that are gone.
func (w *Watcher) syncWatches() {
	folders := w.tree.loadedFolders()

	w.mu.Lock()
	defer w.mu.Unlock()

	want := make(map[string]bool, len(folders))
	for _, rel := range folders {
		want[rel] = true
		if w.watched[rel] {
			continue
		}
		if err := w.fsw.Add(w.abs(rel)); err != nil {
			w.logger.Debug("watch failed", "path", rel, "err", err)
			continue
		}
		w.watched[rel] = true
	}
	for rel := range w.watched {
		if !want[rel] {
			_ = w.fsw.Remove(w.abs(rel))
			delete(w.watched, rel)
		}
	}
}

func (w *Watcher) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// relPath converts an absolute event path to a workspace-relative one.
func (w *Watcher) relPath(name string) (string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Watched returns the number of folders being watched.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func classify(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return EventCreate, true
	case op.Has(fsnotify.Remove):
		return EventRemove, true
	case op.Has(fsnotify.Rename):
		return EventRename, true
	case op.Has(fsnotify.Write), op.Has(fsnotify.Chmod):
		return EventModify, true
	default:
		return 0, false
	}
}

// Run delivers events until ctx is done or the watcher is closed. Events are
// collected until no new one arrives for the debounce interval, then applied
// in path order with duplicates merged.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := make(map[Event]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			op, ok := classify(ev.Op)
			if !ok {
				continue
			}
			rel, ok := w.relPath(ev.Name)
			if !ok {
				continue
			}
			pending[Event{Op: op, RelPath: rel}] = true
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush(pending)
			clear(pending)
			w.syncWatches()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) flush(pending map[Event]bool) {
	events := make([]Event, 0, len(pending))
	for ev := range pending {
		events = append(events, ev)
	}
	slices.SortFunc(events, func(a, b Event) int {
		if c := cmp.Compare(a.RelPath, b.RelPath); c != 0 {
			return c
		}
		return cmp.Compare(a.Op, b.Op)
	})

	for _, ev := range events {
		if err := w.tree.ApplyEvent(ev); err != nil {
			w.logger.Warn("applying file event failed", "op", ev.Op, "path", ev.RelPath, "err", err)
			continue
		}
		w.logger.Debug("applied file event", "op", ev.Op, "path", ev.RelPath)
	}
}

// Close stops watching. A running Run returns nil.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
