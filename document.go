package textcore

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// Document is an open text. Small files are held entirely in a Buffer.
// Files above the library's large-file threshold are memory-mapped; their
// Buffer holds only the current window of lines, and notes are scoped to
// that window.
//
// Methods are safe for concurrent use; edits are serialised.
type Document struct {
	lib    *Library
	id     string
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	buffer *Buffer
	reader *MappedReader

	// Large documents only: the global line range loaded into buffer. Edits
	// change the buffer's line count but not windowLines, which is always
	// the number of file lines the window replaces.
	windowStart int64
	windowLines int

	notes *AnchorSet

	// Notes outside the window, with global line numbers.
	parked []Record

	source *sourceState
	closed bool
}

// loadFromFile reads a small file or maps a large one.
func (d *Document) loadFromFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &FileOpenError{Path: path, Err: err}
	}

	opts := d.lib.options
	if info.Size() > opts.LargeFileBytes {
		r, err := OpenMapped(path, MappedOptions{
			ViewportLines:  opts.ViewportLines,
			BufferCapacity: opts.BufferCapacity,
			CacheCapacity:  opts.CacheCapacity,
			Logger:         d.logger,
		})
		if err != nil {
			return err
		}
		d.reader = r
		if err := d.loadWindowUnlocked(0, opts.ViewportLines); err != nil {
			r.Close()
			return err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return &FileOpenError{Path: path, Err: err}
		}
		d.buffer = NewBufferFromText(string(data))
	}

	if err := d.captureSourceInfo(); err != nil {
		d.logger.Debug("source info unavailable", "path", path, "err", err)
	}
	return nil
}

// loadWindowUnlocked replaces the buffer with count lines from start.
func (d *Document) loadWindowUnlocked(start int64, count int) error {
	from, to := d.reader.LineRange(start, count)
	text, err := d.reader.ReadRange(from, to)
	if err != nil {
		return err
	}
	d.buffer = NewBufferFromText(text)
	d.windowStart, d.windowLines = start, d.buffer.LineCount()
	return nil
}

// ID returns the document's library-unique id.
func (d *Document) ID() string {
	return d.id
}

// IsLarge reports whether the document is backed by a MappedReader.
func (d *Document) IsLarge() bool {
	return d.reader != nil
}

// Window returns the first global line held in the buffer and the buffer's
// current line count. Small documents report the whole text.
func (d *Document) Window() (start int64, count int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.reader == nil {
		return 0, d.buffer.LineCount()
	}
	return d.windowStart, d.buffer.LineCount()
}

// WaitIndexed blocks until a large document's line index is complete.
func (d *Document) WaitIndexed(ctx context.Context) error {
	if d.reader == nil {
		return nil
	}
	return d.reader.WaitIndexed(ctx)
}

// Len returns the size of the buffer in bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffer.Len()
}

// Text returns the buffer contents.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffer.String()
}

// Slice returns the buffer bytes in [start, end), clamped.
func (d *Document) Slice(start, end int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffer.Slice(start, end)
}

// Insert inserts text at offset and moves the notes accordingly.
func (d *Document) Insert(offset int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocumentClosed
	}

	if err := d.buffer.Insert(offset, text); err != nil {
		return err
	}
	if text != "" {
		d.notes.Rebase(nil, &Span{Start: offset, Len: len(text)}, d.buffer)
	}
	return nil
}

// Delete removes [start, end) and moves the notes accordingly.
func (d *Document) Delete(start, end int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocumentClosed
	}

	if err := d.buffer.Delete(start, end); err != nil {
		return err
	}
	if end > start {
		d.notes.Rebase(&Span{Start: start, Len: end - start}, nil, d.buffer)
	}
	return nil
}

// Replace replaces [start, end) with text as one edit.
func (d *Document) Replace(start, end int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocumentClosed
	}
	return d.replaceUnlocked(start, end, text)
}

func (d *Document) replaceUnlocked(start, end int, text string) error {
	if err := d.buffer.Replace(start, end, text); err != nil {
		return err
	}

	var del, ins *Span
	if end > start {
		del = &Span{Start: start, Len: end - start}
	}
	if text != "" {
		ins = &Span{Start: start, Len: len(text)}
	}
	if del != nil || ins != nil {
		d.notes.Rebase(del, ins, d.buffer)
	}
	return nil
}

// Line returns line n (0-indexed, global) without its terminator. Large
// documents serve lines inside the window from the buffer, so edits are
// visible, and all other lines from the mapped file. Lines after the window
// are renumbered by however many lines the edits added or removed.
func (d *Document) Line(n int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lineUnlocked(n)
}

func (d *Document) lineUnlocked(n int64) (string, bool) {
	if d.closed {
		return "", false
	}
	if d.reader == nil {
		return d.buffer.Line(int(n))
	}

	local := n - d.windowStart
	if local < 0 {
		return d.reader.GetLine(n)
	}
	bufferLines := int64(d.buffer.LineCount())
	if local < bufferLines {
		return d.buffer.Line(int(local))
	}
	return d.reader.GetLine(n - bufferLines + int64(d.windowLines))
}

// Lines returns up to count lines starting at start, stopping at the first
// missing line.
func (d *Document) Lines(start int64, count int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lines := make([]string, 0, max(count, 0))
	for n := start; n < start+int64(count); n++ {
		s, ok := d.lineUnlocked(n)
		if !ok {
			break
		}
		lines = append(lines, s)
	}
	return lines
}

// LineCount returns the number of lines. For large documents the count
// grows until background indexing completes.
func (d *Document) LineCount() CountResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.reader == nil {
		return CountResult{Value: int64(d.buffer.LineCount()), Complete: true}
	}
	count := d.reader.LineCount()
	count.Value += int64(d.buffer.LineCount() - d.windowLines)
	return count
}

// UpdateViewport moves the window of a large document to count lines from
// start. The buffer is reloaded from the file, so edits made in the old
// window are discarded. Notes that fall outside the new window are parked
// and come back when a later window covers their line. Small documents
// ignore the call.
func (d *Document) UpdateViewport(start int64, count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocumentClosed
	}
	if d.reader == nil {
		return nil
	}

	start = max(start, 0)
	count = max(count, 0)

	records := d.globalRecordsUnlocked()
	if err := d.loadWindowUnlocked(start, count); err != nil {
		return err
	}
	d.reader.SetViewport(start, count)
	d.placeNotesUnlocked(records)

	d.logger.Debug("viewport updated", "id", d.id, "start", start, "lines", count, "notes", d.notes.Len(), "parked", len(d.parked))
	return nil
}

// globalRecordsUnlocked returns every note, active or parked, with global
// line numbers.
func (d *Document) globalRecordsUnlocked() []Record {
	records := d.notes.Records(d.path)
	for i := range records {
		records[i].Line += uint32(d.windowStart)
	}
	records = append(records, d.parked...)
	sortRecords(records)
	return records
}

// placeNotesUnlocked activates the records that fall inside the window and
// parks the rest. Small documents activate everything.
func (d *Document) placeNotesUnlocked(records []Record) {
	if d.reader == nil {
		d.notes = AnchorSetFromRecords(records, d.buffer)
		d.parked = nil
		return
	}

	var active, parked []Record
	lo := uint32(d.windowStart)
	hi := lo + uint32(d.windowLines)
	for _, rec := range records {
		line := max(rec.Line, 1)
		if line > lo && line <= hi {
			rec.Line = line - lo
			active = append(active, rec)
			continue
		}
		parked = append(parked, rec)
	}
	d.notes = AnchorSetFromRecords(active, d.buffer)
	d.parked = parked
}

func sortRecords(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		if c := cmp.Compare(a.Line, b.Line); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Column, b.Column); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// AddNote attaches a note at a buffer offset. Ids must be unique across the
// whole document, including parked notes.
func (d *Document) AddNote(id uint64, offset int, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocumentClosed
	}
	if slices.ContainsFunc(d.parked, func(r Record) bool { return r.ID == id }) {
		return ErrDuplicateAnchor
	}
	return d.notes.Add(id, offset, content, d.buffer)
}

// RemoveNote removes a note, active or parked, reporting whether it existed.
func (d *Document) RemoveNote(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.notes.Remove(id) {
		return true
	}
	before := len(d.parked)
	d.parked = slices.DeleteFunc(d.parked, func(r Record) bool { return r.ID == id })
	return len(d.parked) != before
}

// Note returns an active note by id.
func (d *Document) Note(id uint64) (Anchor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notes.Get(id)
}

// Notes returns the active notes in offset order. Positions are relative to
// the buffer.
func (d *Document) Notes() []Anchor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notes.Anchors()
}

// NoteRecords returns every note, active and parked, in persisted form with
// global line numbers.
func (d *Document) NoteRecords() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.globalRecordsUnlocked()
}

// LoadNotes replaces all notes with records. Out-of-range positions are
// clamped; the first record wins when ids repeat.
func (d *Document) LoadNotes(records []Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDocumentClosed
	}
	d.loadNotesUnlocked(records)
	return nil
}

func (d *Document) loadNotesUnlocked(records []Record) {
	seen := make(map[uint64]bool, len(records))
	unique := make([]Record, 0, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		unique = append(unique, rec)
	}
	d.placeNotesUnlocked(unique)
}

// Close releases the document. A large document's background indexing is
// cancelled.
func (d *Document) Close() error {
	d.DisableSourceWatch()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	reader := d.reader
	d.mu.Unlock()

	if d.lib != nil {
		d.lib.mu.Lock()
		delete(d.lib.activeDocuments, d.id)
		d.lib.mu.Unlock()
	}

	if reader != nil {
		return reader.Close()
	}
	return nil
}
