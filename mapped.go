package textcore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
)

// Defaults for MappedOptions.
const (
	DefaultViewportLines  = 1000
	DefaultBufferCapacity = 1000
	DefaultCacheCapacity  = 4000
	DefaultIndexChunkSize = 1 << 20
)

// MappedOptions configures a MappedReader. Zero values select the defaults.
type MappedOptions struct {
	// ViewportLines is the size of the initial viewport primed at open.
	ViewportLines int

	// BufferCapacity controls prefetch (a quarter of it on each side of the
	// viewport) and the eviction margin (all of it on each side).
	BufferCapacity int

	// CacheCapacity is the number of decoded lines kept before eviction.
	CacheCapacity int

	// IndexChunkSize is the number of bytes scanned between index publishes.
	IndexChunkSize int

	Logger *slog.Logger
}

func (o MappedOptions) withDefaults() MappedOptions {
	if o.ViewportLines <= 0 {
		o.ViewportLines = DefaultViewportLines
	}
	if o.BufferCapacity <= 0 {
		o.BufferCapacity = DefaultBufferCapacity
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = DefaultCacheCapacity
	}
	if o.IndexChunkSize <= 0 {
		o.IndexChunkSize = DefaultIndexChunkSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// MappedReader is a read-only, line-addressable view of a memory-mapped file.
// The line index is built by a background goroutine; until it finishes,
// readers see a partial index and fall back to scanning the mapping directly.
//
// A MappedReader is safe for concurrent use.
type MappedReader struct {
	path   string
	data   []byte
	size   int64
	unmap  func() error
	logger *slog.Logger

	// life guards data against Close unmapping it under a reader.
	life   sync.RWMutex
	closed bool

	indexMu  sync.RWMutex
	index    *LineIndex
	complete bool

	cacheMu        sync.RWMutex
	cache          map[int64]string
	cacheCapacity  int
	bufferCapacity int
	viewStart      int64
	viewLines      int

	// evictAt is the cache size at which GetLine next evicts. It is raised
	// after each pass so lines the viewport keeps are not rescanned on every
	// insert.
	evictAt     int
	evictPasses int

	stop     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// OpenMapped maps the file at path and starts indexing it in the background.
// The first ViewportLines lines are readable as soon as OpenMapped returns.
func OpenMapped(path string, options MappedOptions) (*MappedReader, error) {
	options = options.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileOpenError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &FileOpenError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &FileOpenError{Path: path, Err: errors.New("is a directory")}
	}

	data, unmap, err := mapFile(f, info.Size())
	if err != nil {
		return nil, &FileOpenError{Path: path, Err: fmt.Errorf("mmap: %w", err)}
	}

	r := &MappedReader{
		path:           path,
		data:           data,
		size:           info.Size(),
		unmap:          unmap,
		logger:         options.Logger,
		index:          &LineIndex{starts: []int64{0}},
		cache:          make(map[int64]string),
		cacheCapacity:  options.CacheCapacity,
		bufferCapacity: options.BufferCapacity,
		evictAt:        options.CacheCapacity,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	r.wg.Add(1)
	go r.runIndexer(options.IndexChunkSize)

	r.SetViewport(0, options.ViewportLines)
	return r, nil
}

// runIndexer scans the mapping for newlines, publishing each chunk's line
// starts under the index write lock.
func (r *MappedReader) runIndexer(chunkSize int) {
	defer r.wg.Done()
	defer close(r.done)

	size := int64(len(r.data))
	var pos int64

	// A file truncated underneath the mapping faults on access. Treat that
	// as end of input and finalise what was indexed so far.
	debug.SetPanicOnFault(true)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("line indexing stopped early", "path", r.path, "offset", pos, "cause", rec)
			r.finishIndex(pos)
		}
	}()

	for pos < size {
		select {
		case <-r.stop:
			r.logger.Debug("line indexing cancelled", "path", r.path, "offset", pos)
			return
		default:
		}

		end := min(pos+int64(chunkSize), size)
		found := appendLineStarts(nil, r.data[pos:end], pos)

		r.indexMu.Lock()
		r.index.starts = append(r.index.starts, found...)
		r.index.size = end
		r.indexMu.Unlock()

		pos = end
	}

	r.finishIndex(size)
	r.logger.Debug("line indexing complete", "path", r.path, "bytes", size, "lines", r.LineCount().Value)
}

// finishIndex marks the index complete at the given size.
func (r *MappedReader) finishIndex(size int64) {
	r.indexMu.Lock()
	r.index.size = size
	r.complete = true
	r.indexMu.Unlock()
}

// Path returns the mapped file's path.
func (r *MappedReader) Path() string {
	return r.path
}

// Size returns the size of the mapped file in bytes.
func (r *MappedReader) Size() int64 {
	return r.size
}

// IndexingComplete returns true once the background index covers the file.
func (r *MappedReader) IndexingComplete() bool {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	return r.complete
}

// WaitIndexed blocks until indexing completes or ctx is done.
func (r *MappedReader) WaitIndexed(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LineCount returns the number of lines known so far. The value never
// decreases; Complete is set once indexing has finished.
func (r *MappedReader) LineCount() CountResult {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()

	if r.complete {
		return CountResult{Value: countedLines(r.index.starts, r.index.size), Complete: true}
	}
	// Only lines whose end has been seen are counted while scanning.
	return CountResult{Value: int64(len(r.index.starts)) - 1}
}

// publishedStarts returns the line starts published so far. The returned
// slice is never written to: the indexer only appends beyond its length.
func (r *MappedReader) publishedStarts() ([]int64, bool) {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()
	return r.index.starts, r.complete
}

// lineBounds returns the byte range of line n including its newline.
// Caller must hold r.life for reading.
func (r *MappedReader) lineBounds(n int64) (int64, int64, bool) {
	if n < 0 {
		return 0, 0, false
	}

	starts, complete := r.publishedStarts()
	size := int64(len(r.data))
	known := int64(len(starts))

	if n+1 < known {
		return starts[n], starts[n+1], true
	}
	if complete {
		if n >= countedLines(starts, size) {
			return 0, 0, false
		}
		return starts[n], size, true
	}

	// The index has not reached line n yet; scan forward from the last
	// published start.
	pos := starts[known-1]
	for line := known - 1; line < n; line++ {
		j := bytes.IndexByte(r.data[pos:], '\n')
		if j < 0 {
			return 0, 0, false
		}
		pos += int64(j) + 1
	}
	if pos >= size {
		return 0, 0, false
	}

	end := size
	if j := bytes.IndexByte(r.data[pos:], '\n'); j >= 0 {
		end = pos + int64(j) + 1
	}
	return pos, end, true
}

// LineOffset returns the byte offset at which line n starts.
func (r *MappedReader) LineOffset(n int64) (int64, bool) {
	r.life.RLock()
	defer r.life.RUnlock()
	if r.closed {
		return 0, false
	}
	start, _, ok := r.lineBounds(n)
	return start, ok
}

// LineRange returns the byte range covering count lines from start,
// including their newlines. Lines past the end of the file are ignored.
func (r *MappedReader) LineRange(start int64, count int) (int64, int64) {
	r.life.RLock()
	defer r.life.RUnlock()
	if r.closed || count <= 0 {
		return 0, 0
	}

	from, _, ok := r.lineBounds(start)
	if !ok {
		size := int64(len(r.data))
		return size, size
	}
	to := from
	for n := start; n < start+int64(count); n++ {
		_, end, ok := r.lineBounds(n)
		if !ok {
			break
		}
		to = end
	}
	return from, to
}

// ReadRange returns the raw bytes in [start, end) as a string, clamped to
// the file.
func (r *MappedReader) ReadRange(start, end int64) (string, error) {
	r.life.RLock()
	defer r.life.RUnlock()
	if r.closed {
		return "", ErrReaderClosed
	}

	size := int64(len(r.data))
	start = max(0, min(start, size))
	end = max(start, min(end, size))
	return string(r.data[start:end]), nil
}

// GetLine returns line n (0-indexed) without its terminator. Missing lines
// are decoded from the mapping and cached. Ill-formed UTF-8 is replaced, never
// reported. The result is false only when n is past the last line.
func (r *MappedReader) GetLine(n int64) (string, bool) {
	r.cacheMu.RLock()
	s, ok := r.cache[n]
	r.cacheMu.RUnlock()
	if ok {
		return s, true
	}

	r.life.RLock()
	if r.closed {
		r.life.RUnlock()
		return "", false
	}
	start, end, ok := r.lineBounds(n)
	if ok {
		s = decodeLine(r.data[start:end])
	}
	r.life.RUnlock()
	if !ok {
		return "", false
	}

	r.cacheMu.Lock()
	r.cache[n] = s
	if len(r.cache) > r.evictAt {
		r.evictUnlocked()
	}
	r.cacheMu.Unlock()

	return s, true
}

// GetLines returns up to count lines starting at start, stopping at the
// first missing line.
func (r *MappedReader) GetLines(start int64, count int) []string {
	lines := make([]string, 0, max(count, 0))
	for n := start; n < start+int64(count); n++ {
		s, ok := r.GetLine(n)
		if !ok {
			break
		}
		lines = append(lines, s)
	}
	return lines
}

// decodeLine strips the line terminator and decodes lossily.
func decodeLine(raw []byte) string {
	raw = bytes.TrimSuffix(raw, []byte{'\n'})
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	return decodeLossy(raw)
}

// SetViewport moves the viewport, prefetches the lines around it and evicts
// cached lines far from it once the cache is over capacity.
func (r *MappedReader) SetViewport(start int64, visible int) {
	start = max(start, 0)
	visible = max(visible, 0)

	r.cacheMu.Lock()
	r.viewStart, r.viewLines = start, visible
	r.cacheMu.Unlock()

	margin := int64(r.bufferCapacity / 4)
	from := max(start-margin, 0)
	to := start + int64(visible) + margin
	for n := from; n < to; n++ {
		if r.isCached(n) {
			continue
		}
		if _, ok := r.GetLine(n); !ok {
			break
		}
	}

	r.cacheMu.Lock()
	if len(r.cache) > r.cacheCapacity {
		r.evictUnlocked()
	}
	r.cacheMu.Unlock()
}

// Viewport returns the current viewport.
func (r *MappedReader) Viewport() (start int64, visible int) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.viewStart, r.viewLines
}

func (r *MappedReader) isCached(n int64) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	_, ok := r.cache[n]
	return ok
}

// evictUnlocked drops cached lines outside the viewport plus one buffer
// capacity on each side, then moves the high-water mark to leave headroom
// above what was kept. Caller must hold cacheMu for writing.
func (r *MappedReader) evictUnlocked() {
	margin := int64(r.bufferCapacity)
	lo := r.viewStart - margin
	hi := r.viewStart + int64(r.viewLines) + margin

	evicted := 0
	for n := range r.cache {
		if n < lo || n > hi {
			delete(r.cache, n)
			evicted++
		}
	}
	r.evictPasses++
	r.evictAt = max(r.cacheCapacity, len(r.cache)+max(r.cacheCapacity/2, r.bufferCapacity, 1))
	if evicted > 0 {
		r.logger.Debug("evicted cached lines", "path", r.path, "evicted", evicted, "cached", len(r.cache), "passes", r.evictPasses)
	}
}

// CacheLen returns the number of cached lines.
func (r *MappedReader) CacheLen() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Close stops indexing, drops the cache and releases the mapping.
func (r *MappedReader) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()

	r.life.Lock()
	defer r.life.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.cacheMu.Lock()
	r.cache = make(map[int64]string)
	r.cacheMu.Unlock()

	err := r.unmap()
	r.data = nil
	return err
}
