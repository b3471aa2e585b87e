package textcore

import (
	"log/slog"
	"slices"
	"strconv"
	"sync"
)

// LargeFileBytes is the default size above which a file is memory-mapped
// rather than read into a Buffer.
const LargeFileBytes = 10 * 1024 * 1024

// LibraryOptions configures the textcore library. Zero values select the
// defaults.
type LibraryOptions struct {
	// LargeFileBytes is the size above which files open through a
	// MappedReader.
	LargeFileBytes int64

	// ViewportLines is the window loaded into the buffer of a large file.
	ViewportLines int

	// BufferCapacity and CacheCapacity tune the MappedReader line cache.
	BufferCapacity int
	CacheCapacity  int

	// Logger receives diagnostic records. Nil discards them.
	Logger *slog.Logger
}

// Library manages open documents and the settings they share.
type Library struct {
	options LibraryOptions
	logger  *slog.Logger

	// Active documents indexed by their unique ID
	activeDocuments map[string]*Document
	mu              sync.RWMutex

	nextDocumentID uint64
}

// Init initializes the library.
func Init(options LibraryOptions) (*Library, error) {
	if options.LargeFileBytes <= 0 {
		options.LargeFileBytes = LargeFileBytes
	}
	if options.ViewportLines <= 0 {
		options.ViewportLines = DefaultViewportLines
	}
	if options.BufferCapacity <= 0 {
		options.BufferCapacity = DefaultBufferCapacity
	}
	if options.CacheCapacity <= 0 {
		options.CacheCapacity = DefaultCacheCapacity
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	return &Library{
		options:         options,
		logger:          options.Logger,
		activeDocuments: make(map[string]*Document),
	}, nil
}

// FileOptions configures how a Document is opened.
type FileOptions struct {
	// Data source (exactly one must be provided)
	FilePath   string // load from a file; large files are memory-mapped
	DataBytes  []byte // literal byte content; a non-nil empty slice is allowed
	DataString string // literal string content

	// Notes are annotation records to attach once the document is open.
	Notes []Record
}

// CountResult contains a count and whether it is complete.
type CountResult struct {
	Value    int64
	Complete bool // true once the whole source has been scanned
}

// Open creates a Document from the configured data source.
func (lib *Library) Open(options FileOptions) (*Document, error) {
	sourceCount := 0
	if options.FilePath != "" {
		sourceCount++
	}
	if options.DataBytes != nil {
		sourceCount++
	}
	if options.DataString != "" {
		sourceCount++
	}

	if sourceCount == 0 {
		return nil, ErrNoDataSource
	}
	if sourceCount > 1 {
		return nil, ErrMultipleDataSources
	}

	lib.mu.Lock()
	lib.nextDocumentID++
	documentID := lib.nextDocumentID
	lib.mu.Unlock()

	d := &Document{
		lib:    lib,
		id:     formatDocumentID(documentID),
		path:   options.FilePath,
		logger: lib.logger,
		notes:  NewAnchorSet(),
	}

	var err error
	switch {
	case options.DataBytes != nil:
		d.buffer = NewBufferFromText(string(options.DataBytes))
	case options.DataString != "":
		d.buffer = NewBufferFromText(options.DataString)
	case options.FilePath != "":
		err = d.loadFromFile(options.FilePath)
	}
	if err != nil {
		return nil, err
	}

	if len(options.Notes) > 0 {
		d.loadNotesUnlocked(options.Notes)
	}

	lib.mu.Lock()
	lib.activeDocuments[d.id] = d
	lib.mu.Unlock()

	lib.logger.Debug("document opened", "id", d.id, "path", d.path, "large", d.reader != nil, "bytes", d.buffer.Len())
	return d, nil
}

// Documents returns the ids of the open documents in opening order.
func (lib *Library) Documents() []string {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	ids := make([]string, 0, len(lib.activeDocuments))
	for id := range lib.activeDocuments {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return compareDocumentIDs(a, b)
	})
	return ids
}

// Document returns an open document by id.
func (lib *Library) Document(id string) (*Document, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	d, ok := lib.activeDocuments[id]
	return d, ok
}

// Close closes every open document.
func (lib *Library) Close() error {
	lib.mu.RLock()
	docs := make([]*Document, 0, len(lib.activeDocuments))
	for _, d := range lib.activeDocuments {
		docs = append(docs, d)
	}
	lib.mu.RUnlock()

	var firstErr error
	for _, d := range docs {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func formatDocumentID(id uint64) string {
	return "doc_" + strconv.FormatUint(id, 10)
}

func compareDocumentIDs(a, b string) int {
	na, _ := strconv.ParseUint(a[len("doc_"):], 10, 64)
	nb, _ := strconv.ParseUint(b[len("doc_"):], 10, 64)
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	default:
		return 0
	}
}
