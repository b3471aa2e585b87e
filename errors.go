// Package textcore provides the editable document substrate of a source code
// editor: a piece-table text buffer, a memory-mapped reader for very large
// files, position-tracking annotations, and a lazily expanded workspace tree.
package textcore

import (
	"errors"
	"fmt"
)

// Position errors
var (
	// ErrOffsetOutOfRange indicates an insert or delete past the end of the text.
	ErrOffsetOutOfRange = errors.New("offset out of range")
)

// Annotation errors
var (
	// ErrDuplicateAnchor indicates that an anchor id is already in use.
	ErrDuplicateAnchor = errors.New("anchor id already in use")

	// ErrAnchorNotFound indicates that an anchor id does not exist.
	ErrAnchorNotFound = errors.New("anchor not found")
)

// Workspace errors
var (
	// ErrNodeNotFound indicates an operation against a stale or unknown node id.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNotAFolder indicates that an expansion was requested on a non-folder.
	ErrNotAFolder = errors.New("node is not a folder")

	// ErrInvalidName indicates a name that is empty or contains a path separator.
	ErrInvalidName = errors.New("invalid entry name")
)

// Document errors
var (
	// ErrNoDataSource indicates that no data source was provided in FileOptions.
	ErrNoDataSource = errors.New("no data source provided")

	// ErrMultipleDataSources indicates that multiple data sources were provided.
	ErrMultipleDataSources = errors.New("multiple data sources provided")

	// ErrDocumentClosed indicates use of a document after Close.
	ErrDocumentClosed = errors.New("document is closed")

	// ErrReaderClosed indicates use of a mapped reader after Close.
	ErrReaderClosed = errors.New("mapped reader is closed")

	// ErrNotSupported indicates that an optional operation is not supported.
	ErrNotSupported = errors.New("operation not supported")
)

// FileOpenError reports a file that could not be opened or mapped.
type FileOpenError struct {
	Path string
	Err  error
}

func (e *FileOpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *FileOpenError) Unwrap() error {
	return e.Err
}

// FileReadError reports a directory or file read failure during traversal.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error {
	return e.Err
}

// Diagnostic translates a core error into a short message for display.
// Errors are classified by kind, never by their text.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}

	var openErr *FileOpenError
	var readErr *FileReadError

	switch {
	case errors.As(err, &openErr):
		return fmt.Sprintf("cannot open %s: %v", openErr.Path, openErr.Err)
	case errors.As(err, &readErr):
		return fmt.Sprintf("cannot read %s: %v", readErr.Path, readErr.Err)
	case errors.Is(err, ErrOffsetOutOfRange):
		return "edit position is outside the document"
	case errors.Is(err, ErrDuplicateAnchor):
		return "a note with that id already exists"
	case errors.Is(err, ErrAnchorNotFound):
		return "no note with that id"
	case errors.Is(err, ErrNodeNotFound):
		return "the entry no longer exists in the workspace"
	case errors.Is(err, ErrNotAFolder):
		return "the entry is not a folder"
	case errors.Is(err, ErrInvalidName):
		return "invalid file name"
	case errors.Is(err, ErrDocumentClosed), errors.Is(err, ErrReaderClosed):
		return "the document is closed"
	case errors.Is(err, ErrNoDataSource), errors.Is(err, ErrMultipleDataSources):
		return "the document source is misconfigured"
	default:
		return err.Error()
	}
}
