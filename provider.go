package textcore

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Kind classifies a workspace entry.
type Kind int

const (
	// KindFile is a regular file.
	KindFile Kind = iota

	// KindFolder is a directory.
	KindFolder

	// KindSymlink is a symbolic link; DirEntry.LinkKind names its target.
	KindSymlink
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Meta is the metadata of a single entry.
type Meta struct {
	Size     int64     // -1 when unknown
	Modified time.Time // zero when unknown
	Hidden   bool
}

// DirEntry describes one child returned by Provider.ReadDir.
type DirEntry struct {
	Name     string
	Kind     Kind
	LinkKind Kind // target kind, only meaningful for KindSymlink
	Meta
}

// Provider abstracts the file system a WorkspaceTree browses.
// Paths are slash-separated and relative to the workspace root; the root
// itself is "". Errors should wrap fs.ErrNotExist, fs.ErrExist and
// fs.ErrPermission where they apply.
type Provider interface {
	ReadDir(relPath string) ([]DirEntry, error)
	ReadMeta(relPath string) (Meta, error)
	IsDir(relPath string) bool

	Rename(from, to string) error
	CreateFile(relPath string) error
	CreateDir(relPath string) error
	Remove(relPath string) error
}

// localProvider implements Provider over the local file system.
type localProvider struct {
	root string
}

// NewLocalProvider returns a Provider rooted at dir.
func NewLocalProvider(dir string) Provider {
	return &localProvider{root: dir}
}

func (p *localProvider) abs(relPath string) string {
	return filepath.Join(p.root, filepath.FromSlash(relPath))
}

func (p *localProvider) ReadDir(relPath string) ([]DirEntry, error) {
	dir := p.abs(relPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Entries that vanished or cannot be stat'ed are skipped.
			continue
		}
		out = append(out, localEntry(filepath.Join(dir, e.Name()), info))
	}
	return out, nil
}

// localEntry converts lstat information into a DirEntry.
func localEntry(fullPath string, info fs.FileInfo) DirEntry {
	de := DirEntry{
		Name: info.Name(),
		Kind: KindFile,
		Meta: Meta{
			Size:     info.Size(),
			Modified: info.ModTime(),
			Hidden:   isHiddenName(info.Name()),
		},
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		de.Kind = KindSymlink
		de.LinkKind = KindFile
		if target, err := os.Stat(fullPath); err == nil && target.IsDir() {
			de.LinkKind = KindFolder
		}
	case info.IsDir():
		de.Kind = KindFolder
		de.Size = -1
	}
	return de
}

func (p *localProvider) ReadMeta(relPath string) (Meta, error) {
	info, err := os.Lstat(p.abs(relPath))
	if err != nil {
		return Meta{Size: -1}, err
	}
	meta := Meta{Size: info.Size(), Modified: info.ModTime(), Hidden: isHiddenName(info.Name())}
	if info.IsDir() {
		meta.Size = -1
	}
	return meta, nil
}

func (p *localProvider) IsDir(relPath string) bool {
	info, err := os.Stat(p.abs(relPath))
	return err == nil && info.IsDir()
}

func (p *localProvider) Rename(from, to string) error {
	if _, err := os.Lstat(p.abs(to)); err == nil {
		return &fs.PathError{Op: "rename", Path: to, Err: fs.ErrExist}
	}
	return os.Rename(p.abs(from), p.abs(to))
}

func (p *localProvider) CreateFile(relPath string) error {
	f, err := os.OpenFile(p.abs(relPath), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (p *localProvider) CreateDir(relPath string) error {
	return os.Mkdir(p.abs(relPath), 0755)
}

func (p *localProvider) Remove(relPath string) error {
	full := p.abs(relPath)
	if _, err := os.Lstat(full); err != nil {
		return err
	}
	return os.RemoveAll(full)
}

// isHiddenName reports whether a name denotes a hidden entry.
func isHiddenName(name string) bool {
	return strings.HasPrefix(name, ".")
}

// joinRel joins a workspace-relative directory and a child name.
func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// parentRel returns the workspace-relative parent of relPath.
func parentRel(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// validName rejects names that cannot be a single path element.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}

// isSkippableReadError reports read failures that a walk skips over.
func isSkippableReadError(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist)
}
