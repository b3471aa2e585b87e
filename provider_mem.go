package textcore

import (
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"
)

// memEntry is one file or directory in a MemoryProvider.
type memEntry struct {
	dir      bool
	data     []byte
	modified time.Time
	denied   bool
	children map[string]*memEntry
}

// MemoryProvider is an in-memory Provider. It is safe for concurrent use.
type MemoryProvider struct {
	mu   sync.RWMutex
	root *memEntry
	now  func() time.Time
}

// NewMemoryProvider returns an empty in-memory file system.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		root: &memEntry{dir: true, children: make(map[string]*memEntry)},
		now:  time.Now,
	}
}

// AddFile creates or overwrites a file, creating missing parent directories.
func (p *MemoryProvider) AddFile(relPath, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, name, err := p.makeParents(relPath)
	if err != nil {
		return err
	}
	if e, ok := parent.children[name]; ok && e.dir {
		return &fs.PathError{Op: "write", Path: relPath, Err: fs.ErrExist}
	}
	parent.children[name] = &memEntry{data: []byte(content), modified: p.now()}
	parent.modified = p.now()
	return nil
}

// AddDir creates a directory and any missing parents.
func (p *MemoryProvider) AddDir(relPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, name, err := p.makeParents(relPath)
	if err != nil {
		return err
	}
	if e, ok := parent.children[name]; ok {
		if e.dir {
			return nil
		}
		return &fs.PathError{Op: "mkdir", Path: relPath, Err: fs.ErrExist}
	}
	parent.children[name] = newMemDir(p.now())
	return nil
}

// Deny makes ReadDir and ReadMeta of relPath fail with fs.ErrPermission.
func (p *MemoryProvider) Deny(relPath string, denied bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(relPath)
	if err != nil {
		return err
	}
	e.denied = denied
	return nil
}

func newMemDir(now time.Time) *memEntry {
	return &memEntry{dir: true, modified: now, children: make(map[string]*memEntry)}
}

// makeParents walks to the parent of relPath, creating directories.
// Caller must hold p.mu for writing.
func (p *MemoryProvider) makeParents(relPath string) (*memEntry, string, error) {
	parts := splitRel(relPath)
	if len(parts) == 0 {
		return nil, "", ErrInvalidName
	}
	cur := p.root
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur.children[part]
		if !ok {
			next = newMemDir(p.now())
			cur.children[part] = next
		}
		if !next.dir {
			return nil, "", &fs.PathError{Op: "mkdir", Path: relPath, Err: fs.ErrExist}
		}
		cur = next
	}
	return cur, parts[len(parts)-1], nil
}

// lookup resolves relPath. Caller must hold p.mu.
func (p *MemoryProvider) lookup(relPath string) (*memEntry, error) {
	cur := p.root
	for _, part := range splitRel(relPath) {
		if !cur.dir {
			return nil, &fs.PathError{Op: "lookup", Path: relPath, Err: fs.ErrNotExist}
		}
		next, ok := cur.children[part]
		if !ok {
			return nil, &fs.PathError{Op: "lookup", Path: relPath, Err: fs.ErrNotExist}
		}
		cur = next
	}
	return cur, nil
}

func splitRel(relPath string) []string {
	relPath = strings.Trim(path.Clean("/"+relPath), "/")
	if relPath == "" {
		return nil
	}
	return strings.Split(relPath, "/")
}

func (p *MemoryProvider) ReadDir(relPath string) ([]DirEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, err := p.lookup(relPath)
	if err != nil {
		return nil, err
	}
	if !e.dir {
		return nil, &fs.PathError{Op: "readdir", Path: relPath, Err: ErrNotAFolder}
	}
	if e.denied {
		return nil, &fs.PathError{Op: "readdir", Path: relPath, Err: fs.ErrPermission}
	}

	out := make([]DirEntry, 0, len(e.children))
	for name, child := range e.children {
		de := DirEntry{Name: name, Kind: KindFile, Meta: child.meta(name)}
		if child.dir {
			de.Kind = KindFolder
		}
		out = append(out, de)
	}
	return out, nil
}

func (e *memEntry) meta(name string) Meta {
	m := Meta{Size: int64(len(e.data)), Modified: e.modified, Hidden: isHiddenName(name)}
	if e.dir {
		m.Size = -1
	}
	return m
}

func (p *MemoryProvider) ReadMeta(relPath string) (Meta, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, err := p.lookup(relPath)
	if err != nil {
		return Meta{Size: -1}, err
	}
	if e.denied {
		return Meta{Size: -1}, &fs.PathError{Op: "stat", Path: relPath, Err: fs.ErrPermission}
	}
	return e.meta(path.Base("/" + relPath)), nil
}

func (p *MemoryProvider) IsDir(relPath string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, err := p.lookup(relPath)
	return err == nil && e.dir
}

func (p *MemoryProvider) Rename(from, to string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	src, err := p.lookup(parentRel(from))
	if err != nil {
		return err
	}
	name := path.Base(from)
	e, ok := src.children[name]
	if !ok {
		return &fs.PathError{Op: "rename", Path: from, Err: fs.ErrNotExist}
	}
	dst, err := p.lookup(parentRel(to))
	if err != nil {
		return err
	}
	if !dst.dir {
		return &fs.PathError{Op: "rename", Path: to, Err: fs.ErrNotExist}
	}
	newName := path.Base(to)
	if _, exists := dst.children[newName]; exists {
		return &fs.PathError{Op: "rename", Path: to, Err: fs.ErrExist}
	}
	delete(src.children, name)
	dst.children[newName] = e
	return nil
}

func (p *MemoryProvider) CreateFile(relPath string) error {
	return p.create(relPath, false)
}

func (p *MemoryProvider) CreateDir(relPath string) error {
	return p.create(relPath, true)
}

func (p *MemoryProvider) create(relPath string, dir bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, err := p.lookup(parentRel(relPath))
	if err != nil {
		return err
	}
	if !parent.dir {
		return &fs.PathError{Op: "create", Path: relPath, Err: fs.ErrNotExist}
	}
	name := path.Base(relPath)
	if _, exists := parent.children[name]; exists {
		return &fs.PathError{Op: "create", Path: relPath, Err: fs.ErrExist}
	}
	if dir {
		parent.children[name] = newMemDir(p.now())
	} else {
		parent.children[name] = &memEntry{modified: p.now()}
	}
	return nil
}

func (p *MemoryProvider) Remove(relPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(splitRel(relPath)) == 0 {
		return &fs.PathError{Op: "remove", Path: relPath, Err: fs.ErrPermission}
	}
	parent, err := p.lookup(parentRel(relPath))
	if err != nil {
		return err
	}
	name := path.Base(relPath)
	if _, ok := parent.children[name]; !ok {
		return &fs.PathError{Op: "remove", Path: relPath, Err: fs.ErrNotExist}
	}
	delete(parent.children, name)
	return nil
}
