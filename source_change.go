package textcore

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"
)

// SourceChangeType indicates the type of change detected in the source file.
type SourceChangeType int

const (
	// SourceUnchanged indicates no change was detected.
	SourceUnchanged SourceChangeType = iota

	// SourceAppended indicates the file grew.
	SourceAppended

	// SourceModified indicates the modification time moved without a size change.
	SourceModified

	// SourceTruncated indicates the file was shortened.
	SourceTruncated

	// SourceReplaced indicates the file was replaced (different inode).
	SourceReplaced

	// SourceDeleted indicates the file no longer exists.
	SourceDeleted
)

// DefaultSourceWatchInterval is the polling interval used when
// EnableSourceWatch is given a non-positive one.
const DefaultSourceWatchInterval = time.Second

// String returns a human-readable description of the change type.
func (t SourceChangeType) String() string {
	switch t {
	case SourceUnchanged:
		return "unchanged"
	case SourceAppended:
		return "appended"
	case SourceModified:
		return "modified"
	case SourceTruncated:
		return "truncated"
	case SourceReplaced:
		return "replaced"
	case SourceDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// SourceChangeInfo contains details about a detected source file change.
type SourceChangeInfo struct {
	Type          SourceChangeType
	PreviousSize  int64
	CurrentSize   int64
	AppendedBytes int64 // only set for SourceAppended
}

// SourceChangeHandler is called from the watch goroutine when a change is
// detected.
type SourceChangeHandler func(d *Document, info SourceChangeInfo)

// sourceState tracks the source file for change detection.
type sourceState struct {
	// Metadata captured at open time or by RefreshSourceInfo
	mtime time.Time
	size  int64
	inode uint64

	watchStop chan struct{}
	watchWg   sync.WaitGroup
}

// captureSourceInfo records the current file metadata.
// Caller must hold d.mu for writing.
func (d *Document) captureSourceInfo() error {
	if d.path == "" {
		return nil
	}
	info, err := os.Stat(d.path)
	if err != nil {
		return err
	}
	if d.source == nil {
		d.source = &sourceState{}
	}
	d.source.mtime = info.ModTime()
	d.source.size = info.Size()
	d.source.inode = fileInode(info)
	return nil
}

// CheckSource stats the source file and classifies any change since it was
// opened. Documents without a file report SourceUnchanged.
func (d *Document) CheckSource() (SourceChangeInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.checkSourceUnlocked()
}

func (d *Document) checkSourceUnlocked() (SourceChangeInfo, error) {
	if d.path == "" || d.source == nil {
		return SourceChangeInfo{Type: SourceUnchanged}, nil
	}

	info, err := os.Stat(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return SourceChangeInfo{
			Type:         SourceDeleted,
			PreviousSize: d.source.size,
		}, nil
	}
	if err != nil {
		return SourceChangeInfo{}, &FileReadError{Path: d.path, Err: err}
	}

	result := SourceChangeInfo{
		Type:         SourceUnchanged,
		PreviousSize: d.source.size,
		CurrentSize:  info.Size(),
	}

	inode := fileInode(info)
	switch {
	case d.source.inode != 0 && inode != 0 && d.source.inode != inode:
		result.Type = SourceReplaced
	case info.Size() < d.source.size:
		result.Type = SourceTruncated
	case info.Size() > d.source.size:
		result.Type = SourceAppended
		result.AppendedBytes = info.Size() - d.source.size
	case !info.ModTime().Equal(d.source.mtime):
		result.Type = SourceModified
	}
	return result, nil
}

// RefreshSourceInfo re-captures the source metadata, accepting the file's
// current state as unchanged.
func (d *Document) RefreshSourceInfo() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captureSourceInfo()
}

// SourcePath returns the path to the source file, if any.
func (d *Document) SourcePath() string {
	return d.path
}

// EnableSourceWatch polls the source file every interval and calls handler
// for each check that finds a change. It does nothing for documents without
// a file or when a watch is already running. A non-positive interval means
// DefaultSourceWatchInterval.
func (d *Document) EnableSourceWatch(interval time.Duration, handler SourceChangeHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.source == nil || d.source.watchStop != nil || handler == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultSourceWatchInterval
	}

	stop := make(chan struct{})
	d.source.watchStop = stop
	d.source.watchWg.Add(1)

	go func() {
		defer d.source.watchWg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				info, err := d.CheckSource()
				if err != nil {
					d.logger.Debug("source check failed", "id", d.id, "err", err)
					continue
				}
				if info.Type != SourceUnchanged {
					handler(d, info)
				}
			}
		}
	}()
}

// DisableSourceWatch stops a watch started by EnableSourceWatch and waits
// for it to exit.
func (d *Document) DisableSourceWatch() {
	d.mu.Lock()
	if d.source == nil || d.source.watchStop == nil {
		d.mu.Unlock()
		return
	}
	close(d.source.watchStop)
	d.source.watchStop = nil
	d.mu.Unlock()

	// The watch goroutine takes d.mu in CheckSource, so wait unlocked.
	d.source.watchWg.Wait()
}
