//go:build unix

package textcore

import (
	"os"
	"syscall"
)

// fileInode extracts the inode number from file info.
func fileInode(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(stat.Ino)
	}
	return 0
}
