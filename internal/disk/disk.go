// Package disk answers filesystem-level questions for move preflight and
// root selection: free space, device identity and stale NFS mounts.
package disk

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ErrInsufficientSpace is returned when a destination cannot hold the bytes to move
var ErrInsufficientSpace = errors.New("insufficient free space")

// Usage describes the filesystem holding a path
type Usage struct {
	TotalBytes int64
	FreeBytes  int64 // available to unprivileged users
}

// UsedPercent is the share of the filesystem not available to users
func (u Usage) UsedPercent() float64 {
	if u.TotalBytes <= 0 {
		return 0
	}
	return float64(u.TotalBytes-u.FreeBytes) / float64(u.TotalBytes) * 100
}

// Stat reports the usage of the filesystem holding path
func Stat(path string) (Usage, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	return Usage{
		TotalBytes: int64(st.Blocks) * int64(st.Bsize),
		FreeBytes:  int64(st.Bavail) * int64(st.Bsize),
	}, nil
}

// SameDevice reports whether a and b live on the same filesystem, in which
// case a move is a rename and needs no free space
func SameDevice(a, b string) (bool, error) {
	da, err := deviceOf(a)
	if err != nil {
		return false, err
	}
	db, err := deviceOf(b)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("%s: no device information", path)
	}
	return uint64(st.Dev), nil
}

// CheckFreeSpace returns ErrInsufficientSpace when dir's filesystem has
// fewer than need bytes available
func CheckFreeSpace(dir string, need int64) error {
	u, err := Stat(dir)
	if err != nil {
		return err
	}
	if u.FreeBytes < need {
		return fmt.Errorf("%w: %s has %d bytes free, need %d", ErrInsufficientSpace, dir, u.FreeBytes, need)
	}
	return nil
}

// IsNFSStale reports whether a stat of path hangs past timeout or fails with
// an error typical of a dead network mount. A missing path is not stale.
func IsNFSStale(path string, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		_, err := os.Stat(path)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err != nil && (os.IsTimeout(err) ||
			errors.Is(err, syscall.ESTALE) ||
			errors.Is(err, syscall.EIO) ||
			errors.Is(err, syscall.ENXIO))
	case <-timer.C:
		return true
	}
}
