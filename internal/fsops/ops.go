// Package fsops performs the filesystem mutations applied to duplicates.
// Everything goes through the Ops interface so tests can prove that dry
// runs and refused targets never touch the disk.
package fsops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ops abstracts filesystem mutations on duplicate files
type Ops interface {
	Remove(path string) error
	// Move moves src into destDir, returning the final path. The base name is
	// suffixed on collision, an existing file is never overwritten.
	Move(src, destDir string) (string, error)
	// Rename renames path to newName within its own directory, returning
	// the final path. Collisions are suffixed like Move.
	Rename(path, newName string) (string, error)
	Stat(path string) (os.FileInfo, error)
}

// ErrTooManyCollisions is returned when no free suffixed name is found
var ErrTooManyCollisions = errors.New("no free name after collision suffixing")

// maxSuffix bounds the collision search
const maxSuffix = 10000

// uniquePath returns path when exists(path) is false, otherwise the first
// free "stem_N.ext" next to it
func uniquePath(path string, exists func(string) bool) (string, error) {
	if !exists(path) {
		return path, nil
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// dotfile such as ".bashrc"
		stem, ext = base, ""
	}

	for i := 1; i <= maxSuffix; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", path, ErrTooManyCollisions)
}
