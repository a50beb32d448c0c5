package fsops

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
)

// FsOps implements Ops on an afero filesystem
type FsOps struct {
	Fs afero.Fs
}

// New returns FsOps over fs, defaulting to the OS filesystem
func New(fs afero.Fs) *FsOps {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FsOps{Fs: fs}
}

func (o *FsOps) Remove(path string) error {
	return o.Fs.Remove(path)
}

func (o *FsOps) Stat(path string) (os.FileInfo, error) {
	return o.Fs.Stat(path)
}

func (o *FsOps) Move(src, destDir string) (string, error) {
	target, err := uniquePath(filepath.Join(destDir, filepath.Base(src)), o.exists)
	if err != nil {
		return "", err
	}

	err = o.Fs.Rename(src, target)
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", err
	}

	// different device: copy then remove the source
	if err := o.copyFile(src, target); err != nil {
		return "", err
	}
	if err := o.Fs.Remove(src); err != nil {
		return target, fmt.Errorf("copied to %s but failed to remove source: %w", target, err)
	}
	return target, nil
}

func (o *FsOps) Rename(path, newName string) (string, error) {
	target := filepath.Join(filepath.Dir(path), newName)
	if target == filepath.Clean(path) {
		return target, nil
	}
	target, err := uniquePath(target, o.exists)
	if err != nil {
		return "", err
	}
	if err := o.Fs.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

func (o *FsOps) exists(path string) bool {
	if l, ok := o.Fs.(afero.Lstater); ok {
		_, _, err := l.LstatIfPossible(path)
		return err == nil
	}
	_, err := o.Fs.Stat(path)
	return err == nil
}

// copyFile copies src to a new file dst, keeping mode and modification time.
// A partial dst is removed on failure.
func (o *FsOps) copyFile(src, dst string) (err error) {
	info, err := o.Fs.Stat(src)
	if err != nil {
		return err
	}

	in, err := o.Fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := o.Fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			o.Fs.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return o.Fs.Chtimes(dst, info.ModTime(), info.ModTime())
}
