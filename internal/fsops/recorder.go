package fsops

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Recorder implements Ops for testing.
// Records every mutation without performing it; Stat reads from Fs.
type Recorder struct {
	Fs    afero.Fs
	Calls []string
	// Fail makes the mutation on a given source path return the error
	Fail map[string]error
}

func (r *Recorder) Remove(path string) error {
	r.Calls = append(r.Calls, "rm:"+path)
	return r.Fail[path]
}

func (r *Recorder) Move(src, destDir string) (string, error) {
	r.Calls = append(r.Calls, "mv:"+src+"->"+destDir)
	if err := r.Fail[src]; err != nil {
		return "", err
	}
	return filepath.Join(destDir, filepath.Base(src)), nil
}

func (r *Recorder) Rename(path, newName string) (string, error) {
	r.Calls = append(r.Calls, "rename:"+path+"->"+newName)
	if err := r.Fail[path]; err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), newName), nil
}

func (r *Recorder) Stat(path string) (os.FileInfo, error) {
	if r.Fs == nil {
		return os.Stat(path)
	}
	return r.Fs.Stat(path)
}
