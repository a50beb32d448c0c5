// Package scan finds duplicate files in two phases: it groups every regular
// file under the roots by size, then digests only the files that share a
// size with another file and regroups them by content digest.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"dupsweep/internal/hasher"
	"dupsweep/internal/logging"
	"dupsweep/internal/metrics"

	"github.com/spf13/afero"
)

// Logger is the subset of logging.Leveled the scanner needs
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Throttler is called before every digest, see limiter.CPULimiter
type Throttler interface {
	Throttle()
}

// Progress receives one Add per digested file. progressbar.ProgressBar
// satisfies it.
type Progress interface {
	Add(n int) error
	Finish() error
}

// Scanner walks roots on Fs and digests candidate files with Digester
type Scanner struct {
	Fs       afero.Fs
	Digester hasher.Digester
	Logger   Logger

	// Strict drops files that cannot be digested instead of grouping them
	// under hasher.EmptyDigest
	Strict bool

	// Exclude holds filepath.Match patterns tested against base names.
	// Matching directories are pruned.
	Exclude []string

	// Optional hooks, nil disables each
	Throttle    Throttler
	NewProgress func(total int) Progress
	IsStale     func(root string) bool
}

// New returns a Scanner over fs using MD5 digests
func New(fs afero.Fs, logger Logger) *Scanner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scanner{
		Fs:       fs,
		Digester: hasher.NewMD5(fs),
		Logger:   logger,
	}
}

// Find runs both phases over roots and returns the raw duplicate set.
// Callers act on Filtered() or Groups().
func (s *Scanner) Find(ctx context.Context, roots ...string) (DuplicateSet, error) {
	start := time.Now()
	sizes, err := s.GroupBySize(ctx, roots...)
	if err != nil {
		return nil, err
	}
	metrics.ObservePhase("size", time.Since(start).Seconds())

	start = time.Now()
	set, err := s.GroupByHash(ctx, sizes)
	if err != nil {
		return nil, err
	}
	metrics.ObservePhase("hash", time.Since(start).Seconds())

	groups := set.Groups()
	metrics.RecordDuplicates(len(groups), set.FileCount())
	s.Logger.Info("Scan complete", "files", sizes.FileCount(), "hashed", sizes.Candidates(), "groups", len(groups))
	return set, nil
}

// GroupBySize walks every root and groups regular files by size. All roots
// feed one map; a file reachable from overlapping roots is recorded once.
// Unreadable entries, symlinks and special files are skipped with a
// diagnostic and never abort the walk.
func (s *Scanner) GroupBySize(ctx context.Context, roots ...string) (SizeGroups, error) {
	groups := make(SizeGroups)
	seen := make(map[string]struct{})

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.IsStale != nil && s.IsStale(root) {
			s.Logger.Warn("Skipping stale root", "path", root)
			metrics.RecordSkippedEntry("stale_root")
			continue
		}

		walkRoot, ok := s.resolveRoot(root)
		if !ok {
			continue
		}

		err := afero.Walk(s.Fs, walkRoot, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				s.Logger.Warn("Skipping unreadable entry", "path", path, "error", err)
				metrics.RecordSkippedEntry("error")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if path != walkRoot && s.excluded(info.Name()) {
				s.Logger.Debug("Excluded", "path", path)
				metrics.RecordSkippedEntry("excluded")
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			mode := info.Mode()
			switch {
			case mode.IsDir():
				return nil
			case mode&os.ModeSymlink != 0:
				s.Logger.Debug("Skipping symlink", "path", path)
				metrics.RecordSkippedEntry("symlink")
				return nil
			case !mode.IsRegular():
				s.Logger.Debug("Skipping special file", "path", path, "mode", mode.String())
				metrics.RecordSkippedEntry("special")
				return nil
			}

			key := absKey(path)
			if _, dup := seen[key]; dup {
				return nil
			}
			seen[key] = struct{}{}

			size := info.Size()
			groups[size] = append(groups[size], path)
			metrics.FilesScannedTotal.Inc()
			metrics.BytesScannedTotal.Add(float64(size))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return groups, nil
}

// resolveRoot lstats root. A symlinked root is walked through a trailing
// separator so the link target is listed but nested links are not followed.
func (s *Scanner) resolveRoot(root string) (string, bool) {
	info, err := lstat(s.Fs, root)
	if err != nil {
		s.Logger.Warn("Skipping root", "path", root, "error", err)
		metrics.RecordSkippedEntry("missing_root")
		return "", false
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return root, true
	}
	target, err := s.Fs.Stat(root)
	if err != nil || !target.IsDir() {
		s.Logger.Warn("Skipping root that is not a directory", "path", root)
		metrics.RecordSkippedEntry("missing_root")
		return "", false
	}
	return filepath.Clean(root) + string(filepath.Separator), true
}

// GroupByHash digests the members of every size group with two or more
// paths and regroups them by digest. Files with a unique size are never
// digested.
func (s *Scanner) GroupByHash(ctx context.Context, sizes SizeGroups) (DuplicateSet, error) {
	set := make(DuplicateSet)

	var bar Progress
	if s.NewProgress != nil {
		bar = s.NewProgress(sizes.Candidates())
		defer bar.Finish()
	}

	for _, size := range sizes.sortedSizes() {
		paths := sizes[size]
		if len(paths) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, path := range paths {
			if s.Throttle != nil {
				s.Throttle.Throttle()
			}

			res := s.Digester.Digest(path)
			metrics.ObserveHashed(size)
			if bar != nil {
				_ = bar.Add(1)
			}

			if !res.OK() {
				metrics.HashErrorsTotal.Inc()
				if s.Strict {
					s.Logger.Warn("Dropping file that could not be hashed", "path", path, "error", res.Err)
					continue
				}
				s.Logger.Warn("Failed to hash file, grouping under empty digest", "path", path, "error", res.Err)
			}
			set.add(res.Digest, size, path)
		}
	}

	return set, nil
}

func (s *Scanner) excluded(name string) bool {
	for _, pattern := range s.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}

func absKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
