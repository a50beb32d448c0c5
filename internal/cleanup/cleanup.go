// Package cleanup applies the destructive dispositions to duplicate files:
// bulk delete, bulk move, and the per-file delete, move and rename used by
// interactive triage. Every mutation is checked by the safety validator,
// honors dry-run, and is logged, counted and optionally recorded to history.
// A failure on one file is reported and the batch continues.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dupsweep/internal/database"
	"dupsweep/internal/disk"
	"dupsweep/internal/fsops"
	"dupsweep/internal/logging"
	"dupsweep/internal/metrics"
	"dupsweep/internal/safety"
	"dupsweep/internal/scan"
)

// ErrInvalidDestination is returned by MoveAll and CheckDestination when the
// destination cannot receive files. Nothing has been mutated when it is returned.
var ErrInvalidDestination = errors.New("invalid destination")

// CleanupLogger interface for structured logging in cleanup
type CleanupLogger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// History records attempted mutations; *database.ActionDB satisfies it
type History interface {
	Record(rec database.ActionRecord) error
}

// Item is one file of a duplicate group
type Item struct {
	Path   string
	Size   int64
	Digest string
}

// Items lists the members of g
func Items(g *scan.Group) []Item {
	items := make([]Item, 0, len(g.Paths))
	for _, p := range g.Paths {
		items = append(items, Item{Path: p, Size: g.Size, Digest: g.Digest})
	}
	return items
}

// Result counts the outcome of a batch
type Result struct {
	Deleted int   `json:"deleted"`
	Moved   int   `json:"moved"`
	Renamed int   `json:"renamed"`
	Refused int   `json:"refused"` // blocked by the safety validator
	Missing int   `json:"missing"` // vanished before the action
	Failed  int   `json:"failed"`
	Bytes   int64 `json:"bytes"`
}

// Failures is the number of files the action could not be applied to
func (r Result) Failures() int {
	return r.Refused + r.Failed
}

// Options configures a Cleaner. Ops and Validator are required.
type Options struct {
	Logger    CleanupLogger
	Ops       fsops.Ops
	Validator *safety.Validator
	DryRun    bool
	History   History // nil disables history
	RunID     string

	// IsStale reports a stale NFS mount for a failed path, nil disables the check
	IsStale func(path string) bool
}

// Cleaner performs duplicate dispositions with structured logging
type Cleaner struct {
	logger    CleanupLogger
	ops       fsops.Ops
	validator *safety.Validator
	dryRun    bool
	history   History
	runID     string
	isStale   func(path string) bool
}

// NewCleaner creates a new Cleaner instance
func NewCleaner(opts Options) *Cleaner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	ops := opts.Ops
	if ops == nil {
		ops = fsops.New(nil)
	}
	return &Cleaner{
		logger:    logger,
		ops:       ops,
		validator: opts.Validator,
		dryRun:    opts.DryRun,
		history:   opts.History,
		runID:     opts.RunID,
		isStale:   opts.IsStale,
	}
}

// DryRun reports whether mutations are only logged
func (c *Cleaner) DryRun() bool {
	return c.dryRun
}

// DeleteAll removes every path of every duplicate group, including the first
// occurrence of each. No copy is kept.
func (c *Cleaner) DeleteAll(ctx context.Context, set scan.DuplicateSet) (Result, error) {
	groups := set.Groups()
	c.logger.Info("Starting delete", "groups", len(groups), "files", set.FileCount(), "dry_run", c.dryRun)

	var res Result
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, it := range Items(g) {
			c.tally(&res, database.ActionDelete, it, c.Delete(it))
		}
	}

	c.logDone("Delete complete", res)
	return res, nil
}

// MoveAll moves every path of every duplicate group into dest. The
// destination is checked first; on ErrInvalidDestination nothing is moved.
func (c *Cleaner) MoveAll(ctx context.Context, set scan.DuplicateSet, dest string) (Result, error) {
	groups := set.Groups()

	var need int64
	for _, g := range groups {
		need += g.Size * int64(g.Len())
	}
	if err := c.preflightMove(groups, dest, need); err != nil {
		return Result{}, err
	}

	c.logger.Info("Starting move", "groups", len(groups), "files", set.FileCount(), "destination", dest, "dry_run", c.dryRun)

	var res Result
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		for _, it := range Items(g) {
			_, err := c.Move(it, dest)
			c.tally(&res, database.ActionMove, it, err)
		}
	}

	c.logDone("Move complete", res)
	return res, nil
}

// CheckDestination validates that dest exists, is a directory and is not
// protected
func (c *Cleaner) CheckDestination(dest string) error {
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidDestination)
	}
	info, err := c.ops.Stat(dest)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDestination, dest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidDestination, dest)
	}
	if c.validator != nil {
		if err := c.validator.ValidateDestination(dest); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDestination, dest, err)
		}
	}
	return nil
}

// preflightMove checks the destination and, when it is on another device
// than the files, that it can hold need bytes
func (c *Cleaner) preflightMove(groups []*scan.Group, dest string, need int64) error {
	if err := c.CheckDestination(dest); err != nil {
		return err
	}
	if len(groups) == 0 || need == 0 {
		return nil
	}

	same, err := disk.SameDevice(groups[0].Paths[0], dest)
	if err != nil || same {
		// not on the OS filesystem, or a plain rename
		return nil
	}
	if err := disk.CheckFreeSpace(dest, need); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	return nil
}

// Delete removes one file
func (c *Cleaner) Delete(it Item) error {
	if err := c.authorize(it.Path); err != nil {
		c.record(database.ActionSkip, it, "", err)
		return err
	}

	if c.dryRun {
		c.logger.Info("[DRY RUN] Would delete file", "path", it.Path, "size", it.Size)
		c.record(database.ActionDryRun, it, "", nil)
		return nil
	}

	if err := c.ops.Remove(it.Path); err != nil {
		return c.fail(database.ActionDelete, it, err)
	}

	c.logStructured(database.ActionDelete, it.Path, it.Size, "")
	c.record(database.ActionDelete, it, "", nil)
	metrics.FilesDeletedTotal.Inc()
	metrics.BytesReclaimedTotal.Add(float64(it.Size))
	return nil
}

// Move moves one file into dest and returns its new path. Callers moving a
// single file should CheckDestination first.
func (c *Cleaner) Move(it Item, dest string) (string, error) {
	if err := c.authorize(it.Path); err != nil {
		c.record(database.ActionSkip, it, dest, err)
		return "", err
	}

	if c.dryRun {
		target := filepath.Join(dest, filepath.Base(it.Path))
		c.logger.Info("[DRY RUN] Would move file", "path", it.Path, "destination", dest, "size", it.Size)
		c.record(database.ActionDryRun, it, target, nil)
		return target, nil
	}

	target, err := c.ops.Move(it.Path, dest)
	if err != nil {
		return "", c.fail(database.ActionMove, it, err)
	}

	c.logStructured(database.ActionMove, it.Path, it.Size, "to="+target)
	c.record(database.ActionMove, it, target, nil)
	metrics.FilesMovedTotal.Inc()
	metrics.BytesReclaimedTotal.Add(float64(it.Size))
	return target, nil
}

// Rename renames one file within its directory and returns its new path
func (c *Cleaner) Rename(it Item, newName string) (string, error) {
	if err := safety.ValidateName(newName); err != nil {
		return "", fmt.Errorf("%q: %w", newName, err)
	}
	if err := c.authorize(it.Path); err != nil {
		c.record(database.ActionSkip, it, newName, err)
		return "", err
	}

	if c.dryRun {
		target := filepath.Join(filepath.Dir(it.Path), newName)
		c.logger.Info("[DRY RUN] Would rename file", "path", it.Path, "name", newName)
		c.record(database.ActionDryRun, it, target, nil)
		return target, nil
	}

	target, err := c.ops.Rename(it.Path, newName)
	if err != nil {
		return "", c.fail(database.ActionRename, it, err)
	}

	c.logStructured(database.ActionRename, it.Path, it.Size, "to="+target)
	c.record(database.ActionRename, it, target, nil)
	metrics.FilesRenamedTotal.Inc()
	return target, nil
}

func (c *Cleaner) authorize(path string) error {
	if c.validator == nil {
		return nil
	}
	if err := c.validator.ValidateTarget(path); err != nil {
		c.logger.Warn("Refusing unsafe path", "path", path, "reason", err)
		metrics.RecordActionError("refused")
		return &RefusedError{Path: path, Err: err}
	}
	return nil
}

// fail logs, counts and records a failed mutation and returns err wrapped
// with the path
func (c *Cleaner) fail(action string, it Item, err error) error {
	if c.isStale != nil && c.isStale(it.Path) {
		c.logger.Warn("Skipping file on stale NFS mount", "path", it.Path)
		c.record(database.ActionSkip, it, "", errors.New("nfs_stale"))
		metrics.RecordActionError(strings.ToLower(action))
		return fmt.Errorf("%s %s: stale NFS mount: %w", strings.ToLower(action), it.Path, err)
	}

	if os.IsNotExist(err) {
		// removed by someone else between scan and action
		c.logger.Info("File already gone", "path", it.Path)
		return &MissingError{Path: it.Path, Err: err}
	}

	c.logger.Error("Failed to "+strings.ToLower(action), "path", it.Path, "error", err)
	c.record(database.ActionError, it, "", err)
	metrics.RecordActionError(strings.ToLower(action))
	return fmt.Errorf("%s %s: %w", strings.ToLower(action), it.Path, err)
}

// tally folds the outcome of one mutation into res
func (c *Cleaner) tally(res *Result, action string, it Item, err error) {
	var refused *RefusedError
	var missing *MissingError
	switch {
	case err == nil:
		res.Bytes += it.Size
		switch action {
		case database.ActionDelete:
			res.Deleted++
		case database.ActionMove:
			res.Moved++
		case database.ActionRename:
			res.Renamed++
		}
	case errors.As(err, &refused):
		res.Refused++
	case errors.As(err, &missing):
		res.Missing++
	default:
		res.Failed++
	}
}

func (c *Cleaner) record(action string, it Item, dest string, err error) {
	if c.history == nil {
		return
	}
	rec := database.ActionRecord{
		RunID:       c.runID,
		Action:      action,
		Path:        it.Path,
		Destination: dest,
		Size:        it.Size,
		Digest:      it.Digest,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	if dbErr := c.history.Record(rec); dbErr != nil {
		// history is an audit log, never fail the action over it
		c.logger.Error("Failed to record to database", "error", dbErr)
	}
}

func (c *Cleaner) logDone(msg string, res Result) {
	c.logger.Info(msg,
		"deleted", res.Deleted,
		"moved", res.Moved,
		"refused", res.Refused,
		"missing", res.Missing,
		"failed", res.Failed,
		"bytes", res.Bytes,
		"dry_run", c.dryRun,
	)
}

// logStructured logs one completed mutation: timestamp, action, path, size and detail
func (c *Cleaner) logStructured(action, path string, size int64, detail string) {
	entry := fmt.Sprintf("[%s] %s path=%s size=%d",
		time.Now().UTC().Format(time.RFC3339),
		action,
		path,
		size,
	)
	if detail != "" {
		entry += " " + detail
	}
	c.logger.Info(entry)
}

// RefusedError marks a mutation blocked by the safety validator
type RefusedError struct {
	Path string
	Err  error
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("refusing %s: %v", e.Path, e.Err)
}

func (e *RefusedError) Unwrap() error { return e.Err }

// MissingError marks a file that vanished between scan and action
type MissingError struct {
	Path string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s no longer exists", e.Path)
}

func (e *MissingError) Unwrap() error { return e.Err }
