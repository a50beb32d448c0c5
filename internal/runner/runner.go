// Package runner wires one invocation together: it scans the roots once and
// applies exactly one action to the resulting duplicate set.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dupsweep/internal/cleanup"
	"dupsweep/internal/config"
	"dupsweep/internal/database"
	"dupsweep/internal/disk"
	"dupsweep/internal/exitcodes"
	"dupsweep/internal/fsops"
	"dupsweep/internal/limiter"
	"dupsweep/internal/logging"
	"dupsweep/internal/metrics"
	"dupsweep/internal/report"
	"dupsweep/internal/safety"
	"dupsweep/internal/scan"
	"dupsweep/internal/triage"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
)

// Action is the disposition applied to the duplicate set
type Action int

const (
	ActionPrint Action = iota
	ActionSummary
	ActionDelete
	ActionMove
	ActionInteractive
)

func (a Action) String() string {
	switch a {
	case ActionPrint:
		return "print"
	case ActionSummary:
		return "summary"
	case ActionDelete:
		return "delete"
	case ActionMove:
		return "move"
	case ActionInteractive:
		return "interactive"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Flags are the action flags as given on the command line
type Flags struct {
	Delete      bool
	Interactive bool
	Summary     bool
	MoveDir     string
}

// SelectAction picks one action from flags. Delete wins over interactive,
// interactive over summary, summary over move; with none set the set is
// printed. The names of the flags that lost are returned.
func SelectAction(f Flags) (Action, []string) {
	var chosen []Action
	var names []string
	if f.Delete {
		chosen = append(chosen, ActionDelete)
		names = append(names, "--delete")
	}
	if f.Interactive {
		chosen = append(chosen, ActionInteractive)
		names = append(names, "--interactive")
	}
	if f.Summary {
		chosen = append(chosen, ActionSummary)
		names = append(names, "--summary")
	}
	if f.MoveDir != "" {
		chosen = append(chosen, ActionMove)
		names = append(names, "--move")
	}

	if len(chosen) == 0 {
		return ActionPrint, nil
	}
	return chosen[0], names[1:]
}

// Options configures Run. Config and Roots are required.
type Options struct {
	Config  *config.Config
	Roots   []string
	Action  Action
	MoveDir string

	JSON     bool // machine readable print and summary output
	Progress bool // hashing progress bar on Stderr

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logger *logging.Leveled
	Fs     afero.Fs      // nil uses the OS filesystem
	Opener triage.Opener // nil uses triage.SystemOpener
}

// Outcome describes a finished run
type Outcome struct {
	RunID   string
	Action  Action
	Groups  int
	Files   int
	Summary report.Summary
	Result  cleanup.Result // delete and move
	Triage  triage.Stats   // interactive
}

// Run scans opts.Roots and applies opts.Action. The returned error carries
// an exit code (see exitcodes.FromError): per-item failures yield
// ActionFailures after the whole action has run.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("nil config"))
	}
	if len(opts.Roots) == 0 {
		return nil, exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("no paths to scan"))
	}
	opts = withDefaults(opts)
	logger := opts.Logger

	select {
	case <-ctx.Done():
		return nil, exitcodes.Wrap(exitcodes.RuntimeError, ctx.Err())
	default:
	}

	start := time.Now()
	metrics.RecordRun()
	if cfg.MetricsFile != "" {
		defer func() {
			if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.Warn("Failed to write metrics", "error", err)
			}
		}()
	}

	out := &Outcome{RunID: uuid.NewString(), Action: opts.Action}
	logger.Info("Run starting", "run_id", out.RunID, "action", opts.Action.String(), "roots", len(opts.Roots), "dry_run", cfg.DryRun)

	set, err := newScanner(opts).Find(ctx, opts.Roots...)
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("scan: %w", err))
	}
	set = set.Filtered()
	out.Groups = len(set)
	out.Files = set.FileCount()

	if err := dispatch(ctx, opts, set, out); err != nil {
		return out, err
	}

	logger.Info("Run complete",
		"run_id", out.RunID,
		"groups", out.Groups,
		"files", out.Files,
		"duration", fmt.Sprintf("%.3fs", time.Since(start).Seconds()),
	)

	if n := out.Result.Failures() + out.Triage.Failed; n > 0 {
		return out, exitcodes.Wrap(exitcodes.ActionFailures, fmt.Errorf("%d files could not be handled", n))
	}
	return out, nil
}

func withDefaults(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Opener == nil {
		opts.Opener = triage.SystemOpener{}
	}
	return opts
}

func newScanner(opts Options) *scan.Scanner {
	cfg := opts.Config
	s := scan.New(opts.Fs, opts.Logger)
	s.Strict = cfg.Strict()
	s.Exclude = cfg.ExcludePatterns

	if cpu := limiter.NewCPULimiter(cfg.ResourceLimits.MaxCPUPercent); cpu.Enabled() {
		s.Throttle = cpu
	}
	if _, ok := opts.Fs.(*afero.OsFs); ok {
		timeout := cfg.NFSTimeoutDuration()
		s.IsStale = func(root string) bool { return disk.IsNFSStale(root, timeout) }
	}
	if opts.Progress {
		s.NewProgress = func(total int) scan.Progress {
			return progressbar.NewOptions(total,
				progressbar.OptionSetWriter(opts.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(15),
				progressbar.OptionSetDescription("Hashing files..."),
				progressbar.OptionShowElapsedTimeOnFinish(),
			)
		}
	}
	return s
}

func dispatch(ctx context.Context, opts Options, set scan.DuplicateSet, out *Outcome) error {
	switch opts.Action {
	case ActionPrint:
		var err error
		if opts.JSON {
			err = report.PrintJSON(opts.Stdout, set)
		} else {
			err = report.Print(opts.Stdout, set)
		}
		return wrapOutput(err)

	case ActionSummary:
		out.Summary = report.Summarize(set)
		var err error
		if opts.JSON {
			err = report.WriteSummaryJSON(opts.Stdout, out.Summary)
		} else {
			err = report.WriteSummary(opts.Stdout, out.Summary)
		}
		return wrapOutput(err)
	}

	cleaner, closeHistory, err := newCleaner(opts, out.RunID)
	if err != nil {
		return err
	}
	defer closeHistory()

	switch opts.Action {
	case ActionDelete:
		out.Result, err = cleaner.DeleteAll(ctx, set)
	case ActionMove:
		out.Result, err = cleaner.MoveAll(ctx, set, opts.MoveDir)
	case ActionInteractive:
		session := triage.NewSession(set, cleaner, opts.Opener, opts.Logger, opts.Stdout)
		out.Triage, err = session.Run(opts.Stdin)
	default:
		return exitcodes.Wrap(exitcodes.InvalidConfig, fmt.Errorf("unknown action %v", opts.Action))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, cleanup.ErrInvalidDestination):
		return exitcodes.Wrap(exitcodes.InvalidDestination, err)
	default:
		return exitcodes.Wrap(exitcodes.RuntimeError, err)
	}
}

// newCleaner builds the Cleaner for the mutating actions. The returned func
// closes the history database, if one was opened.
func newCleaner(opts Options, runID string) (*cleanup.Cleaner, func(), error) {
	cfg := opts.Config
	closer := func() {}

	var history cleanup.History
	if cfg.DatabasePath != "" {
		db, err := database.NewActionDB(cfg.DatabasePath)
		if err != nil {
			return nil, closer, exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("open history: %w", err))
		}
		history = db
		closer = func() {
			if err := db.Close(); err != nil {
				opts.Logger.Warn("Failed to close history database", "error", err)
			}
		}
	}

	var isStale func(string) bool
	if _, ok := opts.Fs.(*afero.OsFs); ok {
		timeout := cfg.NFSTimeoutDuration()
		isStale = func(path string) bool { return disk.IsNFSStale(path, timeout) }
	}

	cleaner := cleanup.NewCleaner(cleanup.Options{
		Logger:    opts.Logger,
		Ops:       fsops.New(opts.Fs),
		Validator: safety.NewValidator(opts.Roots, cfg.Safety.ProtectedPaths),
		DryRun:    cfg.DryRun,
		History:   history,
		RunID:     runID,
		IsStale:   isStale,
	})
	return cleaner, closer, nil
}

func wrapOutput(err error) error {
	if err == nil {
		return nil
	}
	return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("write output: %w", err))
}
