package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dupsweep/internal/config"
	"dupsweep/internal/exitcodes"
	"dupsweep/internal/logging"
	"dupsweep/internal/metrics"
	"dupsweep/internal/runner"
	"dupsweep/internal/version"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

type cliFlags struct {
	configPath  string
	delete      bool
	interactive bool
	summary     bool
	moveDir     string
	dryRun      bool
	strict      bool
	jsonOutput  bool
	progress    bool
	history     string
	metricsFile string
	logFile     string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	cmd := &cobra.Command{
		Use:   "dupsweep [flags] PATH...",
		Short: "Find files with identical content and dispose of the duplicates",
		Long: `dupsweep scans one or more directory trees, groups files by size and
then by MD5 digest, and applies one action to every group of identical files.

Without an action flag the groups are printed. Action flags are honored in
the order --delete, --interactive, --summary, --move; extra ones are ignored.

--delete removes EVERY file of every group, first occurrences included.`,
		Version:      version.GetFullVersion(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "Path to YAML configuration file")
	fl.BoolVarP(&f.delete, "delete", "d", false, "Delete every file of every duplicate group")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "Decide per group and per file")
	fl.BoolVarP(&f.summary, "summary", "s", false, "Print counts instead of the groups")
	fl.StringVarP(&f.moveDir, "move", "m", "", "Move every file of every duplicate group into `DIR`")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Log mutations without performing them")
	fl.BoolVar(&f.strict, "strict", false, "Drop unreadable files instead of grouping them as empty")
	fl.BoolVar(&f.jsonOutput, "json", false, "JSON output for print and summary")
	fl.BoolVar(&f.progress, "progress", false, "Show a hashing progress bar on stderr")
	fl.StringVar(&f.history, "history", "", "Record actions to the SQLite database at `FILE`")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to `FILE` when done")
	fl.StringVar(&f.logFile, "log-file", "", "Also append logs to `FILE`")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Log skipped entries and other debug detail")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitcodes.Wrap(exitcodes.InvalidConfig, err)
	})
	return cmd
}

func run(cmd *cobra.Command, f *cliFlags, args []string) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return exitcodes.Wrap(exitcodes.InvalidConfig, err)
	}
	applyFlags(cmd, cfg, f)

	roots := args
	if len(roots) == 0 {
		roots = cfg.ScanPaths
	}
	if len(roots) == 0 {
		return exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("at least one PATH is required"))
	}

	base, closer := logging.NewWithConfig(cfg, cmd.ErrOrStderr())
	defer closer.Close()
	logger := logging.NewLeveled(base, cfg.Logging.Verbose)

	metrics.Init()

	action, ignored := runner.SelectAction(runner.Flags{
		Delete:      f.delete,
		Interactive: f.interactive,
		Summary:     f.summary,
		MoveDir:     f.moveDir,
	})
	if len(ignored) > 0 {
		logger.Warn("Several actions requested, only one runs", "action", action.String(), "ignored", strings.Join(ignored, ","))
	}
	if cfg.DryRun {
		logger.Info("DRY RUN MODE: no file will be modified")
	}

	_, err = runner.Run(cmd.Context(), runner.Options{
		Config:   cfg,
		Roots:    roots,
		Action:   action,
		MoveDir:  f.moveDir,
		JSON:     f.jsonOutput,
		Progress: f.progress,
		Stdin:    cmd.InOrStdin(),
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Run failed", "error", err)
	}
	return err
}

// applyFlags lets explicitly set flags override the file and environment
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *cliFlags) {
	if f.dryRun {
		cfg.DryRun = true
	}
	if f.strict {
		cfg.HashPolicy = config.HashPolicyStrict
	}
	if f.verbose {
		cfg.Logging.Verbose = true
	}
	changed := cmd.Flags().Changed
	if changed("history") {
		cfg.DatabasePath = f.history
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if changed("log-file") {
		cfg.Logging.File = f.logFile
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := fang.Execute(ctx, newRootCmd(),
		fang.WithVersion(version.GetVersion()),
		fang.WithCommit(version.GetInfo().Commit),
	)
	if err != nil {
		stop()
		os.Exit(exitcodes.FromError(err))
	}
}
