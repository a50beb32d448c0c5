package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"dupsweep/internal/api"
	"dupsweep/internal/database"
	"dupsweep/internal/exitcodes"
	"dupsweep/internal/logging"
	"dupsweep/internal/metrics"
	"dupsweep/internal/report"
	"dupsweep/internal/version"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

const (
	defaultDB   = "/var/lib/dupsweep/history.db"
	defaultAddr = "127.0.0.1:9187"
)

type queryFlags struct {
	dbPath      string
	recent      int
	stats       bool
	action      string
	pathPattern string
	runID       string
	largest     int
	days        int
	jsonOutput  bool
}

func newRootCmd() *cobra.Command {
	f := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "dupsweep-query",
		Short: "Query the dupsweep action history",
		Example: `  dupsweep-query --recent 10            # 10 most recent actions
  dupsweep-query --stats --days 7        # statistics for the last week
  dupsweep-query --action DELETE         # only deletions
  dupsweep-query --path '/data/photos/%' # actions under /data/photos
  dupsweep-query --run <run-id>          # every action of one run
  dupsweep-query --largest 10            # 10 largest files reclaimed
  dupsweep-query serve --addr :9187      # read-only HTTP API`,
		Version:      version.GetFullVersion(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return query(cmd, f)
		},
	}

	cmd.PersistentFlags().StringVar(&f.dbPath, "db", defaultDB, "Path to the history database")

	fl := cmd.Flags()
	fl.IntVar(&f.recent, "recent", 0, "Show N most recent actions")
	fl.BoolVar(&f.stats, "stats", false, "Show action statistics")
	fl.StringVar(&f.action, "action", "", "Filter by action (DELETE, MOVE, RENAME, SKIP, ERROR, DRY_RUN)")
	fl.StringVar(&f.pathPattern, "path", "", "Filter by path pattern (SQL LIKE syntax)")
	fl.StringVar(&f.runID, "run", "", "Show every action of one run")
	fl.IntVar(&f.largest, "largest", 0, "Show N largest files deleted or moved")
	fl.IntVar(&f.days, "days", 30, "Number of days for statistics")
	fl.BoolVar(&f.jsonOutput, "json", false, "Output in JSON format")

	cmd.AddCommand(newServeCmd(f))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitcodes.Wrap(exitcodes.InvalidConfig, err)
	})
	return cmd
}

type serveFlags struct {
	addr    string
	rps     float64
	burst   int
	verbose bool
}

func newServeCmd(qf *queryFlags) *cobra.Command {
	sf := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the action history as a read-only HTTP API",
		Long: `Serve the action history over HTTP until interrupted.

Endpoints:
  GET /api/v1/health
  GET /api/v1/actions?action=&path=&run=&limit=&page=
  GET /api/v1/runs/{id}
  GET /api/v1/stats?days=N
  GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, qf.dbPath, sf)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&sf.addr, "addr", defaultAddr, "Listen address")
	fl.Float64Var(&sf.rps, "rate", 20, "Requests per second allowed per client")
	fl.IntVar(&sf.burst, "burst", 40, "Request burst allowed per client")
	fl.BoolVarP(&sf.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func serve(cmd *cobra.Command, dbPath string, sf *serveFlags) error {
	if sf.rps <= 0 || sf.burst <= 0 {
		return exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("--rate and --burst must be positive"))
	}
	db, err := openHistory(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := logging.NewLeveled(log.New(cmd.ErrOrStderr(), "", log.LstdFlags), sf.verbose)
	metrics.Init()

	ctx := cmd.Context()
	router := api.NewRouter(ctx, db, api.Options{
		Logger:            logger,
		RequestsPerSecond: sf.rps,
		Burst:             sf.burst,
	})
	if err := api.Serve(ctx, sf.addr, router, logger); err != nil {
		return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("serve history API: %w", err))
	}
	return nil
}

// openHistory opens an existing history database; a missing file is a
// configuration error rather than an empty history
func openHistory(path string) (*database.ActionDB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, exitcodes.Wrap(exitcodes.InvalidConfig, fmt.Errorf("history database %s: %w", path, err))
	}
	db, err := database.NewActionDB(path)
	if err != nil {
		return nil, exitcodes.Wrap(exitcodes.RuntimeError, err)
	}
	return db, nil
}

func query(cmd *cobra.Command, f *queryFlags) error {
	if !f.stats && f.recent <= 0 && f.action == "" && f.pathPattern == "" && f.runID == "" && f.largest <= 0 {
		return exitcodes.Wrap(exitcodes.InvalidConfig, errors.New("no query given, see --help"))
	}

	db, err := openHistory(f.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()

	if f.stats {
		stats, err := db.GetActionStats(f.days)
		if err != nil {
			return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("get statistics: %w", err))
		}
		if f.jsonOutput {
			return writeJSON(out, stats)
		}
		printStats(out, stats, f.days)
		return nil
	}

	var (
		title   string
		records []database.ActionRecord
	)
	switch {
	case f.recent > 0:
		records, err = db.GetRecentActions(f.recent)
	case f.action != "":
		title = "Records with action: " + strings.ToUpper(f.action)
		records, err = db.GetActionsByType(strings.ToUpper(f.action))
	case f.pathPattern != "":
		title = "Records matching path pattern: " + f.pathPattern
		records, err = db.GetActionsByPath(f.pathPattern)
	case f.runID != "":
		title = "Records of run: " + f.runID
		records, err = db.GetActionsByRun(f.runID)
	case f.largest > 0:
		title = fmt.Sprintf("Largest %d files reclaimed:", f.largest)
		records, err = db.GetLargestReclaimed(f.largest)
	}
	if err != nil {
		return exitcodes.Wrap(exitcodes.RuntimeError, fmt.Errorf("query history: %w", err))
	}

	if f.jsonOutput {
		if records == nil {
			records = []database.ActionRecord{}
		}
		return writeJSON(out, records)
	}
	if title != "" {
		fmt.Fprintf(out, "%s\n\n", title)
	}
	printRecords(out, records)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printStats(w io.Writer, stats *database.ActionStats, days int) {
	fmt.Fprintf(w, "Action Statistics (Last %d days)\n", days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Runs:             %d\n", stats.Runs)
	fmt.Fprintf(w, "Total Deleted:    %d\n", stats.TotalDeleted)
	fmt.Fprintf(w, "Total Moved:      %d\n", stats.TotalMoved)
	fmt.Fprintf(w, "Total Renamed:    %d\n", stats.TotalRenamed)
	fmt.Fprintf(w, "Total Skipped:    %d\n", stats.TotalSkipped)
	fmt.Fprintf(w, "Total Errors:     %d\n", stats.TotalErrors)
	fmt.Fprintf(w, "Total Dry Run:    %d\n", stats.TotalDryRun)
	fmt.Fprintf(w, "Space Reclaimed:  %s\n", report.FormatBytes(stats.BytesReclaimed))

	if len(stats.ByAction) > 0 {
		actions := make([]string, 0, len(stats.ByAction))
		for action := range stats.ByAction {
			actions = append(actions, action)
		}
		sort.Strings(actions)

		fmt.Fprintln(w, "\nBy Action:")
		for _, action := range actions {
			fmt.Fprintf(w, "  %-15s %d\n", action, stats.ByAction[action])
		}
	}
}

func printRecords(w io.Writer, records []database.ActionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTimestamp\tAction\tSize\tPath\tDetail")
	_, _ = fmt.Fprintln(tw, "--\t---------\t------\t----\t----\t------")

	for _, r := range records {
		detail := r.Destination
		if r.ErrorMessage != "" {
			detail = r.ErrorMessage
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Action, report.FormatBytes(r.Size), r.Path, detail)
	}
	_ = tw.Flush()
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
