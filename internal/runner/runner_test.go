package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"dupsweep/internal/config"
	"dupsweep/internal/database"
	"dupsweep/internal/exitcodes"
	"dupsweep/internal/report"

	"github.com/fatih/color"
	"github.com/spf13/afero"
)

func init() {
	color.NoColor = true
}

type nopOpener struct{}

func (nopOpener) Open(string) error { return nil }

// writeTree creates dir1/{a,b,c} and dir2/{a,b} where dir1/a = dir2/a and
// dir1/c = dir2/b
func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"dir1/a": "hello",
		"dir1/b": "unique longer",
		"dir1/c": "same8byt",
		"dir2/a": "hello",
		"dir2/b": "same8byt",
	}
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func runOpts(root string, action Action) (Options, *bytes.Buffer) {
	var stdout bytes.Buffer
	return Options{
		Config: config.Default(),
		Roots:  []string{root},
		Action: action,
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
		Stdin:  strings.NewReader(""),
		Opener: nopOpener{},
	}, &stdout
}

func TestSelectAction(t *testing.T) {
	tests := []struct {
		name    string
		flags   Flags
		want    Action
		ignored []string
	}{
		{"none", Flags{}, ActionPrint, nil},
		{"summary", Flags{Summary: true}, ActionSummary, []string{}},
		{"move", Flags{MoveDir: "/dups"}, ActionMove, []string{}},
		{"delete beats all", Flags{Delete: true, Interactive: true, Summary: true, MoveDir: "/d"}, ActionDelete, []string{"--interactive", "--summary", "--move"}},
		{"interactive beats summary", Flags{Interactive: true, Summary: true}, ActionInteractive, []string{"--summary"}},
		{"summary beats move", Flags{Summary: true, MoveDir: "/d"}, ActionSummary, []string{"--move"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ignored := SelectAction(tt.flags)
			if got != tt.want {
				t.Errorf("SelectAction = %v, want %v", got, tt.want)
			}
			if len(ignored) != len(tt.ignored) || (len(ignored) > 0 && !reflect.DeepEqual(ignored, tt.ignored)) {
				t.Errorf("ignored = %v, want %v", ignored, tt.ignored)
			}
		})
	}
}

func TestRunPrint(t *testing.T) {
	root := writeTree(t)
	opts, stdout := runOpts(root, ActionPrint)

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	want := report.LinePrefix + filepath.Join(root, "dir1/a") + ", " + filepath.Join(root, "dir2/a") + "\n" +
		report.LinePrefix + filepath.Join(root, "dir1/c") + ", " + filepath.Join(root, "dir2/b") + "\n"
	if stdout.String() != want {
		t.Errorf("stdout:\n%s\nwant:\n%s", stdout.String(), want)
	}
	if out.Groups != 2 || out.Files != 4 || out.RunID == "" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunSummaryJSON(t *testing.T) {
	root := writeTree(t)
	opts, stdout := runOpts(root, ActionSummary)
	opts.JSON = true

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	var s report.Summary
	if err := json.Unmarshal(stdout.Bytes(), &s); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout.String(), err)
	}
	if s.DupCount != 2 || s.DupTotal != 4 || s.Empty != 0 || s.ReclaimableBytes != 13 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRunDeleteRecordsHistory(t *testing.T) {
	root := writeTree(t)
	opts, _ := runOpts(root, ActionDelete)
	opts.Config.DatabasePath = filepath.Join(t.TempDir(), "history.db")

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.Deleted != 4 {
		t.Errorf("result = %+v", out.Result)
	}
	for _, rel := range []string{"dir1/a", "dir1/c", "dir2/a", "dir2/b"} {
		if _, err := os.Stat(filepath.Join(root, rel)); !os.IsNotExist(err) {
			t.Errorf("%s should be deleted", rel)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "dir1/b")); err != nil {
		t.Errorf("dir1/b must survive: %v", err)
	}

	db, err := database.NewActionDB(opts.Config.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	records, err := db.GetActionsByRun(out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 || records[0].Action != database.ActionDelete {
		t.Errorf("history = %+v", records)
	}
}

func TestRunDryRunDeletesNothing(t *testing.T) {
	root := writeTree(t)
	opts, _ := runOpts(root, ActionDelete)
	opts.Config.DryRun = true

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.Deleted != 4 {
		t.Errorf("dry run should count would-be deletions: %+v", out.Result)
	}
	if _, err := os.Stat(filepath.Join(root, "dir1/a")); err != nil {
		t.Errorf("dry run removed a file: %v", err)
	}
}

func TestRunMove(t *testing.T) {
	t.Run("invalid destination", func(t *testing.T) {
		root := writeTree(t)
		opts, _ := runOpts(root, ActionMove)
		opts.MoveDir = filepath.Join(root, "missing")

		_, err := Run(context.Background(), opts)
		if code := exitcodes.FromError(err); code != exitcodes.InvalidDestination {
			t.Fatalf("exit code = %d (%v), want %d", code, err, exitcodes.InvalidDestination)
		}
		if _, err := os.Stat(filepath.Join(root, "dir1/a")); err != nil {
			t.Errorf("nothing may move on an invalid destination: %v", err)
		}
	})

	t.Run("valid destination", func(t *testing.T) {
		root := writeTree(t)
		dest := t.TempDir()
		opts, _ := runOpts(root, ActionMove)
		opts.MoveDir = dest

		out, err := Run(context.Background(), opts)
		if err != nil {
			t.Fatal(err)
		}
		if out.Result.Moved != 4 {
			t.Errorf("result = %+v", out.Result)
		}
		entries, _ := os.ReadDir(dest)
		if len(entries) != 4 {
			t.Errorf("destination holds %d entries, want 4", len(entries))
		}
		if _, err := os.Stat(filepath.Join(root, "dir1/b")); err != nil {
			t.Errorf("dir1/b must not move: %v", err)
		}
	})
}

func TestRunInteractive(t *testing.T) {
	root := writeTree(t)
	opts, stdout := runOpts(root, ActionInteractive)
	opts.Stdin = strings.NewReader("a\nd\ns\ns\n")

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if out.Triage.Deleted != 1 || out.Triage.Skipped != 1 || out.Triage.GroupsSkipped != 1 {
		t.Errorf("triage = %+v", out.Triage)
	}
	if _, err := os.Stat(filepath.Join(root, "dir1/a")); !os.IsNotExist(err) {
		t.Error("dir1/a should be deleted")
	}
	if !strings.Contains(stdout.String(), "Group 1/2") {
		t.Errorf("prompts missing:\n%s", stdout.String())
	}
}

func TestRunRefusalsAreActionFailures(t *testing.T) {
	root := writeTree(t)
	opts, _ := runOpts(root, ActionDelete)
	opts.Config.Safety.ProtectedPaths = []string{filepath.Join(root, "dir2")}

	out, err := Run(context.Background(), opts)
	if code := exitcodes.FromError(err); code != exitcodes.ActionFailures {
		t.Fatalf("exit code = %d (%v), want %d", code, err, exitcodes.ActionFailures)
	}
	if out.Result.Deleted != 2 || out.Result.Refused != 2 {
		t.Errorf("result = %+v", out.Result)
	}
	if _, err := os.Stat(filepath.Join(root, "dir2/a")); err != nil {
		t.Errorf("protected file was removed: %v", err)
	}
}

func TestRunInvalidInput(t *testing.T) {
	if _, err := Run(context.Background(), Options{Roots: []string{"/tmp"}}); exitcodes.FromError(err) != exitcodes.InvalidConfig {
		t.Errorf("nil config: %v", err)
	}
	if _, err := Run(context.Background(), Options{Config: config.Default()}); exitcodes.FromError(err) != exitcodes.InvalidConfig {
		t.Errorf("no roots: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts, _ := runOpts(t.TempDir(), ActionPrint)
	if _, err := Run(ctx, opts); exitcodes.FromError(err) != exitcodes.RuntimeError {
		t.Errorf("cancelled context: %v", err)
	}
}

func TestRunWritesMetricsFile(t *testing.T) {
	root := writeTree(t)
	opts, _ := runOpts(root, ActionSummary)
	opts.Config.MetricsFile = filepath.Join(t.TempDir(), "dupsweep.prom")

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(opts.Config.MetricsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "dupsweep_duplicate_groups") {
		t.Errorf("metrics file missing duplicate groups gauge:\n%s", data)
	}
}

func TestRunOnMemFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/m/x", []byte("same"), 0644)
	afero.WriteFile(fs, "/m/y", []byte("same"), 0644)
	afero.WriteFile(fs, "/m/z", []byte("diff"), 0644)

	opts, stdout := runOpts("/m", ActionPrint)
	opts.Fs = fs
	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if want := report.LinePrefix + "/m/x, /m/y\n"; stdout.String() != want {
		t.Errorf("stdout = %q, want %q", stdout.String(), want)
	}
}
