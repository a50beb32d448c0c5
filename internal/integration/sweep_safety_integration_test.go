package integration

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dupsweep/internal/cleanup"
	"dupsweep/internal/database"
	"dupsweep/internal/fsops"
	"dupsweep/internal/metrics"
	"dupsweep/internal/report"
	"dupsweep/internal/safety"
	"dupsweep/internal/scan"
	"dupsweep/internal/triage"
)

func init() {
	// Initialize metrics once for all integration tests
	metrics.Init()
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", rel, err)
		}
	}
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err != nil {
		t.Errorf("%s must still exist: %v", path, err)
	}
}

func mustBeGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("%s should have been removed (err=%v)", path, err)
	}
}

func find(t *testing.T, roots ...string) scan.DuplicateSet {
	t.Helper()
	set, err := scan.New(nil, nil).Find(context.Background(), roots...)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	return set.Filtered()
}

// TestSweepSafetyIntegration runs scan then delete on a real tree that also
// holds a protected duplicate outside the root and a symlink pointing at it
func TestSweepSafetyIntegration(t *testing.T) {
	// 1. Create temporary filesystem structure
	tmpRoot := t.TempDir()
	allowedDir := filepath.Join(tmpRoot, "allowed")
	protectedDir := filepath.Join(tmpRoot, "protected")

	writeFiles(t, allowedDir, map[string]string{
		"dir1/a": "hello",
		"dir1/b": "unique content",
		"dir1/c": "charlie!",
		"dir2/a": "hello",
		"dir2/b": "charlie!",
	})
	// Same content as dir1/a, but outside the scanned root
	protectedFile := filepath.Join(protectedDir, "keep.txt")
	writeFiles(t, protectedDir, map[string]string{"keep.txt": "hello"})

	linkToProtected := filepath.Join(allowedDir, "link_to_protected")
	if err := os.Symlink(protectedFile, linkToProtected); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	// 2. Scan only the allowed directory
	set := find(t, allowedDir)
	groups := set.Groups()
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(groups), groups)
	}
	want := [][]string{
		{filepath.Join(allowedDir, "dir1/a"), filepath.Join(allowedDir, "dir2/a")},
		{filepath.Join(allowedDir, "dir1/c"), filepath.Join(allowedDir, "dir2/b")},
	}
	for i, g := range groups {
		if strings.Join(g.Paths, ",") != strings.Join(want[i], ",") {
			t.Errorf("group %d = %v, want %v", i, g.Paths, want[i])
		}
	}

	var printed bytes.Buffer
	if err := report.Print(&printed, set); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(printed.String(), "link_to_protected") {
		t.Errorf("symlinks must never be reported:\n%s", printed.String())
	}

	validator := safety.NewValidator([]string{allowedDir}, nil)

	// 3a. DRY-RUN: Assert no deletions occur
	t.Run("DryRun_NoFilesystemChanges", func(t *testing.T) {
		cleaner := cleanup.NewCleaner(cleanup.Options{
			Ops:       fsops.New(nil),
			Validator: validator,
			DryRun:    true,
		})
		res, err := cleaner.DeleteAll(context.Background(), set)
		if err != nil {
			t.Fatal(err)
		}
		if res.Deleted != 4 {
			t.Errorf("dry run should report 4 would-be deletions, got %+v", res)
		}
		for _, g := range groups {
			for _, p := range g.Paths {
				mustExist(t, p)
			}
		}
	})

	// 3b. Protected duplicate injected into the set is refused
	t.Run("OutsideRoot_Refused", func(t *testing.T) {
		bad := scan.DuplicateSet{
			"x": {Digest: "x", Size: 5, Paths: []string{protectedFile, linkToProtected}},
		}
		cleaner := cleanup.NewCleaner(cleanup.Options{Ops: fsops.New(nil), Validator: validator})
		res, err := cleaner.DeleteAll(context.Background(), bad)
		if err != nil {
			t.Fatal(err)
		}
		if res.Refused != 2 || res.Deleted != 0 {
			t.Errorf("expected both paths refused, got %+v", res)
		}
		mustExist(t, protectedFile)
		mustExist(t, linkToProtected)
	})

	// 3c. Real delete removes every duplicate, first occurrences included
	t.Run("Delete_RemovesDuplicatesOnly", func(t *testing.T) {
		cleaner := cleanup.NewCleaner(cleanup.Options{Ops: fsops.New(nil), Validator: validator})
		res, err := cleaner.DeleteAll(context.Background(), set)
		if err != nil {
			t.Fatal(err)
		}
		if res.Deleted != 4 || res.Failures() != 0 {
			t.Errorf("unexpected result %+v", res)
		}
		for _, g := range groups {
			for _, p := range g.Paths {
				mustBeGone(t, p)
			}
		}
		mustExist(t, filepath.Join(allowedDir, "dir1/b"))
		mustExist(t, protectedFile)
		mustExist(t, linkToProtected)
	})
}

// TestEmptyFilesSummary checks that zero-byte files group together and are
// counted as empty
func TestEmptyFilesSummary(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"e1":     "",
		"sub/e2": "",
		"x":      "not empty",
	})

	s := report.Summarize(find(t, root))
	if s.DupCount != 1 || s.Empty != 2 || s.DupTotal != 2 || s.ReclaimableBytes != 0 {
		t.Errorf("summary = %+v", s)
	}
}

// TestMoveWithHistory moves the duplicates out and checks the audit trail
func TestMoveWithHistory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"dir1/a": "hello",
		"dir1/b": "unique content",
		"dir2/a": "hello",
	})
	set := find(t, root)

	db, err := database.NewActionDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cleaner := cleanup.NewCleaner(cleanup.Options{
		Ops:       fsops.New(nil),
		Validator: safety.NewValidator([]string{root}, nil),
		History:   db,
		RunID:     "move-run",
	})

	// Missing destination: nothing moves
	if _, err := cleaner.MoveAll(context.Background(), set, filepath.Join(root, "nope")); !errors.Is(err, cleanup.ErrInvalidDestination) {
		t.Fatalf("MoveAll to missing dir = %v", err)
	}
	mustExist(t, filepath.Join(root, "dir1/a"))

	dest := t.TempDir()
	res, err := cleaner.MoveAll(context.Background(), set, dest)
	if err != nil {
		t.Fatal(err)
	}
	if res.Moved != 2 {
		t.Errorf("result = %+v", res)
	}
	mustExist(t, filepath.Join(dest, "a"))
	mustExist(t, filepath.Join(dest, "a_1"))
	mustExist(t, filepath.Join(root, "dir1/b"))

	records, err := db.GetActionsByRun("move-run")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].Action != database.ActionMove || records[1].Destination != filepath.Join(dest, "a_1") {
		t.Errorf("history = %+v", records)
	}
}

// TestTriageEndToEnd drives a triage session over a scanned tree
func TestTriageEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"dir1/a": "hello",
		"dir2/a": "hello",
	})
	dest := t.TempDir()

	cleaner := cleanup.NewCleaner(cleanup.Options{
		Ops:       fsops.New(nil),
		Validator: safety.NewValidator([]string{root}, nil),
	})
	var out bytes.Buffer
	session := triage.NewSession(find(t, root), cleaner, nil, nil, &out)

	input := "a\nr\nhello.txt\nm\n" + dest + "\n"
	stats, err := session.Run(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Renamed != 1 || stats.Moved != 1 {
		t.Errorf("stats = %+v\n%s", stats, out.String())
	}
	mustExist(t, filepath.Join(root, "dir1/hello.txt"))
	mustExist(t, filepath.Join(dest, "a"))
	mustBeGone(t, filepath.Join(root, "dir2/a"))
}
