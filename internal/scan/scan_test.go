package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"dupsweep/internal/hasher"
	"dupsweep/internal/logging"

	"github.com/spf13/afero"
)

// countingDigester records every path handed to the Digester
type countingDigester struct {
	inner hasher.Digester
	calls map[string]int
	fail  map[string]bool
}

func newCountingDigester(fs afero.Fs) *countingDigester {
	return &countingDigester{
		inner: hasher.NewMD5(fs),
		calls: make(map[string]int),
		fail:  make(map[string]bool),
	}
}

func (c *countingDigester) Digest(path string) hasher.Result {
	c.calls[path]++
	if c.fail[path] {
		return hasher.Result{Path: path, Digest: hasher.EmptyDigest, Err: os.ErrPermission}
	}
	return c.inner.Digest(path)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// fixture builds dir1/{a,b,c} and dir2/{a,b}; dir1/a == dir2/a and
// dir1/c == dir2/b, dir1/b is unique
func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dir1", "a"), "alpha")
	writeFile(t, filepath.Join(root, "dir1", "b"), "unique content b")
	writeFile(t, filepath.Join(root, "dir1", "c"), "charlie!")
	writeFile(t, filepath.Join(root, "dir2", "a"), "alpha")
	writeFile(t, filepath.Join(root, "dir2", "b"), "charlie!")
	return root
}

func groupSets(set DuplicateSet) [][]string {
	var out [][]string
	for _, g := range set.Groups() {
		paths := append([]string(nil), g.Paths...)
		sort.Strings(paths)
		out = append(out, paths)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func TestFindFixture(t *testing.T) {
	root := fixture(t)
	s := New(nil, logging.Discard())

	set, err := s.Find(context.Background(), filepath.Join(root, "dir1"), filepath.Join(root, "dir2"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	want := [][]string{
		{filepath.Join(root, "dir1", "a"), filepath.Join(root, "dir2", "a")},
		{filepath.Join(root, "dir1", "c"), filepath.Join(root, "dir2", "b")},
	}
	if got := groupSets(set); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

func TestUniqueSizesAreNeverDigested(t *testing.T) {
	root := fixture(t)
	writeFile(t, filepath.Join(root, "dir3", "lonely"), "a size nobody else has here")

	s := New(nil, logging.Discard())
	counter := newCountingDigester(s.Fs)
	s.Digester = counter

	if _, err := s.Find(context.Background(), root); err != nil {
		t.Fatalf("Find: %v", err)
	}

	for _, unique := range []string{
		filepath.Join(root, "dir1", "b"),
		filepath.Join(root, "dir3", "lonely"),
	} {
		if counter.calls[unique] != 0 {
			t.Errorf("%s has a unique size but was digested %d times", unique, counter.calls[unique])
		}
	}
	if len(counter.calls) != 4 {
		t.Errorf("digested %d files, want 4: %v", len(counter.calls), counter.calls)
	}
	for path, n := range counter.calls {
		if n != 1 {
			t.Errorf("%s digested %d times, want 1", path, n)
		}
	}
}

func TestGroupsShareSizeAndDigest(t *testing.T) {
	root := fixture(t)
	writeFile(t, filepath.Join(root, "dir3", "x"), "charlie?")
	writeFile(t, filepath.Join(root, "dir3", "y"), "charlie!")

	fs := afero.NewOsFs()
	s := New(fs, logging.Discard())
	set, err := s.Find(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	md5 := hasher.NewMD5(fs)
	for _, g := range set.Groups() {
		for _, p := range g.Paths {
			info, err := os.Stat(p)
			if err != nil {
				t.Fatal(err)
			}
			if info.Size() != g.Size {
				t.Errorf("%s size %d, group size %d", p, info.Size(), g.Size)
			}
			if d := md5.Digest(p).Digest; d != g.Digest {
				t.Errorf("%s digest %s, group digest %s", p, d, g.Digest)
			}
		}
	}
	if n := len(set.Groups()); n != 2 {
		t.Errorf("got %d groups, want 2", n)
	}
}

func TestFindIsIdempotent(t *testing.T) {
	root := fixture(t)
	s := New(nil, logging.Discard())

	first, err := s.Find(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Find(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(groupSets(first), groupSets(second)) {
		t.Errorf("two scans disagree: %v vs %v", groupSets(first), groupSets(second))
	}
}

func TestOverlappingRootsRecordFilesOnce(t *testing.T) {
	root := fixture(t)
	s := New(nil, logging.Discard())

	sizes, err := s.GroupBySize(context.Background(), root, filepath.Join(root, "dir1"), root)
	if err != nil {
		t.Fatal(err)
	}
	if n := sizes.FileCount(); n != 5 {
		t.Errorf("FileCount = %d, want 5", n)
	}
}

func TestEmptyFilesAreDuplicates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one", "empty"), "")
	writeFile(t, filepath.Join(root, "two", "empty"), "")

	set, err := New(nil, logging.Discard()).Find(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	groups := set.Groups()
	if len(groups) != 1 || groups[0].Len() != 2 {
		t.Fatalf("groups = %+v, want one pair", groups)
	}
	if groups[0].Digest != hasher.EmptyDigest || groups[0].Size != 0 {
		t.Errorf("group = %+v, want empty digest and size 0", groups[0])
	}
}

func TestHashPolicy(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/r/empty1", nil, 0644)
	afero.WriteFile(fs, "/r/empty2", nil, 0644)
	afero.WriteFile(fs, "/r/x1", []byte("same"), 0644)
	afero.WriteFile(fs, "/r/x2", []byte("same"), 0644)
	afero.WriteFile(fs, "/r/bad", []byte("diff"), 0644)

	tests := []struct {
		name      string
		strict    bool
		wantEmpty []string
		wantSame  []string
	}{
		{
			name:      "lenient groups failures under the empty digest",
			wantEmpty: []string{"/r/empty1", "/r/empty2", "/r/bad"},
			wantSame:  []string{"/r/x1", "/r/x2"},
		},
		{
			name:      "strict drops failures",
			strict:    true,
			wantEmpty: []string{"/r/empty1", "/r/empty2"},
			wantSame:  []string{"/r/x1", "/r/x2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(fs, logging.Discard())
			s.Strict = tt.strict
			counter := newCountingDigester(fs)
			counter.fail["/r/bad"] = true
			s.Digester = counter

			set, err := s.Find(context.Background(), "/r")
			if err != nil {
				t.Fatal(err)
			}

			empty := set[hasher.EmptyDigest]
			if empty == nil {
				t.Fatal("no empty-digest group")
			}
			if !reflect.DeepEqual(empty.Paths, tt.wantEmpty) {
				t.Errorf("empty group = %v, want %v", empty.Paths, tt.wantEmpty)
			}
			same := set[hasher.NewMD5(fs).Digest("/r/x1").Digest]
			if same == nil || !reflect.DeepEqual(same.Paths, tt.wantSame) {
				t.Errorf("same group = %+v, want %v", same, tt.wantSame)
			}
		})
	}
}

func TestSymlinksAreSkipped(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	writeFile(t, target, "content")
	if err := os.Symlink(target, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	sizes, err := New(nil, logging.Discard()).GroupBySize(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if got := sizes[int64(len("content"))]; !reflect.DeepEqual(got, []string{target}) {
		t.Errorf("size group = %v, want only %s", got, target)
	}
}

func TestSymlinkedRootIsWalked(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "real", "f1"), "dup")
	writeFile(t, filepath.Join(base, "real", "f2"), "dup")
	link := filepath.Join(base, "linked")
	if err := os.Symlink(filepath.Join(base, "real"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	set, err := New(nil, logging.Discard()).Find(context.Background(), link)
	if err != nil {
		t.Fatal(err)
	}
	groups := set.Groups()
	if len(groups) != 1 || groups[0].Len() != 2 {
		t.Fatalf("groups = %+v, want one pair", groups)
	}
	if groups[0].Paths[0] != filepath.Join(link, "f1") {
		t.Errorf("first path = %s, want it under the link", groups[0].Paths[0])
	}
}

func TestExcludePatterns(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/r/keep/a.txt", []byte("same"), 0644)
	afero.WriteFile(fs, "/r/keep/b.txt", []byte("same"), 0644)
	afero.WriteFile(fs, "/r/keep/c.tmp", []byte("same"), 0644)
	afero.WriteFile(fs, "/r/.git/objects/d", []byte("same"), 0644)

	s := New(fs, logging.Discard())
	s.Exclude = []string{"*.tmp", ".git"}

	sizes, err := s.GroupBySize(context.Background(), "/r")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/r/keep/a.txt", "/r/keep/b.txt"}
	if got := sizes[4]; !reflect.DeepEqual(got, want) {
		t.Errorf("size group = %v, want %v", got, want)
	}
}

func TestMissingAndStaleRootsAreSkipped(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/ok/a", []byte("same"), 0644)
	afero.WriteFile(fs, "/ok/b", []byte("same"), 0644)
	afero.WriteFile(fs, "/nfs/c", []byte("same"), 0644)

	s := New(fs, logging.Discard())
	s.IsStale = func(root string) bool { return root == "/nfs" }

	sizes, err := s.GroupBySize(context.Background(), "/missing", "/ok", "/nfs")
	if err != nil {
		t.Fatalf("missing or stale roots should not fail the scan: %v", err)
	}
	if got := sizes[4]; !reflect.DeepEqual(got, []string{"/ok/a", "/ok/b"}) {
		t.Errorf("size group = %v", got)
	}
}

func TestCancelledContext(t *testing.T) {
	root := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil, logging.Discard()).Find(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Find with cancelled context = %v, want context.Canceled", err)
	}
}

type countingProgress struct {
	total, added int
	finished     bool
}

func (p *countingProgress) Add(n int) error {
	p.added += n
	return nil
}

func (p *countingProgress) Finish() error {
	p.finished = true
	return nil
}

type countingThrottle struct{ n int }

func (c *countingThrottle) Throttle() { c.n++ }

func TestProgressAndThrottleHooks(t *testing.T) {
	root := fixture(t)
	s := New(nil, logging.Discard())
	p := &countingProgress{}
	s.NewProgress = func(total int) Progress {
		p.total = total
		return p
	}
	throttle := &countingThrottle{}
	s.Throttle = throttle

	if _, err := s.Find(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if p.total != 4 || p.added != 4 || !p.finished {
		t.Errorf("progress = %+v, want total=4 added=4 finished", p)
	}
	if throttle.n != 4 {
		t.Errorf("throttled %d times, want 4", throttle.n)
	}
}

func TestDuplicateSetFiltered(t *testing.T) {
	set := make(DuplicateSet)
	set.add("aaa", 3, "/x/1")
	set.add("aaa", 3, "/x/2")
	set.add("bbb", 3, "/x/3")

	filtered := set.Filtered()
	if len(filtered) != 1 || filtered["aaa"] == nil {
		t.Errorf("Filtered = %v, want only aaa", filtered)
	}
	if n := set.FileCount(); n != 2 {
		t.Errorf("FileCount = %d, want 2", n)
	}
}
