// Package triage walks the user through duplicate groups one file at a time.
//
// A Session is a small state machine driven by lines of input. Each group is
// first offered as a whole (skip or act); acting on it visits every file in
// turn, where the file can be skipped, deleted, opened with the system viewer,
// renamed in place or moved to another directory. End of input ends the
// session, and a failure on one file is reported without ending it.
package triage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"dupsweep/internal/cleanup"
	"dupsweep/internal/logging"
	"dupsweep/internal/report"
	"dupsweep/internal/safety"
	"dupsweep/internal/scan"

	"github.com/fatih/color"
)

// State is the input a Session is waiting for
type State int

const (
	AwaitGroupDecision State = iota
	AwaitItemDecision
	AwaitRenameInput
	AwaitMoveDestination
	Done
)

func (s State) String() string {
	switch s {
	case AwaitGroupDecision:
		return "await_group_decision"
	case AwaitItemDecision:
		return "await_item_decision"
	case AwaitRenameInput:
		return "await_rename_input"
	case AwaitMoveDestination:
		return "await_move_destination"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Disposer applies dispositions to single files; *cleanup.Cleaner satisfies it
type Disposer interface {
	Delete(it cleanup.Item) error
	Move(it cleanup.Item, dest string) (string, error)
	Rename(it cleanup.Item, newName string) (string, error)
	CheckDestination(dest string) error
}

// Opener shows a file to the user
type Opener interface {
	Open(path string) error
}

// Stats counts what happened during a session
type Stats struct {
	GroupsActed   int `json:"groups_acted"`
	GroupsSkipped int `json:"groups_skipped"`
	Deleted       int `json:"deleted"`
	Moved         int `json:"moved"`
	Renamed       int `json:"renamed"`
	Skipped       int `json:"skipped"`
	Opened        int `json:"opened"`
	Failed        int `json:"failed"`
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	errorColor   = color.New(color.FgRed)
	okColor      = color.New(color.FgGreen)
)

// Session is one interactive pass over a duplicate set
type Session struct {
	groups   []*scan.Group
	disposer Disposer
	opener   Opener
	logger   cleanup.CleanupLogger
	out      io.Writer

	state State
	group int
	items []cleanup.Item
	item  int
	stats Stats
}

// NewSession prepares a session over the groups of set. A nil opener
// disables "open", a nil logger discards diagnostics.
func NewSession(set scan.DuplicateSet, disposer Disposer, opener Opener, logger cleanup.CleanupLogger, out io.Writer) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Session{
		groups:   set.Groups(),
		disposer: disposer,
		opener:   opener,
		logger:   logger,
		out:      out,
	}
	if len(s.groups) == 0 {
		s.state = Done
	}
	return s
}

// State returns the input the session is waiting for
func (s *Session) State() State {
	return s.state
}

// Stats returns the counters so far
func (s *Session) Stats() Stats {
	return s.stats
}

// Run prompts on out and reads answers from in, one per line, until every
// group has been handled or in is exhausted. Only a read error other than
// end of input is returned.
func (s *Session) Run(in io.Reader) (Stats, error) {
	if s.state == Done {
		fmt.Fprintln(s.out, "No duplicates found.")
		return s.stats, nil
	}

	scanner := bufio.NewScanner(in)
	for s.state != Done {
		s.prompt()
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			s.logger.Info("Triage input ended", "state", s.state.String())
			s.state = Done
			break
		}
		s.Step(scanner.Text())
	}

	s.logger.Info("Triage complete",
		"groups_acted", s.stats.GroupsActed,
		"deleted", s.stats.Deleted,
		"moved", s.stats.Moved,
		"renamed", s.stats.Renamed,
		"failed", s.stats.Failed,
	)
	return s.stats, scanner.Err()
}

// Step feeds one line of input to the state machine
func (s *Session) Step(line string) {
	line = strings.TrimSpace(line)

	switch s.state {
	case AwaitGroupDecision:
		s.onGroupDecision(strings.ToLower(line))
	case AwaitItemDecision:
		s.onItemDecision(strings.ToLower(line))
	case AwaitRenameInput:
		s.onRename(line)
	case AwaitMoveDestination:
		s.onMove(line)
	}
}

func (s *Session) onGroupDecision(choice string) {
	switch choice {
	case "s", "skip":
		s.stats.GroupsSkipped++
		s.nextGroup()
	case "a", "act":
		s.stats.GroupsActed++
		s.items = cleanup.Items(s.groups[s.group])
		s.item = 0
		s.state = AwaitItemDecision
	default:
		errorColor.Fprintf(s.out, "Unknown choice %q, expected skip or act\n", choice)
	}
}

func (s *Session) onItemDecision(choice string) {
	it := s.current()

	switch choice {
	case "s", "skip":
		s.stats.Skipped++
		s.nextItem()
	case "d", "delete":
		if err := s.disposer.Delete(it); err != nil {
			s.failed("delete", it.Path, err)
		} else {
			s.stats.Deleted++
			okColor.Fprintf(s.out, "Deleted %s\n", it.Path)
		}
		s.nextItem()
	case "o", "open":
		s.open(it.Path)
	case "r", "rename":
		s.state = AwaitRenameInput
	case "m", "move":
		s.state = AwaitMoveDestination
	default:
		errorColor.Fprintf(s.out, "Unknown choice %q, expected skip, delete, open, rename or move\n", choice)
	}
}

func (s *Session) onRename(name string) {
	if name == "" {
		fmt.Fprintln(s.out, "Rename cancelled")
		s.state = AwaitItemDecision
		return
	}
	if err := safety.ValidateName(name); err != nil {
		errorColor.Fprintf(s.out, "Invalid name %q: %v\n", name, err)
		return
	}

	it := s.current()
	target, err := s.disposer.Rename(it, name)
	if err != nil {
		s.failed("rename", it.Path, err)
	} else {
		s.stats.Renamed++
		okColor.Fprintf(s.out, "Renamed %s to %s\n", it.Path, target)
	}
	s.nextItem()
}

func (s *Session) onMove(dest string) {
	if err := s.disposer.CheckDestination(dest); err != nil {
		errorColor.Fprintf(s.out, "%v\n", err)
		return
	}

	it := s.current()
	target, err := s.disposer.Move(it, dest)
	if err != nil {
		s.failed("move", it.Path, err)
	} else {
		s.stats.Moved++
		okColor.Fprintf(s.out, "Moved %s to %s\n", it.Path, target)
	}
	s.nextItem()
}

func (s *Session) open(path string) {
	if s.opener == nil {
		errorColor.Fprintln(s.out, "Opening files is not available")
		return
	}
	if err := s.opener.Open(path); err != nil {
		s.logger.Warn("Failed to open file", "path", path, "error", err)
		errorColor.Fprintf(s.out, "Could not open %s: %v\n", path, err)
		return
	}
	s.stats.Opened++
}

func (s *Session) failed(action, path string, err error) {
	var missing *cleanup.MissingError
	if errors.As(err, &missing) {
		fmt.Fprintf(s.out, "%s no longer exists, skipping\n", path)
		return
	}
	s.stats.Failed++
	errorColor.Fprintf(s.out, "Could not %s %s: %v\n", action, path, err)
}

func (s *Session) current() cleanup.Item {
	return s.items[s.item]
}

func (s *Session) nextItem() {
	s.item++
	if s.item < len(s.items) {
		s.state = AwaitItemDecision
		return
	}
	s.nextGroup()
}

func (s *Session) nextGroup() {
	s.items = nil
	s.item = 0
	s.group++
	if s.group >= len(s.groups) {
		s.state = Done
		return
	}
	s.state = AwaitGroupDecision
}

func (s *Session) prompt() {
	switch s.state {
	case AwaitGroupDecision:
		g := s.groups[s.group]
		fmt.Fprintln(s.out)
		headingColor.Fprintf(s.out, "Group %d/%d: %d files of %s\n",
			s.group+1, len(s.groups), g.Len(), report.FormatBytes(g.Size))
		for i, p := range g.Paths {
			fmt.Fprintf(s.out, "  [%d] %s\n", i+1, p)
		}
		fmt.Fprint(s.out, "[s]kip or [a]ct? ")
	case AwaitItemDecision:
		fmt.Fprintf(s.out, "%s\n  [s]kip, [d]elete, [o]pen, [r]ename, [m]ove? ", s.current().Path)
	case AwaitRenameInput:
		fmt.Fprint(s.out, "  New name (empty to cancel): ")
	case AwaitMoveDestination:
		fmt.Fprint(s.out, "  Destination directory: ")
	}
}
