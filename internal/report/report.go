// Package report renders a duplicate set without touching the filesystem:
// the per-group listing and the summary counters.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dupsweep/internal/scan"
)

// LinePrefix starts every printed duplicate group
const LinePrefix = "Duplicate Files => "

// Print writes one line per duplicate group, members comma-joined in their
// stored order
func Print(w io.Writer, set scan.DuplicateSet) error {
	for _, g := range set.Groups() {
		if _, err := fmt.Fprintln(w, LinePrefix+strings.Join(g.Paths, ", ")); err != nil {
			return err
		}
	}
	return nil
}

// PrintJSON writes the duplicate groups as an indented JSON array
func PrintJSON(w io.Writer, set scan.DuplicateSet) error {
	groups := set.Groups()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(groups)
}
