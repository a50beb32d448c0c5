package report

import (
	"encoding/json"
	"fmt"
	"io"

	"dupsweep/internal/scan"

	"github.com/fatih/color"
)

// Summary aggregates a duplicate set
type Summary struct {
	DupCount         int   `json:"dupcount"`          // groups with duplicates
	Empty            int   `json:"empty"`             // files in groups whose first member is zero bytes
	DupTotal         int   `json:"duptotal"`          // files across all groups
	ReclaimableBytes int64 `json:"reclaimable_bytes"` // bytes freed by keeping one copy per group
}

// Summarize computes the counters over the groups with more than one path
func Summarize(set scan.DuplicateSet) Summary {
	var s Summary
	for _, g := range set.Groups() {
		s.DupCount++
		s.DupTotal += g.Len()
		if g.Size == 0 {
			s.Empty += g.Len()
		}
		s.ReclaimableBytes += g.Size * int64(g.Len()-1)
	}
	return s
}

var heading = color.New(color.Bold, color.FgCyan)

// WriteSummary writes the fixed-format text report
func WriteSummary(w io.Writer, s Summary) error {
	lines := []struct {
		label string
		value string
	}{
		{"Duplicate groups", fmt.Sprint(s.DupCount)},
		{"Duplicate files", fmt.Sprint(s.DupTotal)},
		{"Empty files", fmt.Sprint(s.Empty)},
		{"Reclaimable", fmt.Sprintf("%s (%d bytes)", FormatBytes(s.ReclaimableBytes), s.ReclaimableBytes)},
	}

	if _, err := heading.Fprintln(w, "Summary"); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "  %-18s %s\n", l.label+":", l.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummaryJSON writes the summary as a JSON object
func WriteSummaryJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 KB"
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
