package database

import (
	"strings"
	"time"
)

const selectColumns = `
	SELECT id, run_id, timestamp, action, path, file_name,
	       COALESCE(destination, ''), size, COALESCE(digest, ''), COALESCE(error_message, '')
	FROM actions
`

// GetRecentActions returns the N most recent actions
func (d *ActionDB) GetRecentActions(limit int) ([]ActionRecord, error) {
	query := selectColumns + `
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryActions(query, limit)
}

// GetActionsByDateRange returns actions within a time range
func (d *ActionDB) GetActionsByDateRange(start, end time.Time) ([]ActionRecord, error) {
	query := selectColumns + `
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryActions(query, start, end)
}

// GetActionsByPath returns actions matching a LIKE path pattern
func (d *ActionDB) GetActionsByPath(pathPattern string) ([]ActionRecord, error) {
	query := selectColumns + `
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryActions(query, pathPattern)
}

// GetActionsByType returns actions filtered by action name
func (d *ActionDB) GetActionsByType(action string) ([]ActionRecord, error) {
	query := selectColumns + `
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryActions(query, action)
}

// GetActionsByRun returns every action of one run in the order performed
func (d *ActionDB) GetActionsByRun(runID string) ([]ActionRecord, error) {
	query := selectColumns + `
	WHERE run_id = ?
	ORDER BY id ASC
	`

	return d.queryActions(query, runID)
}

// GetLargestReclaimed returns the N largest files deleted or moved
func (d *ActionDB) GetLargestReclaimed(limit int) ([]ActionRecord, error) {
	query := selectColumns + `
	WHERE action IN ('DELETE', 'MOVE')
	ORDER BY size DESC
	LIMIT ?
	`

	return d.queryActions(query, limit)
}

// ActionFilter narrows a paginated query. Empty fields match everything.
type ActionFilter struct {
	Action      string
	PathPattern string // SQL LIKE syntax
	RunID       string
}

func (f ActionFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.PathPattern != "" {
		conds = append(conds, "path LIKE ?")
		args = append(args, f.PathPattern)
	}
	if f.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, f.RunID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetActionsPaginated returns one page of matching actions, newest first,
// and the total number of matches
func (d *ActionDB) GetActionsPaginated(f ActionFilter, limit, offset int) ([]ActionRecord, int, error) {
	where, args := f.where()

	var total int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM actions"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := selectColumns + where + `
	ORDER BY timestamp DESC, id DESC
	LIMIT ? OFFSET ?
	`
	records, err := d.queryActions(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// GetTotalReclaimed returns bytes deleted or moved out of the roots in a time range
func (d *ActionDB) GetTotalReclaimed(start, end time.Time) (int64, error) {
	query := `
	SELECT COALESCE(SUM(size), 0)
	FROM actions
	WHERE action IN ('DELETE', 'MOVE') AND timestamp BETWEEN ? AND ?
	`

	var total int64
	err := d.db.QueryRow(query, start, end).Scan(&total)
	return total, err
}

// GetCountByAction returns count of actions since a time, grouped by action
func (d *ActionDB) GetCountByAction(since time.Time) (map[string]int, error) {
	query := `
	SELECT action, COUNT(*)
	FROM actions
	WHERE timestamp >= ?
	GROUP BY action
	`

	rows, err := d.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

// ActionStats holds aggregated statistics
type ActionStats struct {
	TotalDeleted   int            `json:"total_deleted"`
	TotalMoved     int            `json:"total_moved"`
	TotalRenamed   int            `json:"total_renamed"`
	TotalSkipped   int            `json:"total_skipped"`
	TotalErrors    int            `json:"total_errors"`
	TotalDryRun    int            `json:"total_dry_run"`
	Runs           int            `json:"runs"`
	BytesReclaimed int64          `json:"bytes_reclaimed"`
	ByAction       map[string]int `json:"by_action"`
	StartDate      time.Time      `json:"start_date"`
	EndDate        time.Time      `json:"end_date"`
}

// GetActionStats returns comprehensive statistics for the last days
func (d *ActionDB) GetActionStats(days int) (*ActionStats, error) {
	since := time.Now().AddDate(0, 0, -days)
	now := time.Now()

	stats := &ActionStats{
		StartDate: since,
		EndDate:   now,
	}

	var err error
	stats.ByAction, err = d.GetCountByAction(since)
	if err != nil {
		return nil, err
	}
	stats.TotalDeleted = stats.ByAction[ActionDelete]
	stats.TotalMoved = stats.ByAction[ActionMove]
	stats.TotalRenamed = stats.ByAction[ActionRename]
	stats.TotalSkipped = stats.ByAction[ActionSkip]
	stats.TotalErrors = stats.ByAction[ActionError]
	stats.TotalDryRun = stats.ByAction[ActionDryRun]

	err = d.db.QueryRow(`
		SELECT COUNT(DISTINCT run_id)
		FROM actions
		WHERE timestamp >= ?
	`, since).Scan(&stats.Runs)
	if err != nil {
		return nil, err
	}

	stats.BytesReclaimed, err = d.GetTotalReclaimed(since, now)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldRecords removes records older than specified days
func (d *ActionDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`
		DELETE FROM actions WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryActions executes a query built on selectColumns and scans the rows
func (d *ActionDB) queryActions(query string, args ...interface{}) ([]ActionRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var r ActionRecord
		err := rows.Scan(
			&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Path, &r.FileName,
			&r.Destination, &r.Size, &r.Digest, &r.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}
