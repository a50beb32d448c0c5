package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Action names stored in the history
const (
	ActionDelete = "DELETE"
	ActionMove   = "MOVE"
	ActionRename = "RENAME"
	ActionSkip   = "SKIP" // refused by the safety validator
	ActionError  = "ERROR"
	ActionDryRun = "DRY_RUN"
)

// ActionDB manages the SQLite database for action history
type ActionDB struct {
	db *sql.DB
}

// ActionRecord represents a single attempted mutation of a duplicate
type ActionRecord struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Path         string    `json:"path"`
	FileName     string    `json:"file_name"`
	Destination  string    `json:"destination,omitempty"`
	Size         int64     `json:"size"`
	Digest       string    `json:"digest,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// NewActionDB creates a new database connection and initializes schema
func NewActionDB(dbPath string) (*ActionDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// file: prefix with _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// A real statement creates the file, Ping() does not
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// WAL lets dupsweep-query read while a run writes
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	adb := &ActionDB{db: db}
	if err = adb.initSchema(); err != nil {
		return nil, err
	}

	return adb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *ActionDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		destination TEXT,
		size INTEGER NOT NULL,
		digest TEXT,
		error_message TEXT,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_run_id ON actions(run_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON actions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_action ON actions(action);
	CREATE INDEX IF NOT EXISTS idx_path ON actions(path);
	CREATE INDEX IF NOT EXISTS idx_size ON actions(size);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Record inserts an action into the database. Timestamp and FileName are
// filled in when empty.
func (d *ActionDB) Record(rec ActionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.FileName == "" {
		rec.FileName = filepath.Base(rec.Path)
	}

	query := `
	INSERT INTO actions (
		run_id, timestamp, action, path, file_name,
		destination, size, digest, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		rec.RunID,
		rec.Timestamp,
		rec.Action,
		rec.Path,
		rec.FileName,
		nullable(rec.Destination),
		rec.Size,
		nullable(rec.Digest),
		nullable(rec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("record %s %s: %w", rec.Action, rec.Path, err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close closes the database connection
func (d *ActionDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run after DeleteOldRecords)
func (d *ActionDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (d *ActionDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRecords int64
	err := d.db.QueryRow("SELECT COUNT(*) FROM actions").Scan(&totalRecords)
	if err != nil {
		return nil, err
	}
	stats["total_records"] = totalRecords

	var totalRuns int64
	err = d.db.QueryRow("SELECT COUNT(DISTINCT run_id) FROM actions").Scan(&totalRuns)
	if err != nil {
		return nil, err
	}
	stats["total_runs"] = totalRuns

	// Database size
	var pageCount, pageSize int64
	err = d.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return nil, err
	}
	err = d.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	// Date range
	var oldest, newest sql.NullString
	err = d.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM actions").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if t, ok := parseSQLiteTime(oldest); ok {
		stats["oldest_record"] = t
	}
	if t, ok := parseSQLiteTime(newest); ok {
		stats["newest_record"] = t
	}

	return stats, nil
}

// Aggregates come back as text, in whichever layout the driver wrote
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseSQLiteTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
