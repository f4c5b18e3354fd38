package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bryan-buckman/cringecast/internal/model"
)

// MinPollingInterval is the shortest watch interval in minutes.
const MinPollingInterval = 15

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// New opens or creates an SQLite catalog at the given path.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Feeds record concurrently; a single connection serializes writers.
	conn.SetMaxOpenConns(1)
	// Enable WAL mode so history can be read during a sync.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		downloaded INTEGER DEFAULT 0,
		failed_feeds INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT REFERENCES runs(id),
		feed TEXT NOT NULL,
		episode_id TEXT NOT NULL,
		title TEXT NOT NULL,
		path TEXT NOT NULL,
		bytes INTEGER DEFAULT 0,
		published_at DATETIME,
		downloaded_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS downloads_feed ON downloads(feed, downloaded_at);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default polling interval (15 minutes minimum).
	INSERT OR IGNORE INTO settings (key, value) VALUES ('polling_interval_minutes', '60');
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Run Methods ---

// StartRun inserts a run row.
func (db *DB) StartRun(run model.Run) error {
	_, err := db.conn.Exec("INSERT INTO runs (id, started_at) VALUES (?, ?)", run.ID, run.StartedAt.UTC())
	return err
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(run model.Run) error {
	res, err := db.conn.Exec("UPDATE runs SET finished_at = ?, downloaded = ?, failed_feeds = ? WHERE id = ?",
		run.FinishedAt.UTC(), run.Downloaded, run.FailedFeeds, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: not started", run.ID)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (db *DB) RecentRuns(limit int) ([]model.Run, error) {
	rows, err := db.conn.Query(
		"SELECT id, started_at, finished_at, downloaded, failed_feeds FROM runs ORDER BY started_at DESC LIMIT ?",
		normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finishedAt, &r.Downloaded, &r.FailedFeeds); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			r.FinishedAt = finishedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Download Methods ---

// RecordDownload inserts a download and sets its ID.
func (db *DB) RecordDownload(d *model.Download) (int64, error) {
	var runID any
	if d.RunID != "" {
		runID = d.RunID
	}
	var publishedAt any
	if !d.PublishedAt.IsZero() {
		publishedAt = d.PublishedAt.UTC()
	}
	res, err := db.conn.Exec(`
		INSERT INTO downloads (run_id, feed, episode_id, title, path, bytes, published_at, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, d.Feed, d.EpisodeID, d.Title, d.Path, d.Bytes, publishedAt, d.DownloadedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// RecentDownloads returns the newest downloads first, optionally for one feed.
func (db *DB) RecentDownloads(feed string, limit int) ([]model.Download, error) {
	query := "SELECT id, run_id, feed, episode_id, title, path, bytes, published_at, downloaded_at FROM downloads"
	args := []any{}
	if feed != "" {
		query += " WHERE feed = ?"
		args = append(args, feed)
	}
	query += " ORDER BY downloaded_at DESC, id DESC LIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDownloads(rows)
}

func scanDownloads(rows *sql.Rows) ([]model.Download, error) {
	var downloads []model.Download
	for rows.Next() {
		var d model.Download
		var runID sql.NullString
		var publishedAt, downloadedAt sql.NullTime
		if err := rows.Scan(&d.ID, &runID, &d.Feed, &d.EpisodeID, &d.Title, &d.Path, &d.Bytes, &publishedAt, &downloadedAt); err != nil {
			return nil, err
		}
		d.RunID = runID.String
		if publishedAt.Valid {
			d.PublishedAt = publishedAt.Time
		}
		if downloadedAt.Valid {
			d.DownloadedAt = downloadedAt.Time
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// FeedStats aggregates downloads per feed, ordered by feed name.
func (db *DB) FeedStats() ([]model.FeedStats, error) {
	rows, err := db.conn.Query(`
		SELECT feed, COUNT(*), COALESCE(SUM(bytes), 0), MAX(downloaded_at)
		FROM downloads GROUP BY feed ORDER BY feed`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []model.FeedStats
	for rows.Next() {
		var s model.FeedStats
		var last sql.NullString
		if err := rows.Scan(&s.Feed, &s.Downloads, &s.Bytes, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			s.LastDownload = parseStoredTime(last.String)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// parseStoredTime reads the text form the driver writes for time.Time.
// Aggregates lose the column type, so the value is not converted for us.
func parseStoredTime(v string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// GetPollingInterval returns the watch interval in minutes, with a minimum of 15.
func (db *DB) GetPollingInterval() (int, error) {
	val, err := db.GetSetting(model.SettingPollingInterval)
	if errors.Is(err, sql.ErrNoRows) {
		return 60, nil
	}
	if err != nil {
		return 0, err
	}
	mins, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse polling interval %q: %w", val, err)
	}
	return max(mins, MinPollingInterval), nil
}
