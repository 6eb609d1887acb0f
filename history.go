package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ToggleRecord is one row of the toggle audit trail.
type ToggleRecord struct {
	Ts       time.Time `json:"ts"`
	Number   string    `json:"number"`
	Name     string    `json:"name"`
	Source   string    `json:"source"` // "hotkey", "ui", "cli", "retry"
	OK       bool      `json:"ok"`
	Verified bool      `json:"verified"` // toggle state observed to change
}

const historySchema = `
CREATE TABLE IF NOT EXISTS toggle_history (
	id       INTEGER PRIMARY KEY,
	ts       INTEGER NOT NULL,
	number   TEXT NOT NULL,
	name     TEXT NOT NULL,
	source   TEXT NOT NULL,
	ok       INTEGER NOT NULL,
	verified INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS toggle_history_ts ON toggle_history(ts);
`

// History is the append-only toggle audit log. SQLite so the UI and CLI
// can read while toggles append; WAL plus a busy timeout keep the two
// from tripping over each other.
type History struct {
	db        *sql.DB
	retention time.Duration
}

func openHistory(path string, retentionDays int) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}
	h := &History{db: db, retention: time.Duration(retentionDays) * 24 * time.Hour}
	h.prune()
	return h, nil
}

// Record appends one attempt. Failures are logged and dropped; the audit
// trail is diagnostic, it never blocks a toggle.
func (h *History) Record(rec ToggleRecord) {
	if h == nil {
		return
	}
	if rec.Ts.IsZero() {
		rec.Ts = time.Now()
	}
	_, err := h.db.Exec(
		"INSERT INTO toggle_history (ts, number, name, source, ok, verified) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Ts.Unix(), rec.Number, rec.Name, rec.Source, boolInt(rec.OK), boolInt(rec.Verified))
	if err != nil && logger != nil {
		logger.Printf("[HISTORY] insert failed: %v", err)
	}
}

// Recent returns the newest records, newest first.
func (h *History) Recent(limit int) ([]ToggleRecord, error) {
	if h == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := h.db.Query(
		"SELECT ts, number, name, source, ok, verified FROM toggle_history ORDER BY ts DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToggleRecord
	for rows.Next() {
		var rec ToggleRecord
		var ts int64
		var ok, verified int
		if err := rows.Scan(&ts, &rec.Number, &rec.Name, &rec.Source, &ok, &verified); err != nil {
			return nil, err
		}
		rec.Ts = time.Unix(ts, 0)
		rec.OK = ok != 0
		rec.Verified = verified != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (h *History) prune() {
	if h == nil || h.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-h.retention).Unix()
	if _, err := h.db.Exec("DELETE FROM toggle_history WHERE ts < ?", cutoff); err != nil && logger != nil {
		logger.Printf("[HISTORY] prune failed: %v", err)
	}
}

func (h *History) Close() {
	if h != nil && h.db != nil {
		_ = h.db.Close()
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
