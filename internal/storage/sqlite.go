// Package storage persists what must survive a client disconnect: the
// saved-recording history and the broadcaster's periodic status
// snapshots. Everything else in the daemon is deliberately in-memory.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"hark/internal/session"
)

// snapshotRetention bounds the snapshots table; older rows are pruned on
// every write.
const snapshotRetention = 100

// timeLayout pads nanoseconds to a fixed width so timestamps stored as
// TEXT sort chronologically. RFC3339Nano trims trailing zeros, which
// breaks ORDER BY within a second ('Z' sorts after '.').
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Recording is one row of saved-recording history.
type Recording struct {
	SessionID       string    `json:"session_id"`
	DeviceName      string    `json:"device_name"`
	FilePath        string    `json:"file_path"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Frames          int64     `json:"frames"`
}

// Store is a sqlite-backed persistence layer. A single connection keeps
// writer concurrency trivial; WAL keeps readers unblocked.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "hark.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS recordings (
			session_id TEXT PRIMARY KEY,
			device_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			frames INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create recordings table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at TEXT NOT NULL,
			payload TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

// RecordSaved persists a finished recording; it implements
// session.History.
func (s *Store) RecordSaved(snap session.Snapshot) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO recordings
			(session_id, device_name, file_path, started_at, duration_seconds, frames, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.Device.Name,
		snap.FilePath,
		snap.StartTime.UTC().Format(timeLayout),
		snap.ElapsedSeconds,
		snap.FramesCaptured,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// ListRecordings returns saved recordings, newest first.
func (s *Store) ListRecordings(limit int) ([]Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT session_id, device_name, file_path, started_at, duration_seconds, frames
		FROM recordings ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	out := make([]Recording, 0, limit)
	for rows.Next() {
		var rec Recording
		var startedAt string
		if err := rows.Scan(&rec.SessionID, &rec.DeviceName, &rec.FilePath, &startedAt, &rec.DurationSeconds, &rec.Frames); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			rec.StartedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveSnapshot appends a broadcaster snapshot and prunes rows past the
// retention count.
func (s *Store) SaveSnapshot(takenAt time.Time, payload []byte) error {
	if _, err := s.db.Exec(
		`INSERT INTO snapshots (taken_at, payload) VALUES (?, ?)`,
		takenAt.UTC().Format(timeLayout), string(payload),
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if _, err := s.db.Exec(`
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY id DESC LIMIT ?
		)`, snapshotRetention); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot payload, or ok=false
// when none has been written yet.
func (s *Store) LatestSnapshot() (time.Time, []byte, bool, error) {
	var takenAt, payload string
	err := s.db.QueryRow(
		`SELECT taken_at, payload FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&takenAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil, false, nil
	}
	if err != nil {
		return time.Time{}, nil, false, fmt.Errorf("query latest snapshot: %w", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, takenAt)
	return ts, []byte(payload), true, nil
}

func (s *Store) Close() error { return s.db.Close() }
