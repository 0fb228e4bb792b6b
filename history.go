package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const historyBusyTimeout = 5 * time.Second

const historySchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL UNIQUE,
	video_id    TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	frames      INTEGER NOT NULL,
	watched_ms  INTEGER NOT NULL,
	outcome     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions(started_at);
`

// HistoryEntry is one finished playback session
type HistoryEntry struct {
	SessionID string
	VideoID   string
	StartedAt time.Time
	Frames    int
	Watched   time.Duration
	Outcome   string
}

// HistoryStore keeps finished sessions in sqlite
type HistoryStore struct {
	db *sql.DB
}

func OpenHistoryStore(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, tagErr("history", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", int(historyBusyTimeout/time.Millisecond)),
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, tagErr("history", err)
		}
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, tagErr("history", err)
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Record(ctx context.Context, entry HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, video_id, started_at, frames, watched_ms, outcome)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.VideoID, entry.StartedAt.UnixMilli(),
		entry.Frames, entry.Watched.Milliseconds(), entry.Outcome)
	return err
}

// Recent returns up to limit entries, newest first
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, video_id, started_at, frames, watched_ms, outcome
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e         HistoryEntry
			startedAt int64
			watchedMs int64
		)
		if err := rows.Scan(&e.SessionID, &e.VideoID, &startedAt, &e.Frames, &watchedMs, &e.Outcome); err != nil {
			return nil, err
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.Watched = time.Duration(watchedMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
