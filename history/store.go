// Package history keeps a local record of every finished chat turn.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id        TEXT PRIMARY KEY,
	provider  TEXT NOT NULL,
	model     TEXT NOT NULL,
	context   TEXT NOT NULL DEFAULT '',
	prompt    TEXT NOT NULL,
	response  TEXT NOT NULL,
	createdAt REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_created ON turns(createdAt);
`

type Turn struct {
	ID        string
	Provider  string
	Model     string
	Context   string
	Prompt    string
	Response  string
	CreatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// DefaultPath returns history.sqlite next to the config file.
func DefaultPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "history.sqlite")
}

// Open opens (creating if needed) the history database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a turn, filling in ID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, t Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, provider, model, context, prompt, response, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Provider, t.Model, t.Context, t.Prompt, t.Response, unixFromTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, model, context, prompt, response, createdAt
		FROM turns
		ORDER BY createdAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt float64
		if err := rows.Scan(&t.ID, &t.Provider, &t.Model, &t.Context, &t.Prompt, &t.Response, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = timeFromUnix(createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
