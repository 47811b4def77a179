// Package history keeps a sqlite log of door openings.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/events"

	_ "modernc.org/sqlite"
)

const (
	defaultRecentLimit = 25

	// MaxRecentLimit is the most openings Recent returns at once
	MaxRecentLimit = 500

	// fixed width so that the text column sorts chronologically
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store wraps the SQLite database connection and schema lifecycle
type Store struct {
	db *sql.DB
}

// DoorOpening is one press of a door button
type DoorOpening struct {
	DomofonID string    `json:"domofon_id"`
	Name      string    `json:"name"`
	Success   bool      `json:"success"`
	OpenedAt  time.Time `json:"opened_at"`
}

// Open initializes the database connection, creating directories as needed
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating history directory")
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, errors.Wrap(err, "opening history database")
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures the tables exist
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS door_openings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domofon_id TEXT NOT NULL,
			name TEXT NOT NULL,
			success INTEGER NOT NULL,
			opened_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_door_openings_domofon_time ON door_openings(domofon_id, opened_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "initialising history schema")
		}
	}

	return nil
}

func (s *Store) Record(ctx context.Context, o DoorOpening) error {
	if s.db == nil {
		return errors.New("history store not initialized")
	}

	openedAt := o.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO door_openings (domofon_id, name, success, opened_at) VALUES (?, ?, ?, ?);`,
		o.DomofonID,
		o.Name,
		o.Success,
		openedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return errors.Wrap(err, "recording door opening")
	}

	return nil
}

// Recent returns the latest openings of one domofon, newest first.  The
// limit is clamped to MaxRecentLimit.
func (s *Store) Recent(ctx context.Context, domofonID string, limit int) ([]DoorOpening, error) {
	if s.db == nil {
		return nil, errors.New("history store not initialized")
	}

	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT domofon_id, name, success, opened_at FROM door_openings
		 WHERE domofon_id = ? ORDER BY opened_at DESC, id DESC LIMIT ?;`,
		domofonID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying door openings")
	}
	defer rows.Close()

	openings := []DoorOpening{}
	for rows.Next() {
		var (
			o           DoorOpening
			openedAtStr string
		)

		if err := rows.Scan(&o.DomofonID, &o.Name, &o.Success, &openedAtStr); err != nil {
			return nil, errors.Wrap(err, "scanning door opening")
		}

		o.OpenedAt, err = time.Parse(timeLayout, openedAtStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing door opening time %q", openedAtStr)
		}

		openings = append(openings, o)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating door openings")
	}

	return openings, nil
}

// HandleEvent records door events fired on the bus
func (s *Store) HandleEvent(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.DoorOpened, events.DoorOpenFailed:
	default:
		return nil
	}

	return s.Record(ctx, DoorOpening{
		DomofonID: ev.DomofonID,
		Name:      ev.Name,
		Success:   ev.Type == events.DoorOpened,
		OpenedAt:  ev.Timestamp,
	})
}
