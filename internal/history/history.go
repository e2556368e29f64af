// Package history keeps a record of finished selection sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// fixed width so that text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded session.
type Entry struct {
	SessionID string
	Outcome   string
	DeviceID  string
	Model     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is how long the session ran.
func (e Entry) Duration() time.Duration { return e.EndedAt.Sub(e.StartedAt) }

// Store implements session history on SQLite
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		outcome TEXT NOT NULL,
		device_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a finished session.
func (s *Store) Record(ctx context.Context, r selectdevice.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, outcome, device_id, model, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.SessionID,
		r.Outcome.Kind.String(),
		string(r.Outcome.ID),
		r.Model,
		r.StartedAt.UTC().Format(timeLayout),
		r.EndedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", r.SessionID, err)
	}
	return nil
}

// List returns the most recent sessions first. A limit of zero or less
// returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, outcome, device_id, model, started_at, ended_at
		FROM sessions
		ORDER BY ended_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e              Entry
			started, ended string
		)
		if err := rows.Scan(&e.SessionID, &e.Outcome, &e.DeviceID, &e.Model, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("session %s: bad start time: %w", e.SessionID, err)
		}
		if e.EndedAt, err = time.Parse(timeLayout, ended); err != nil {
			return nil, fmt.Errorf("session %s: bad end time: %w", e.SessionID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

// Recorder is a session observer that stores the final result.
type Recorder struct {
	Store   *Store
	Logger  *slog.Logger
	Timeout time.Duration
}

func (r *Recorder) SessionUpdated(selectdevice.Snapshot) {}

func (r *Recorder) SessionTerminated(res selectdevice.Result) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := r.Store.Record(ctx, res); err != nil {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("failed to record session", slog.Any("error", err))
	}
}

var _ selectdevice.Observer = (*Recorder)(nil)
