package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/procwatch/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS watchdog_history(
		timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		event TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		launched INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	var errText any
	if e.Error != "" {
		errText = e.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchdog_history(timestamp, event, name, path, launched, error)
		VALUES(?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.Name, e.Path, e.Launched, errText)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, event, name, path, launched, COALESCE(error, '')
		FROM watchdog_history ORDER BY timestamp DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			e   history.Event
			typ string
			ts  time.Time
		)
		if err := rows.Scan(&ts, &typ, &e.Name, &e.Path, &e.Launched, &e.Error); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.OccurredAt = ts
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes events that occurred before the given time.
func (s *Sink) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchdog_history WHERE timestamp < ?;`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
