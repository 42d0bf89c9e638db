package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jingkaihe/netmock/internal/errx"
)

type migration struct {
	Version int
	Name    string
	SQL     string
}

func journalMigrations() []migration {
	return []migration{
		{
			Version: 1,
			Name:    "create_events",
			SQL: `
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  run_id TEXT NOT NULL,
  service TEXT NOT NULL DEFAULT '',
  event_type TEXT NOT NULL,
  summary TEXT NOT NULL,
  request_id TEXT,
  handler TEXT,
  tags TEXT,
  data TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_run_ts ON events(run_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id);
`,
		},
	}
}

// SQLiteSink journals events into a SQLite database.
// It implements Sink and is safe for concurrent use.
type SQLiteSink struct {
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
}

// OpenSQLiteSink opens (or creates) the journal at path and applies any
// pending schema migrations.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errx.Wrap(ErrOpenJournal, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errx.Wrap(ErrOpenJournal, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db, journalMigrations()); err != nil {
		_ = db.Close()
		return nil, err
	}

	insert, err := db.Prepare(`INSERT INTO events(ts, run_id, service, event_type, summary, request_id, handler, tags, data)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, errx.Wrap(ErrOpenJournal, err)
	}
	return &SQLiteSink{db: db, insert: insert}, nil
}

func migrate(db *sql.DB, migrations []migration) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`); err != nil {
		return errx.Wrap(ErrMigrateJournal, err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return errx.Wrap(ErrMigrateJournal, err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return errx.Wrap(ErrMigrateJournal, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return errx.With(ErrMigrateJournal, ": %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			_ = tx.Rollback()
			return errx.Wrap(ErrMigrateJournal, err)
		}
		if err := tx.Commit(); err != nil {
			return errx.Wrap(ErrMigrateJournal, err)
		}
	}
	return nil
}

func (s *SQLiteSink) Write(event *Event) error {
	var tags any
	if len(event.Tags) > 0 {
		b, err := json.Marshal(event.Tags)
		if err != nil {
			return errx.Wrap(ErrWriteEvent, err)
		}
		tags = string(b)
	}
	var data any
	if len(event.Data) > 0 {
		data = string(event.Data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.insert.Exec(
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.RunID,
		event.Service,
		event.EventType,
		event.Summary,
		nullable(event.RequestID),
		nullable(event.Handler),
		tags,
		data,
	)
	if err != nil {
		return errx.Wrap(ErrWriteEvent, err)
	}
	return nil
}

// Events returns the events journaled for runID in insertion order.
func (s *SQLiteSink) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, run_id, service, event_type, summary,
  COALESCE(request_id, ''), COALESCE(handler, ''), COALESCE(tags, ''), COALESCE(data, '')
FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errx.Wrap(ErrQueryJournal, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev         Event
			ts         string
			tags, data string
		)
		if err := rows.Scan(&ts, &ev.RunID, &ev.Service, &ev.EventType, &ev.Summary, &ev.RequestID, &ev.Handler, &tags, &data); err != nil {
			return nil, errx.Wrap(ErrQueryJournal, err)
		}
		if ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errx.Wrap(ErrQueryJournal, err)
		}
		if tags != "" {
			if err := json.Unmarshal([]byte(tags), &ev.Tags); err != nil {
				return nil, errx.Wrap(ErrQueryJournal, err)
			}
		}
		if data != "" {
			ev.Data = json.RawMessage(data)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.Wrap(ErrQueryJournal, err)
	}
	return out, nil
}

func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.insert.Close()
	if err := s.db.Close(); err != nil {
		return errx.Wrap(ErrCloseWriter, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
