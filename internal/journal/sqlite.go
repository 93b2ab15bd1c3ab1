//go:build sqlite
// +build sqlite

package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "miunlock/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
  id       INTEGER PRIMARY KEY AUTOINCREMENT,
  at       TEXT NOT NULL,
  kind     TEXT NOT NULL,
  worker   INTEGER,
  attempt  INTEGER,
  fired_at TEXT,
  rtt_ms   REAL,
  state    TEXT,
  verdict  TEXT,
  outcome  TEXT,
  message  TEXT,
  server   TEXT
);
CREATE INDEX IF NOT EXISTS journal_kind_idx ON journal(kind);
`

type sqliteWriter struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Writer, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal.path is required for sqlite driver")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteWriter{db: db, log: log}, nil
}

func (w *sqliteWriter) Append(ctx context.Context, e Entry) error {
	if w == nil || w.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var firedAt any
	if !e.FiredAt.IsZero() {
		firedAt = e.FiredAt.Format(time.RFC3339Nano)
	}
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO journal(at, kind, worker, attempt, fired_at, rtt_ms, state, verdict, outcome, message, server)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Kind, e.Worker, e.Attempt, firedAt,
		e.RTTMS, nullStr(e.State), nullStr(e.Verdict), nullStr(e.Outcome), nullStr(e.Message), nullStr(e.Server),
	)
	return err
}

func (w *sqliteWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
