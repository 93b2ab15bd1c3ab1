package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "miunlock/pkg/logx"
)

var ErrClosed = errors.New("journal closed")

// Config configures the attempt journal.
//
// Driver values:
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver string
	Path   string
}

// Entry is one journal record. One schema covers every kind so the file
// driver stays a flat JSONL stream; unused fields are omitted.
type Entry struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Worker  int       `json:"worker,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	FiredAt time.Time `json:"fired_at,omitempty"`
	RTTMS   float64   `json:"rtt_ms,omitempty"`
	State   string    `json:"state,omitempty"`
	Verdict string    `json:"verdict,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Message string    `json:"message,omitempty"`
	Server  string    `json:"server,omitempty"`
}

// Entry kinds, in rough lifecycle order.
const (
	KindSync        = "sync"
	KindState       = "state"
	KindAttempt     = "attempt"
	KindAttemptDone = "attempt_done"
	KindResult      = "result"
	KindDone        = "done"
)

// Writer is the minimal persistence API the recorder writes through.
type Writer interface {
	Append(ctx context.Context, e Entry) error
	Close() error
}

// Open initializes the configured journal backend.
// It returns (nil, nil) if the journal is disabled.
func Open(cfg Config, log logx.Logger) (Writer, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown journal driver: " + driver)
	}
}
