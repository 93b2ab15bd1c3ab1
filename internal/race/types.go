package race

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WorkerCount is the fixed fan-out of the fire pattern: four workers
// alternating over two credentials.
const WorkerCount = 4

// DefaultOffsets is the stagger that has worked in practice: the earliest
// worker absorbs high latency, the latest fires almost on the boundary.
var DefaultOffsets = []time.Duration{
	1400 * time.Millisecond,
	900 * time.Millisecond,
	400 * time.Millisecond,
	100 * time.Millisecond,
}

// DefaultRetryWindow bounds how long workers keep retrying after the boundary.
const DefaultRetryWindow = 30 * time.Second

var (
	ErrOffsetCount   = errors.New("offsets must match worker count")
	ErrNoCredentials = errors.New("no credentials")
)

// Config are the parameters of one race.
type Config struct {
	// Offsets holds the per-worker lead before the boundary, in worker order.
	Offsets []time.Duration
	// RetryWindow is how long past the boundary a worker may keep firing.
	RetryWindow time.Duration
	// DryRun makes workers go through the full wait sequence without ever
	// touching the network.
	DryRun bool
}

func (c Config) Validate() error {
	if len(c.Offsets) != WorkerCount {
		return fmt.Errorf("%w: got %d, want %d", ErrOffsetCount, len(c.Offsets), WorkerCount)
	}
	for i, off := range c.Offsets {
		if off < 0 {
			return fmt.Errorf("offset %d is negative (%s)", i+1, off)
		}
	}
	if c.RetryWindow <= 0 {
		return fmt.Errorf("retry window must be positive, got %s", c.RetryWindow)
	}
	return nil
}

// Outcome is the terminal verdict of one worker.
type Outcome int

const (
	// OutcomeUncertain covers aborted workers and ambiguous terminal states:
	// the account may or may not have been approved, check manually.
	OutcomeUncertain Outcome = iota
	OutcomeApproved
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	default:
		return "uncertain"
	}
}

// MarshalJSON keeps journal lines and event payloads human-readable.
func (o Outcome) MarshalJSON() ([]byte, error) { return json.Marshal(o.String()) }

// WorkerResult is produced exactly once per worker when its state machine
// terminates, and never mutated afterwards.
type WorkerResult struct {
	WorkerID int             `json:"worker_id"`
	Outcome  Outcome         `json:"outcome"`
	Attempts int             `json:"attempts"`
	Message  string          `json:"message"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}
