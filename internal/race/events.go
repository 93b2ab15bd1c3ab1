package race

import (
	"time"

	"miunlock/internal/eventbus"
)

// Bus topics published around a race. Reporting (console, journal, Telegram)
// subscribes to these; publishing never blocks a worker.
const (
	TopicSync        eventbus.Topic = "sync.done"
	TopicCountdown   eventbus.Topic = "race.countdown"
	TopicState       eventbus.Topic = "race.state"
	TopicAttempt     eventbus.Topic = "race.attempt"
	TopicAttemptDone eventbus.Topic = "race.attempt.done"
	TopicResult      eventbus.Topic = "race.result"
	TopicDone        eventbus.Topic = "race.done"
)

// State labels a worker's position in its firing sequence, for reporting only.
type State string

const (
	StateWaiting     State = "waiting"
	StateSpinWaiting State = "spinwait"
	StateFiring      State = "firing"
	StateVerifying   State = "verifying"
)

// SyncEvent reports the clock anchor chosen at race start.
type SyncEvent struct {
	Server string    `json:"server"`
	Time   time.Time `json:"time"`
}

// CountdownEvent ticks while the process waits for the boundary to come close.
type CountdownEvent struct {
	Remaining time.Duration `json:"remaining"`
	Target    time.Time     `json:"target"`
}

type StateEvent struct {
	Worker int       `json:"worker"`
	State  State     `json:"state"`
	Target time.Time `json:"target"`
}

// AttemptEvent is published immediately before a worker fires.
type AttemptEvent struct {
	Worker  int       `json:"worker"`
	Attempt int       `json:"attempt"`
	FiredAt time.Time `json:"fired_at"`
}

// AttemptDoneEvent is published after an attempt has been classified. RTT is
// measured on the monotonic clock, so it stays truthful across clock steps.
type AttemptDoneEvent struct {
	Worker  int           `json:"worker"`
	Attempt int           `json:"attempt"`
	FiredAt time.Time     `json:"fired_at"`
	RTT     time.Duration `json:"rtt"`
	Verdict string        `json:"verdict"`
}

type ResultEvent struct {
	Result WorkerResult `json:"result"`
}

type DoneEvent struct {
	Results  []WorkerResult `json:"results"`
	Approved bool           `json:"approved"`
}
