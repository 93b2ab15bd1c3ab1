package journal

import (
	"context"
	"fmt"

	"miunlock/internal/eventbus"
	"miunlock/internal/race"
	logx "miunlock/pkg/logx"
)

// Recorder drains race events into the journal for post-race timing
// analysis. It runs beside the race and never slows it down: the bus drops
// on backpressure and append failures are logged, not propagated.
type Recorder struct {
	w   Writer
	bus eventbus.Bus
	log logx.Logger
}

func NewRecorder(w Writer, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{w: w, bus: bus, log: log}
}

// Run consumes events until ctx is canceled, then drains what is already
// buffered so the terminal result entries are not lost on shutdown.
func (r *Recorder) Run(ctx context.Context) {
	ch, unsubscribe := r.bus.Subscribe(256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					r.record(ev)
				default:
					return
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.record(ev)
		}
	}
}

func (r *Recorder) record(ev eventbus.Event) {
	e, ok := entryFrom(ev)
	if !ok {
		return
	}
	if err := r.w.Append(context.Background(), e); err != nil {
		r.log.Warn("journal append failed", logx.String("kind", e.Kind), logx.Err(err))
	}
}

// entryFrom maps a bus event to a journal entry. Countdown ticks are
// deliberately not journaled; they would dominate the file without adding
// timing signal.
func entryFrom(ev eventbus.Event) (Entry, bool) {
	switch data := ev.Data.(type) {
	case race.SyncEvent:
		return Entry{At: ev.Time, Kind: KindSync, Server: data.Server}, true
	case race.StateEvent:
		return Entry{At: ev.Time, Kind: KindState, Worker: data.Worker, State: string(data.State)}, true
	case race.AttemptEvent:
		return Entry{At: ev.Time, Kind: KindAttempt, Worker: data.Worker, Attempt: data.Attempt, FiredAt: data.FiredAt}, true
	case race.AttemptDoneEvent:
		return Entry{
			At:      ev.Time,
			Kind:    KindAttemptDone,
			Worker:  data.Worker,
			Attempt: data.Attempt,
			FiredAt: data.FiredAt,
			RTTMS:   float64(data.RTT.Microseconds()) / 1000,
			Verdict: data.Verdict,
		}, true
	case race.ResultEvent:
		return Entry{
			At:      ev.Time,
			Kind:    KindResult,
			Worker:  data.Result.WorkerID,
			Attempt: data.Result.Attempts,
			Outcome: data.Result.Outcome.String(),
			Message: data.Result.Message,
		}, true
	case race.DoneEvent:
		return Entry{
			At:      ev.Time,
			Kind:    KindDone,
			Message: fmt.Sprintf("%d workers, approved=%t", len(data.Results), data.Approved),
		}, true
	default:
		return Entry{}, false
	}
}
