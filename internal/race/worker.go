package race

import (
	"context"
	"fmt"
	"time"

	"miunlock/internal/clock"
	"miunlock/internal/eventbus"
	logx "miunlock/pkg/logx"
)

// Fire-loop pacing. The spin interval trades CPU for sub-millisecond firing
// precision during the final second before target.
const (
	coarseWaitThreshold = 2 * time.Second
	coarseWakeEarly     = time.Second
	spinInterval        = 100 * time.Microsecond
	retrySleep          = 10 * time.Millisecond
	transientSleep      = 50 * time.Millisecond
)

// API is the slice of the unlock service one worker talks to. Implementations
// carry their own credential, device identity and connection; workers never
// share one.
type API interface {
	// Apply fires the unlock request and returns the raw response body.
	Apply(ctx context.Context) ([]byte, error)
	// State fetches the eligibility state and returns the raw response body.
	State(ctx context.Context) ([]byte, error)
}

// worker runs one attempt sequence: coarse wait, spin wait, then the fire
// loop bounded by the deadline and the shared stop signal.
type worker struct {
	id     int
	offset time.Duration
	api    API
	clock  clock.Clock
	stop   *StopSignal
	cfg    Config
	log    logx.Logger
	notify func(topic eventbus.Topic, data any)
}

func (w *worker) event(topic eventbus.Topic, data any) {
	if w.notify != nil {
		w.notify(topic, data)
	}
}

func (w *worker) run(ctx context.Context) WorkerResult {
	target, deadline := FireWindow(w.clock.SyncedNow(), w.offset, w.cfg.RetryWindow)
	w.log.Debug("window computed",
		logx.Time("target", target),
		logx.Time("deadline", deadline),
		logx.Duration("offset", w.offset))
	w.event(TopicState, StateEvent{Worker: w.id, State: StateWaiting, Target: target})

	// Coarse wait, waking early to leave the last stretch to the spin loop.
	if wait := target.Sub(w.clock.SyncedNow()); wait > coarseWaitThreshold {
		w.clock.Sleep(ctx, wait-coarseWakeEarly)
	}

	w.event(TopicState, StateEvent{Worker: w.id, State: StateSpinWaiting, Target: target})
	for w.clock.SyncedNow().Before(target) && ctx.Err() == nil {
		w.clock.Sleep(ctx, spinInterval)
	}

	if w.cfg.DryRun {
		w.log.Info("dry run, skipping fire", logx.Time("target", target))
		return WorkerResult{WorkerID: w.id, Outcome: OutcomeUncertain, Message: "Dry run, skipped firing"}
	}

	w.event(TopicState, StateEvent{Worker: w.id, State: StateFiring, Target: target})

	attempts := 0
	for w.clock.SyncedNow().Before(deadline) && !w.stop.Tripped() && ctx.Err() == nil {
		attempts++
		firedAt := w.clock.SyncedNow()
		w.event(TopicAttempt, AttemptEvent{Worker: w.id, Attempt: attempts, FiredAt: firedAt})

		start := w.clock.Monotonic()
		body, err := w.api.Apply(ctx)
		rtt := w.clock.Monotonic() - start
		if err != nil {
			w.log.Debug("apply transport error", logx.Int("attempt", attempts), logx.Err(err))
			w.clock.Sleep(ctx, transientSleep)
			continue
		}
		payload, err := ParsePayload(body)
		if err != nil {
			w.log.Debug("apply body unparsable", logx.Int("attempt", attempts), logx.Err(err))
			w.clock.Sleep(ctx, transientSleep)
			continue
		}

		verdict := ClassifyApply(payload)
		w.event(TopicAttemptDone, AttemptDoneEvent{
			Worker:  w.id,
			Attempt: attempts,
			FiredAt: firedAt,
			RTT:     rtt,
			Verdict: verdict.Status.String(),
		})

		switch verdict.Status {
		case ApplyRetry:
			w.clock.Sleep(ctx, retrySleep)
			continue
		case ApplyApproved:
			w.stop.Trip()
			w.log.Info("approved", logx.Int("attempt", attempts))
			return WorkerResult{WorkerID: w.id, Outcome: OutcomeApproved, Attempts: attempts, Message: verdict.Message, Raw: verdict.Raw}
		case ApplyRejected:
			return WorkerResult{WorkerID: w.id, Outcome: OutcomeRejected, Attempts: attempts, Message: verdict.Message, Raw: verdict.Raw}
		}

		// ApplyUncertain: the service answered before deciding. Re-check
		// eligibility to disambiguate before firing again.
		w.event(TopicState, StateEvent{Worker: w.id, State: StateVerifying, Target: target})
		st, ok := w.verify(ctx)
		if !ok {
			w.clock.Sleep(ctx, transientSleep)
			continue
		}
		if !st.Eligible {
			msg := verdict.Message + " -> " + st.Message
			if st.AlreadyApproved {
				w.stop.Trip()
				w.log.Info("approved (confirmed by status)", logx.Int("attempt", attempts))
				return WorkerResult{WorkerID: w.id, Outcome: OutcomeApproved, Attempts: attempts, Message: msg, Raw: verdict.Raw}
			}
			return WorkerResult{WorkerID: w.id, Outcome: OutcomeUncertain, Attempts: attempts, Message: msg, Raw: verdict.Raw}
		}
		w.event(TopicState, StateEvent{Worker: w.id, State: StateFiring, Target: target})
		w.clock.Sleep(ctx, retrySleep)
	}

	if w.stop.Tripped() {
		return WorkerResult{WorkerID: w.id, Outcome: OutcomeUncertain, Attempts: attempts, Message: "Stopped (another worker succeeded)"}
	}
	if ctx.Err() != nil {
		return WorkerResult{WorkerID: w.id, Outcome: OutcomeUncertain, Attempts: attempts, Message: "Aborted (shutdown)"}
	}
	return WorkerResult{WorkerID: w.id, Outcome: OutcomeRejected, Attempts: attempts, Message: fmt.Sprintf("Timed out after %s", w.cfg.RetryWindow)}
}

// verify runs one eligibility check. ok is false on transport or decode
// failure, which the fire loop treats like any other transient error.
func (w *worker) verify(ctx context.Context) (Eligibility, bool) {
	body, err := w.api.State(ctx)
	if err != nil {
		w.log.Debug("verify transport error", logx.Err(err))
		return Eligibility{}, false
	}
	payload, err := ParsePayload(body)
	if err != nil {
		w.log.Debug("verify body unparsable", logx.Err(err))
		return Eligibility{}, false
	}
	return ClassifyEligibility(payload), true
}
