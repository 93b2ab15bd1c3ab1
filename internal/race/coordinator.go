package race

import (
	"context"
	"fmt"

	"miunlock/internal/clock"
	"miunlock/internal/eventbus"
	rtsup "miunlock/internal/runtime/supervisor"
	logx "miunlock/pkg/logx"
)

// APIFactory builds the client one worker uses for its whole race. Each call
// must return an independent client; workers never share connections.
type APIFactory func(credential, deviceID string) API

// Race dispatches the fixed worker fan-out and aggregates their results.
type Race struct {
	cfg    Config
	clock  clock.Clock
	newAPI APIFactory
	log    logx.Logger
	bus    eventbus.Bus
}

func New(cfg Config, clk clock.Clock, newAPI APIFactory, log logx.Logger, bus eventbus.Bus) *Race {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Race{cfg: cfg, clock: clk, newAPI: newAPI, log: log, bus: bus}
}

func (r *Race) publish(topic eventbus.Topic, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Topic: topic, Data: data})
}

// Run races all workers and returns their results ordered by worker index.
// Credentials are assigned round-robin across the worker list; workers that
// share a credential share one device identity for the whole race.
//
// Worker failures never surface here: every worker absorbs its own errors
// into its WorkerResult. Run itself fails only before dispatch, on a bad
// Config or an empty credential list.
func (r *Race) Run(ctx context.Context, credentials []string) ([]WorkerResult, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		return nil, ErrNoCredentials
	}

	devices := make(map[string]string, len(credentials))
	for _, cred := range credentials {
		if _, ok := devices[cred]; !ok {
			devices[cred] = NewDeviceID()
		}
	}

	stop := NewStopSignal()
	results := make([]WorkerResult, len(r.cfg.Offsets))

	sup := rtsup.New(ctx, rtsup.WithLogger(r.log))
	for i, offset := range r.cfg.Offsets {
		cred := credentials[i%len(credentials)]
		w := &worker{
			id:     i + 1,
			offset: offset,
			api:    r.newAPI(cred, devices[cred]),
			clock:  r.clock,
			stop:   stop,
			cfg:    r.cfg,
			log:    r.log.With(logx.Int("worker", i+1)),
			notify: r.publish,
		}
		// Placeholder in case the worker goroutine dies; overwritten by the
		// worker's real result on the normal path.
		results[i] = WorkerResult{WorkerID: w.id, Outcome: OutcomeUncertain, Message: "Aborted (worker did not finish)"}

		idx := i
		sup.Go0(fmt.Sprintf("worker.%d", w.id), func(ctx context.Context) {
			res := w.run(ctx)
			results[idx] = res
			r.publish(TopicResult, ResultEvent{Result: res})
		})
	}

	// Workers unwind promptly once ctx is canceled, so waiting without a
	// deadline is safe and keeps the results slice race-free.
	_ = sup.Wait(context.Background())

	approved := false
	for _, res := range results {
		if res.Outcome == OutcomeApproved {
			approved = true
			break
		}
	}
	r.publish(TopicDone, DoneEvent{Results: results, Approved: approved})
	return results, nil
}
