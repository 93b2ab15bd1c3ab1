// Package notify pushes race progress to a Telegram chat.
//
// Delivery is strictly best-effort: the reporter consumes bus events on its
// own goroutine, the bus drops on backpressure, and a failed send is retried
// a bounded number of times and then forgotten. Nothing in here can slow a
// worker down.
package notify

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"miunlock/internal/eventbus"
	logx "miunlock/pkg/logx"
)

// Sender delivers one already-formatted message. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Config tunes delivery. Zero values fall back to conservative defaults.
type Config struct {
	// RatePerMin caps outbound messages. Telegram tolerates roughly 20
	// messages per minute to a single chat.
	RatePerMin int

	// RetryMax is how many times a failed send is retried before the
	// message is dropped.
	RetryMax int

	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// SendTimeout bounds one delivery call.
	SendTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.RatePerMin <= 0 {
		c.RatePerMin = 20
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
}

// Reporter turns sync and result events into short chat messages. A Reporter
// with a nil Sender is disabled and Run returns immediately.
type Reporter struct {
	cfg     Config
	sender  Sender
	bus     eventbus.Bus
	log     logx.Logger
	limiter *rate.Limiter
	rng     *rand.Rand
}

func New(cfg Config, sender Sender, bus eventbus.Bus, log logx.Logger) *Reporter {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	// Burst absorbs the end-of-race flurry (four results plus the summary)
	// while sustained traffic stays under the per-minute cap.
	burst := cfg.RatePerMin / 4
	if burst < 1 {
		burst = 1
	}
	return &Reporter{
		cfg:     cfg,
		sender:  sender,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), burst),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Reporter) Enabled() bool { return r.sender != nil }

// flushTimeout bounds the post-cancel drain so shutdown can never hang on
// a slow Telegram API.
const flushTimeout = 10 * time.Second

// Run consumes events until ctx is canceled, then forwards what is already
// buffered so the terminal summary still goes out.
func (r *Reporter) Run(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	ch, unsubscribe := r.bus.Subscribe(64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			r.flush(ch)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Reporter) flush(ch <-chan eventbus.Event) {
	fctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handle(fctx, ev)
		default:
			return
		}
	}
}

func (r *Reporter) handle(ctx context.Context, ev eventbus.Event) {
	text, ok := Format(ev)
	if !ok {
		return
	}
	r.send(ctx, text)
}

// send delivers one message with rate limiting and bounded retry. Errors
// are logged, never propagated: a missed notification must not affect the
// race outcome.
func (r *Reporter) send(ctx context.Context, text string) {
	maxAttempts := 1 + r.cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
		err := r.sender.Send(callCtx, text)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		r.log.Debug("telegram send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(r.retryDelay(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		}
	}

	r.log.Warn("notification dropped", logx.Err(lastErr))
}

// retryDelay is exponential in the attempt number, jittered 0.7..1.3 so
// retries from this process don't land in lockstep with the firing pattern.
func (r *Reporter) retryDelay(attempt int) time.Duration {
	d := r.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.cfg.RetryMaxDelay {
			d = r.cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + r.rng.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > r.cfg.RetryMaxDelay {
		d = r.cfg.RetryMaxDelay
	}
	return d
}
