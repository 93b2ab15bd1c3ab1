package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a fully controllable Clock for tests. By default every Sleep
// advances the fake time by the requested duration instead of blocking, so
// time-driven logic runs deterministically at full speed. SleepFunc overrides
// that per test, e.g. to jump past a deadline or to trip a stop signal
// mid-sleep.
type Fake struct {
	mu   sync.Mutex
	now  time.Time
	mono time.Duration

	// SleepFunc, when set, replaces the default advance-by-d behavior.
	// Set it before handing the clock to the code under test.
	SleepFunc func(d time.Duration)
}

func NewFake(start time.Time) *Fake { return &Fake{now: start} }

func (f *Fake) Monotonic() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mono
}

func (f *Fake) SyncedNow() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set jumps the wall reading to t. The monotonic reading is unaffected.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves both the wall and the monotonic reading forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.mono += d
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) {
	if ctx.Err() != nil {
		return
	}
	if f.SleepFunc != nil {
		f.SleepFunc(d)
		return
	}
	if d > 0 {
		f.Advance(d)
	}
}
