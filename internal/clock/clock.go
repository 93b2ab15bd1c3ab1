// Package clock abstracts the synchronized wall clock the race runs against.
package clock

import (
	"context"
	"time"
)

// Clock is the time capability the race depends on. Decision logic never
// reads real time or the network directly; it goes through one of these.
type Clock interface {
	// Monotonic reports elapsed time since an arbitrary fixed origin.
	Monotonic() time.Duration
	// SyncedNow reports the current synchronized time in the target timezone.
	SyncedNow() time.Time
	// Sleep pauses for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration)
}

// Synced is the production Clock. It is anchored once to an externally
// synchronized timestamp and extrapolates with the local monotonic clock from
// then on; it never re-queries the network, and wall-clock steps on the local
// machine cannot move it.
type Synced struct {
	anchor     time.Time // synchronized instant, target timezone
	anchorMono time.Time // local reading taken at the anchor instant
}

// NewSynced anchors a clock at anchor, which should come fresh from a time
// source. The clock then drifts from true time only as far as the local
// monotonic clock does.
func NewSynced(anchor time.Time) *Synced {
	return &Synced{anchor: anchor, anchorMono: time.Now()}
}

func (c *Synced) Monotonic() time.Duration { return time.Since(c.anchorMono) }

func (c *Synced) SyncedNow() time.Time { return c.anchor.Add(time.Since(c.anchorMono)) }

func (c *Synced) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
