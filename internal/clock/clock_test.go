package clock

import (
	"context"
	"testing"
	"time"
)

func TestSyncedExtrapolatesFromAnchor(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	anchor := time.Date(2026, 2, 21, 23, 50, 0, 0, loc)
	c := NewSynced(anchor)

	got := c.SyncedNow()
	if got.Before(anchor) {
		t.Fatalf("SyncedNow %v went backwards from anchor %v", got, anchor)
	}
	if d := got.Sub(anchor); d > 5*time.Second {
		t.Fatalf("SyncedNow drifted %v from anchor immediately after creation", d)
	}
	if got.Location() != loc {
		t.Fatalf("SyncedNow location = %v, want %v", got.Location(), loc)
	}

	first := c.SyncedNow()
	second := c.SyncedNow()
	if second.Before(first) {
		t.Fatalf("SyncedNow not monotonic: %v then %v", first, second)
	}
}

func TestSyncedMonotonicGrows(t *testing.T) {
	t.Parallel()

	c := NewSynced(time.Now())
	a := c.Monotonic()
	time.Sleep(5 * time.Millisecond)
	b := c.Monotonic()
	if b <= a {
		t.Fatalf("Monotonic did not grow: %v then %v", a, b)
	}
}

func TestSyncedSleepHonorsContext(t *testing.T) {
	t.Parallel()

	c := NewSynced(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	c.Sleep(ctx, 10*time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Sleep ignored canceled context, blocked %v", elapsed)
	}
}

func TestFakeSleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 21, 23, 50, 0, 0, time.UTC)
	f := NewFake(start)

	f.Sleep(context.Background(), 90*time.Second)
	if got, want := f.SyncedNow(), start.Add(90*time.Second); !got.Equal(want) {
		t.Fatalf("after sleep: now = %v, want %v", got, want)
	}
	if got := f.Monotonic(); got != 90*time.Second {
		t.Fatalf("after sleep: mono = %v, want 90s", got)
	}
}

func TestFakeSleepFuncOverrides(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 2, 21, 23, 50, 0, 0, time.UTC)
	f := NewFake(start)
	jump := time.Date(2026, 2, 22, 0, 0, 31, 0, time.UTC)
	f.SleepFunc = func(time.Duration) { f.Set(jump) }

	f.Sleep(context.Background(), time.Hour)
	if got := f.SyncedNow(); !got.Equal(jump) {
		t.Fatalf("SleepFunc not applied: now = %v, want %v", got, jump)
	}
}

func TestFakeSetLeavesMonotonicAlone(t *testing.T) {
	t.Parallel()

	f := NewFake(time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC))
	f.Advance(time.Minute)
	f.Set(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if got := f.Monotonic(); got != time.Minute {
		t.Fatalf("Set moved the monotonic reading: %v", got)
	}
}
