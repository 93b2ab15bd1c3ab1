package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"miunlock/internal/eventbus"
	"miunlock/internal/race"
	logx "miunlock/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	calls int
	texts []string
	errs  []error // consumed one per call, then nil
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	cst := time.FixedZone("CST", 8*3600)
	cases := []struct {
		name string
		data any
		want string
	}{
		{
			name: "sync",
			data: race.SyncEvent{Server: "ntp.aliyun.com", Time: time.Date(2026, 2, 22, 0, 0, 1, 500_000_000, cst)},
			want: "🕐 Clock synced against ntp.aliyun.com, anchor 00:00:01.500 CST.",
		},
		{
			name: "result approved",
			data: race.ResultEvent{Result: race.WorkerResult{WorkerID: 2, Outcome: race.OutcomeApproved, Attempts: 3, Message: "Approved!"}},
			want: "✅ Worker 2 approved after 3 attempts: Approved!",
		},
		{
			name: "result rejected",
			data: race.ResultEvent{Result: race.WorkerResult{WorkerID: 1, Outcome: race.OutcomeRejected, Attempts: 12, Message: "Quota reached until 2026-02-24"}},
			want: "❌ Worker 1 rejected after 12 attempts: Quota reached until 2026-02-24",
		},
		{
			name: "result uncertain without message",
			data: race.ResultEvent{Result: race.WorkerResult{WorkerID: 4, Outcome: race.OutcomeUncertain}},
			want: "❓ Worker 4 uncertain after 0 attempts",
		},
		{
			name: "done approved",
			data: race.DoneEvent{Approved: true, Results: []race.WorkerResult{
				{WorkerID: 1, Outcome: race.OutcomeRejected, Attempts: 5},
				{WorkerID: 2, Outcome: race.OutcomeApproved, Attempts: 3},
			}},
			want: "🎉 Approved! The unlock window is open for this account.\n" +
				"❌ worker 1: rejected (5 attempts)\n" +
				"✅ worker 2: approved (3 attempts)",
		},
		{
			name: "done without approval",
			data: race.DoneEvent{},
			want: "🏁 Race finished, no approval this time.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Format(eventbus.Event{Data: tc.data})
			if !ok {
				t.Fatal("Format reported not renderable")
			}
			if got != tc.want {
				t.Errorf("Format =\n%q\nwant\n%q", got, tc.want)
			}
		})
	}
}

func TestFormatSkipsNoise(t *testing.T) {
	t.Parallel()

	for _, data := range []any{
		race.CountdownEvent{Remaining: time.Hour},
		race.StateEvent{Worker: 1, State: race.StateWaiting},
		race.AttemptEvent{Worker: 1, Attempt: 1},
		"free-form string",
		nil,
	} {
		if text, ok := Format(eventbus.Event{Data: data}); ok {
			t.Errorf("Format(%T) rendered %q, want skipped", data, text)
		}
	}
}

func TestReporterDisabledWithoutSender(t *testing.T) {
	t.Parallel()

	r := New(Config{}, nil, eventbus.New(), logx.Nop())
	if r.Enabled() {
		t.Fatal("reporter without sender reports enabled")
	}

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return for a disabled reporter")
	}
}

func TestReporterDeliversMilestones(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	fake := &fakeSender{}
	r := New(Config{RetryBase: time.Millisecond}, fake, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Give the reporter a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(eventbus.Event{Topic: race.TopicSync, Data: race.SyncEvent{Server: "time.apple.com", Time: time.Unix(0, 0).UTC()}})
	bus.Publish(eventbus.Event{Topic: race.TopicCountdown, Data: race.CountdownEvent{Remaining: time.Minute}})
	bus.Publish(eventbus.Event{Topic: race.TopicResult, Data: race.ResultEvent{Result: race.WorkerResult{
		WorkerID: 3, Outcome: race.OutcomeApproved, Attempts: 2, Message: "Approved!",
	}}})
	bus.Publish(eventbus.Event{Topic: race.TopicDone, Data: race.DoneEvent{
		Results:  []race.WorkerResult{{WorkerID: 3, Outcome: race.OutcomeApproved, Attempts: 2}},
		Approved: true,
	}})

	cancel()
	<-done

	got := fake.sent()
	if len(got) != 3 {
		t.Fatalf("sent %d messages, want 3: %q", len(got), got)
	}
	if got[0] != "🕐 Clock synced against time.apple.com, anchor 00:00:00.000 UTC." {
		t.Errorf("sync message = %q", got[0])
	}
	if got[1] != "✅ Worker 3 approved after 2 attempts: Approved!" {
		t.Errorf("result message = %q", got[1])
	}
	if want := "🎉 Approved! The unlock window is open for this account.\n✅ worker 3: approved (2 attempts)"; got[2] != want {
		t.Errorf("done message = %q, want %q", got[2], want)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{errs: []error{errors.New("flood control")}}
	r := New(Config{RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, fake, eventbus.New(), logx.Nop())

	r.send(context.Background(), "hello")

	if got := fake.callCount(); got != 2 {
		t.Fatalf("sender called %d times, want 2", got)
	}
	if got := fake.sent(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("sent = %q, want [hello]", got)
	}
}

func TestSendGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fake := &fakeSender{errs: []error{boom, boom, boom}}
	r := New(Config{RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, fake, eventbus.New(), logx.Nop())

	r.send(context.Background(), "lost")

	if got := fake.callCount(); got != 3 {
		t.Fatalf("sender called %d times, want 3", got)
	}
	if got := fake.sent(); len(got) != 0 {
		t.Fatalf("sent = %q, want none", got)
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	fake := &fakeSender{}
	r := New(Config{}, fake, eventbus.New(), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.send(ctx, "never")

	if got := fake.callCount(); got != 0 {
		t.Fatalf("sender called %d times on canceled context, want 0", got)
	}
}
