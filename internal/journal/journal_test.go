package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"miunlock/internal/eventbus"
	"miunlock/internal/race"
	logx "miunlock/pkg/logx"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad journal line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none"} {
		w, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if w != nil {
			t.Fatalf("Open(%q) returned a writer", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileWriterAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	w, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	at := time.Date(2026, 2, 22, 0, 0, 0, 123_000_000, time.UTC)
	entries := []Entry{
		{At: at, Kind: KindAttempt, Worker: 1, Attempt: 1, FiredAt: at},
		{At: at, Kind: KindAttemptDone, Worker: 1, Attempt: 1, RTTMS: 87.5, Verdict: "approved"},
	}
	for _, e := range entries {
		if err := w.Append(context.Background(), e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readEntries(t, path)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Kind != KindAttempt || got[0].Worker != 1 {
		t.Errorf("entries[0] = %+v", got[0])
	}
	if got[1].RTTMS != 87.5 || got[1].Verdict != "approved" {
		t.Errorf("entries[1] = %+v", got[1])
	}

	if err := w.Append(context.Background(), Entry{Kind: KindDone}); err != ErrClosed {
		t.Errorf("Append after Close = %v, want ErrClosed", err)
	}
}

func TestFileWriterReopenAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	for i := 0; i < 2; i++ {
		w, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		if err := w.Append(context.Background(), Entry{Kind: KindSync, Server: "s"}); err != nil {
			t.Fatalf("Append #%d: %v", i+1, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if got := readEntries(t, path); len(got) != 2 {
		t.Fatalf("got %d entries after reopen, want 2", len(got))
	}
}

func TestRecorderPersistsRaceEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attempts.jsonl")
	w, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	bus := eventbus.New()
	rec := NewRecorder(w, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	// Give the recorder a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	fired := time.Date(2026, 2, 22, 0, 0, 0, 0, time.UTC)
	bus.Publish(eventbus.Event{Topic: race.TopicSync, Data: race.SyncEvent{Server: "time.apple.com", Time: fired}})
	bus.Publish(eventbus.Event{Topic: race.TopicCountdown, Data: race.CountdownEvent{Remaining: time.Hour}})
	bus.Publish(eventbus.Event{Topic: race.TopicAttempt, Data: race.AttemptEvent{Worker: 2, Attempt: 1, FiredAt: fired}})
	bus.Publish(eventbus.Event{Topic: race.TopicAttemptDone, Data: race.AttemptDoneEvent{
		Worker: 2, Attempt: 1, FiredAt: fired, RTT: 1500 * time.Microsecond, Verdict: "retry",
	}})
	bus.Publish(eventbus.Event{Topic: race.TopicResult, Data: race.ResultEvent{Result: race.WorkerResult{
		WorkerID: 2, Outcome: race.OutcomeApproved, Attempts: 3, Message: "Approved!",
	}}})
	bus.Publish(eventbus.Event{Topic: race.TopicDone, Data: race.DoneEvent{
		Results: make([]race.WorkerResult, 4), Approved: true,
	}})

	cancel()
	<-done
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readEntries(t, path)
	// The countdown tick is not journaled.
	if len(got) != 5 {
		t.Fatalf("got %d entries, want 5: %+v", len(got), got)
	}
	if got[0].Kind != KindSync || got[0].Server != "time.apple.com" {
		t.Errorf("sync entry = %+v", got[0])
	}
	if got[1].Kind != KindAttempt || got[1].Worker != 2 {
		t.Errorf("attempt entry = %+v", got[1])
	}
	if got[2].Kind != KindAttemptDone || got[2].RTTMS != 1.5 || got[2].Verdict != "retry" {
		t.Errorf("attempt_done entry = %+v", got[2])
	}
	if got[3].Kind != KindResult || got[3].Outcome != "approved" || got[3].Attempt != 3 {
		t.Errorf("result entry = %+v", got[3])
	}
	if got[4].Kind != KindDone || got[4].Message != "4 workers, approved=true" {
		t.Errorf("done entry = %+v", got[4])
	}
}
