package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"miunlock/internal/clock"
	"miunlock/internal/eventbus"
	"miunlock/internal/journal"
	"miunlock/internal/miapi"
	"miunlock/internal/notify"
	"miunlock/internal/race"
	rtsup "miunlock/internal/runtime/supervisor"
	"miunlock/internal/timesync"
	"miunlock/internal/tokens"
	logx "miunlock/pkg/logx"
)

// countdownTick paces the coarse wait: one progress event and one wake per
// tick keeps the process interruptible without burning CPU for hours.
const countdownTick = 30 * time.Second

func cmdRun(args []string) int {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := flags.String("config", defaultConfigPath, "config file path")
	dryRun := flags.Bool("dry-run", false, "full wait sequence without sending any request")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	a, err := newApp(*configPath)
	if err != nil {
		errf("%v", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.run(ctx, *dryRun)
}

func (a *app) run(ctx context.Context, dryRun bool) int {
	log := a.log

	loc, err := a.cfg.Race.Location()
	if err != nil {
		errf("%v", err)
		return 1
	}
	retryWindow, err := a.cfg.Race.RetryWindowDuration()
	if err != nil {
		errf("%v", err)
		return 1
	}
	countdownLead, err := a.cfg.Race.CountdownLeadDuration()
	if err != nil {
		errf("%v", err)
		return 1
	}
	syncTimeout, err := a.cfg.TimeSync.TimeoutDuration()
	if err != nil {
		errf("%v", err)
		return 1
	}
	offsets := a.cfg.Race.Offsets()

	store := tokens.NewStore(a.cfg.Tokens.File, log)
	pair, err := store.Load()
	if err != nil {
		errf("%v", err)
		return 1
	}

	bus := eventbus.New()
	sup := rtsup.New(ctx, rtsup.WithLogger(log))

	var jw journal.Writer
	defer func() {
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := sup.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("shutdown incomplete", logx.Err(err))
		}
		if jw != nil {
			_ = jw.Close()
		}
	}()

	// Reporting pipeline goes first so every later publish has a subscriber.
	if w, err := journal.Open(journal.Config{Driver: a.cfg.Journal.Driver, Path: a.cfg.Journal.Path}, log); err != nil {
		log.Warn("journal disabled", logx.Err(err))
	} else if w != nil {
		jw = w
		rec := journal.NewRecorder(w, bus, log)
		sup.Go0("journal.recorder", rec.Run)
	}
	if reporter := a.newReporter(bus); reporter != nil {
		sup.Go0("notify.reporter", reporter.Run)
	}
	if a.cfg.Tokens.Watch {
		sup.GoRestart("tokens.watch", store.Watch)
	}
	a.notifySystemd(sup)

	// Preflight with the primary credential. Only the two states that make
	// racing pointless abort here; everything else is decided at the boundary.
	if !dryRun {
		e, err := a.checkEligibility(ctx, pair.Primary())
		switch {
		case err != nil:
			log.Warn("preflight check failed, racing anyway", logx.Err(err))
		case e.Expired:
			errf("%s", e.Message)
			return 1
		case e.AlreadyApproved:
			fmt.Println(e.Message)
			return 0
		default:
			log.Info("preflight ok", logx.Bool("eligible", e.Eligible), logx.String("status", e.Message))
		}
	}

	syncer := timesync.New(timesync.Config{Servers: a.cfg.TimeSync.Servers, Timeout: syncTimeout}, loc, log)
	synced, err := syncer.Sync(ctx)
	if err != nil {
		errf("time sync failed: %v", err)
		return 1
	}
	clk := clock.NewSynced(synced.Time)
	bus.Publish(eventbus.Event{Topic: race.TopicSync, Data: race.SyncEvent{Server: synced.Server, Time: synced.Time}})

	maxOffset := offsets[0]
	for _, off := range offsets[1:] {
		if off > maxOffset {
			maxOffset = off
		}
	}
	target, _ := race.FireWindow(clk.SyncedNow(), maxOffset, retryWindow)
	fmt.Printf("Synced against %s. First worker fires at %s.\n",
		synced.Server, target.Format("2006-01-02 15:04:05.000 MST"))

	if !a.countdown(ctx, clk, bus, target, countdownLead) {
		errf("interrupted")
		return 1
	}

	// The credentials file may have been refreshed during the wait.
	if fresh, ok := store.Get(); ok {
		pair = fresh
	}

	factory := func(credential, deviceID string) race.API {
		return miapi.NewClient(credential, deviceID, miapi.Opts{BaseURL: a.cfg.API.BaseURL})
	}
	r := race.New(race.Config{Offsets: offsets, RetryWindow: retryWindow, DryRun: dryRun}, clk, factory, log, bus)
	results, err := r.Run(ctx, pair.Credentials())
	if err != nil {
		errf("%v", err)
		return 1
	}
	return printResults(results)
}

// countdown sleeps in coarse ticks until lead before target, publishing
// progress on the bus. Reports false when the wait was interrupted.
func (a *app) countdown(ctx context.Context, clk clock.Clock, bus eventbus.Bus, target time.Time, lead time.Duration) bool {
	handover := target.Add(-lead)
	for {
		now := clk.SyncedNow()
		if !now.Before(handover) {
			return true
		}
		remaining := target.Sub(now)
		bus.Publish(eventbus.Event{Topic: race.TopicCountdown, Data: race.CountdownEvent{Remaining: remaining, Target: target}})
		a.log.Info("waiting for boundary", logx.Duration("remaining", remaining.Round(time.Second)))

		step := handover.Sub(now)
		if step > countdownTick {
			step = countdownTick
		}
		clk.Sleep(ctx, step)
		if ctx.Err() != nil {
			return false
		}
	}
}

// newReporter builds the Telegram reporter when configured, nil otherwise. A
// misconfigured bot downgrades to a warning; notifications are optional and
// must never keep the race from running.
func (a *app) newReporter(bus eventbus.Bus) *notify.Reporter {
	tg := a.cfg.Notify.Telegram
	if !tg.Enabled {
		return nil
	}
	sender, err := notify.NewTelegramSender(tg.Token, tg.ChatID)
	if err != nil {
		a.log.Warn("telegram disabled", logx.Err(err))
		return nil
	}
	return notify.New(notify.Config{RatePerMin: tg.RatePerMin}, sender, bus, a.log)
}

// notifySystemd reports readiness and keeps the watchdog fed for the long
// countdown. Outside of systemd both calls are no-ops.
func (a *app) notifySystemd(sup *rtsup.Supervisor) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
		return
	}
	if !sent {
		return
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func printResults(results []race.WorkerResult) int {
	fmt.Println()
	approved := false
	for _, res := range results {
		if res.Outcome == race.OutcomeApproved {
			approved = true
		}
		fmt.Printf("  worker %d  %-9s  %2d attempts  %s\n", res.WorkerID, res.Outcome, res.Attempts, res.Message)
	}
	fmt.Println()
	if approved {
		fmt.Println("Approved! Finish the unlock in the Mi Unlock tool within the granted window.")
		return 0
	}
	fmt.Println("Not approved this time. The quota resets at the next midnight boundary.")
	return 2
}
