package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"miunlock/internal/latency"
	logx "miunlock/pkg/logx"
)

func cmdProbe(args []string) int {
	flags := flag.NewFlagSet("probe", flag.ContinueOnError)
	servers := flags.Int("servers", 8, "how many nearby servers to ping")
	verbose := flags.Bool("v", false, "log per-server ping diagnostics")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	// The probe runs without a config file, so there is no log service to
	// borrow a sink from.
	var log logx.Logger
	if *verbose {
		log = logx.NewConsole("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Measuring round-trip latency to nearby servers...")
	rep, err := latency.Probe(ctx, latency.Config{ServerCount: *servers, Log: log})
	if err != nil {
		errf("probe: %v", err)
		return 1
	}

	if rep.ISP != "" {
		fmt.Printf("Probing from: %s\n", rep.ISP)
	}
	fmt.Println()
	for _, s := range rep.Samples {
		fmt.Printf("  %7.1f ms  %s (%s)\n", float64(s.RTT.Microseconds())/1000, s.Sponsor, s.Host)
	}
	fmt.Printf("\nRTT min/median/max: %s / %s / %s\n", rep.Stats.Min, rep.Stats.Median, rep.Stats.Max)
	fmt.Printf("\nSuggested config:\n\nrace:\n  %s\n", rep.OffsetsLine())
	return 0
}
