package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"miunlock/internal/tokens"
	logx "miunlock/pkg/logx"
)

func cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := flags.String("config", defaultConfigPath, "config file path")
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

	store := tokens.NewStore(a.cfg.Tokens.File, a.log)
	pair, err := store.Load()
	if err != nil {
		errf("%v", err)
		return 1
	}

	e, err := a.checkEligibility(ctx, pair.Primary())
	if err != nil {
		errf("status check failed: %v", err)
		return 1
	}

	fmt.Println(e.Message)
	a.log.Info("eligibility checked", logx.Bool("eligible", e.Eligible), logx.String("status", e.Message))
	if e.Eligible || e.AlreadyApproved {
		return 0
	}
	return 2
}
