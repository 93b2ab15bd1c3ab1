package main

import (
	"context"
	"fmt"

	"miunlock/internal/config"
	"miunlock/internal/miapi"
	"miunlock/internal/race"
	logx "miunlock/pkg/logx"
)

const defaultConfigPath = "miunlock.yaml"

// app holds what every subcommand needs: the parsed config and the log sinks.
type app struct {
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	svc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: true,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	return &app{cfg: cfg, logs: svc, log: log}, nil
}

// Close releases the log sinks.
func (a *app) Close() { _ = a.logs.Close() }

// checkEligibility performs one status call with a throwaway device identity.
func (a *app) checkEligibility(ctx context.Context, token string) (race.Eligibility, error) {
	client := miapi.NewClient(token, race.NewDeviceID(), miapi.Opts{BaseURL: a.cfg.API.BaseURL})
	body, err := client.State(ctx)
	if err != nil {
		return race.Eligibility{}, err
	}
	p, err := race.ParsePayload(body)
	if err != nil {
		return race.Eligibility{}, fmt.Errorf("unreadable response: %w", err)
	}
	return race.ClassifyEligibility(p), nil
}
