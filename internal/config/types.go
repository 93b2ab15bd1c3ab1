package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"miunlock/internal/timesync"
)

type Config struct {
	Race     RaceConfig     `json:"race"`
	TimeSync TimeSyncConfig `json:"timesync"`
	API      APIConfig      `json:"api"`
	Tokens   TokensConfig   `json:"tokens"`
	Journal  JournalConfig  `json:"journal"`
	Notify   NotifyConfig   `json:"notify"`
	Logging  LoggingConfig  `json:"logging"`
}

// RaceConfig controls the fire pattern around the boundary.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type RaceConfig struct {
	// OffsetsMS is the per-worker lead before the boundary, in milliseconds,
	// in worker order. Exactly four entries.
	OffsetsMS []int `json:"offsets_ms"`
	// RetryWindow is how long past the boundary workers keep firing.
	RetryWindow string `json:"retry_window"`
	// Timezone the boundary is computed in.
	Timezone string `json:"timezone"`
	// CountdownLead is how long before the earliest target the countdown
	// hands over to the workers.
	CountdownLead string `json:"countdown_lead"`
}

type TimeSyncConfig struct {
	// Servers are tried in order; the first answer wins.
	Servers []string `json:"servers"`
	// Timeout applies per server query.
	Timeout string `json:"timeout"`
}

type APIConfig struct {
	BaseURL string `json:"base_url"`
}

type TokensConfig struct {
	File string `json:"file"`
	// Watch re-reads the credentials file when it changes during the
	// countdown, so a token refreshed at the last minute still gets used.
	Watch bool `json:"watch"`
}

// JournalConfig controls the attempt journal.
//
// Driver is one of "file" (JSONL append), "sqlite" (requires the sqlite build
// tag) or "none".
type JournalConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerMin int    `json:"rate_per_min"`
}

type LoggingConfig struct {
	Level string      `json:"level"`
	File  LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no file exists. Every field is
// runnable as-is; only the credentials file has no usable default content.
func Default() *Config {
	return &Config{
		Race: RaceConfig{
			OffsetsMS:     []int{1400, 900, 400, 100},
			RetryWindow:   "30s",
			Timezone:      "Asia/Shanghai",
			CountdownLead: "10s",
		},
		TimeSync: TimeSyncConfig{
			Servers: append([]string(nil), timesync.DefaultServers...),
			Timeout: "5s",
		},
		API: APIConfig{
			BaseURL: "https://sgp-api.buy.mi.com/bbs/api/global",
		},
		Tokens: TokensConfig{
			File:  "tokens.json",
			Watch: true,
		},
		Journal: JournalConfig{
			Driver: "file",
			Path:   "attempts.jsonl",
		},
		Notify: NotifyConfig{
			Telegram: TelegramConfig{RatePerMin: 20},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  LoggingFile{Path: "miunlock.log"},
		},
	}
}

// applyDefaults fills omitted fields so a sparse file still validates.
func applyDefaults(cfg *Config) {
	def := Default()

	if len(cfg.Race.OffsetsMS) == 0 {
		cfg.Race.OffsetsMS = def.Race.OffsetsMS
	}
	if strings.TrimSpace(cfg.Race.RetryWindow) == "" {
		cfg.Race.RetryWindow = def.Race.RetryWindow
	}
	if strings.TrimSpace(cfg.Race.Timezone) == "" {
		cfg.Race.Timezone = def.Race.Timezone
	}
	if strings.TrimSpace(cfg.Race.CountdownLead) == "" {
		cfg.Race.CountdownLead = def.Race.CountdownLead
	}
	if len(cfg.TimeSync.Servers) == 0 {
		cfg.TimeSync.Servers = def.TimeSync.Servers
	}
	if strings.TrimSpace(cfg.TimeSync.Timeout) == "" {
		cfg.TimeSync.Timeout = def.TimeSync.Timeout
	}
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		cfg.API.BaseURL = def.API.BaseURL
	}
	if strings.TrimSpace(cfg.Tokens.File) == "" {
		cfg.Tokens.File = def.Tokens.File
	}
	if strings.TrimSpace(cfg.Journal.Driver) == "" {
		cfg.Journal.Driver = def.Journal.Driver
	}
	if strings.TrimSpace(cfg.Journal.Path) == "" {
		cfg.Journal.Path = def.Journal.Path
	}
	if cfg.Notify.Telegram.RatePerMin <= 0 {
		cfg.Notify.Telegram.RatePerMin = def.Notify.Telegram.RatePerMin
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(cfg.Logging.File.Path) == "" {
		cfg.Logging.File.Path = def.Logging.File.Path
	}
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the whole config and returns the first problem with enough
// context to fix it. Call after applyDefaults (Load does both).
func (c *Config) Validate() error {
	if got := len(c.Race.OffsetsMS); got != 4 {
		return fmt.Errorf("race.offsets_ms: need 4 offsets, got %d", got)
	}
	for i, ms := range c.Race.OffsetsMS {
		if ms < 0 {
			return fmt.Errorf("race.offsets_ms[%d]: must be >= 0, got %d", i, ms)
		}
	}
	if d, err := ParseDurationField("race.retry_window", c.Race.RetryWindow); err != nil {
		return err
	} else if d <= 0 {
		return fmt.Errorf("race.retry_window: must be positive, got %q", c.Race.RetryWindow)
	}
	if _, err := time.LoadLocation(c.Race.Timezone); err != nil {
		return fmt.Errorf("race.timezone: %w", err)
	}
	if _, err := ParseDurationField("race.countdown_lead", c.Race.CountdownLead); err != nil {
		return err
	}

	if len(c.TimeSync.Servers) == 0 {
		return fmt.Errorf("timesync.servers: at least one server required")
	}
	for i, s := range c.TimeSync.Servers {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("timesync.servers[%d]: empty server name", i)
		}
	}
	if d, err := ParseDurationField("timesync.timeout", c.TimeSync.Timeout); err != nil {
		return err
	} else if d <= 0 {
		return fmt.Errorf("timesync.timeout: must be positive, got %q", c.TimeSync.Timeout)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url: scheme must be http or https, got %q", c.API.BaseURL)
	}

	if strings.TrimSpace(c.Tokens.File) == "" {
		return fmt.Errorf("tokens.file: path required")
	}

	switch c.Journal.Driver {
	case "file", "sqlite", "none":
	default:
		return fmt.Errorf("journal.driver: %q is not one of file, sqlite, none", c.Journal.Driver)
	}
	if c.Journal.Driver != "none" && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path: required for driver %q", c.Journal.Driver)
	}

	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.Token) == "" {
			return fmt.Errorf("notify.telegram.token: required when enabled")
		}
		if c.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id: required when enabled")
		}
	}

	if !logLevels[strings.ToLower(strings.TrimSpace(c.Logging.Level))] {
		return fmt.Errorf("logging.level: %q is not one of trace, debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// Location returns the boundary timezone. Call after Validate.
func (r RaceConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// Offsets converts offsets_ms to durations in worker order.
func (r RaceConfig) Offsets() []time.Duration {
	out := make([]time.Duration, len(r.OffsetsMS))
	for i, ms := range r.OffsetsMS {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// RetryWindowDuration parses retry_window, defaulting to 30s.
func (r RaceConfig) RetryWindowDuration() (time.Duration, error) {
	return ParseDurationOrDefault("race.retry_window", r.RetryWindow, 30*time.Second)
}

// CountdownLeadDuration parses countdown_lead, defaulting to 10s.
func (r RaceConfig) CountdownLeadDuration() (time.Duration, error) {
	return ParseDurationOrDefault("race.countdown_lead", r.CountdownLead, 10*time.Second)
}

// TimeoutDuration parses the per-server query timeout, defaulting to 5s.
func (t TimeSyncConfig) TimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("timesync.timeout", t.Timeout, 5*time.Second)
}
