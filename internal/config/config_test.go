package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Race.Timezone != "Asia/Shanghai" {
		t.Errorf("Timezone = %q", cfg.Race.Timezone)
	}
	if got := cfg.Race.Offsets(); len(got) != 4 || got[0] != 1400*time.Millisecond {
		t.Errorf("Offsets = %v", got)
	}
	if cfg.Journal.Driver != "file" {
		t.Errorf("Journal.Driver = %q", cfg.Journal.Driver)
	}
}

func TestLoadYAMLOverridesAndDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "miunlock.yaml", `
race:
  offsets_ms: [2000, 1000, 500, 50]
  retry_window: "20s"
tokens:
  file: "creds.json"
  watch: false
notify:
  telegram:
    enabled: true
    token: "123:abc"
    chat_id: 42
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Race.Offsets(); got[3] != 50*time.Millisecond {
		t.Errorf("Offsets[3] = %v, want 50ms", got[3])
	}
	if d, err := cfg.Race.RetryWindowDuration(); err != nil || d != 20*time.Second {
		t.Errorf("RetryWindowDuration = %v, %v", d, err)
	}
	// Omitted sections keep their defaults.
	if cfg.Race.Timezone != "Asia/Shanghai" {
		t.Errorf("Timezone = %q", cfg.Race.Timezone)
	}
	if len(cfg.TimeSync.Servers) == 0 {
		t.Error("TimeSync.Servers empty, want defaults")
	}
	if cfg.Tokens.File != "creds.json" || cfg.Tokens.Watch {
		t.Errorf("Tokens = %+v", cfg.Tokens)
	}
	if !cfg.Notify.Telegram.Enabled || cfg.Notify.Telegram.ChatID != 42 {
		t.Errorf("Telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Notify.Telegram.RatePerMin != 20 {
		t.Errorf("RatePerMin = %d, want default 20", cfg.Notify.Telegram.RatePerMin)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "miunlock.yaml", `
race:
  offsets: [1, 2, 3, 4]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name:    "wrong offset count",
			yaml:    "race:\n  offsets_ms: [1400, 900, 400]\n",
			wantSub: "need 4 offsets, got 3",
		},
		{
			name:    "negative offset",
			yaml:    "race:\n  offsets_ms: [1400, 900, 400, -1]\n",
			wantSub: "offsets_ms[3]",
		},
		{
			name:    "bad retry window",
			yaml:    "race:\n  retry_window: \"soon\"\n",
			wantSub: "race.retry_window",
		},
		{
			name:    "bad timezone",
			yaml:    "race:\n  timezone: \"Mars/Olympus\"\n",
			wantSub: "race.timezone",
		},
		{
			name:    "bad journal driver",
			yaml:    "journal:\n  driver: \"postgres\"\n",
			wantSub: "journal.driver",
		},
		{
			name:    "telegram enabled without token",
			yaml:    "notify:\n  telegram:\n    enabled: true\n    chat_id: 42\n",
			wantSub: "notify.telegram.token",
		},
		{
			name:    "telegram enabled without chat",
			yaml:    "notify:\n  telegram:\n    enabled: true\n    token: \"123:abc\"\n",
			wantSub: "notify.telegram.chat_id",
		},
		{
			name:    "bad log level",
			yaml:    "logging:\n  level: \"loud\"\n",
			wantSub: "logging.level",
		},
		{
			name:    "bad base url scheme",
			yaml:    "api:\n  base_url: \"ftp://example.com\"\n",
			wantSub: "api.base_url",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "miunlock.yaml", tc.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("err = %q, want substring %q", err, tc.wantSub)
			}
		})
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := Parse("cfg.json", []byte(`{}{"extra":true}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseJSONFile(t *testing.T) {
	t.Parallel()

	cfg, err := Parse("cfg.json", []byte(`{"race":{"retry_window":"45s"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d, _ := cfg.Race.RetryWindowDuration(); d != 45*time.Second {
		t.Errorf("RetryWindowDuration = %v, want 45s", d)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", " 1500ms "); err != nil || d != 1500*time.Millisecond {
		t.Errorf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Errorf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Error("negative duration accepted")
	}
	if _, err := ParseDurationField("race.retry_window", "nope"); err == nil || !strings.Contains(err.Error(), "race.retry_window") {
		t.Errorf("err = %v, want field path in message", err)
	}
}
