package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"gister/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Budget.Transcription.Unit != "USD" {
		t.Fatalf("unexpected transcription unit %q", cfg.Budget.Transcription.Unit)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Pipeline.PollIntervalSeconds != 5 {
		t.Fatalf("defaults not applied: %#v", cfg.Pipeline)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[pipeline]
max_attempts = 5
poll_interval_seconds = 2

[budget.transcription]
daily_limit = 12.5
estimated_cost = 0.5

[services]
transcriber_url = "http://transcriber.local"
api_token = "tok"

[discovery]
[[discovery.sources]]
id = "channel-a"
interval_seconds = 600
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("existing file not detected")
	}
	if cfg.Pipeline.MaxAttempts != 5 || cfg.Pipeline.PollIntervalSeconds != 2 {
		t.Fatalf("pipeline overrides not applied: %#v", cfg.Pipeline)
	}
	if cfg.Budget.Transcription.DailyLimit != 12.5 {
		t.Fatalf("budget override not applied: %#v", cfg.Budget.Transcription)
	}
	if cfg.Services.TranscriberURL != "http://transcriber.local" || cfg.Services.APIToken != "tok" {
		t.Fatalf("services overrides not applied: %#v", cfg.Services)
	}
	if len(cfg.Discovery.Sources) != 1 || cfg.Discovery.Sources[0].ID != "channel-a" {
		t.Fatalf("sources not parsed: %#v", cfg.Discovery.Sources)
	}
	// Untouched sections keep defaults.
	if cfg.Budget.Discovery.DailyLimit != 10000 {
		t.Fatalf("discovery budget default lost: %#v", cfg.Budget.Discovery)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"negative min duration", func(c *config.Config) { c.Pipeline.MinDurationSeconds = -1 }},
		{"max below min", func(c *config.Config) {
			c.Pipeline.MinDurationSeconds = 600
			c.Pipeline.MaxDurationSeconds = 300
		}},
		{"unknown timezone", func(c *config.Config) { c.Pipeline.Timezone = "Mars/Olympus" }},
		{"negative limit", func(c *config.Config) { c.Budget.Transcription.DailyLimit = -1 }},
		{"estimate above limit", func(c *config.Config) {
			c.Budget.Transcription.DailyLimit = 1
			c.Budget.Transcription.EstimatedCost = 2
		}},
		{"duplicate source id", func(c *config.Config) {
			c.Discovery.Sources = []config.Source{{ID: "a"}, {ID: "a"}}
		}},
		{"empty source id", func(c *config.Config) {
			c.Discovery.Sources = []config.Source{{ID: ""}}
		}},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	// The sample itself must parse and validate.
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists || cfg == nil {
		t.Fatal("sample config not detected")
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Timezone = "Nowhere/Invalid"
	if loc := cfg.Location(); loc.String() != "UTC" {
		t.Fatalf("expected UTC fallback, got %q", loc)
	}
}
