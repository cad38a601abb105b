package testsupport

import (
	"path/filepath"
	"testing"

	"gister/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Pipeline.PollIntervalSeconds = 1

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithMaxAttempts overrides the retry limit on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.MaxAttempts = attempts
	}
}

// WithTranscriptionBudget overrides the transcription daily limit.
func WithTranscriptionBudget(limit, estimated float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Budget.Transcription.DailyLimit = limit
		cfg.Budget.Transcription.EstimatedCost = estimated
	}
}

// WithSource adds a discovery source to the test config.
func WithSource(id string, intervalSeconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Discovery.Sources = append(cfg.Discovery.Sources, config.Source{
			ID:              id,
			IntervalSeconds: intervalSeconds,
		})
	}
}
