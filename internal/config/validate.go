package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateBudget(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.MinDurationSeconds < 0 {
		return errors.New("pipeline.min_duration_seconds must not be negative")
	}
	if c.Pipeline.MaxDurationSeconds > 0 && c.Pipeline.MaxDurationSeconds < c.Pipeline.MinDurationSeconds {
		return errors.New("pipeline.max_duration_seconds must be >= pipeline.min_duration_seconds")
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("pipeline.timezone: unknown timezone %q", c.Pipeline.Timezone)
	}
	return nil
}

func (c *Config) validateBudget() error {
	if err := validateDimension("budget.transcription", c.Budget.Transcription); err != nil {
		return err
	}
	return validateDimension("budget.discovery", c.Budget.Discovery)
}

func validateDimension(name string, d Dimension) error {
	if d.DailyLimit < 0 {
		return fmt.Errorf("%s.daily_limit must not be negative", name)
	}
	if d.EstimatedCost < 0 {
		return fmt.Errorf("%s.estimated_cost must not be negative", name)
	}
	if d.DailyLimit > 0 && d.EstimatedCost > d.DailyLimit {
		return fmt.Errorf("%s.estimated_cost exceeds the daily limit; no work could ever be admitted", name)
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	seen := make(map[string]struct{}, len(c.Discovery.Sources))
	for _, src := range c.Discovery.Sources {
		if src.ID == "" {
			return errors.New("discovery.sources[].id must be set")
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("discovery.sources: duplicate id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
