package scheduler

import (
	"time"

	"github.com/smallbiznis/revenue/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// PendingGrace leaves fresh payments to the webhook before polling.
	PendingGrace time.Duration
	// PendingExpiry fails payments the gateway still reports as pending.
	PendingExpiry time.Duration
	JobTimeout    time.Duration
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		BatchSize:     50,
		PendingGrace:  2 * time.Minute,
		PendingExpiry: 24 * time.Hour,
		JobTimeout:    30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:   cfg.Scheduler.RunInterval,
		BatchSize:     cfg.Scheduler.BatchSize,
		PendingGrace:  cfg.Scheduler.PendingGrace,
		PendingExpiry: cfg.Scheduler.PendingExpiry,
		EnabledJobs:   cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PendingGrace <= 0 {
		c.PendingGrace = defaults.PendingGrace
	}
	if c.PendingExpiry <= c.PendingGrace {
		c.PendingExpiry = defaults.PendingExpiry
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
