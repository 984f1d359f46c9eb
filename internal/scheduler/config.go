package scheduler

import (
	"time"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	LeaseTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   50,
		LeaseTTL:    90 * time.Second,
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
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}
