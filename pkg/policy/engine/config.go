package engine

import (
	"fmt"
	"time"
)

// Config contains configuration for the enforcement engine.
type Config struct {
	// EnforcementTimeout bounds matching and evaluation of one request.
	// The audit append is not covered by it.
	// Default: 100ms.
	EnforcementTimeout time.Duration

	// ExtractionTimeout bounds a single policy extraction pass.
	// Default: 5s.
	ExtractionTimeout time.Duration

	// MaxRules is the maximum number of rules the engine will hold.
	// Default: 10000.
	MaxRules int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		EnforcementTimeout: 100 * time.Millisecond,
		ExtractionTimeout:  5 * time.Second,
		MaxRules:           10000,
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if c.EnforcementTimeout <= 0 {
		return fmt.Errorf("%w: enforcement timeout must be positive", ErrInvalidConfig)
	}
	if c.ExtractionTimeout <= 0 {
		return fmt.Errorf("%w: extraction timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRules <= 0 {
		return fmt.Errorf("%w: max rules must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithEnforcementTimeout sets the enforcement timeout.
func (c *Config) WithEnforcementTimeout(timeout time.Duration) *Config {
	c.EnforcementTimeout = timeout
	return c
}

// WithExtractionTimeout sets the extraction timeout.
func (c *Config) WithExtractionTimeout(timeout time.Duration) *Config {
	c.ExtractionTimeout = timeout
	return c
}

// WithMaxRules sets the rule limit.
func (c *Config) WithMaxRules(n int) *Config {
	c.MaxRules = n
	return c
}
