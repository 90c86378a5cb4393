package extractor

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when an extractor configuration is invalid.
var ErrInvalidConfig = errors.New("invalid extractor configuration")

const (
	// MinIDLength and MaxIDLength bound the identifier length in hex characters.
	MinIDLength = 4
	MaxIDLength = 64

	DefaultIDLength = 12
	DefaultSection  = "General"
)

// Config controls rule extraction.
type Config struct {
	// IDLength is the number of hex characters kept from the identifier hash.
	IDLength int

	// DefaultSection labels rules that appear before the first header.
	DefaultSection string

	// NumberedRules lets an outline-numbered line ("1.1 Data must be ...")
	// that matches a rule pattern become a rule instead of a header. All-caps
	// headers are unaffected.
	NumberedRules bool
}

// DefaultConfig returns the default extraction settings.
func DefaultConfig() *Config {
	return &Config{
		IDLength:       DefaultIDLength,
		DefaultSection: DefaultSection,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.IDLength < MinIDLength || c.IDLength > MaxIDLength {
		return fmt.Errorf("%w: id length must be between %d and %d, got %d",
			ErrInvalidConfig, MinIDLength, MaxIDLength, c.IDLength)
	}
	if c.DefaultSection == "" {
		return fmt.Errorf("%w: default section must not be empty", ErrInvalidConfig)
	}
	return nil
}
