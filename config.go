package authkit

import (
	"fmt"
	"time"
)

// Config tunes session lifecycle behavior. Zero values are replaced by defaults.
type Config struct {
	// ExpiryBuffer treats tokens as expired this long before their exp claim.
	// Default: 60 seconds.
	ExpiryBuffer time.Duration `mapstructure:"expiry_buffer" yaml:"expiry_buffer"`

	// PersistAttempts bounds the verified session write, first try included.
	// Default: 4 (one write and three retries).
	PersistAttempts int `mapstructure:"persist_attempts" yaml:"persist_attempts"`

	// PersistBackoff is the first retry delay; it doubles on each retry.
	// Default: 200ms.
	PersistBackoff time.Duration `mapstructure:"persist_backoff" yaml:"persist_backoff"`
}

const (
	// DefaultExpiryBuffer absorbs clock skew and round-trip latency.
	DefaultExpiryBuffer = 60 * time.Second
	// DefaultPersistAttempts is the session write ceiling.
	DefaultPersistAttempts = 4
	// DefaultPersistBackoff is the first persistence retry delay.
	DefaultPersistBackoff = 200 * time.Millisecond
)

// WithDefaults returns c with zero fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.ExpiryBuffer == 0 {
		c.ExpiryBuffer = DefaultExpiryBuffer
	}
	if c.PersistAttempts == 0 {
		c.PersistAttempts = DefaultPersistAttempts
	}
	if c.PersistBackoff == 0 {
		c.PersistBackoff = DefaultPersistBackoff
	}
	return c
}

// Validate rejects settings that would disable expiry checks or persistence.
func (c Config) Validate() error {
	if c.ExpiryBuffer < 0 {
		return fmt.Errorf("authkit: expiry buffer must not be negative")
	}
	if c.PersistAttempts < 1 {
		return fmt.Errorf("authkit: persist attempts must be at least 1")
	}
	if c.PersistBackoff < 0 {
		return fmt.Errorf("authkit: persist backoff must not be negative")
	}
	return nil
}
