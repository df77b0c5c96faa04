package postgres

import (
	"fmt"
)

// StoreConfig holds store-level configuration for the PostgreSQL backend.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// QueryTimeoutSeconds is the maximum time a query can run before timing out.
	// Default: 10 seconds
	QueryTimeoutSeconds int32

	// PoolStatsIntervalSeconds controls how often pool statistics are logged.
	// Default: 30 seconds
	PoolStatsIntervalSeconds int32
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("query timeout must not be negative")
	}
	if c.PoolStatsIntervalSeconds < 0 {
		return fmt.Errorf("pool stats interval must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10
	}
	if c.PoolStatsIntervalSeconds == 0 {
		c.PoolStatsIntervalSeconds = 30
	}
}
