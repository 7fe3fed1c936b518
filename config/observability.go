package config

import "strings"

// ObservabilityConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityConfig struct {
	Enabled bool   `env:"STATSD_ENABLED" envDefault:"false"`
	Address string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix  string `env:"STATSD_PREFIX"  envDefault:"optilab"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityConfig) Sanitize() {
	c.Address = strings.TrimSpace(c.Address)
	c.Prefix = strings.TrimSpace(c.Prefix)
	if c.Address == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityConfig) IsEnabled() bool {
	return c.Enabled && c.Address != ""
}
