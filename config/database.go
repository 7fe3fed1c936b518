package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"optilab"`
	Password string `env:"PASSWORD"                envDefault:"optilab"`
	Name     string `env:"NAME"                    envDefault:"optilab"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
//
// Redis is optional: when disabled, job status snapshots are kept in an
// in-process store and login sessions are unavailable. Single-classroom
// deployments can run without it.
type RedisConfig struct {
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig controls the job status snapshot store.
type CacheConfig struct {
	// StatusActiveTTL is how long a queued/running snapshot survives without a
	// refresh. Long enough to cover the slowest solve plus queue time.
	StatusActiveTTL time.Duration `env:"CACHE_STATUS_ACTIVE_TTL" envDefault:"24h"`

	// StatusTerminalTTL is how long a terminal snapshot is kept. Pollers see
	// the terminal state within a second, so this only needs to cover stragglers.
	StatusTerminalTTL time.Duration `env:"CACHE_STATUS_TERMINAL_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.StatusActiveTTL < time.Minute {
		c.StatusActiveTTL = time.Minute
	}
	if c.StatusTerminalTTL < time.Minute {
		c.StatusTerminalTTL = time.Minute
	}
}
