package extension

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by ConfigFromEnv.
const EnvPrefix = "AEGIS"

// Config holds the Aegis extension configuration.
// Fields can be set programmatically via Option functions, loaded from
// YAML configuration files (under "extensions.aegis" or "aegis" keys) or
// read from AEGIS_* environment variables with ConfigFromEnv.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate" envconfig:"DISABLE_MIGRATE"`

	// SeedDefaults registers the built-in permission catalog on start.
	SeedDefaults bool `json:"seed_defaults" mapstructure:"seed_defaults" yaml:"seed_defaults" envconfig:"SEED_DEFAULTS" default:"true"`

	// PolicyFile is a YAML or JSONC policy applied on start, after seeding.
	PolicyFile string `json:"policy_file" mapstructure:"policy_file" yaml:"policy_file" envconfig:"POLICY_FILE"`

	// SweepInterval controls how often expired assignments are purged.
	// Zero disables the sweeper.
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL" default:"1h"`

	// CacheTTL enables an in-process decision cache when positive and no
	// cache was supplied through engine options.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"30s"`

	// CatalogRefresh bounds how long checks reuse a loaded catalog when
	// other processes edit the same store. Zero reloads it on every check.
	CatalogRefresh time.Duration `json:"catalog_refresh" mapstructure:"catalog_refresh" yaml:"catalog_refresh" envconfig:"CATALOG_REFRESH" default:"30s"`

	// LogDecisions logs every decision at debug level.
	LogDecisions bool `json:"log_decisions" mapstructure:"log_decisions" yaml:"log_decisions" envconfig:"LOG_DECISIONS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SeedDefaults:   true,
		SweepInterval:  time.Hour,
		CacheTTL:       30 * time.Second,
		CatalogRefresh: 30 * time.Second,
	}
}

// ConfigFromEnv reads the configuration from AEGIS_* environment variables,
// falling back to the defaults for anything unset.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("aegis: read environment: %w", err)
	}
	return cfg, nil
}
