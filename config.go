package aegis

import "time"

// Config holds configuration for the Aegis engine.
type Config struct {
	// CacheTTL is the time-to-live for cached check results. Integrations
	// that build a cache for the engine read it. Zero means no caching.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// CatalogRefresh bounds how long a loaded catalog is reused by checks.
	// Catalog changes made through the engine refresh it at once, so this
	// only matters when another process edits the same store. Zero reloads
	// the catalog on every uncached check.
	CatalogRefresh time.Duration `json:"catalog_refresh,omitempty"`

	// LogDecisions logs every decision at debug level.
	LogDecisions bool `json:"log_decisions,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       30 * time.Second,
		CatalogRefresh: 30 * time.Second,
	}
}
