package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string        `mapstructure:"environment"`
	Server      ServerConfig  `mapstructure:"server"`
	Catalog     CatalogConfig `mapstructure:"catalog"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Storage     StorageConfig `mapstructure:"storage"`
	Logging     LoggingConfig `mapstructure:"logging"`
	MCP         MCPConfig     `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// CatalogConfig configures the upstream curriculum source and the catalog store
type CatalogConfig struct {
	SourceURL        string        `mapstructure:"source_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        int           `mapstructure:"rate_limit"` // requests per second
	MaxPayloadBytes  int64         `mapstructure:"max_payload_bytes"`
	GradeKeyStrategy string        `mapstructure:"grade_key_strategy"` // "offset", "identity", "auto"
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`   // 0 disables background refresh
	QueryCacheSize   int           `mapstructure:"query_cache_size"`
	LoadOnStart      bool          `mapstructure:"load_on_start"`
	Breaker          BreakerConfig `mapstructure:"breaker"`

	// AreaHints maps a level name to subject areas only found under that
	// level. Identity keyed payloads use them to place grade keys 1-3.
	AreaHints map[string][]string `mapstructure:"area_hints"`
}

// BreakerConfig represents circuit breaker settings for the upstream fetcher
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents the Redis raw-payload cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// StorageConfig represents lesson plan storage configuration
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"` // "stdout", "stderr", "file"
	Filename string `mapstructure:"filename"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
