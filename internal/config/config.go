// Package config loads the service configuration with viper from an optional
// config.yaml, CATALOG_* environment variables and built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. CATALOG_SERVER_PORT.
const EnvPrefix = "CATALOG"

// Manager holds the loaded configuration
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from an explicit file. An empty
// path searches the default locations.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/curriculum-catalog/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Catalog defaults
	v.SetDefault("catalog.source_url", "https://gist.githubusercontent.com/CePCCo-Asesores/1b5c2b801574343fcfe845c24a4c719c/raw/0f22147487eee721d9c065b5f643c3e9712f9c09/CON_PLAN.JSON")
	v.SetDefault("catalog.timeout", "30s")
	v.SetDefault("catalog.rate_limit", 1)
	v.SetDefault("catalog.max_payload_bytes", 32<<20)
	v.SetDefault("catalog.grade_key_strategy", catalog.PolicyOffset)
	v.SetDefault("catalog.refresh_interval", "0s")
	v.SetDefault("catalog.query_cache_size", 512)
	v.SetDefault("catalog.load_on_start", true)
	v.SetDefault("catalog.breaker.max_requests", 1)
	v.SetDefault("catalog.breaker.interval", "60s")
	v.SetDefault("catalog.breaker.timeout", "30s")
	v.SetDefault("catalog.breaker.min_requests", 3)
	v.SetDefault("catalog.breaker.failure_ratio", 0.6)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.default_ttl", "168h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "./data/lesson-plans.db")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.max_open_conns", 25)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "5m")
	v.SetDefault("storage.migrate_on_start", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	// MCP defaults
	v.SetDefault("mcp.server_name", "curriculum-catalog")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetCatalogConfig returns the upstream source and catalog store configuration
func (m *Manager) GetCatalogConfig() *domain.CatalogConfig {
	return &m.config.Catalog
}

// GetStorageConfig returns lesson plan storage configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.config.Storage
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Catalog.SourceURL == "" {
		return fmt.Errorf("catalog source URL is required")
	}
	if u, err := url.Parse(config.Catalog.SourceURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid catalog source URL: %q", config.Catalog.SourceURL)
	}
	if !catalog.ValidPolicy(config.Catalog.GradeKeyStrategy) {
		return fmt.Errorf("unknown grade key strategy: %q", config.Catalog.GradeKeyStrategy)
	}
	if _, err := catalog.ParseAreaHints(config.Catalog.AreaHints); err != nil {
		return fmt.Errorf("invalid catalog config: %w", err)
	}
	if config.Catalog.RateLimit < 0 {
		return fmt.Errorf("catalog rate limit must not be negative: %d", config.Catalog.RateLimit)
	}
	if config.Catalog.RefreshInterval < 0 {
		return fmt.Errorf("catalog refresh interval must not be negative: %s", config.Catalog.RefreshInterval)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when the payload cache is enabled")
	}

	switch strings.ToLower(config.Storage.Driver) {
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("storage sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if config.Storage.PostgresURL == "" {
			return fmt.Errorf("storage postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", config.Storage.Driver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	if config.Logging.Output == "file" && config.Logging.Filename == "" {
		return fmt.Errorf("logging filename is required when output is file")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
