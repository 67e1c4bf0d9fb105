// Package database manages the PostgreSQL side of lesson plan storage: a
// pgx pool used for health reporting and the embedded schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/domain"
)

// Config holds database configuration
type Config struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

// ConfigFromStorage derives pool settings from the storage configuration.
func ConfigFromStorage(storage domain.StorageConfig) Config {
	cfg := Config{
		URL:         storage.PostgresURL,
		MaxConns:    int32(storage.MaxOpenConns),
		MinConns:    int32(storage.MaxIdleConns),
		MaxConnLife: storage.ConnMaxLifetime,
		MaxConnIdle: 30 * time.Minute,
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	return cfg
}

// DB wraps the pgxpool.Pool with additional functionality
type DB struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewConnection creates a new database connection pool
func NewConnection(ctx context.Context, config Config, logger *logrus.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = config.MinConns
	if config.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLife
	}
	if config.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":      poolConfig.ConnConfig.Host,
		"port":      poolConfig.ConnConfig.Port,
		"database":  poolConfig.ConnConfig.Database,
		"max_conns": poolConfig.MaxConns,
		"min_conns": poolConfig.MinConns,
	}).Info("Database connection pool established")

	return &DB{
		Pool: pool,
		log:  logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("Database connection pool closed")
	}
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// PoolStats is the JSON view of the pool statistics reported by /health.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// Stats returns connection pool statistics
func (db *DB) Stats() PoolStats {
	stat := db.Pool.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}
