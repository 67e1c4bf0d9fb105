package lessonplan

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore creates a new PostgreSQL lesson plan store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{sqlStore: &sqlStore{db: db, dialect: postgresDialect}}, nil
}

// PoolConfig sizes the database/sql pool behind a PostgresStore.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresStoreFromURL creates a new PostgreSQL lesson plan store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string, pool PoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 25
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}
