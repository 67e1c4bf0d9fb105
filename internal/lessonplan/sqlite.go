package lessonplan

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	*sqlStore
	dbPath string
}

// NewSQLiteStore creates a new SQLite lesson plan store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		sqlStore: &sqlStore{db: db, dialect: sqliteDialect},
		dbPath:   dbPath,
	}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lesson_plans (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		level TEXT NOT NULL,
		grade INTEGER NOT NULL,
		subject_areas TEXT NOT NULL DEFAULT '[]',
		eje_articulador TEXT NOT NULL DEFAULT '',
		contents TEXT NOT NULL DEFAULT '[]',
		descriptors TEXT NOT NULL DEFAULT '[]',
		duration TEXT NOT NULL DEFAULT '',
		objectives TEXT NOT NULL DEFAULT '',
		activities TEXT NOT NULL DEFAULT '',
		materials TEXT NOT NULL DEFAULT '',
		evaluation TEXT NOT NULL DEFAULT '',
		inclusive_adaptations TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		generated_content TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_lesson_plans_level_grade ON lesson_plans(level, grade);
	CREATE INDEX IF NOT EXISTS idx_lesson_plans_created_at ON lesson_plans(created_at);
	`

	_, err := db.Exec(schema)
	return err
}
