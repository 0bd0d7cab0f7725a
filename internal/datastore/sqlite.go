package datastore

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements Interface for a per-study SQLite database.
type SQLiteStore struct {
	DataStore
	Path     string // path to the study.db file
	ReadOnly bool   // open an independent read-only connection (status reporter)
	Debug    bool
}

// New returns a read-write store for the given study database path.
func New(path string, debug bool) *SQLiteStore {
	return &SQLiteStore{Path: path, Debug: debug}
}

// NewReadOnly returns a store that opens the database read-only. The
// orchestrator owns the read-write connection exclusively; concurrent readers
// rely on SQLite's WAL mode.
func NewReadOnly(path string) *SQLiteStore {
	return &SQLiteStore{Path: path, ReadOnly: true}
}

// Open sets up the SQLite database connection and runs migrations.
func (store *SQLiteStore) Open() error {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", store.Path)
	if store.ReadOnly {
		dsn += "&mode=ro"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database %s: %w", store.Path, err)
	}

	store.DB = db

	if store.ReadOnly {
		return nil
	}
	return performAutoMigration(db, store.Debug, store.Path)
}

// Close closes the underlying database connection.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying database handle: %w", err)
	}
	return sqlDB.Close()
}
