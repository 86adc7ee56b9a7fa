package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mutecomm/go-sqlcipher/v4"
)

type DB struct {
	*sql.DB
}

// Querier is the subset of *sql.DB and *sql.Tx the repositories need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens an encrypted SQLite database with the given password.
// dbPath is the full path to the database file.
func Open(dbPath, password string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Writers take the lock at BEGIN so concurrent payments and reminder
	// claims serialize instead of failing on upgrade.
	params := url.Values{}
	params.Set("_pragma_key", password)
	params.Set("_foreign_keys", "1")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")
	connStr := fmt.Sprintf("file:%s?%s", dbPath, params.Encode())

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
