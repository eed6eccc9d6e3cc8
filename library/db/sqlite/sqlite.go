// Package sqlite opens file-backed or in-memory SQLite databases.
package sqlite

import (
	"context"
	"database/sql"

	errors "github.com/Laisky/errors/v2"
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver registered by mattn/go-sqlite3.
const DriverName = "sqlite3"

// DB sqlite db
type DB struct {
	DB *sql.DB
}

// NewDB opens the sqlite database at path. Use ":memory:" or a
// `file::memory:?cache=shared` URI for ephemeral databases.
func NewDB(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}

	// sqlite serializes writers; a single connection also keeps
	// shared in-memory databases alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}
