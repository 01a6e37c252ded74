// Package index provides the SQLite-backed note index: membership, identity
// and the wiki-link graph of the vault.
package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	uid        TEXT NOT NULL DEFAULT '',
	contexts   TEXT NOT NULL DEFAULT '[]',
	mtime      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	UNIQUE(source, target)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_notes_uid ON notes(uid);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB

	// res caches the link resolver over the current path set. Writes drop it.
	mu  sync.Mutex
	res *resolver
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) invalidate() {
	db.mu.Lock()
	db.res = nil
	db.mu.Unlock()
}

// Ping checks the database connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
