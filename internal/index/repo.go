package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/folio/internal/apperr"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path     string
	Checksum string
	UID      string
	Contexts []string
	ModTime  time.Time
}

// UpsertNote inserts or replaces a note and its raw link targets within a transaction.
func (db *DB) UpsertNote(n NoteRow, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	contexts := n.Contexts
	if contexts == nil {
		contexts = []string{}
	}
	contextsJSON, _ := json.Marshal(contexts)

	_, err = tx.Exec(`
		INSERT INTO notes (path, checksum, uid, contexts, mtime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum = excluded.checksum,
			uid      = excluded.uid,
			contexts = excluded.contexts,
			mtime    = excluded.mtime
	`, n.Path, n.Checksum, n.UID, string(contextsJSON), n.ModTime.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// Replace links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, n.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(n.Path, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	db.invalidate()
	return nil
}

// DeleteNote removes a note and its outgoing links.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM notes WHERE path = ?`, path)

	if err := tx.Commit(); err != nil {
		return err
	}
	db.invalidate()
	return nil
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

const noteColumns = `path, checksum, uid, contexts, mtime`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*NoteRow, error) {
	var (
		n        NoteRow
		contexts string
	)
	if err := s.Scan(&n.Path, &n.Checksum, &n.UID, &contexts, &n.ModTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contexts), &n.Contexts); err != nil {
		return nil, fmt.Errorf("index: decode contexts of %s: %w", n.Path, err)
	}
	return &n, nil
}

// GetNote returns the indexed row for path.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, path)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns every indexed note ordered by path.
func (db *DB) ListNotes() ([]NoteRow, error) {
	rows, err := db.conn.Query(`SELECT ` + noteColumns + ` FROM notes ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// AllPaths returns every indexed note path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// rawLinks returns source → raw link targets as written.
func (db *DB) rawLinks() (map[string][]string, error) {
	rows, err := db.conn.Query(`SELECT source, target FROM links ORDER BY source, rowid`)
	if err != nil {
		return nil, fmt.Errorf("index: links: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var s, t string
		if err := rows.Scan(&s, &t); err != nil {
			return nil, err
		}
		out[s] = append(out[s], t)
	}
	return out, rows.Err()
}
