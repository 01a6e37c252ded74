package index

import (
	"log/slog"
	"time"

	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, keys parser.Keys, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data, m.UpdatedAt, keys); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB.
func IndexFile(db *DB, path string, data []byte, modTime time.Time, keys parser.Keys) error {
	note, _ := parser.ParseNote(path, data, modTime, keys)

	seen := make(map[string]struct{})
	var links []string
	for _, l := range render.Links([]byte(note.Body)) {
		if !l.HasNoteTarget() {
			continue
		}
		if _, ok := seen[l.Target]; ok {
			continue
		}
		seen[l.Target] = struct{}{}
		links = append(links, l.Target)
	}

	row := NoteRow{
		Path:     path,
		Checksum: storage.Checksum(data),
		UID:      note.UID,
		Contexts: note.Contexts.IDs(),
		ModTime:  modTime,
	}
	return db.UpsertNote(row, links)
}
