// Package vault is the note store consumed by the publishing pipeline: it
// reads notes from disk, resolves references through the index and edits
// note metadata.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// Service coordinates storage and index operations.
type Service struct {
	store  storage.Provider
	db     *index.DB
	keys   parser.Keys
	logger *slog.Logger

	// mu serialises read-modify-write cycles on note files.
	mu sync.Mutex
}

// NewService creates a new vault service.
func NewService(store storage.Provider, db *index.DB, keys parser.Keys, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, keys: keys, logger: logger}
}

// Keys returns the frontmatter field names in use.
func (s *Service) Keys() parser.Keys { return s.keys }

// Notes reads and parses every note in the vault, ordered by path.
func (s *Service) Notes(ctx context.Context) ([]*models.Note, error) {
	notes, _, err := s.scan(ctx)
	return notes, err
}

// Corrections lists notes whose publish contexts field needed reinterpreting.
func (s *Service) Corrections(ctx context.Context) ([]models.Correction, error) {
	_, corrections, err := s.scan(ctx)
	return corrections, err
}

func (s *Service) scan(ctx context.Context) ([]*models.Note, []models.Correction, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, nil, err
	}
	notes := make([]*models.Note, 0, len(metas))
	var corrections []models.Correction
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, nil, fmt.Errorf("vault: read %s: %w", m.Path, err)
		}
		n, corr := parser.ParseNote(m.Path, data, m.UpdatedAt, s.keys)
		notes = append(notes, n)
		if corr != nil {
			corrections = append(corrections, *corr)
		}
	}
	return notes, corrections, nil
}

// Members reads the notes whose indexed publish contexts include
// profileID, ordered by path. Only member files are read from disk; the
// caller still checks the parsed note, which reflects the file as it is now.
func (s *Service) Members(ctx context.Context, profileID string) ([]*models.Note, error) {
	rows, err := s.db.ListNotes()
	if err != nil {
		return nil, err
	}
	var notes []*models.Note
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !slices.Contains(row.Contexts, profileID) {
			continue
		}
		n, err := s.Note(ctx, row.Path)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// PersistedUID returns the UID indexed for path, or "" when the note is
// not indexed or has none.
func (s *Service) PersistedUID(path string) string {
	row, err := s.db.GetNote(path)
	if err != nil {
		return ""
	}
	return row.UID
}

// Note reads and parses a single note.
func (s *Service) Note(_ context.Context, path string) (*models.Note, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("vault: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, err
	}
	n, _ := parser.ParseNote(path, data, s.modTime(path), s.keys)
	return n, nil
}

// ResolveReference resolves a wiki-link target written in the note at from.
func (s *Service) ResolveReference(_ context.Context, target, from string) (string, bool, error) {
	return s.db.ResolveLink(target, from)
}

// ResolvedLinks returns source path → resolved target paths for the vault.
func (s *Service) ResolvedLinks(_ context.Context) (map[string][]string, error) {
	return s.db.ResolvedLinks()
}

// UpdateMetadata sets frontmatter fields on the note at path (nil deletes a
// field), writes it back and re-indexes it.
func (s *Service) UpdateMetadata(_ context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(path, fields)
}

func (s *Service) updateLocked(path string, fields map[string]any) error {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("vault: %s: %w", path, apperr.ErrNotFound)
		}
		return err
	}
	updated, err := parser.SetFields(data, fields)
	if err != nil {
		return fmt.Errorf("vault: rewrite metadata of %s: %w", path, err)
	}
	if err := s.store.Write(path, updated); err != nil {
		return err
	}
	return s.IndexFile(path, updated)
}

// IndexFile upserts the note into the index.
func (s *Service) IndexFile(path string, data []byte) error {
	return index.IndexFile(s.db, path, data, s.modTime(path), s.keys)
}

// Sync reconciles the index with the vault.
func (s *Service) Sync() error {
	return index.Sync(s.db, s.store, s.keys, s.logger)
}

func (s *Service) modTime(path string) time.Time {
	if info, err := s.store.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Now()
}
