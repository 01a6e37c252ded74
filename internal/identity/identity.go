// Package identity assigns stable UIDs to notes. New assignments are queued
// in memory and written back to note metadata in one flush.
package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/folio/internal/models"
)

// MetadataWriter persists frontmatter fields on a note.
type MetadataWriter interface {
	UpdateMetadata(ctx context.Context, path string, fields map[string]any) error
}

// UIDReader reports the UID currently persisted for a note path. A
// MetadataWriter that also implements it lets notes parsed before another
// process assigned their UID resolve to that UID.
type UIDReader interface {
	PersistedUID(path string) string
}

// Store resolves UIDs and holds assignments that are not yet written.
// Safe for concurrent use; link rendering resolves targets in parallel.
type Store struct {
	writer MetadataWriter
	reader UIDReader
	key    string
	logger *slog.Logger
	newUID func() string

	mu      sync.Mutex
	pending map[string]string // note path → uid
	// written keeps flushed assignments so a note parsed before the flush
	// still resolves to the UID now on disk.
	written map[string]string
}

// New returns a Store that writes UIDs under the frontmatter field key.
func New(writer MetadataWriter, key string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	reader, _ := writer.(UIDReader)
	return &Store{
		writer:  writer,
		reader:  reader,
		key:     key,
		logger:  logger,
		newUID:  NewUID,
		pending: make(map[string]string),
		written: make(map[string]string),
	}
}

// NewUID returns a random identifier: a v4 UUID in unpadded URL-safe base64.
func NewUID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// Resolve returns the note's UID. A note without a persisted UID gets one
// only if it belongs to at least one profile; otherwise "" is returned.
// Repeated calls for the same unflushed note return the same value.
func (s *Store) Resolve(n *models.Note) string {
	if n == nil {
		return ""
	}
	if n.UID != "" {
		return n.UID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if uid, ok := s.pending[n.Path]; ok {
		return uid
	}
	if uid, ok := s.written[n.Path]; ok {
		return uid
	}
	if n.Contexts.Empty() {
		return ""
	}
	if s.reader != nil {
		if uid := s.reader.PersistedUID(n.Path); uid != "" {
			s.written[n.Path] = uid
			return uid
		}
	}
	uid := s.newUID()
	s.pending[n.Path] = uid
	s.logger.Debug("identity: queued uid", slog.String("path", n.Path), slog.String("uid", uid))
	return uid
}

// Pending returns a copy of the unflushed assignments.
func (s *Store) Pending() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// Flush writes queued UIDs to note metadata. Written entries move from the
// queue to the flushed set; failed ones stay queued so a retry reuses the
// same UID.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.pending))
	for p := range s.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		uid := s.pending[p]
		if err := s.writer.UpdateMetadata(ctx, p, map[string]any{s.key: uid}); err != nil {
			return fmt.Errorf("identity: write uid for %s: %w", p, err)
		}
		s.written[p] = uid
		delete(s.pending, p)
	}
	if len(paths) > 0 {
		s.logger.Info("identity: flushed uids", slog.Int("count", len(paths)))
	}
	return nil
}
