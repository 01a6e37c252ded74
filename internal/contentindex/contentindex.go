// Package contentindex maintains the per-profile search index of published
// notes: one title/plaintext entry per UID.
package contentindex

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/folio/internal/profile"
)

// Entry is the searchable form of one note.
type Entry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Converter turns note Markdown into plaintext.
type Converter interface {
	Plaintext(md []byte) (string, error)
}

// Index queues entries during a publish run and merges them into the
// persisted document in one write.
type Index struct {
	ws     *profile.Workspace
	conv   Converter
	logger *slog.Logger

	mu     sync.Mutex
	queued map[string]Entry
}

func New(ws *profile.Workspace, conv Converter, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{ws: ws, conv: conv, logger: logger, queued: make(map[string]Entry)}
}

// QueueEntry converts body to plaintext and queues it under uid. When
// conversion fails the title stands in for the content.
func (x *Index) QueueEntry(uid, title string, body []byte) {
	content, err := x.conv.Plaintext(body)
	if err != nil {
		x.logger.Warn("content index: plaintext conversion failed, using title",
			slog.String("uid", uid), slog.String("error", err.Error()))
		content = title
	}

	x.mu.Lock()
	x.queued[uid] = Entry{Title: title, Content: content}
	x.mu.Unlock()
}

// Queued returns the number of entries waiting to be applied.
func (x *Index) Queued() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.queued)
}

// ApplyQueued merges queued entries into the persisted index by UID and
// writes it once. The queue is cleared only after a successful write.
func (x *Index) ApplyQueued() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.queued) == 0 {
		return nil
	}

	entries, err := Load(x.ws)
	if err != nil {
		return err
	}
	for uid, e := range x.queued {
		entries[uid] = e
	}
	if err := x.ws.WriteJSON(profile.ContentIndexFile, entries); err != nil {
		return fmt.Errorf("content index: save: %w", err)
	}
	x.logger.Info("content index updated", slog.Int("applied", len(x.queued)), slog.Int("total", len(entries)))
	x.queued = make(map[string]Entry)
	return nil
}

// Load reads the persisted index. A corrupt document is quarantined and an
// empty index returned.
func Load(ws *profile.Workspace) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	ok, err := ws.LoadJSON(profile.ContentIndexFile, &entries)
	if err != nil {
		return nil, fmt.Errorf("content index: load: %w", err)
	}
	if !ok || entries == nil {
		return make(map[string]Entry), nil
	}
	return entries, nil
}
