package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/contentindex"
	"github.com/starford/folio/internal/links"
	"github.com/starford/folio/internal/models"
)

// RebuildContentIndex re-queues every note visible in the profile into its
// content index. Entries of notes that left the profile are kept.
func (p *Publisher) RebuildContentIndex(ctx context.Context, profileID string) (int, error) {
	prof, err := p.loadProfile(profileID)
	if err != nil {
		return 0, err
	}
	release, err := p.acquire(prof.ID)
	if err != nil {
		return 0, err
	}
	defer release()

	notes, err := p.Publishable(ctx, prof)
	if err != nil {
		return 0, err
	}
	ws := p.Workspace(prof.ID)
	if err := ws.Init(); err != nil {
		return 0, err
	}
	idx := contentindex.New(ws, p.renderer, p.logger)
	for _, n := range notes {
		if uid := p.ids.Resolve(n); uid != "" {
			idx.QueueEntry(uid, n.Title, []byte(n.Body))
		}
	}
	if err := p.ids.Flush(ctx); err != nil {
		return 0, err
	}
	count := idx.Queued()
	if err := idx.ApplyQueued(); err != nil {
		return 0, err
	}
	p.logger.Info("content index rebuilt", slog.String("profile", prof.ID), slog.Int("entries", count))
	return count, nil
}

// NoteURL returns the public address of the note at path in the profile,
// assigning the note a UID first if needed.
func (p *Publisher) NoteURL(ctx context.Context, profileID, path string) (string, error) {
	prof, err := p.loadProfile(profileID)
	if err != nil {
		return "", err
	}
	if prof.BaseURL == "" {
		return "", fmt.Errorf("%w: profile %s has no base url", apperr.ErrProfileMisconfigured, prof.ID)
	}
	notes, err := p.subject(ctx, prof, path)
	if err != nil {
		return "", err
	}
	uid := p.ids.Resolve(notes[0])
	if err := p.ids.Flush(ctx); err != nil {
		return "", err
	}
	return prof.NoteURL(uid), nil
}

// Connections lists the connections of the note at path within a profile.
func (p *Publisher) Connections(ctx context.Context, profileID, path string) ([]models.Connection, error) {
	prof, err := p.loadProfile(profileID)
	if err != nil {
		return nil, err
	}
	n, err := p.vault.Note(ctx, path)
	if err != nil {
		return nil, err
	}
	if !links.Visible(n, prof) {
		return nil, fmt.Errorf("%w: %s is not published to %s", apperr.ErrNotPublishable, path, prof.ID)
	}
	return p.links.Connections(ctx, n, prof)
}

// Search queries the profile's persisted content index.
func (p *Publisher) Search(ctx context.Context, profileID, query string, limit int) ([]contentindex.Hit, error) {
	if _, err := p.profiles.Get(profileID); err != nil {
		return nil, err
	}
	return contentindex.Search(ctx, p.Workspace(profileID), query, limit)
}
