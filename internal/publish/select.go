package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/links"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
)

// selectNotes returns the notes a run publishes, ordered by path.
func (p *Publisher) selectNotes(ctx context.Context, r *run) ([]*models.Note, error) {
	p.transition(r, StateSelecting, 0, nil)

	var (
		notes []*models.Note
		err   error
	)
	switch r.req.Mode {
	case ModeIndividual:
		notes, err = p.subject(ctx, r.prof, r.req.Path)
	case ModeConnected:
		notes, err = p.connected(ctx, r.prof, r.req.Path)
	case ModeSinceLast:
		notes, err = p.Publishable(ctx, r.prof)
		notes = modifiedAfter(notes, r.prof.LastFullPublish)
	case ModeAll:
		notes, err = p.Publishable(ctx, r.prof)
	}
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		r.report.Selected = append(r.report.Selected, n.Path)
	}
	return notes, nil
}

// Publishable returns every note of the vault visible in prof.
func (p *Publisher) Publishable(ctx context.Context, prof profile.Profile) ([]*models.Note, error) {
	all, err := p.vault.Members(ctx, prof.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Note, 0, len(all))
	for _, n := range all {
		if links.Visible(n, prof) {
			out = append(out, n)
		}
	}
	return out, nil
}

// modifiedAfter keeps notes changed after the watermark. A zero watermark
// keeps everything.
func modifiedAfter(notes []*models.Note, watermark time.Time) []*models.Note {
	if watermark.IsZero() {
		return notes
	}
	out := notes[:0]
	for _, n := range notes {
		if n.ModTime.After(watermark) {
			out = append(out, n)
		}
	}
	return out
}

func (p *Publisher) subject(ctx context.Context, prof profile.Profile, path string) ([]*models.Note, error) {
	n, err := p.vault.Note(ctx, path)
	if err != nil {
		return nil, err
	}
	if !links.Visible(n, prof) {
		return nil, fmt.Errorf("%w: %s is not published to %s", apperr.ErrNotPublishable, path, prof.ID)
	}
	return []*models.Note{n}, nil
}

// connected selects the note and every visible note it is connected to.
func (p *Publisher) connected(ctx context.Context, prof profile.Profile, path string) ([]*models.Note, error) {
	notes, err := p.subject(ctx, prof, path)
	if err != nil {
		return nil, err
	}
	conns, err := p.links.Connections(ctx, notes[0], prof)
	if err != nil {
		return nil, err
	}
	for _, c := range conns {
		n, err := p.vault.Note(ctx, c.Path)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}
