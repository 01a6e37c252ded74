// Package links rewrites note references for a profile and computes the
// connection graph of a note within the profile's visible set.
package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/slug"
)

// NoteSource is the part of the vault the resolver reads.
type NoteSource interface {
	Note(ctx context.Context, path string) (*models.Note, error)
	ResolveReference(ctx context.Context, target, from string) (string, bool, error)
	ResolvedLinks(ctx context.Context) (map[string][]string, error)
}

// Identities hands out note UIDs.
type Identities interface {
	Resolve(n *models.Note) string
}

// Resolver renders notes with profile-aware links.
type Resolver struct {
	notes    NoteSource
	ids      Identities
	renderer *render.Renderer
	logger   *slog.Logger
}

func New(notes NoteSource, ids Identities, renderer *render.Renderer, logger *slog.Logger) *Resolver {
	if renderer == nil {
		renderer = render.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{notes: notes, ids: ids, renderer: renderer, logger: logger}
}

// Visible reports whether n is published to p.
func Visible(n *models.Note, p profile.Profile) bool {
	return n != nil && n.Contexts.Has(p.ID) && !p.Excludes(n.Path)
}

// Render converts the note body to HTML. References to notes visible in p
// become UID links; anything else becomes a placeholder.
func (r *Resolver) Render(ctx context.Context, n *models.Note, p profile.Profile) (string, error) {
	return r.renderer.HTML(ctx, []byte(n.Body), func(ctx context.Context, l render.Link) (string, error) {
		if !l.HasNoteTarget() {
			return "", nil
		}
		target, ok, err := r.notes.ResolveReference(ctx, l.Target, n.Path)
		if err != nil || !ok {
			return "", err
		}
		t, err := r.load(ctx, target)
		if err != nil || !Visible(t, p) {
			return "", err
		}
		return r.ids.Resolve(t), nil
	})
}

// load returns nil without error when the note vanished since indexing.
func (r *Resolver) load(ctx context.Context, path string) (*models.Note, error) {
	n, err := r.notes.Note(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return n, err
}

// Graph is a snapshot of the resolved reference relation in both directions.
type Graph struct {
	out map[string][]string
	in  map[string][]string
}

// Graph loads the current reference relation.
func (r *Resolver) Graph(ctx context.Context) (*Graph, error) {
	rel, err := r.notes.ResolvedLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("links: load relation: %w", err)
	}
	return NewGraph(rel), nil
}

// NewGraph indexes a source → targets relation.
func NewGraph(rel map[string][]string) *Graph {
	g := &Graph{out: rel, in: make(map[string][]string)}
	for src, targets := range rel {
		for _, t := range targets {
			g.in[t] = append(g.in[t], src)
		}
	}
	return g
}

// Connections lists the notes visible in p that n links to or is linked
// from. A note on both sides appears once with both flags set.
func (r *Resolver) Connections(ctx context.Context, n *models.Note, p profile.Profile) ([]models.Connection, error) {
	g, err := r.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return r.ConnectionsIn(ctx, g, n, p)
}

// ConnectionsIn is Connections against a preloaded graph.
func (r *Resolver) ConnectionsIn(ctx context.Context, g *Graph, n *models.Note, p profile.Profile) ([]models.Connection, error) {
	byPath := make(map[string]*models.Connection)
	edge := func(path string) *models.Connection {
		c, ok := byPath[path]
		if !ok {
			c = &models.Connection{Path: path}
			byPath[path] = c
		}
		return c
	}
	for _, t := range g.out[n.Path] {
		if t != n.Path {
			edge(t).IsOutgoingLink = true
		}
	}
	for _, s := range g.in[n.Path] {
		if s != n.Path {
			edge(s).IsBacklink = true
		}
	}

	out := make([]models.Connection, 0, len(byPath))
	for path, c := range byPath {
		other, err := r.load(ctx, path)
		if err != nil {
			return nil, err
		}
		if !Visible(other, p) {
			continue
		}
		c.UID = r.ids.Resolve(other)
		c.Slug = slug.FromPath(other.Path)
		c.Title = other.Title
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Backlinks returns the connections of n that link to it.
func (r *Resolver) Backlinks(ctx context.Context, n *models.Note, p profile.Profile) ([]models.Connection, error) {
	all, err := r.Connections(ctx, n, p)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.IsBacklink {
			out = append(out, c)
		}
	}
	return out, nil
}
