package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/contentindex"
	"github.com/starford/folio/internal/hashchain"
	"github.com/starford/folio/internal/links"
	"github.com/starford/folio/internal/mapping"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/slug"
	"github.com/starford/folio/internal/upload"
)

// run holds the state of one publish invocation.
type run struct {
	id      string
	req     Request
	prof    profile.Profile
	ws      *profile.Workspace
	start   time.Time
	logger  *slog.Logger
	report  *Report
	graph   *links.Graph
	history hashchain.History
	table   *mapping.Table
	index   *contentindex.Index
	pending map[string]*models.Snapshot // profileID:uid → snapshot
}

// Publish executes one run. Configuration errors are returned before any
// staging happens. An error during queuing or committing archives the
// staging directory; an upload error leaves it in place for a retry.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Report, error) {
	if req.Mode.Level() == 0 {
		return nil, fmt.Errorf("%w: unknown mode %q", apperr.ErrProfileMisconfigured, req.Mode)
	}
	if (req.Mode == ModeIndividual || req.Mode == ModeConnected) && req.Path == "" {
		return nil, fmt.Errorf("publish: mode %s needs a note path", req.Mode)
	}
	prof, err := p.loadProfile(req.ProfileID)
	if err != nil {
		return nil, err
	}
	release, err := p.acquire(prof.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	uploader, err := p.uploads(ctx, prof)
	if err != nil {
		return nil, err
	}
	ws := p.Workspace(prof.ID)
	if err := ws.Init(); err != nil {
		return nil, err
	}

	r := &run{
		id:      uuid.NewString(),
		req:     req,
		prof:    prof,
		ws:      ws,
		start:   p.now(),
		pending: make(map[string]*models.Snapshot),
	}
	r.logger = p.logger.With(slog.String("run_id", r.id), slog.String("profile", prof.ID), slog.String("mode", string(req.Mode)))
	r.report = &Report{RunID: r.id, ProfileID: prof.ID, Mode: req.Mode, State: StateIdle}
	r.logger.Info("publish run started")

	notes, err := p.selectNotes(ctx, r)
	if err != nil {
		p.transition(r, StateIdle, 0, err)
		return r.report, err
	}

	if err := p.stageSafely(ctx, r, notes); err != nil {
		dir, archErr := ws.ArchiveStaging(err, stackOf(err))
		if archErr != nil {
			r.logger.Error("archive staging failed", slog.String("error", archErr.Error()))
			err = errors.Join(err, archErr)
		}
		r.report.ArchiveDir = dir
		p.transition(r, StateErrorArchive, 0, err)
		return r.report, err
	}

	p.transition(r, StateUploading, r.report.Staged, nil)
	res, err := uploader.Upload(ctx, prof, p.uploadRequest(r))
	r.report.UploadOutput = res.Output
	r.report.Invalidated = res.Invalidated
	if err != nil {
		p.transition(r, StateUploadFailed, 0, err)
		return r.report, err
	}

	p.transition(r, StateCleanup, 0, nil)
	if err := ws.ClearStaging(); err != nil {
		return r.report, fmt.Errorf("publish: clear staging: %w", err)
	}
	if req.Mode == ModeSinceLast || req.Mode == ModeAll {
		if err := p.profiles.SetWatermark(prof.ID, r.start); err != nil {
			return r.report, err
		}
	}
	p.transition(r, StateIdle, 0, nil)
	r.logger.Info("publish run finished",
		slog.Int("selected", len(r.report.Selected)),
		slog.Int("staged", r.report.Staged),
		slog.Bool("invalidated", r.report.Invalidated))
	return r.report, nil
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func stackOf(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return string(pe.stack)
	}
	return ""
}

// stageSafely runs queuing and committing, turning a panic into an error.
func (p *Publisher) stageSafely(ctx context.Context, r *run, notes []*models.Note) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: debug.Stack()}
		}
	}()
	if err := p.queue(ctx, r, notes); err != nil {
		return err
	}
	return p.commit(ctx, r)
}

func (p *Publisher) queue(ctx context.Context, r *run, notes []*models.Note) error {
	p.transition(r, StateQueuing, len(notes), nil)

	var err error
	if r.history, err = hashchain.Load(r.ws); err != nil {
		return err
	}
	if r.table, err = mapping.Load(r.ws); err != nil {
		return err
	}
	r.index = contentindex.New(r.ws, p.renderer, r.logger)
	if r.graph, err = p.links.Graph(ctx); err != nil {
		return err
	}

	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := p.snapshot(ctx, r, n)
		if err != nil {
			return fmt.Errorf("queue %s: %w", n.Path, err)
		}
		r.pending[snap.ProfileID+":"+snap.UID] = snap
	}
	return nil
}

func (p *Publisher) snapshot(ctx context.Context, r *run, n *models.Note) (*models.Snapshot, error) {
	uid := p.ids.Resolve(n)
	if uid == "" {
		return nil, apperr.ErrNotPublishable
	}
	hash := hashchain.Compute(uid, n.Title, n.Body)
	rendered, err := p.links.Render(ctx, n, r.prof)
	if err != nil {
		return nil, err
	}
	conns, err := p.links.ConnectionsIn(ctx, r.graph, n, r.prof)
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{
		ProfileID:    r.prof.ID,
		UID:          uid,
		Path:         n.Path,
		Slug:         slug.FromPath(n.Path),
		Title:        n.Title,
		Raw:          n.Body,
		Rendered:     rendered,
		CurrentHash:  hash,
		PriorHash:    r.history.DerivePrior(uid, hash),
		LastModified: n.ModTime,
		Backlinks:    conns,
	}, nil
}

func (p *Publisher) commit(ctx context.Context, r *run) error {
	p.transition(r, StateCommitting, len(r.pending), nil)

	keys := make([]string, 0, len(r.pending))
	for k := range r.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := r.pending[k]
		r.history.AppendIfChanged(s.UID, s.CurrentHash)
		r.table.Update(s.Slug, s.UID, s.CurrentHash)
		r.index.QueueEntry(s.UID, s.Title, []byte(s.Raw))

		artifact := models.NewStagedNote(s)
		if err := r.ws.WriteJSON(path.Join(profile.StagingDir, s.CurrentHash+".json"), artifact); err != nil {
			return fmt.Errorf("stage %s: %w", s.Path, err)
		}
		if r.prof.IsHome(s.Path) {
			if err := r.ws.WriteJSON(path.Join(profile.StagingDir, profile.HomeArtifact), artifact); err != nil {
				return fmt.Errorf("stage home note: %w", err)
			}
		}
		delete(r.pending, k)
		r.report.Staged++
	}

	if err := p.ids.Flush(ctx); err != nil {
		return err
	}
	if err := hashchain.Save(r.ws, r.history); err != nil {
		return err
	}
	if err := r.table.Save(); err != nil {
		return err
	}
	return r.index.ApplyQueued()
}

func (p *Publisher) uploadRequest(r *run) upload.Request {
	req := upload.Request{
		FS:         p.state,
		Dir:        r.ws.Rel(""),
		StagedDir:  r.ws.Rel(profile.StagingDir),
		MappingDir: r.ws.Rel(profile.MappingDir),
		Invalidate: profile.ShouldInvalidate(r.prof, r.req.Mode.Level()),
	}
	if r.prof.PublishContentIndex {
		req.ContentIndex = r.ws.Rel(profile.ContentIndexFile)
	}
	return req
}

func (p *Publisher) transition(r *run, s State, notes int, err error) {
	r.report.State = s
	ev := Event{RunID: r.id, ProfileID: r.prof.ID, Mode: r.req.Mode, State: s, Notes: notes, At: p.now()}
	if err != nil {
		ev.Error = err.Error()
		r.logger.Error("publish run failed", slog.String("state", string(s)), slog.String("error", err.Error()))
	} else {
		r.logger.Debug("publish state", slog.String("state", string(s)))
	}
	p.observer.Observe(ev)
}
