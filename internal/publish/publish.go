// Package publish runs the staging pipeline for a profile: it selects notes,
// builds versioned snapshots, commits them to the profile workspace and
// hands the staged artifacts to an uploader.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/identity"
	"github.com/starford/folio/internal/links"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/render"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/upload"
)

// Mode selects which notes a run publishes.
type Mode string

// Publish modes, from narrowest to widest.
const (
	ModeIndividual Mode = "individual"
	ModeConnected  Mode = "connected"
	ModeSinceLast  Mode = "since-last"
	ModeAll        Mode = "all"
)

// Level returns the invalidation level of the mode.
func (m Mode) Level() profile.Level {
	switch m {
	case ModeIndividual:
		return profile.LevelIndividual
	case ModeConnected:
		return profile.LevelConnected
	case ModeSinceLast:
		return profile.LevelSinceLast
	case ModeAll:
		return profile.LevelAll
	}
	return 0
}

// ParseMode accepts a mode name or one of its command aliases.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "individual", "note":
		return ModeIndividual, nil
	case "connected":
		return ModeConnected, nil
	case "since-last", "updates":
		return ModeSinceLast, nil
	case "all":
		return ModeAll, nil
	}
	return "", fmt.Errorf("unknown publish mode %q", s)
}

// State is a step of the run state machine.
type State string

// Run states.
const (
	StateIdle         State = "idle"
	StateSelecting    State = "selecting"
	StateQueuing      State = "queuing"
	StateCommitting   State = "committing"
	StateUploading    State = "uploading"
	StateCleanup      State = "cleanup"
	StateErrorArchive State = "error-archive"
	StateUploadFailed State = "upload-failed"
)

// Event reports a state transition.
type Event struct {
	RunID     string    `json:"run_id"`
	ProfileID string    `json:"profile_id"`
	Mode      Mode      `json:"mode"`
	State     State     `json:"state"`
	Notes     int       `json:"notes,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives run events. It is called synchronously from the run.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Vault is the note store the pipeline reads.
type Vault interface {
	Members(ctx context.Context, profileID string) ([]*models.Note, error)
	Note(ctx context.Context, path string) (*models.Note, error)
}

// Profiles looks up profiles and records full-publish watermarks.
type Profiles interface {
	Get(id string) (profile.Profile, error)
	SetWatermark(id string, at time.Time) error
}

// Request starts a run. Path is required for the individual and connected
// modes.
type Request struct {
	ProfileID string `json:"profile_id"`
	Mode      Mode   `json:"mode"`
	Path      string `json:"path,omitempty"`
}

// Report summarises a run.
type Report struct {
	RunID        string   `json:"run_id"`
	ProfileID    string   `json:"profile_id"`
	Mode         Mode     `json:"mode"`
	State        State    `json:"state"`
	Selected     []string `json:"selected"`
	Staged       int      `json:"staged"`
	ArchiveDir   string   `json:"archive_dir,omitempty"`
	Invalidated  bool     `json:"invalidated"`
	UploadOutput string   `json:"upload_output,omitempty"`
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithObserver sets the run event observer.
func WithObserver(o Observer) Option {
	return func(p *Publisher) { p.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithRenderer sets the renderer used for plaintext conversion.
func WithRenderer(r *render.Renderer) Option {
	return func(p *Publisher) { p.renderer = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// Publisher drives publish runs. Runs are serialised per profile.
type Publisher struct {
	vault    Vault
	profiles Profiles
	ids      *identity.Store
	links    *links.Resolver
	state    *storage.FS
	uploads  upload.Factory
	renderer *render.Renderer
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

// New returns a Publisher that keeps profile workspaces in state.
func New(vault Vault, profiles Profiles, ids *identity.Store, resolver *links.Resolver, state *storage.FS, uploads upload.Factory, opts ...Option) *Publisher {
	p := &Publisher{
		vault:    vault,
		profiles: profiles,
		ids:      ids,
		links:    resolver,
		state:    state,
		uploads:  uploads,
		running:  make(map[string]bool),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.renderer == nil {
		p.renderer = render.New(0)
	}
	if p.observer == nil {
		p.observer = ObserverFunc(func(Event) {})
	}
	return p
}

// Workspace returns the workspace of a profile.
func (p *Publisher) Workspace(profileID string) *profile.Workspace {
	return profile.NewWorkspace(p.state, profileID, p.logger)
}

// acquire marks a run for profileID as active.
func (p *Publisher) acquire(profileID string) (release func(), err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[profileID] {
		return nil, fmt.Errorf("%w: %s", apperr.ErrRunInProgress, profileID)
	}
	p.running[profileID] = true
	return func() {
		p.mu.Lock()
		delete(p.running, profileID)
		p.mu.Unlock()
	}, nil
}

// loadProfile fetches and validates a profile.
func (p *Publisher) loadProfile(id string) (profile.Profile, error) {
	prof, err := p.profiles.Get(id)
	if err != nil {
		return profile.Profile{}, err
	}
	if err := prof.Validate(); err != nil {
		return profile.Profile{}, fmt.Errorf("%w: %v", apperr.ErrProfileMisconfigured, err)
	}
	return prof, nil
}
