package api

import (
	"context"

	"github.com/starford/folio/internal/contentindex"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/publish"
	"github.com/starford/folio/internal/vault"
)

// Service bundles the components the API serves.
type Service struct {
	profiles  *profile.Store
	publisher *publish.Publisher
	vault     *vault.Service
}

// NewService creates a new API service.
func NewService(profiles *profile.Store, publisher *publish.Publisher, v *vault.Service) *Service {
	return &Service{profiles: profiles, publisher: publisher, vault: v}
}

func (s *Service) ListProfiles() []profile.Profile { return s.profiles.List() }

func (s *Service) GetProfile(id string) (profile.Profile, error) { return s.profiles.Get(id) }

// PutProfile stores p under id. Credentials are never accepted over the API,
// so existing ones are carried over.
func (s *Service) PutProfile(id string, p profile.Profile) (profile.Profile, error) {
	p.ID = id
	if prev, err := s.profiles.Get(id); err == nil {
		p.AWS.AccessKey, p.AWS.SecretKey = prev.AWS.AccessKey, prev.AWS.SecretKey
		if p.LastFullPublish.IsZero() {
			p.LastFullPublish = prev.LastFullPublish
		}
	}
	if err := s.profiles.Put(p); err != nil {
		return profile.Profile{}, err
	}
	return s.profiles.Get(id)
}

func (s *Service) DeleteProfile(id string) error { return s.profiles.Delete(id) }

func (s *Service) Publish(ctx context.Context, req publish.Request) (*publish.Report, error) {
	return s.publisher.Publish(ctx, req)
}

func (s *Service) Connections(ctx context.Context, profileID, path string) ([]models.Connection, error) {
	return s.publisher.Connections(ctx, profileID, path)
}

func (s *Service) Search(ctx context.Context, profileID, q string, limit int) ([]contentindex.Hit, error) {
	return s.publisher.Search(ctx, profileID, q, limit)
}

func (s *Service) NoteURL(ctx context.Context, profileID, path string) (string, error) {
	return s.publisher.NoteURL(ctx, profileID, path)
}

func (s *Service) RebuildContentIndex(ctx context.Context, profileID string) (int, error) {
	return s.publisher.RebuildContentIndex(ctx, profileID)
}

func (s *Service) Corrections(ctx context.Context) ([]models.Correction, error) {
	return s.vault.Corrections(ctx)
}

func (s *Service) FixContexts(ctx context.Context, apply bool) ([]models.Correction, error) {
	return s.vault.FixContexts(ctx, apply)
}

func (s *Service) ToggleContext(ctx context.Context, path, profileID string) (bool, error) {
	if _, err := s.profiles.Get(profileID); err != nil {
		return false, err
	}
	return s.vault.ToggleContext(ctx, path, profileID)
}

func (s *Service) BulkContexts(ctx context.Context, req vault.BulkRequest) ([]vault.BulkChange, error) {
	return s.vault.BulkContexts(ctx, req)
}
