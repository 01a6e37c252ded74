package profile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/starford/folio/internal/apperr"
	pkgconfig "github.com/starford/folio/pkg/config"
)

// File is the on-disk shape of profiles.yaml.
type File struct {
	Profiles []Profile `yaml:"profiles"`
}

// Validate checks every profile and reports all problems at once.
func (f *File) Validate() error {
	var result *multierror.Error
	seen := make(map[string]struct{}, len(f.Profiles))
	for i := range f.Profiles {
		p := &f.Profiles[i]
		if err := p.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if _, dup := seen[p.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("profile %q: duplicate id", p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	return result.ErrorOrNil()
}

// Store is the ConfigStore: profile CRUD persisted to a YAML file.
// Reads hand out copies so a running publish never sees a concurrent edit.
type Store struct {
	path string

	mu       sync.RWMutex
	profiles map[string]Profile
}

// OpenStore loads profiles from path. A missing file yields an empty store.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, profiles: make(map[string]Profile)}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}

	var f File
	if err := pkgconfig.Load(path, &f); err != nil {
		return nil, fmt.Errorf("profile: load %s: %w", path, err)
	}
	for _, p := range f.Profiles {
		s.profiles[p.ID] = p
	}
	return s, nil
}

// List returns all profiles sorted by id.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of the profile with the given id.
func (s *Store) Get(id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", apperr.ErrProfileNotFound, id)
	}
	return clone(p), nil
}

// Put creates or replaces a profile.
func (s *Store) Put(p Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrProfileMisconfigured, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.profiles[p.ID]
	s.profiles[p.ID] = clone(p)
	if err := s.saveLocked(); err != nil {
		if existed {
			s.profiles[p.ID] = prev
		} else {
			delete(s.profiles, p.ID)
		}
		return err
	}
	return nil
}

// Delete removes a profile.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrProfileNotFound, id)
	}
	delete(s.profiles, id)
	if err := s.saveLocked(); err != nil {
		s.profiles[id] = prev
		return err
	}
	return nil
}

// SetWatermark advances the last full publish timestamp of a profile.
func (s *Store) SetWatermark(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrProfileNotFound, id)
	}
	prev := p.LastFullPublish
	p.LastFullPublish = at
	s.profiles[id] = p
	if err := s.saveLocked(); err != nil {
		p.LastFullPublish = prev
		s.profiles[id] = p
		return err
	}
	return nil
}

func (s *Store) saveLocked() error {
	f := File{Profiles: make([]Profile, 0, len(s.profiles))}
	for _, p := range s.profiles {
		f.Profiles = append(f.Profiles, p)
	}
	sort.Slice(f.Profiles, func(i, j int) bool { return f.Profiles[i].ID < f.Profiles[j].ID })
	if err := pkgconfig.Save(s.path, &f); err != nil {
		return fmt.Errorf("profile: save: %w", err)
	}
	return nil
}

func clone(p Profile) Profile {
	p.ExcludedDirectories = append([]string(nil), p.ExcludedDirectories...)
	return p
}
