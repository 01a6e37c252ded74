package vault

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
)

// contextsValue is the frontmatter value written for a membership set.
// An empty set removes the field.
func contextsValue(m models.Membership) any {
	if m.Empty() {
		return nil
	}
	return m.IDs()
}

// ToggleContext adds profileID to the note's publish contexts, or removes it
// if present. It reports whether the note is a member afterwards.
func (s *Service) ToggleContext(ctx context.Context, path, profileID string) (bool, error) {
	if strings.TrimSpace(profileID) == "" {
		return false, fmt.Errorf("vault: toggle: empty profile id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.Note(ctx, path)
	if err != nil {
		return false, err
	}
	ids := n.Contexts.IDs()
	member := n.Contexts.Has(profileID)
	if member {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == profileID })
	} else {
		ids = append(ids, profileID)
	}
	if err := s.updateLocked(path, map[string]any{s.keys.Contexts: contextsValue(models.NewMembership(ids...))}); err != nil {
		return false, err
	}
	s.logger.Info("publish context toggled", slog.String("path", path), slog.String("profile", profileID), slog.Bool("member", !member))
	return !member, nil
}

// FixContexts rewrites every note whose publish contexts field needed
// correction into the canonical list form. With apply false it only reports.
// Failed rewrites are logged and left out of the result.
func (s *Service) FixContexts(ctx context.Context, apply bool) ([]models.Correction, error) {
	notes, corrections, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	if !apply || len(corrections) == 0 {
		return corrections, nil
	}

	byPath := make(map[string]*models.Note, len(notes))
	for _, n := range notes {
		byPath[n.Path] = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fixed := make([]models.Correction, 0, len(corrections))
	for _, c := range corrections {
		n := byPath[c.Path]
		if n == nil {
			continue
		}
		if err := s.updateLocked(c.Path, map[string]any{s.keys.Contexts: contextsValue(n.Contexts)}); err != nil {
			s.logger.Error("fix contexts failed", slog.String("path", c.Path), slog.String("error", err.Error()))
			continue
		}
		fixed = append(fixed, c)
	}
	s.logger.Info("publish contexts fixed", slog.Int("fixed", len(fixed)), slog.Int("failed", len(corrections)-len(fixed)))
	return fixed, nil
}

// Bulk actions.
const (
	BulkAdd    = "add"
	BulkRemove = "remove"
)

// BulkRule adds or removes contexts for every note under Directory.
type BulkRule struct {
	Directory string   `json:"directory" yaml:"directory"`
	Contexts  []string `json:"contexts" yaml:"contexts"`
	Action    string   `json:"action" yaml:"action"`
}

func (r BulkRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Directory, validation.Required),
		validation.Field(&r.Contexts, validation.Required),
		validation.Field(&r.Action, validation.Required, validation.In(BulkAdd, BulkRemove)),
	)
}

// BulkRequest describes one bulk update.
type BulkRequest struct {
	Include []BulkRule `json:"include" yaml:"include"`
	Exclude []string   `json:"exclude" yaml:"exclude"`
	Apply   bool       `json:"apply" yaml:"apply"`
}

func (r BulkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Include, validation.Required),
	)
}

// Change outcomes.
const (
	ChangeUpdate   = "update"
	ChangeNone     = "unchanged"
	ChangeExcluded = "excluded"
	ChangeFailed   = "failed"
)

// BulkChange is the planned or applied outcome for one note.
type BulkChange struct {
	Path     string   `json:"path"`
	Current  []string `json:"current"`
	Proposed []string `json:"proposed"`
	Action   string   `json:"action"`
	Include  string   `json:"include,omitempty"`
	Exclude  string   `json:"exclude,omitempty"`
}

// BulkContexts applies include rules to every note not under an excluded
// directory. Notes matching no rule are not reported.
func (s *Service) BulkContexts(ctx context.Context, req BulkRequest) ([]BulkChange, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("vault: bulk: %w", err)
	}
	notes, err := s.Notes(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []BulkChange
	for _, n := range notes {
		current := n.Contexts.IDs()
		if dir, ok := firstDir(n.Path, req.Exclude); ok {
			changes = append(changes, BulkChange{Path: n.Path, Current: current, Proposed: []string{}, Action: ChangeExcluded, Exclude: dir})
			continue
		}

		var matched []string
		proposed := models.NewMembership(current...)
		for _, rule := range req.Include {
			if !profile.UnderDir(n.Path, rule.Directory) {
				continue
			}
			matched = append(matched, fmt.Sprintf("%s (%s %s)", rule.Directory, rule.Action, strings.Join(rule.Contexts, ",")))
			for _, c := range rule.Contexts {
				if rule.Action == BulkAdd {
					proposed[c] = struct{}{}
				} else {
					delete(proposed, c)
				}
			}
		}
		if len(matched) == 0 {
			continue
		}

		change := BulkChange{Path: n.Path, Current: current, Proposed: proposed.IDs(), Action: ChangeNone, Include: strings.Join(matched, ", ")}
		if !slices.Equal(change.Current, change.Proposed) {
			change.Action = ChangeUpdate
			if req.Apply {
				if err := s.updateLocked(n.Path, map[string]any{s.keys.Contexts: contextsValue(proposed)}); err != nil {
					s.logger.Error("bulk update failed", slog.String("path", n.Path), slog.String("error", err.Error()))
					change.Action = ChangeFailed
				}
			}
		}
		changes = append(changes, change)
	}

	counts := map[string]int{}
	for _, c := range changes {
		counts[c.Action]++
	}
	s.logger.Info("bulk publish contexts",
		slog.Bool("applied", req.Apply),
		slog.Int("update", counts[ChangeUpdate]),
		slog.Int("unchanged", counts[ChangeNone]),
		slog.Int("excluded", counts[ChangeExcluded]),
		slog.Int("failed", counts[ChangeFailed]),
	)
	return changes, nil
}

func firstDir(notePath string, dirs []string) (string, bool) {
	for _, d := range dirs {
		if profile.UnderDir(notePath, d) {
			return d, true
		}
	}
	return "", false
}

// WriteBulkCSV writes changes as a CSV preview.
func WriteBulkCSV(w io.Writer, changes []BulkChange) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"File Path", "Current Contexts", "Proposed Contexts", "Action", "Include Pattern", "Exclude Pattern"}); err != nil {
		return err
	}
	for _, c := range changes {
		rec := []string{c.Path, strings.Join(c.Current, ";"), strings.Join(c.Proposed, ";"), c.Action, c.Include, c.Exclude}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
