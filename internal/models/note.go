// Package models defines the domain types for folio.
package models

import (
	"sort"
	"time"
)

// Note represents a parsed Markdown file in the vault.
type Note struct {
	Path        string         `json:"path"`
	Raw         []byte         `json:"-"`
	Body        string         `json:"body"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Title       string         `json:"title"`
	UID         string         `json:"uid,omitempty"`
	Contexts    Membership     `json:"contexts"`
	ModTime     time.Time      `json:"mod_time"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link represents a directed edge between two notes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Membership is the set of profile ids a note is published to.
type Membership map[string]struct{}

// NewMembership builds a set from ids, skipping blanks.
func NewMembership(ids ...string) Membership {
	m := make(Membership, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return m
}

// Has reports whether id is in the set.
func (m Membership) Has(id string) bool {
	_, ok := m[id]
	return ok
}

// Empty reports whether the note belongs to no profile.
func (m Membership) Empty() bool { return len(m) == 0 }

// IDs returns the members in sorted order.
func (m Membership) IDs() []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalYAML writes the set as a list so frontmatter stays canonical.
func (m Membership) MarshalYAML() (any, error) { return m.IDs(), nil }

// Correction records a membership value that had to be reinterpreted at load.
type Correction struct {
	Path   string `json:"path"`
	Raw    any    `json:"raw"`
	Reason string `json:"reason"`
}
