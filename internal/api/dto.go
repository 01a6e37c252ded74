package api

import (
	"github.com/starford/folio/internal/contentindex"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/publish"
)

// PublishRequest is the body of POST /profiles/{id}/publish.
type PublishRequest struct {
	Mode string `json:"mode" example:"individual" validate:"required"`
	Path string `json:"path,omitempty" example:"notes/hello.md"`
}

// PublishResponse carries the run report, and the error when the run failed
// after it started.
type PublishResponse struct {
	Report *publish.Report `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ProfileListResponse wraps the profile list.
type ProfileListResponse struct {
	Profiles []profile.Profile `json:"profiles" validate:"required"`
}

// ConnectionsResponse wraps a note's connections.
type ConnectionsResponse struct {
	Connections []models.Connection `json:"connections" validate:"required"`
}

// SearchResponse wraps content index hits.
type SearchResponse struct {
	Results []contentindex.Hit `json:"results" validate:"required"`
}

// NoteURLResponse is the public address of a note.
type NoteURLResponse struct {
	URL string `json:"url" example:"https://notes.example.com/#u=3f9a" validate:"required"`
}

// ToggleRequest names the profile to toggle on a note.
type ToggleRequest struct {
	Profile string `json:"profile" example:"blog" validate:"required"`
}

// ToggleResponse reports membership after a toggle.
type ToggleResponse struct {
	Member bool `json:"member"`
}

// CorrectionsResponse lists notes whose publish contexts need fixing.
type CorrectionsResponse struct {
	Corrections []models.Correction `json:"corrections" validate:"required"`
}
