package models

import "time"

// Snapshot is the per-run view of one note for one profile.
type Snapshot struct {
	ProfileID    string
	UID          string
	Path         string
	Slug         string
	Title        string
	Raw          string
	Rendered     string
	CurrentHash  string
	PriorHash    *string
	LastModified time.Time
	Backlinks    []Connection
}

// Connection is an edge between a subject note and another visible note.
type Connection struct {
	UID            string `json:"uid"`
	Path           string `json:"path"`
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	IsBacklink     bool   `json:"isBacklink"`
	IsOutgoingLink bool   `json:"isOutgoingLink"`
}

// BacklinkInfo is the backlink shape stored in a staged artifact.
type BacklinkInfo struct {
	UID   string `json:"uid"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// StagedNote is the JSON artifact written to staged-notes/{hash}.json.
type StagedNote struct {
	UID         string         `json:"uid"`
	Slug        string         `json:"slug"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Raw         string         `json:"raw"`
	Backlinks   []BacklinkInfo `json:"backlinks"`
	Hash        string         `json:"hash"`
	PriorHash   *string        `json:"priorHash"`
	LastUpdated int64          `json:"lastUpdated"`
}

// NewStagedNote converts a snapshot into its artifact form.
func NewStagedNote(s *Snapshot) StagedNote {
	backlinks := make([]BacklinkInfo, 0, len(s.Backlinks))
	for _, c := range s.Backlinks {
		if !c.IsBacklink {
			continue
		}
		backlinks = append(backlinks, BacklinkInfo{UID: c.UID, Slug: c.Slug, Title: c.Title})
	}
	return StagedNote{
		UID:         s.UID,
		Slug:        s.Slug,
		Title:       s.Title,
		Content:     s.Rendered,
		Raw:         s.Raw,
		Backlinks:   backlinks,
		Hash:        s.CurrentHash,
		PriorHash:   s.PriorHash,
		LastUpdated: s.LastModified.UnixMilli(),
	}
}
