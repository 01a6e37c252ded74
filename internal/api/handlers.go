package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/publish"
	"github.com/starford/folio/internal/vault"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the wildcard segment.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListProfiles handles GET /api/profiles.
//
//	@Summary	List publish profiles
//	@Tags		profiles
//	@Produce	json
//	@Success	200	{object}	ProfileListResponse
//	@Security	BearerAuth
//	@Router		/profiles [get]
func (h *Handler) ListProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ProfileListResponse{Profiles: h.svc.ListProfiles()})
}

// GetProfile handles GET /api/profiles/{id}.
//
//	@Summary	Get a publish profile
//	@Tags		profiles
//	@Produce	json
//	@Param		id	path		string	true	"Profile id"
//	@Success	200	{object}	profile.Profile
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id} [get]
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProfile(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutProfile handles PUT /api/profiles/{id}.
//
//	@Summary	Create or replace a publish profile
//	@Tags		profiles
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Profile id"
//	@Param		body	body		profile.Profile	true	"Profile"
//	@Success	200		{object}	profile.Profile
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id} [put]
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if !decode(w, r, &p) {
		return
	}
	saved, err := h.svc.PutProfile(chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, "put profile", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteProfile handles DELETE /api/profiles/{id}.
//
//	@Summary	Delete a publish profile
//	@Tags		profiles
//	@Param		id	path	string	true	"Profile id"
//	@Success	204	"Profile deleted"
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id} [delete]
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProfile(chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Publish handles POST /api/profiles/{id}/publish. A run already active for
// the profile yields 409.
//
//	@Summary	Run a publish
//	@Tags		publish
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Profile id"
//	@Param		body	body		PublishRequest	true	"Mode and note"
//	@Success	200		{object}	PublishResponse
//	@Failure	409		{object}	errResponse
//	@Failure	502		{object}	PublishResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id}/publish [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var body PublishRequest
	if !decode(w, r, &body) {
		return
	}
	mode, err := publish.ParseMode(body.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rep, err := h.svc.Publish(r.Context(), publish.Request{ProfileID: chi.URLParam(r, "id"), Mode: mode, Path: body.Path})
	if err != nil {
		if rep == nil {
			writeError(w, "publish", err)
			return
		}
		// The run started: return its report so the archive or upload
		// output reaches the caller.
		writeJSON(w, statusOf(err), PublishResponse{Report: rep, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, PublishResponse{Report: rep})
}

// Connections handles GET /api/profiles/{id}/connections/*.
//
//	@Summary	List a note's connections within a profile
//	@Tags		publish
//	@Produce	json
//	@Param		id		path		string	true	"Profile id"
//	@Param		path	path		string	true	"Note path"
//	@Success	200		{object}	ConnectionsResponse
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id}/connections/{path} [get]
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	conns, err := h.svc.Connections(r.Context(), chi.URLParam(r, "id"), path)
	if err != nil {
		writeError(w, "connections", err)
		return
	}
	if conns == nil {
		conns = []models.Connection{}
	}
	writeJSON(w, http.StatusOK, ConnectionsResponse{Connections: conns})
}

// NoteURL handles GET /api/profiles/{id}/url/*.
//
//	@Summary	Public address of a note
//	@Tags		publish
//	@Produce	json
//	@Param		id		path		string	true	"Profile id"
//	@Param		path	path		string	true	"Note path"
//	@Success	200		{object}	NoteURLResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id}/url/{path} [get]
func (h *Handler) NoteURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.NoteURL(r.Context(), chi.URLParam(r, "id"), notePath(r))
	if err != nil {
		writeError(w, "note url", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteURLResponse{URL: u})
}

// Search handles GET /api/profiles/{id}/search.
//
//	@Summary	Search a profile's published content index
//	@Tags		search
//	@Produce	json
//	@Param		id		path		string	true	"Profile id"
//	@Param		q		query		string	true	"Search query"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/profiles/{id}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), chi.URLParam(r, "id"), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	resp := SearchResponse{Results: hits}
	if resp.Results == nil {
		resp.Results = resp.Results[:0]
	}
	writeJSON(w, http.StatusOK, resp)
}

// RebuildContentIndex handles POST /api/profiles/{id}/content-index/rebuild.
//
//	@Summary	Rebuild a profile's content index
//	@Tags		publish
//	@Produce	json
//	@Param		id	path	string	true	"Profile id"
//	@Success	200	{object}	map[string]int
//	@Security	BearerAuth
//	@Router		/profiles/{id}/content-index/rebuild [post]
func (h *Handler) RebuildContentIndex(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RebuildContentIndex(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "rebuild content index", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries": n})
}

// Corrections handles GET /api/contexts/corrections.
//
//	@Summary	Notes whose publish contexts field needs fixing
//	@Tags		contexts
//	@Produce	json
//	@Success	200	{object}	CorrectionsResponse
//	@Security	BearerAuth
//	@Router		/contexts/corrections [get]
func (h *Handler) Corrections(w http.ResponseWriter, r *http.Request) {
	corr, err := h.svc.Corrections(r.Context())
	if err != nil {
		writeError(w, "corrections", err)
		return
	}
	if corr == nil {
		corr = []models.Correction{}
	}
	writeJSON(w, http.StatusOK, CorrectionsResponse{Corrections: corr})
}

// FixContexts handles POST /api/contexts/fix. Without ?apply=true it only
// previews.
//
//	@Summary	Rewrite publish contexts into list form
//	@Tags		contexts
//	@Produce	json
//	@Param		apply	query		bool	false	"Write changes"
//	@Success	200		{object}	CorrectionsResponse
//	@Security	BearerAuth
//	@Router		/contexts/fix [post]
func (h *Handler) FixContexts(w http.ResponseWriter, r *http.Request) {
	apply, _ := strconv.ParseBool(r.URL.Query().Get("apply"))
	corr, err := h.svc.FixContexts(r.Context(), apply)
	if err != nil {
		writeError(w, "fix contexts", err)
		return
	}
	if corr == nil {
		corr = []models.Correction{}
	}
	writeJSON(w, http.StatusOK, CorrectionsResponse{Corrections: corr})
}

// ToggleContext handles POST /api/contexts/toggle/*.
//
//	@Summary	Toggle a profile in a note's publish contexts
//	@Tags		contexts
//	@Accept		json
//	@Produce	json
//	@Param		path	path		string			true	"Note path"
//	@Param		body	body		ToggleRequest	true	"Profile"
//	@Success	200		{object}	ToggleResponse
//	@Security	BearerAuth
//	@Router		/contexts/toggle/{path} [post]
func (h *Handler) ToggleContext(w http.ResponseWriter, r *http.Request) {
	var body ToggleRequest
	if !decode(w, r, &body) {
		return
	}
	member, err := h.svc.ToggleContext(r.Context(), notePath(r), body.Profile)
	if err != nil {
		writeError(w, "toggle context", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Member: member})
}

// BulkContexts handles POST /api/contexts/bulk. With ?format=csv the planned
// changes are returned as a CSV preview.
//
//	@Summary	Bulk add or remove publish contexts by directory
//	@Tags		contexts
//	@Accept		json
//	@Produce	json,text/csv
//	@Param		body	body		vault.BulkRequest	true	"Rules"
//	@Success	200		{array}		vault.BulkChange
//	@Security	BearerAuth
//	@Router		/contexts/bulk [post]
func (h *Handler) BulkContexts(w http.ResponseWriter, r *http.Request) {
	var req vault.BulkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	changes, err := h.svc.BulkContexts(r.Context(), req)
	if err != nil {
		writeError(w, "bulk contexts", err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = vault.WriteBulkCSV(w, changes)
		return
	}
	if changes == nil {
		changes = []vault.BulkChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}
