package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", h.ListProfiles)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProfile)
			r.Put("/", h.PutProfile)
			r.Delete("/", h.DeleteProfile)
			r.Post("/publish", h.Publish)
			r.Get("/connections/*", h.Connections)
			r.Get("/url/*", h.NoteURL)
			r.Get("/search", h.Search)
			r.Post("/content-index/rebuild", h.RebuildContentIndex)
		})
	})

	r.Route("/contexts", func(r chi.Router) {
		r.Get("/corrections", h.Corrections)
		r.Post("/fix", h.FixContexts)
		r.Post("/toggle/*", h.ToggleContext)
		r.Post("/bulk", h.BulkContexts)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
