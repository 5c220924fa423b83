package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Document.
	r.Get("/document", h.GetDocument)
	r.Put("/document/body", h.UpdateBody)
	r.Put("/document/visibility", h.SetVisibility)
	r.Post("/document/visibility/toggle", h.ToggleVisibility)

	// Fields. The static move route is registered before {id}.
	r.Post("/fields", h.AddField)
	r.Post("/fields/move", h.MoveField)
	r.Patch("/fields/{id}", h.UpdateField)
	r.Delete("/fields/{id}", h.DeleteField)
	r.Post("/fields/{id}/items", h.AddListItem)
	r.Put("/fields/{id}/items/{index}", h.SetListItem)
	r.Delete("/fields/{id}/items/{index}", h.RemoveListItem)

	// Export and import.
	r.Get("/export/markdown", h.ExportMarkdown)
	r.Get("/export/json", h.ExportJSON)
	r.Get("/export/lint", h.LintExport)
	r.Post("/import", h.Import)

	r.Get("/preview", h.Preview)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
