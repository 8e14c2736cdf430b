// Package httpapi exposes the index coordinator over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /status
//	GET    /search?q=...&limit=5&natural=true
//	PUT    /notes/{id...}   body: plain text, or {"text": "..."} as JSON
//	DELETE /notes/{id...}
//	POST   /reindex         body: optional {"notes": [{"id", "text"}]}
//	DELETE /index
//	*      /mcp             MCP streamable HTTP transport, when configured
//
// Note IDs may contain slashes. Mutations are queued and answered with
// 202 Accepted.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/amannotes/internal/index"
)

// Index is the part of *index.Coordinator the API drives.
type Index interface {
	Reindex(noteID, text string)
	Delete(noteID string)
	ReindexAll(ctx context.Context, notes []index.Note) bool
	DropAll(ctx context.Context)
	Search(ctx context.Context, query string, limit int) []index.SearchHit
	SearchNatural(ctx context.Context, text string, limit int) []index.SearchHit
	Status(ctx context.Context) index.Status
}

// NoteLister supplies the notes for a full reindex. *notes.Dir satisfies it.
type NoteLister interface {
	List(ctx context.Context) ([]index.Note, error)
}

// Deps holds the router's collaborators. Notes may be nil, in which case
// POST /reindex requires the notes in the request body. MCP, when set, is
// mounted at /mcp.
type Deps struct {
	Index   Index
	Notes   NoteLister
	MCP     http.Handler
	Version string
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 10 << 20

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/healthz", h.health)
		r.Get("/status", h.status)
		r.Get("/search", h.search)
		r.Put("/notes/*", h.putNote)
		r.Delete("/notes/*", h.deleteNote)
		r.Post("/reindex", h.reindexAll)
		r.Delete("/index", h.dropAll)
	})

	// MCP sessions stream responses, so they are not bound by the timeout.
	if deps.MCP != nil {
		r.Handle("/mcp", deps.MCP)
		r.Handle("/mcp/*", deps.MCP)
	}

	return r
}
