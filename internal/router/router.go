package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/GregMSThompson/skiploss-console/internal/handlers"
	"github.com/GregMSThompson/skiploss-console/internal/middleware"
)

// NewRouter wires the console API. auth guards every session route; pass
// nil to serve them unauthenticated.
func NewRouter(deps *handlers.Deps, auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	lm := middleware.NewLoggerMiddleware(deps.Log)
	r.Use(chimiddleware.RequestID)
	r.Use(lm.LoggerMiddleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		deps.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	sh := handlers.NewSessionHandlers(deps)
	eh := handlers.NewEventHandlers(deps)

	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		r.Get("/sessions/{id}/events", eh.Stream)
		r.Mount("/sessions", sh.SessionRoutes())
	})
	return r
}
