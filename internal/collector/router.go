package collector

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the archiving endpoints, meant to be
// mounted under /api/archiving
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/start", handler.Start)
	r.Post("/stop", handler.Stop)
	r.Get("/status", handler.Status)

	return r
}
