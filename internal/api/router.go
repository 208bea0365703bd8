package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", h.Health)

	r.Route("/v1/operations", func(r chi.Router) {
		r.Post("/", h.CreateOperation)
		r.Get("/", h.ListOperations)
		r.Get("/{id}", h.GetOperation)
		r.Get("/{id}/messages", h.ListOperationMessages)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bulksender"))
	})

	return r
}
