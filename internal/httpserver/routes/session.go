package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
)

func init() { Register(registerSession) }

func registerSession(r chi.Router, d deps.Deps) {
	r.With(timeout(d)).Route("/session", func(r chi.Router) {
		r.Put("/", handlers.SetSession(d))
		r.Delete("/", handlers.ClearSession(d))
	})
}
