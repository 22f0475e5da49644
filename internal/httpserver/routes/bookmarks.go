package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/handlers"
)

const defaultRequestTimeout = 10 * time.Second

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Route("/bookmarks", func(r chi.Router) {
		// long-lived, no request timeout
		r.Get("/stream", handlers.StreamBookmarks(d))

		r.Group(func(r chi.Router) {
			r.Use(timeout(d))
			r.Get("/", handlers.ListBookmarks(d))
			r.Post("/", handlers.AddBookmark(d))
			r.Post("/refresh", handlers.RefreshBookmarks(d))
			r.Delete("/{id}", handlers.RemoveBookmark(d))
		})
	})
}

func timeout(d deps.Deps) Middleware {
	t := d.RequestTimeout
	if t <= 0 {
		t = defaultRequestTimeout
	}
	return middleware.Timeout(t)
}
