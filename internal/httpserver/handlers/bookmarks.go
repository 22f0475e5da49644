package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
)

type addRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ListBookmarks returns the engine state.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Logger, http.StatusOK, d.Engine.State())
	}
}

// AddBookmark submits a draft. Validation and remote failures are reported
// in the returned state's error field, not by the status code: the new record
// itself shows up once its change event arrives.
func AddBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireIdentity(w, d) {
			return
		}
		var req addRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid request body")
			return
		}

		d.Engine.Add(r.Context(), domain.Draft{Title: req.Title, URL: req.URL})
		writeJSON(w, d.Logger, http.StatusAccepted, d.Engine.State())
	}
}

// RemoveBookmark deletes a bookmark by id.
func RemoveBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireIdentity(w, d) {
			return
		}
		d.Engine.Remove(r.Context(), chi.URLParam(r, "id"))
		writeJSON(w, d.Logger, http.StatusAccepted, d.Engine.State())
	}
}

// RefreshBookmarks reloads the collection from the remote store.
func RefreshBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireIdentity(w, d) {
			return
		}
		d.Engine.Refresh(r.Context())
		writeJSON(w, d.Logger, http.StatusAccepted, d.Engine.State())
	}
}

func requireIdentity(w http.ResponseWriter, d deps.Deps) bool {
	if d.Engine.State().Identity == "" {
		writeError(w, d.Logger, http.StatusConflict, domain.ErrNoIdentity.Error())
		return false
	}
	return true
}
