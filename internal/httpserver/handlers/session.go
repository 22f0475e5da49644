package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

type sessionRequest struct {
	UserID string `json:"user_id"`
}

// SetSession makes the given user the active identity and loads their bookmarks.
func SetSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid request body")
			return
		}
		owner := strings.TrimSpace(req.UserID)
		if owner == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "user_id is required")
			return
		}

		d.Engine.SetIdentity(r.Context(), owner)
		d.Logger.Debug("session set via endpoint", logger.String("owner", owner))
		writeJSON(w, d.Logger, http.StatusOK, d.Engine.State())
	}
}

// ClearSession signs out.
func ClearSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Engine.SetIdentity(r.Context(), "")
		writeJSON(w, d.Logger, http.StatusOK, d.Engine.State())
	}
}
