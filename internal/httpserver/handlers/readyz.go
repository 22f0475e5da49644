package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/realtime"
)

type readyzResponse struct {
	Ready    bool            `json:"ready"`
	Redis    string          `json:"redis,omitempty"`
	Realtime realtime.Status `json:"realtime"`
}

// Readyz reports whether the remote store answers. The realtime status is
// informational: a failed subscription leaves the engine usable through refresh.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{
			Ready:    true,
			Realtime: d.Engine.State().Realtime,
		}

		if d.RedisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			err := d.RedisClient.Ping(ctx).Err()
			cancel()
			if err != nil {
				d.Logger.Warn("readiness check failed", logger.Error(err))
				resp.Ready = false
				resp.Redis = "unavailable"
			} else {
				resp.Redis = "ok"
			}
		}

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, d.Logger, status, resp)
	}
}
