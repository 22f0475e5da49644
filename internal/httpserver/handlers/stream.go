package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/marksync/internal/engine"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

const (
	streamWriteWait   = 5 * time.Second
	defaultPingPeriod = 30 * time.Second
)

// StreamBookmarks upgrades to a WebSocket and pushes the engine state as JSON
// on connect and after every change. States produced faster than the client
// reads are coalesced: only the newest pending one is sent.
func StreamBookmarks(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	pingPeriod := d.PingInterval
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			d.Logger.Debug("websocket upgrade failed", logger.Error(err))
			return
		}
		defer ws.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		updates := make(chan engine.State, 1)
		push := func(st engine.State) {
			for {
				select {
				case updates <- st:
					return
				default:
				}
				select {
				case <-updates:
				default:
				}
			}
		}
		stop := d.Engine.Watch(push)
		defer stop()
		push(d.Engine.State())

		// Clients send nothing; reading handles pongs and the close handshake.
		go func() {
			defer cancel()

			_ = ws.SetReadDeadline(time.Now().Add(2 * pingPeriod))
			ws.SetPongHandler(func(string) error {
				return ws.SetReadDeadline(time.Now().Add(2 * pingPeriod))
			})
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-d.Closing:
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(streamWriteWait))
				return

			case st := <-updates:
				_ = ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := ws.WriteJSON(st); err != nil {
					d.Logger.Debug("state stream write failed", logger.Error(err))
					return
				}

			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	}
}
