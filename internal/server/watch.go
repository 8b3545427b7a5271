package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const watchWriteTimeout = 10 * time.Second

// watchFavorites upgrades to a websocket and streams the user's changes
// as JSON text frames until either side goes away.
func (h *handlers) watchFavorites(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.ownUser(w, r)
	if !ok {
		return
	}

	// The server's write timeout would otherwise cut long-lived feeds.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("user_id", uid), slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	changes, cancel := h.hub.Subscribe(uid)
	defer cancel()

	// The feed is one-way; CloseRead discards inbound frames and cancels
	// ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("watch connected", slog.String("user_id", uid))

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("watch disconnected", slog.String("user_id", uid))
			return
		case c, open := <-changes:
			if !open {
				conn.Close(websocket.StatusGoingAway, "feed closed")
				return
			}

			data, err := json.Marshal(c)
			if err != nil {
				h.logger.Error("encoding change failed", slog.String("error", err.Error()))
				continue
			}

			if err := writeWithTimeout(ctx, conn, data); err != nil {
				h.logger.Debug("watch write failed", slog.String("user_id", uid), slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, watchWriteTimeout)
			err := conn.Ping(pingCtx)
			cancelPing()

			if err != nil {
				h.logger.Debug("watch ping failed", slog.String("user_id", uid), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, data)
}
