// Package server provides the HTTP API of reel-sync-server: account
// sign-up and sign-in, per-user favorites documents and a websocket
// change feed.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/auth"
	"github.com/alexjbarnes/reel-sync/internal/docstore"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Auth   *auth.Service
	Store  *docstore.Store
	Hub    *docstore.Hub
	Logger *slog.Logger

	// PingInterval is how often watch connections are pinged. Defaults
	// to 30s.
	PingInterval time.Duration
}

// NewMux builds the HTTP mux. Favorites routes are protected by Bearer
// token middleware and only serve the token's own user.
func NewMux(cfg MuxConfig) *http.ServeMux {
	h := &handlers{
		auth:         cfg.Auth,
		store:        cfg.Store,
		hub:          cfg.Hub,
		logger:       cfg.Logger,
		pingInterval: cfg.PingInterval,
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /v1/auth/signup", h.signUp)
	mux.HandleFunc("POST /v1/auth/signin", h.signIn)

	authMiddleware := auth.Middleware(cfg.Auth.Tokens(), cfg.Logger)
	mux.Handle("GET /v1/users/{uid}/favorites", authMiddleware(http.HandlerFunc(h.listFavorites)))
	mux.Handle("GET /v1/users/{uid}/favorites/watch", authMiddleware(http.HandlerFunc(h.watchFavorites)))
	mux.Handle("PUT /v1/users/{uid}/favorites/{id}", authMiddleware(http.HandlerFunc(h.putFavorite)))
	mux.Handle("DELETE /v1/users/{uid}/favorites/{id}", authMiddleware(http.HandlerFunc(h.deleteFavorite)))

	return mux
}
