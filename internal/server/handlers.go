package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/auth"
	"github.com/alexjbarnes/reel-sync/internal/docstore"
	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/models"
)

const (
	// maxRequestBody caps request bodies. A favorite document is a few
	// hundred bytes.
	maxRequestBody = 1 << 20

	defaultPingInterval = 30 * time.Second
)

type handlers struct {
	auth         *auth.Service
	store        *docstore.Store
	hub          *docstore.Hub
	logger       *slog.Logger
	pingInterval time.Duration
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type listResponse struct {
	Documents []models.FavoriteDocument `json:"documents"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	return true
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)

		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	grant, err := h.auth.SignUp(r.Context(), req.Email, req.Password)

	switch {
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error("sign-up failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusCreated, grant)
	}
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}

	grant, err := h.auth.SignIn(r.Context(), req.Email, req.Password, auth.RemoteIP(r))

	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case err != nil:
		h.logger.Error("sign-in failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, grant)
	}
}

// ownUser returns the path's user id when it matches the token's user.
// Otherwise it writes a 403 and returns false.
func (h *handlers) ownUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := r.PathValue("uid")
	if uid == "" || uid != auth.RequestUserID(r.Context()) {
		h.logger.Warn("cross-user favorites access denied",
			slog.String("user_id", auth.RequestUserID(r.Context())),
			slog.String("email", auth.RequestEmail(r.Context())),
			slog.String("remote_ip", auth.RequestRemoteIP(r.Context())),
			slog.String("path_uid", uid),
		)
		writeError(w, http.StatusForbidden, apperrors.ErrForbidden.Error())

		return "", false
	}

	return uid, true
}

func (h *handlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.ownUser(w, r)
	if !ok {
		return
	}

	records, err := h.store.ListFavorites(r.Context(), uid)
	if err != nil {
		h.logger.Error("listing favorites failed", slog.String("user_id", uid), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	docs := make([]models.FavoriteDocument, len(records))
	for i, rec := range records {
		docs[i] = models.NewFavoriteDocument(rec)
	}

	writeJSON(w, http.StatusOK, listResponse{Documents: docs})
}

func (h *handlers) putFavorite(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.ownUser(w, r)
	if !ok {
		return
	}

	id, err := models.ParseMovieID(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	var rec models.FavoriteRecord
	if !decodeJSON(w, r, &rec) {
		return
	}

	if rec.ID != 0 && rec.ID != id {
		writeError(w, http.StatusBadRequest, "document id does not match path")
		return
	}

	rec.ID = id

	if strings.TrimSpace(rec.Title) == "" {
		writeError(w, http.StatusBadRequest, apperrors.ErrInvalidMovie.Error()+": title is required")
		return
	}

	stored, err := h.store.PutFavorite(r.Context(), uid, rec)
	if err != nil {
		h.logger.Error("storing favorite failed", slog.String("user_id", uid), slog.String("id", id.Key()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	h.hub.Publish(uid, docstore.Change{Op: docstore.OpPut, ID: id.Key(), Record: &stored})

	writeJSON(w, http.StatusOK, models.NewFavoriteDocument(stored))
}

func (h *handlers) deleteFavorite(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.ownUser(w, r)
	if !ok {
		return
	}

	id, err := models.ParseMovieID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return
	}

	existed, err := h.store.DeleteFavorite(r.Context(), uid, id)
	if err != nil {
		h.logger.Error("deleting favorite failed", slog.String("user_id", uid), slog.String("id", id.Key()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	if existed {
		h.hub.Publish(uid, docstore.Change{Op: docstore.OpDelete, ID: id.Key()})
	}

	w.WriteHeader(http.StatusNoContent)
}
