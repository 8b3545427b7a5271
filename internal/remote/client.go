// Package remote is the HTTP client for reel-sync-server. It implements
// the favorites engine's RemoteStore and the account calls that produce a
// session.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/httpx"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/session"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads.
	maxAPIResponseBytes = 1024 * 1024

	// upsertConcurrency bounds parallel document writes in UpsertMany.
	upsertConcurrency = 8
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Unwrap returns the sentinel matching the status code.
func (e *StatusError) Unwrap() error { return e.kind }

// Client talks to the reel-sync server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL. If httpClient is
// nil, one with a 30-second timeout is used.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type grant struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// SignUp creates an account and returns its session.
func (c *Client) SignUp(ctx context.Context, email, password string) (session.Session, error) {
	var g grant
	if err := c.do(ctx, http.MethodPost, "/v1/auth/signup", "", credentials{email, password}, &g); err != nil {
		return session.Session{}, fmt.Errorf("signing up: %w", err)
	}

	return session.Session{UserID: g.UserID, Email: g.Email, Token: g.Token}, nil
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (session.Session, error) {
	var g grant

	err := c.do(ctx, http.MethodPost, "/v1/auth/signin", "", credentials{email, password}, &g)

	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		return session.Session{}, apperrors.ErrInvalidCredentials
	}

	if err != nil {
		return session.Session{}, fmt.Errorf("signing in: %w", err)
	}

	return session.Session{UserID: g.UserID, Email: g.Email, Token: g.Token}, nil
}

func favoritesPath(s session.Session) string {
	return "/v1/users/" + url.PathEscape(s.UserID) + "/favorites"
}

// LoadAll returns the user's favorites, most recently saved first.
func (c *Client) LoadAll(ctx context.Context, s session.Session) ([]models.FavoriteRecord, error) {
	var resp struct {
		Documents []models.FavoriteDocument `json:"documents"`
	}

	if err := c.do(ctx, http.MethodGet, favoritesPath(s), s.Token, nil, &resp); err != nil {
		return nil, fmt.Errorf("loading favorites: %w", err)
	}

	out := make([]models.FavoriteRecord, len(resp.Documents))
	for i, d := range resp.Documents {
		out[i] = d.Record()
	}

	return out, nil
}

// Upsert writes one favorite and returns it as stored.
func (c *Client) Upsert(ctx context.Context, s session.Session, rec models.FavoriteRecord) (models.FavoriteRecord, error) {
	rec = rec.Normalized()

	var doc models.FavoriteDocument
	if err := c.do(ctx, http.MethodPut, favoritesPath(s)+"/"+rec.Key(), s.Token, rec, &doc); err != nil {
		return models.FavoriteRecord{}, fmt.Errorf("saving favorite %s: %w", rec.Key(), err)
	}

	return doc.Record(), nil
}

// UpsertMany writes every record as an independent request, at most
// upsertConcurrency at a time. A failed write does not stop the others;
// all failures are joined into the returned error.
func (c *Client) UpsertMany(ctx context.Context, s session.Session, records []models.FavoriteRecord) error {
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(upsertConcurrency)

	for i, rec := range records {
		g.Go(func() error {
			_, errs[i] = c.Upsert(ctx, s, rec)
			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

// Remove deletes a favorite. Removing an absent id succeeds.
func (c *Client) Remove(ctx context.Context, s session.Session, id models.MovieID) error {
	if err := c.do(ctx, http.MethodDelete, favoritesPath(s)+"/"+id.Key(), s.Token, nil, nil); err != nil {
		return fmt.Errorf("removing favorite %s: %w", id, err)
	}

	return nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &httpx.TransientError{Err: fmt.Errorf("%w: health check: %w", apperrors.ErrAPIRequest, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &httpx.TransientError{Err: fmt.Errorf("%w: health check returned status %d", apperrors.ErrAPIResponse, resp.StatusCode)}
	}

	return nil
}

// do sends a JSON request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, endpoint, token string, body, result any) error {
	var rdr io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		rdr = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, rdr)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &httpx.TransientError{Err: fmt.Errorf("%w: %s %s: %w", apperrors.ErrAPIRequest, method, endpoint, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return &httpx.TransientError{Err: fmt.Errorf("reading response from %s: %w", endpoint, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, respBody)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %v", apperrors.ErrAPIResponse, endpoint, err)
	}

	return nil
}

func statusError(code int, body []byte) error {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = httpx.SanitizeResponseBody(body)
	}

	se := &StatusError{Code: code, Message: msg, kind: apperrors.ErrAPIResponse}

	switch code {
	case http.StatusUnauthorized:
		se.kind = apperrors.ErrInvalidToken
	case http.StatusForbidden:
		se.kind = apperrors.ErrForbidden
	case http.StatusConflict:
		se.kind = apperrors.ErrEmailTaken
	}

	if httpx.IsTransientStatus(code) {
		return &httpx.TransientError{Err: se}
	}

	return se
}
