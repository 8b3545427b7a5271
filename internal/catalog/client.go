// Package catalog reads popular movies, search results and movie details
// from the TMDB API and turns them into favorite records.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/httpx"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the TMDB v3 API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	// ImageBaseURL prefixes poster paths for display.
	ImageBaseURL = "https://image.tmdb.org/t/p/w500"

	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. A details response
	// with full credits stays well under this.
	maxAPIResponseBytes = 4 * 1024 * 1024

	defaultRateLimit = 20
)

var errNotFound = errors.New("resource not found")

// Page is one page of catalog results.
type Page struct {
	Page         int                     `json:"page"`
	TotalPages   int                     `json:"total_pages"`
	TotalResults int                     `json:"total_results"`
	Results      []models.FavoriteRecord `json:"results"`
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	// RateLimit is the maximum number of requests per second.
	RateLimit float64
	Logger    *slog.Logger
}

// Client talks to the TMDB API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a catalog client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		limiter:    rate.NewLimiter(rate.Limit(limit), 1),
		logger:     logger,
	}
}

// PosterURL returns the display URL for a poster path, or "" if there is
// no poster.
func PosterURL(path string) string {
	if path == "" {
		return ""
	}

	return ImageBaseURL + path
}

// Popular returns one page of currently popular movies.
func (c *Client) Popular(ctx context.Context, page int) (*Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(page, 1)))

	body, err := c.get(ctx, "/movie/popular", params)
	if err != nil {
		return nil, fmt.Errorf("fetching popular movies: %w", err)
	}

	return c.parsePage(body), nil
}

// Search returns one page of movies whose title matches query.
func (c *Client) Search(ctx context.Context, query string, page int) (*Page, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(max(page, 1)))

	body, err := c.get(ctx, "/search/movie", params)
	if err != nil {
		return nil, fmt.Errorf("searching movies: %w", err)
	}

	return c.parsePage(body), nil
}

// Movie returns the details of one movie including its cast.
func (c *Client) Movie(ctx context.Context, id models.MovieID) (*models.MovieDetails, error) {
	params := url.Values{}
	params.Set("append_to_response", "credits")

	body, err := c.get(ctx, "/movie/"+id.Key(), params)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("movie %s: %w", id, apperrors.ErrMovieNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("fetching movie %s: %w", id, err)
	}

	details, err := models.ParseMovieDetails(gjson.ParseBytes(body))
	if err != nil {
		return nil, fmt.Errorf("fetching movie %s: %w", id, err)
	}

	return &details, nil
}

// parsePage converts a list response. Results that fail validation are
// dropped.
func (c *Client) parsePage(body []byte) *Page {
	root := gjson.ParseBytes(body)

	p := &Page{
		Page:         int(root.Get("page").Int()),
		TotalPages:   int(root.Get("total_pages").Int()),
		TotalResults: int(root.Get("total_results").Int()),
		Results:      []models.FavoriteRecord{},
	}

	for _, raw := range root.Get("results").Array() {
		rec, err := models.ParseMovie(raw)
		if err != nil {
			c.logger.Debug("skipping catalog result", slog.String("error", err.Error()))
			continue
		}

		p.Results = append(p.Results, rec)
	}

	return p
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Strip the URL from the error so the api key never reaches logs.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, &httpx.TransientError{Err: fmt.Errorf("%w: GET %s: %w", apperrors.ErrAPIRequest, endpoint, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, &httpx.TransientError{Err: fmt.Errorf("reading response from %s: %w", endpoint, err)}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", errNotFound, endpoint)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "status_message").String()
		if msg == "" {
			msg = httpx.SanitizeResponseBody(body)
		}

		err := fmt.Errorf("%w: %s returned status %d: %s", apperrors.ErrAPIResponse, endpoint, resp.StatusCode, msg)
		if httpx.IsTransientStatus(resp.StatusCode) {
			return nil, &httpx.TransientError{Err: err}
		}

		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s returned invalid JSON", apperrors.ErrAPIResponse, endpoint)
	}

	return body, nil
}
