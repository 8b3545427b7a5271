// Package mcpserver registers MCP tools that expose the favorites engine
// and the movie catalog. It adapts both to the MCP SDK's tool handler
// interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexjbarnes/reel-sync/internal/catalog"
	"github.com/alexjbarnes/reel-sync/internal/favorites"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/alexjbarnes/reel-sync/internal/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// errNoCatalog is returned by tools that need the catalog when no API key
// is configured.
var errNoCatalog = errors.New("movie catalog is not configured (set TMDB_API_KEY)")

// Catalog is the subset of catalog.Client the tools use.
type Catalog interface {
	Popular(ctx context.Context, page int) (*catalog.Page, error)
	Search(ctx context.Context, query string, page int) (*catalog.Page, error)
	Movie(ctx context.Context, id models.MovieID) (*models.MovieDetails, error)
}

// Favorites is the subset of favorites.Engine the tools use.
type Favorites interface {
	Favorites() []models.FavoriteRecord
	IsFavorite(id models.MovieID) bool
	Status() favorites.Status
	Toggle(rec models.FavoriteRecord) (bool, *favorites.Task)
	Sync() *favorites.Task
}

// Sessions reports the signed-in user.
type Sessions interface {
	Current() (session.Session, bool)
}

// Deps holds what the tools operate on. Catalog may be nil, in which case
// the movie tools report errNoCatalog and favorites can only be removed.
type Deps struct {
	Catalog   Catalog
	Favorites Favorites
	Sessions  Sessions
	Logger    *slog.Logger
}

// RegisterTools adds all reel-sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "favorites_list",
		Description: "List the user's favorite movies in display order, with the sync status of the list.",
	}, listHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "favorites_toggle",
		Description: "Add a movie to favorites by catalog id, or remove it if it is already a favorite. The local list changes immediately; when signed in the change is also written to the account.",
	}, toggleHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "favorites_sync",
		Description: "Merge the local favorites with the signed-in account's favorites and upload entries the account is missing. Requires a signed-in session.",
	}, syncHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "movies_popular",
		Description: "Fetch one page of currently popular movies from the catalog, optionally filtered by a case-insensitive title substring.",
	}, popularHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "movies_search",
		Description: "Search the catalog for movies by title.",
	}, searchHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "movies_get",
		Description: "Fetch full details for one movie, including runtime, tagline and cast.",
	}, movieHandler(d))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListInput has no parameters.
type ListInput struct{}

// ToggleInput holds parameters for favorites_toggle.
type ToggleInput struct {
	ID int64 `json:"id" jsonschema:"catalog movie id"`
}

// SyncInput has no parameters.
type SyncInput struct{}

// PopularInput holds parameters for movies_popular.
type PopularInput struct {
	Page   int    `json:"page,omitempty" jsonschema:"page number starting at 1, defaults to 1"`
	Filter string `json:"filter,omitempty" jsonschema:"case-insensitive title substring to keep"`
}

// SearchInput holds parameters for movies_search.
type SearchInput struct {
	Query string `json:"query" jsonschema:"title to search for"`
	Page  int    `json:"page,omitempty" jsonschema:"page number starting at 1, defaults to 1"`
}

// MovieInput holds parameters for movies_get.
type MovieInput struct {
	ID int64 `json:"id" jsonschema:"catalog movie id"`
}

// --- Output types ---

// ListResult is the favorites list with the engine's status.
type ListResult struct {
	Status    string                  `json:"status"`
	Count     int                     `json:"count"`
	SignedIn  bool                    `json:"signed_in"`
	Favorites []models.FavoriteRecord `json:"favorites"`
}

// ToggleResult reports the outcome of favorites_toggle.
type ToggleResult struct {
	ID          models.MovieID `json:"id"`
	Title       string         `json:"title,omitempty"`
	Favorite    bool           `json:"favorite"`
	SignedIn    bool           `json:"signed_in"`
	RemoteError string         `json:"remote_error,omitempty"`
}

// --- Handlers ---

func (d Deps) list() *ListResult {
	records := d.Favorites.Favorites()
	if records == nil {
		records = []models.FavoriteRecord{}
	}

	_, signedIn := d.Sessions.Current()

	return &ListResult{
		Status:    d.Favorites.Status().String(),
		Count:     len(records),
		SignedIn:  signedIn,
		Favorites: records,
	}
}

func listHandler(d Deps) mcp.ToolHandlerFor[ListInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, *ListResult, error) {
		result := d.list()
		return textResult(result), result, nil
	}
}

func toggleHandler(d Deps) mcp.ToolHandlerFor[ToggleInput, *ToggleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ToggleInput) (*mcp.CallToolResult, *ToggleResult, error) {
		if input.ID <= 0 {
			return nil, nil, fmt.Errorf("id must be a positive movie id")
		}

		id := models.MovieID(input.ID)
		rec := models.FavoriteRecord{ID: id}

		// Removal only needs the id. Adding copies the catalog entry.
		if !d.Favorites.IsFavorite(id) {
			if d.Catalog == nil {
				return nil, nil, errNoCatalog
			}

			details, err := d.Catalog.Movie(ctx, id)
			if err != nil {
				return nil, nil, fmt.Errorf("fetching movie %s: %w", id, err)
			}

			rec = details.FavoriteRecord
		}

		added, task := d.Favorites.Toggle(rec)
		_, signedIn := d.Sessions.Current()

		result := &ToggleResult{ID: id, Title: rec.Title, Favorite: added, SignedIn: signedIn}

		if err := task.Wait(ctx); err != nil {
			d.Logger.Warn("favorite toggled locally, remote write failed",
				slog.String("id", id.Key()),
				slog.String("error", err.Error()),
			)

			result.RemoteError = err.Error()
		}

		return textResult(result), result, nil
	}
}

func syncHandler(d Deps) mcp.ToolHandlerFor[SyncInput, *ListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SyncInput) (*mcp.CallToolResult, *ListResult, error) {
		task := d.Favorites.Sync()
		if err := task.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("sync: %w", err)
		}

		if task.Stale() {
			return nil, nil, fmt.Errorf("sync: session changed before the result could be applied")
		}

		result := d.list()

		return textResult(result), result, nil
	}
}

func popularHandler(d Deps) mcp.ToolHandlerFor[PopularInput, *catalog.Page] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PopularInput) (*mcp.CallToolResult, *catalog.Page, error) {
		if d.Catalog == nil {
			return nil, nil, errNoCatalog
		}

		page, err := d.Catalog.Popular(ctx, max(input.Page, 1))
		if err != nil {
			return nil, nil, err
		}

		page.Results = catalog.FilterByTitle(page.Results, input.Filter)

		return textResult(page), page, nil
	}
}

func searchHandler(d Deps) mcp.ToolHandlerFor[SearchInput, *catalog.Page] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *catalog.Page, error) {
		if d.Catalog == nil {
			return nil, nil, errNoCatalog
		}

		query := strings.TrimSpace(input.Query)
		if query == "" {
			return nil, nil, fmt.Errorf("query is required")
		}

		page, err := d.Catalog.Search(ctx, query, max(input.Page, 1))
		if err != nil {
			return nil, nil, err
		}

		return textResult(page), page, nil
	}
}

func movieHandler(d Deps) mcp.ToolHandlerFor[MovieInput, *models.MovieDetails] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MovieInput) (*mcp.CallToolResult, *models.MovieDetails, error) {
		if d.Catalog == nil {
			return nil, nil, errNoCatalog
		}

		details, err := d.Catalog.Movie(ctx, models.MovieID(input.ID))
		if err != nil {
			return nil, nil, err
		}

		return textResult(details), details, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
