package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alexjbarnes/reel-sync/internal/catalog"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/spf13/cobra"
)

// MovieList is the output of popular and search.
type MovieList struct {
	Query     string                  `json:"query,omitempty"`
	FirstPage int                     `json:"first_page"`
	Pages     int                     `json:"pages"`
	More      bool                    `json:"more"`
	Movies    []models.FavoriteRecord `json:"movies"`
}

// ListOptions holds flags shared by popular and search.
type ListOptions struct {
	*RootOptions
	Page   int
	Pages  int
	Filter string
}

func (o *ListOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.Page, "page", 1, "first page to fetch")
	cmd.Flags().IntVar(&o.Pages, "pages", 1, "number of pages to load")
	cmd.Flags().StringVar(&o.Filter, "filter", "", "only show titles containing this text (case-insensitive)")
}

// NewPopularCommand creates the popular command.
func NewPopularCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "popular",
		Short: "List currently popular movies",
		Long: `List currently popular movies from the catalog. Favorites are marked
with a star.

Example:
  reel-sync popular --pages 3
  reel-sync popular --filter "star wars"`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, _ []string) error {
			c, err := a.requireCatalog()
			if err != nil {
				return err
			}

			return runList(ctx, a, opts, "", c.Popular)
		}),
	}

	opts.bind(cmd)

	return cmd
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search movies by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, args []string) error {
			c, err := a.requireCatalog()
			if err != nil {
				return err
			}

			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return WrapExitError(ExitCommandError, "query is required", nil)
			}

			return runList(ctx, a, opts, query, func(ctx context.Context, page int) (*catalog.Page, error) {
				return c.Search(ctx, query, page)
			})
		}),
	}

	opts.bind(cmd)

	return cmd
}

// offsetPages shifts a page source so that page 1 of the feed is page
// first of the source.
func offsetPages(fetch catalog.PageFunc, first int) catalog.PageFunc {
	shift := max(first, 1) - 1

	return func(ctx context.Context, page int) (*catalog.Page, error) {
		p, err := fetch(ctx, page+shift)
		if err != nil {
			return nil, err
		}

		p.TotalPages = max(p.TotalPages-shift, 0)

		return p, nil
	}
}

func runList(ctx context.Context, a *app, opts *ListOptions, query string, fetch catalog.PageFunc) error {
	if opts.Pages < 1 {
		return WrapExitError(ExitCommandError, "--pages must be at least 1", nil)
	}

	feed := catalog.NewFeed(offsetPages(fetch, opts.Page))

	for i := 0; i < opts.Pages && feed.More(); i++ {
		if _, err := feed.Next(ctx); err != nil {
			return WrapExitError(ExitFailure, "fetching movies", err)
		}
	}

	out := MovieList{
		Query:     query,
		FirstPage: max(opts.Page, 1),
		Pages:     opts.Pages,
		More:      feed.More(),
		Movies:    catalog.FilterByTitle(feed.Movies(), opts.Filter),
	}

	return a.out.Render(out, func(w io.Writer) {
		heading := "Popular movies"
		if query != "" {
			heading = fmt.Sprintf("Results for %q", query)
		}

		fmt.Fprintln(w, titleStyle.Render(heading))
		movieTable(w, out.Movies, a.engine.IsFavorite)

		if out.More {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("more available: --page %d", out.FirstPage+opts.Pages)))
		}
	})
}

// NewMovieCommand creates the movie command.
func NewMovieCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "movie <id>",
		Short: "Show details for one movie",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			c, err := a.requireCatalog()
			if err != nil {
				return err
			}

			details, err := c.Movie(ctx, id)
			if err != nil {
				return WrapExitError(ExitFailure, "fetching movie", err)
			}

			return a.out.Render(details, func(w io.Writer) {
				printDetails(w, details, a.engine.IsFavorite(id))
			})
		}),
	}
}

func parseID(s string) (models.MovieID, error) {
	id, err := models.ParseMovieID(s)
	if err != nil || id <= 0 {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid movie id %q", s), nil)
	}

	return id, nil
}

const maxCastShown = 10

func printDetails(w io.Writer, d *models.MovieDetails, favorite bool) {
	heading := d.Title
	if year := d.ReleaseYear(); year != "" {
		heading += " (" + year + ")"
	}

	if favorite {
		heading += " " + starStyle.Render("★")
	}

	fmt.Fprintln(w, titleStyle.Render(heading))

	if d.Tagline != "" {
		fmt.Fprintln(w, mutedStyle.Render(d.Tagline))
	}

	var facts []string
	if d.Runtime > 0 {
		facts = append(facts, fmt.Sprintf("%d min", d.Runtime))
	}

	if d.VoteAverage > 0 {
		facts = append(facts, fmt.Sprintf("rated %.1f", d.VoteAverage))
	}

	var genres []string
	for _, g := range d.Genres {
		if g.Name != "" {
			genres = append(genres, g.Name)
		}
	}

	if len(genres) > 0 {
		facts = append(facts, strings.Join(genres, ", "))
	}

	if len(facts) > 0 {
		fmt.Fprintln(w, strings.Join(facts, " · "))
	}

	if d.Overview != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, d.Overview)
	}

	if len(d.Cast) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Cast"))

		for i, c := range d.Cast {
			if i == maxCastShown {
				fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("and %d more", len(d.Cast)-maxCastShown)))
				break
			}

			fmt.Fprintf(w, "  %s as %s\n", c.Name, c.Character)
		}
	}

	if poster := catalog.PosterURL(d.PosterPath); poster != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, mutedStyle.Render(poster))
	}
}
