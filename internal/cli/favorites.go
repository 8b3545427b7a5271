package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/spf13/cobra"
)

const healthCheckTimeout = 3 * time.Second

// FavoritesList is the output of favorites list and favorites sync.
type FavoritesList struct {
	Status    string                  `json:"status"`
	Count     int                     `json:"count"`
	Favorites []models.FavoriteRecord `json:"favorites"`
}

// ToggleResult is the output of favorites toggle.
type ToggleResult struct {
	ID          models.MovieID `json:"id"`
	Title       string         `json:"title,omitempty"`
	Favorite    bool           `json:"favorite"`
	SignedIn    bool           `json:"signed_in"`
	RemoteError string         `json:"remote_error,omitempty"`
}

// FavoritesStatus is the output of favorites status.
type FavoritesStatus struct {
	Account
	Status string `json:"status"`
	Remote string `json:"remote"`
}

// NewFavoritesCommand creates the favorites command group.
func NewFavoritesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage favorite movies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List favorites in display order",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(_ context.Context, a *app, _ []string) error {
			return renderFavorites(a, "Favorites")
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <id>",
		Short: "Add a movie to favorites, or remove it if already there",
		Long: `Add a movie to favorites, or remove it if already there.

The change is saved on this device first. When signed in it is then written
to the account; a failed remote write is reported but the local change is
kept. Adding looks the movie up in the catalog and needs TMDB_API_KEY;
removing does not.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(rootOpts, runToggle),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Merge this device's favorites with the account's",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, runSync),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show sync status and whether the server is reachable",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, runStatus),
	})

	return cmd
}

func renderFavorites(a *app, heading string) error {
	records := a.engine.Favorites()
	if records == nil {
		records = []models.FavoriteRecord{}
	}

	out := FavoritesList{
		Status:    a.engine.Status().String(),
		Count:     len(records),
		Favorites: records,
	}

	return a.out.Render(out, func(w io.Writer) {
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (%d)", heading, out.Count)))
		movieTable(w, records, nil)
	})
}

func runToggle(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	rec := models.FavoriteRecord{ID: id}

	if !a.engine.IsFavorite(id) {
		c, err := a.requireCatalog()
		if err != nil {
			return err
		}

		details, err := c.Movie(ctx, id)
		if err != nil {
			return WrapExitError(ExitFailure, "looking up movie", err)
		}

		rec = details.FavoriteRecord
	} else {
		for _, f := range a.engine.Favorites() {
			if f.Key() == id.Key() {
				rec.Title = f.Title
				break
			}
		}
	}

	added, task := a.engine.Toggle(rec)
	_, signedIn := a.sessions.Current()

	out := ToggleResult{ID: id, Title: rec.Title, Favorite: added, SignedIn: signedIn}
	if err := task.Wait(ctx); err != nil {
		out.RemoteError = err.Error()
	}

	return a.out.Render(out, func(w io.Writer) {
		verb := "removed from"
		if out.Favorite {
			verb = "added to"
		}

		fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("%s %s favorites", out.Title, verb)))

		switch {
		case out.RemoteError != "":
			fmt.Fprintln(w, warnStyle.Render("saved on this device only: "+out.RemoteError))
		case !out.SignedIn:
			fmt.Fprintln(w, mutedStyle.Render("not signed in, saved on this device only"))
		}
	})
}

func runSync(ctx context.Context, a *app, _ []string) error {
	task := a.engine.Sync()

	err := task.Wait(ctx)
	if errors.Is(err, apperrors.ErrNoSession) {
		return WrapExitError(ExitCommandError, "not signed in", nil)
	}

	if err != nil {
		// The merge is applied even when the remote read or the upload
		// failed, so show the list before reporting.
		if renderErr := renderFavorites(a, "Favorites"); renderErr != nil {
			return renderErr
		}

		return WrapExitError(ExitFailure, "sync incomplete", err)
	}

	return renderFavorites(a, "Synced favorites")
}

func runStatus(ctx context.Context, a *app, _ []string) error {
	out := FavoritesStatus{
		Account: currentAccount(a),
		Status:  a.engine.Status().String(),
		Remote:  "ok",
	}

	hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := a.remote.Healthy(hctx); err != nil {
		a.logger.Debug("remote health check failed", slog.String("error", err.Error()))
		out.Remote = "unreachable"
	}

	return a.out.Render(out, func(w io.Writer) {
		fmt.Fprintln(w, titleStyle.Render("Favorites status"))
		fmt.Fprintf(w, "favorites: %d (%s)\n", out.Favorites, out.Status)

		if out.SignedIn {
			fmt.Fprintf(w, "account:   %s\n", out.Email)
		} else {
			fmt.Fprintln(w, "account:   "+mutedStyle.Render("not signed in"))
		}

		if out.LastSync != nil {
			fmt.Fprintf(w, "last sync: %s\n", out.LastSync.Local().Format(time.RFC1123))
		}

		server := okStyle.Render(out.Remote)
		if out.Remote != "ok" {
			server = warnStyle.Render(out.Remote)
		}

		fmt.Fprintf(w, "server:    %s %s\n", a.cfg.RemoteURL, server)
	})
}
