package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alexjbarnes/reel-sync/internal/remote"
	"github.com/spf13/cobra"
)

// ChangeEvent is one line of watch output.
type ChangeEvent struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Count int    `json:"favorites"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow account changes made on other devices",
		Long: `Follow the account's change feed and keep this device's favorites in
step. Changes made on other devices are applied here as they arrive.
Runs until interrupted; the feed reconnects on its own after network
failures and syncs once it is back.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, runWatch),
	}
}

func runWatch(ctx context.Context, a *app, _ []string) error {
	s, err := a.requireSession()
	if err != nil {
		return err
	}

	// Start runs the sign-in sync for the cached session.
	a.engine.Start()

	if err := a.out.Message(fmt.Sprintf("watching favorites for %s, Ctrl-C to stop", s.Email)); err != nil {
		return err
	}

	onChange := func(c remote.Change) {
		switch {
		case c.Op == "delete" || c.Record != nil:
			if !a.engine.ApplyRemote(c.ID, c.Record) {
				return
			}
		default:
			// A put without a usable record: fetch the list instead.
			if err := a.engine.Sync().Wait(ctx); err != nil {
				a.logger.Warn("sync after remote change failed", slog.String("error", err.Error()))
			}
		}

		ev := ChangeEvent{Op: c.Op, ID: c.ID.Key(), Count: len(a.engine.Favorites())}
		if c.Record != nil {
			ev.Title = c.Record.Title
		}

		if err := a.out.Render(ev, func(w io.Writer) { printChange(w, ev) }); err != nil {
			a.logger.Warn("writing change failed", slog.String("error", err.Error()))
		}
	}

	resync := func() {
		a.engine.Sync()
	}

	if err := a.remote.Follow(ctx, s, onChange, resync); err != nil {
		return WrapExitError(ExitFailure, "change feed", err)
	}

	return nil
}

func printChange(w io.Writer, ev ChangeEvent) {
	label := ev.ID
	if ev.Title != "" {
		label = fmt.Sprintf("%s (%s)", ev.Title, ev.ID)
	}

	sign := warnStyle.Render("-")
	if ev.Op == "put" {
		sign = okStyle.Render("+")
	}

	fmt.Fprintf(w, "%s %s  %s\n", sign, label, mutedStyle.Render(fmt.Sprintf("%d favorites", ev.Count)))
}
