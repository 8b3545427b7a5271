package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/catalog"
	"github.com/alexjbarnes/reel-sync/internal/config"
	"github.com/alexjbarnes/reel-sync/internal/favorites"
	"github.com/alexjbarnes/reel-sync/internal/logging"
	"github.com/alexjbarnes/reel-sync/internal/remote"
	"github.com/alexjbarnes/reel-sync/internal/session"
	"github.com/alexjbarnes/reel-sync/internal/state"
	"github.com/spf13/cobra"
)

// app is the object graph one command invocation runs against.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	state    *state.State
	sessions *session.Tracker
	remote   *remote.Client
	catalog  *catalog.Client // nil without TMDB_API_KEY
	engine   *favorites.Engine
	out      *OutputFormatter
	in       io.Reader
	errOut   io.Writer

	unsubscribe func()
}

func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	logger := logging.NewLoggerTo(cfg.Environment, cmd.ErrOrStderr())
	if opts.Quiet {
		logger = logging.Discard()
	}

	st, err := state.LoadAt(cfg.StatePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening state", err)
	}

	tracker := session.NewTracker()

	cached, err := st.Session()
	switch {
	case err != nil:
		logger.Warn("cached session unreadable, signed out", slog.String("error", err.Error()))
	case cached != nil:
		tracker.Set(*cached)
	}

	// Registered before the engine subscribes, so a session is on disk
	// before the sync it triggers starts.
	unsubscribe := tracker.Subscribe(func(s session.Session, ok bool) {
		if !ok {
			if err := st.ClearSession(); err != nil {
				logger.Warn("failed to clear cached session", slog.String("error", err.Error()))
			}

			return
		}

		if err := st.SetSession(s); err != nil {
			logger.Warn("failed to cache session", slog.String("error", err.Error()))
		}
	})

	remoteClient := remote.NewClient(cfg.RemoteURL, nil, logger.With(slog.String("component", "remote")))

	var cat *catalog.Client
	if cfg.TMDBAPIKey != "" {
		cat = catalog.NewClient(catalog.Options{
			BaseURL:   cfg.TMDBBaseURL,
			APIKey:    cfg.TMDBAPIKey,
			RateLimit: cfg.TMDBRateLimit,
			Logger:    logger.With(slog.String("component", "catalog")),
		})
	}

	engine := favorites.New(favorites.Config{
		Local:    favorites.NewLocalStore(st, logger),
		Remote:   remoteClient,
		Sessions: tracker,
		Logger:   logger.With(slog.String("component", "favorites")),
		OnSynced: func(userID string, at time.Time) {
			if err := st.SetLastSync(userID, at); err != nil {
				logger.Warn("failed to record sync time", slog.String("error", err.Error()))
			}
		},
	})
	engine.Hydrate()

	return &app{
		cfg:         cfg,
		logger:      logger,
		state:       st,
		sessions:    tracker,
		remote:      remoteClient,
		catalog:     cat,
		engine:      engine,
		out:         &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
		in:          cmd.InOrStdin(),
		errOut:      cmd.ErrOrStderr(),
		unsubscribe: unsubscribe,
	}, nil
}

// Close waits for background remote writes, then releases the state file.
func (a *app) Close() {
	a.engine.Close()
	a.unsubscribe()

	if err := a.state.Close(); err != nil {
		a.logger.Warn("closing state failed", slog.String("error", err.Error()))
	}
}

// requireCatalog returns the catalog client or a command error naming the
// missing key.
func (a *app) requireCatalog() (*catalog.Client, error) {
	if err := a.cfg.RequireCatalog(); err != nil {
		return nil, WrapExitError(ExitCommandError, "catalog unavailable", err)
	}

	return a.catalog, nil
}

// requireSession returns the signed-in session or a command error.
func (a *app) requireSession() (session.Session, error) {
	s, ok := a.sessions.Current()
	if !ok {
		return session.Session{}, WrapExitError(ExitCommandError, "not signed in", nil)
	}

	return s, nil
}

// withApp adapts fn into a cobra RunE that opens and closes the app
// around it.
func withApp(opts *RootOptions, fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		return fn(ctx, a, args)
	}
}
