package cli

import (
	"context"
	"log/slog"

	"github.com/alexjbarnes/reel-sync/internal/mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve favorites and catalog tools over MCP stdio",
		Long: `Serve the favorites and catalog tools to an MCP client over stdin and
stdout. Logs go to stderr. Movie tools need TMDB_API_KEY; favorites tools
work without it.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, _ []string) error {
			deps := mcpserver.Deps{
				Favorites: a.engine,
				Sessions:  a.sessions,
				Logger:    a.logger.With(slog.String("service", "mcp")),
			}

			// A nil *catalog.Client must not become a non-nil interface.
			if a.catalog != nil {
				deps.Catalog = a.catalog
			}

			server := mcp.NewServer(
				&mcp.Implementation{Name: "reel-sync", Version: rootOpts.Version},
				nil,
			)
			mcpserver.RegisterTools(server, deps)

			a.engine.Start()

			a.logger.Info("serving MCP over stdio", slog.Bool("catalog", a.catalog != nil))

			if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return WrapExitError(ExitFailure, "MCP server", err)
			}

			return nil
		}),
	}
}
