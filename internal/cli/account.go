package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/alexjbarnes/reel-sync/internal/session"
	"github.com/spf13/cobra"
)

// AccountOptions holds flags for signup and signin.
type AccountOptions struct {
	*RootOptions
	Email    string
	Password string
}

// Account is the output of the account commands.
type Account struct {
	SignedIn  bool       `json:"signed_in"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	Favorites int        `json:"favorites"`
}

type authFunc func(ctx context.Context, email, password string) (session.Session, error)

func newAccountCommand(rootOpts *RootOptions, use, short string, pick func(a *app) authFunc) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `. Favorites saved on this device are merged into the
account and the account's favorites are copied here.

Email and password default to REEL_SYNC_EMAIL and REEL_SYNC_PASSWORD. When
no password is given it is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, _ []string) error {
			return runAccount(ctx, a, opts, pick(a), readLine(a))
		}),
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")

	return cmd
}

// NewSignUpCommand creates the signup command.
func NewSignUpCommand(rootOpts *RootOptions) *cobra.Command {
	return newAccountCommand(rootOpts, "signup", "Create an account and sign in",
		func(a *app) authFunc { return a.remote.SignUp })
}

// NewSignInCommand creates the signin command.
func NewSignInCommand(rootOpts *RootOptions) *cobra.Command {
	return newAccountCommand(rootOpts, "signin", "Sign in to an existing account",
		func(a *app) authFunc { return a.remote.SignIn })
}

func runAccount(ctx context.Context, a *app, opts *AccountOptions, auth authFunc, prompt func() (string, error)) error {
	email := opts.Email
	if email == "" {
		email = a.cfg.Email
	}

	if email == "" {
		return WrapExitError(ExitCommandError, "--email or REEL_SYNC_EMAIL is required", nil)
	}

	password := opts.Password
	if password == "" {
		password = a.cfg.Password
	}

	if password == "" {
		p, err := prompt()
		if err != nil {
			return WrapExitError(ExitCommandError, "reading password", err)
		}

		password = p
	}

	s, err := auth(ctx, email, password)

	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrEmailTaken):
		return WrapExitError(ExitFailure, err.Error(), nil)
	case err != nil:
		return WrapExitError(ExitFailure, "contacting server", err)
	}

	// The fresh session replaces any cached one before the engine starts,
	// so the sign-in sync runs with the new token even when the cached
	// session belongs to the same user.
	a.sessions.Set(s)
	a.engine.Start()
	a.engine.Wait()

	return renderAccount(a)
}

func readLine(a *app) func() (string, error) {
	return func() (string, error) {
		fmt.Fprint(a.errOut, "Password: ")

		scanner := bufio.NewScanner(a.in)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}

			return "", io.ErrUnexpectedEOF
		}

		fmt.Fprintln(a.errOut)

		return strings.TrimSpace(scanner.Text()), nil
	}
}

func currentAccount(a *app) Account {
	out := Account{Favorites: len(a.engine.Favorites())}

	s, ok := a.sessions.Current()
	if !ok {
		return out
	}

	out.SignedIn = true
	out.UserID = s.UserID
	out.Email = s.Email

	if last := a.state.LastSync(s.UserID); !last.IsZero() {
		out.LastSync = &last
	}

	return out
}

func renderAccount(a *app) error {
	acct := currentAccount(a)

	return a.out.Render(acct, func(w io.Writer) {
		if !acct.SignedIn {
			fmt.Fprintln(w, mutedStyle.Render("not signed in"))
			fmt.Fprintf(w, "%d favorites on this device\n", acct.Favorites)

			return
		}

		fmt.Fprintln(w, okStyle.Render("signed in as "+acct.Email))
		fmt.Fprintf(w, "user id:   %s\n", acct.UserID)
		fmt.Fprintf(w, "favorites: %d\n", acct.Favorites)

		if acct.LastSync != nil {
			fmt.Fprintf(w, "last sync: %s\n", acct.LastSync.Local().Format(time.RFC1123))
		} else {
			fmt.Fprintln(w, warnStyle.Render("not synced yet"))
		}
	})
}

// NewSignOutCommand creates the signout command.
func NewSignOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out; favorites stay on this device",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(_ context.Context, a *app, _ []string) error {
			if _, ok := a.sessions.Current(); !ok {
				return a.out.Message("already signed out")
			}

			a.sessions.Clear()

			return a.out.Message("signed out")
		}),
	}
}

// NewWhoAmICommand creates the whoami command.
func NewWhoAmICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(_ context.Context, a *app, _ []string) error {
			return renderAccount(a)
		}),
	}
}
