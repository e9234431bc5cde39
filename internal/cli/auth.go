package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/oauth"
	"github.com/rescale/drivectl/internal/session"
)

func newLoginCmd() *cobra.Command {
	var (
		token     string
		fromURL   string
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Drive",
		Long: `Sign in to Drive with your Google account.

By default a browser window opens on the sign-in page and drivectl waits
for the redirect on a local port. On a machine without a browser, either
paste the token directly or the full redirect URL you ended up on.

Examples:
  drivectl login
  drivectl login --no-browser
  drivectl login --token eyJhbGciOi...
  drivectl login --from-url 'http://localhost:3000/?token=eyJhbGciOi...'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			ctx := GetContext()
			out := cmd.OutOrStdout()

			switch {
			case token != "" && fromURL != "":
				return errors.New("use either --token or --from-url, not both")
			case token != "":
				if err := a.Session.SetToken(token); err != nil {
					return fmt.Errorf("failed to store token: %w", err)
				}
			case fromURL != "":
				if _, err := a.Session.ConsumeRedirect(fromURL); err != nil {
					return err
				}
				if a.Session.Token() == "" {
					return oauth.ErrNoToken
				}
			default:
				flow := oauth.NewFlow(a.Client.LoginURL, a.Session.ConsumeRedirect, a.Logger.Component("oauth"))
				flow.OnURL = func(u string) {
					fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", u)
				}
				if noBrowser {
					flow.OpenBrowser = nil
				}
				fmt.Fprintln(out, "Waiting for sign-in...")
				if err := flow.Run(ctx); err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
			}

			if err := a.Session.FetchUser(ctx); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if u := a.Session.User(); u != nil {
				fmt.Fprintf(out, "✓ Signed in as %s (%s)\n", u.Username, u.Email)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Use this session token instead of the browser flow")
	cmd.Flags().StringVar(&fromURL, "from-url", "", "Take the token from a login redirect URL")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			if err := a.Session.Logout(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := getApp()
			if err != nil {
				return err
			}
			if a.Session.State() == session.Anonymous {
				return errNotLoggedIn
			}
			if err := a.Session.FetchUser(GetContext()); err != nil {
				return err
			}
			u := a.Session.User()
			if u == nil {
				return errNotLoggedIn
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Username: %s\n", u.Username)
			fmt.Fprintf(out, "Email:    %s\n", u.Email)
			fmt.Fprintf(out, "ID:       %d\n", u.ID)
			return nil
		},
	}
}
