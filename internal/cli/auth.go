package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/recipebox/internal/identity"
	"github.com/idilsaglam/recipebox/internal/ui"
)

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign out and inspect the current user",
	}
	cmd.AddCommand(newAuthLoginCmd(app))
	cmd.AddCommand(newAuthLogoutCmd(app))
	cmd.AddCommand(newAuthStatusCmd(app))
	cmd.AddCommand(newAuthWhoamiCmd(app))
	return cmd
}

func newAuthLoginCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in (opens a browser for the http backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := app.controller(cmd, nil)
			if err != nil {
				return err
			}
			u, err := ctrl.SignIn(cmd.Context())
			if err != nil {
				return err
			}
			ui.OK(cmd.OutOrStdout(), "signed in as "+u.Label())
			return nil
		},
	}
}

func newAuthLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := app.controller(cmd, nil)
			if err != nil {
				return err
			}
			ctrl.Resume(cmd.Context())
			if err := ctrl.SignOut(cmd.Context()); err != nil {
				// Local state is gone either way.
				ui.Warn(cmd.ErrOrStderr(), err.Error())
			}
			ui.OK(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved sign-in without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := app.backend(cmd, nil); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			t := ui.Current()
			if app.server == nil {
				p := app.localUser()
				ui.Panel(out, []string{
					ui.C(t.Title, "Local user") + "  " + p.User.Label(),
					ui.C(t.Muted, "backend "+app.cfg.Backend),
				})
				return nil
			}
			st, err := app.server.State()
			if errors.Is(err, identity.ErrNoState) {
				ui.Warn(out, "not signed in")
				return nil
			}
			if err != nil {
				return err
			}
			lines := []string{
				ui.C(t.Title, "Signed in") + "  " + st.User.Label(),
				ui.C(t.Muted, "server  ") + st.ServerURL,
			}
			if !st.ExpiresAt.IsZero() {
				exp := st.ExpiresAt.Local().Format(time.RFC1123)
				if st.Expired(time.Now()) {
					exp = ui.C(t.Error, exp+" (expired)")
				}
				lines = append(lines, ui.C(t.Muted, "expires ")+exp)
			}
			ui.Panel(out, lines)
			return nil
		},
	}
}

func newAuthWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Ask the identity service who the saved token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := app.controller(cmd, nil)
			if err != nil {
				return err
			}
			if app.server != nil {
				u, err := app.server.WhoAmI(cmd.Context())
				if err != nil {
					return fmt.Errorf("whoami: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.ID, u.Label())
				return nil
			}
			u, ok := ctrl.Resume(cmd.Context())
			if !ok {
				return errNotSignedIn
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u.ID, u.Label())
			return nil
		},
	}
}
