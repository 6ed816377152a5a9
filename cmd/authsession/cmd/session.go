package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/jwt"
)

const passwordEnv = "AUTHSESSION_PASSWORD"

type credentialFlags struct {
	email    string
	password string
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&c.password, "password", "p", "", "Account password (or $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
}

func (c *credentialFlags) resolvedPassword() (string, error) {
	if c.password != "" {
		return c.password, nil
	}
	if p := os.Getenv(passwordEnv); p != "" {
		return p, nil
	}
	return "", errors.New("a password is required: use --password or $" + passwordEnv)
}

func newRegisterCmd(opts *options) *cobra.Command {
	var creds credentialFlags
	var firstName, lastName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account; does not log in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := creds.resolvedPassword()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.manager.Register(cmd.Context(), authsession.RegisterRequest{
				Email:     creds.email,
				Password:  password,
				FirstName: firstName,
				LastName:  lastName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (id %s). Run \"authsession login\" to start a session.\n",
				rec.User.Email, rec.User.ID)
			return nil
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := creds.resolvedPassword()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.manager.Login(cmd.Context(), authsession.LoginRequest{Email: creds.email, Password: password}); err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), a.manager)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// statusView is the --json shape of "status". The access token is never printed.
type statusView struct {
	LoggedIn  bool              `json:"loggedIn"`
	User      *authsession.User `json:"user,omitempty"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Restore the persisted session and show it",
		Long: `Restores the persisted session and prints it. An expired or unreadable session is
removed from the store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), opts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.close()

			a.manager.Restore(cmd.Context())
			if asJSON {
				return writeStatusJSON(cmd.OutOrStdout(), a.manager)
			}
			printState(cmd.OutOrStdout(), a.manager)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func writeStatusJSON(w io.Writer, m *authsession.Manager) error {
	view := statusView{LoggedIn: m.LoggedIn()}
	if u, ok := m.User(); ok {
		view.User = u
	}
	if exp, ok := tokenExpiry(m); ok {
		view.ExpiresAt = &exp
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func printState(w io.Writer, m *authsession.Manager) {
	u, ok := m.User()
	if !ok {
		fmt.Fprintln(w, "Not logged in.")
		return
	}
	fmt.Fprintf(w, "Logged in as %s <%s> (id %s).\n", u.DisplayName(), u.Email, u.ID)
	if exp, ok := tokenExpiry(m); ok {
		fmt.Fprintf(w, "Session expires at %s (in %s).\n",
			exp.Local().Format(time.RFC3339), time.Until(exp).Round(time.Second))
	} else {
		fmt.Fprintln(w, "Session has no known expiration.")
	}
}

// tokenExpiry reads the exp claim of the active token. The scheduler deadline is not
// used: it is unset when auto-logout is not re-armed on restore.
func tokenExpiry(m *authsession.Manager) (time.Time, bool) {
	token, ok := m.AccessToken()
	if !ok {
		return time.Time{}, false
	}
	return jwt.NewInspector().ExpirationOf(token)
}
