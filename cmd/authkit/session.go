package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	authkit "github.com/chimerakang/authkit-go"
)

func (c *cli) signInCmd() *cobra.Command {
	var email, password, googleToken string
	var apple authkit.AppleCredential

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and persist the session",
		Long: `Sign in with email and password, or with a Google or Apple credential
exchanged through the backend API.

The password is read from standard input when --password is not given.

Examples:
  authkit signin --email user@example.com
  echo "$PASSWORD" | authkit signin --email user@example.com
  authkit signin --google-id-token "$GOOGLE_ID_TOKEN"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				user *authkit.User
				err  error
			)
			switch {
			case googleToken != "":
				user, err = c.app.Session.SignInWithGoogle(ctx, googleToken)
			case apple.IdentityToken != "":
				user, err = c.app.Session.SignInWithApple(ctx, apple)
			default:
				if email == "" {
					return errors.New("--email is required")
				}
				if password == "" {
					if password, err = readSecret(cmd, "Password: "); err != nil {
						return err
					}
				}
				user, err = c.app.Session.SignIn(ctx, email, password)
			}
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(user))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	cmd.Flags().StringVar(&googleToken, "google-id-token", "", "Google ID token to exchange")
	cmd.Flags().StringVar(&apple.IdentityToken, "apple-identity-token", "", "Sign in with Apple identity token")
	cmd.Flags().StringVar(&apple.AuthorizationCode, "apple-authorization-code", "", "Sign in with Apple authorization code")
	cmd.Flags().StringVar(&apple.Nonce, "apple-nonce", "", "nonce used for the Apple request")
	return c.needsSession(cmd)
}

func (c *cli) signOutCmd() *cobra.Command {
	return c.needsSession(&cobra.Command{
		Use:   "signout",
		Short: "Sign out and remove the persisted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user := c.app.Session.Initialize(ctx)
			c.app.Session.SignOut(ctx)
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s\n", displayName(user))
			return nil
		},
	})
}

func (c *cli) whoAmICmd() *cobra.Command {
	return c.needsSession(&cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user := c.app.Session.Initialize(cmd.Context())
			if user == nil {
				return authkit.ErrNoAuthenticatedUser
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(user)
		},
	})
}

func (c *cli) tokenCmd() *cobra.Command {
	var id bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it when expired",
		RunE: func(cmd *cobra.Command, _ []string) error {
			get := c.app.Session.AccessToken
			if id {
				get = c.app.Session.IDToken
			}
			tok, err := get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().BoolVar(&id, "id", false, "print the ID token instead")
	return c.needsSession(cmd)
}

func (c *cli) refreshCmd() *cobra.Command {
	return c.needsSession(&cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.app.Session.Refresh(cmd.Context()) {
				if c.app.Session.IsAuthenticated() {
					return errors.New("refresh failed; the current session was kept")
				}
				return authkit.ErrNoAuthenticatedUser
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tokens refreshed.")
			return nil
		},
	})
}

func (c *cli) passwdCmd() *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the signed-in user's password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if oldPassword == "" || newPassword == "" {
				return errors.New("--old and --new are required")
			}
			if err := c.app.Session.ChangePassword(cmd.Context(), oldPassword, newPassword); err != nil {
				return fmt.Errorf("change password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	return c.needsSession(cmd)
}

// --- helpers ---

func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr())
	return strings.TrimRight(line, "\r\n"), nil
}

func displayName(u *authkit.User) string {
	switch {
	case u == nil:
		return "(unknown)"
	case u.Email != "":
		return u.Email
	case u.Username != "":
		return u.Username
	default:
		return u.ID
	}
}
