package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	authkit "github.com/chimerakang/authkit-go"
)

func (c *cli) signUpCmd() *cobra.Command {
	var req authkit.SignUpRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Long: `Register a new account through the backend API, falling back to the identity
provider when the backend cannot serve the request.

Examples:
  authkit signup --email user@example.com --password 'S3cret!pass' --name "Jo Doe"
  authkit confirm --email user@example.com --code 123456`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Email == "" || req.Password == "" {
				return errors.New("--email and --password are required")
			}
			res, err := c.app.Flows.SignUp(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("sign up failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %s (via %s)\n", authkit.NormalizeEmail(req.Email), res.Source)
			if !res.UserConfirmed {
				fmt.Fprintln(out, "Check your email for a confirmation code, then run 'authkit confirm'.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "phone number in E.164 format")
	cmd.Flags().StringToStringVar(&req.Attributes, "attr", nil, "extra profile attributes (key=value)")
	return c.needsSession(cmd)
}

func (c *cli) confirmCmd() *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a registration with the emailed code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || code == "" {
				return errors.New("--email and --code are required")
			}
			res, err := c.app.Flows.ConfirmSignUp(cmd.Context(), email, code)
			if err != nil {
				return fmt.Errorf("confirm failed: %w", err)
			}
			printResult(cmd, "Account confirmed.", res)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "confirmation code")
	return c.needsSession(cmd)
}

func (c *cli) resendCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Resend the registration confirmation code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			res, err := c.app.Flows.ResendConfirmationCode(cmd.Context(), email)
			if err != nil {
				return fmt.Errorf("resend failed: %w", err)
			}
			printResult(cmd, "Confirmation code sent.", res)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return c.needsSession(cmd)
}

func (c *cli) forgotCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Start a password reset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if _, err := c.app.Flows.ForgotPassword(cmd.Context(), email); err != nil {
				return fmt.Errorf("password reset failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset code has been sent.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return c.needsSession(cmd)
}

func (c *cli) resetCmd() *cobra.Command {
	var email, code, password string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Complete a password reset with the emailed code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || code == "" || password == "" {
				return errors.New("--email, --code and --password are required")
			}
			res, err := c.app.Flows.ConfirmForgotPassword(cmd.Context(), email, code, password)
			if err != nil {
				return fmt.Errorf("password reset failed: %w", err)
			}
			printResult(cmd, "Password reset.", res)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "reset code")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return c.needsSession(cmd)
}

func printResult(cmd *cobra.Command, fallback string, res *authkit.Result) {
	msg := fallback
	if res != nil && res.Message != "" {
		msg = res.Message
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
}
