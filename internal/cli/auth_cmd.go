// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/auth"
	"github.com/jeranaias/gemchat/internal/util"
)

var (
	errNotLoggedIn      = errors.New("not logged in (run 'gemchat login')")
	errPasswordMismatch = errors.New("passwords do not match")
)

// askEmail returns the --email value or prompts for it, without surrounding
// whitespace.
func askEmail(p *prompter, email string) (string, error) {
	if !util.IsBlank(email) {
		return strings.TrimSpace(email), nil
	}
	line, err := p.Line("Email: ")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// SIGNUP
// =============================================================================

func newSignupCommand(s *shared) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a local account",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			p := newPrompter(cmd)
			addr, err := askEmail(p, email)
			if err != nil {
				return err
			}
			password, err := p.Secret("Password: ")
			if err != nil {
				return err
			}
			confirm, err := p.Secret("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return errPasswordMismatch
			}

			if err := app.Auth.Signup(cmd.Context(), addr, password); err != nil {
				return fmt.Errorf("signup failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Account created successfully!"),
				"Log in with: gemchat login --email", addr)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

// =============================================================================
// LOGIN / LOGOUT / WHOAMI
// =============================================================================

func newLoginCommand(s *shared) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a local account",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			p := newPrompter(cmd)
			addr, err := askEmail(p, email)
			if err != nil {
				return err
			}
			password, err := p.Secret("Password: ")
			if err != nil {
				return err
			}

			user, err := app.Auth.Login(cmd.Context(), addr, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Logged in as"), user.Email)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCommand(s *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			if err := app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		}),
	}
}

func newWhoamiCommand(s *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the logged-in email",
		Args:  cobra.NoArgs,
		RunE: s.withApp(true, func(cmd *cobra.Command, _ []string, app *App) error {
			user, err := currentUser(cmd, app)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.Email)
			return nil
		}),
	}
}

// currentUser returns the logged-in user or errNotLoggedIn.
func currentUser(cmd *cobra.Command, app *App) (auth.User, error) {
	user, ok, err := app.Auth.CurrentIdentity(cmd.Context())
	if err != nil {
		return auth.User{}, err
	}
	if !ok {
		return auth.User{}, errNotLoggedIn
	}
	return user, nil
}
