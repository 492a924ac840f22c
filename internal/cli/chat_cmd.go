// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/cloud"
	"github.com/jeranaias/gemchat/internal/conversation"
	"github.com/jeranaias/gemchat/internal/model"
)

const chatHelp = `Commands:
  /new      start a new chat (clears this account's history)
  /logout   log out and leave
  /quit     leave (also /exit, Ctrl+D)
  /help     show this help`

func newChatCommand(s *shared) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat in a plain line-based REPL",
		Long: `Chat with the model without the full-screen UI. Replies stream to stdout
as they arrive. The conversation is the same one the UI shows.`,
		Args: cobra.NoArgs,
		RunE: s.withApp(true, runChat),
	}
}

func runChat(cmd *cobra.Command, _ []string, app *App) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	user, err := currentUser(cmd, app)
	if err != nil {
		return err
	}
	if err := app.Controller.SetIdentity(ctx, user.Email); err != nil {
		if !errors.Is(err, cloud.ErrConfiguration) {
			return err
		}
		fmt.Fprintln(errOut, WarningStyle.Render("Warning:"), err)
	}
	defer app.Controller.ClearIdentity()

	printer := &streamPrinter{w: out}
	unsubscribe := app.Controller.Subscribe(printer.observe)
	defer unsubscribe()

	src := newLineSource(newPrompter(cmd), filepath.Join(app.DataDir, "chat_input_history"))
	defer src.Close()

	n := len(app.Controller.Snapshot().Messages)
	fmt.Fprintln(out, TitleStyle.Render("gemchat"), DimStyle.Render(
		fmt.Sprintf("%s, %d messages in history. Type /help for commands.", user.Email, n)))

	for {
		input, err := src.Prompt(UserPromptStyle.Render("you>") + " ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			done, err := runSlashCommand(cmd, app, input)
			if err != nil {
				fmt.Fprintln(errOut, ErrorStyle.Render("Error:"), err)
			}
			if done {
				return nil
			}
			continue
		}

		if err := exchange(cmd, app.Controller, printer, input); err != nil {
			fmt.Fprintln(errOut, ErrorStyle.Render("Error:"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runSlashCommand handles a REPL command and reports whether to leave.
func runSlashCommand(cmd *cobra.Command, app *App, input string) (bool, error) {
	out := cmd.OutOrStdout()
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit":
		return true, nil
	case "/new":
		if err := app.Controller.NewChat(cmd.Context()); err != nil {
			return false, err
		}
		fmt.Fprintln(out, DimStyle.Render("Started a new chat."))
		return false, nil
	case "/logout":
		if err := app.Auth.Logout(cmd.Context()); err != nil {
			return false, err
		}
		app.Controller.ClearIdentity()
		fmt.Fprintln(out, "Logged out.")
		return true, nil
	case "/help":
		fmt.Fprintln(out, chatHelp)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", input)
	}
}

// exchange submits prompt and makes sure the committed reply ends up on out,
// including the fallback text when the stream failed.
func exchange(cmd *cobra.Command, ctrl *conversation.Controller, printer *streamPrinter, prompt string) error {
	out := cmd.OutOrStdout()
	before := len(ctrl.Snapshot().Messages)
	fmt.Fprint(out, AssistantPromptStyle.Render("assistant>")+" ")
	printer.begin()
	err := ctrl.Submit(cmd.Context(), prompt)
	printed := printer.finish()

	msgs := ctrl.Snapshot().Messages
	if n := len(msgs); n > before && msgs[n-1].Role == model.RoleModel && printed != msgs[n-1].Text {
		if printed != "" {
			fmt.Fprintln(out)
		}
		fmt.Fprint(out, msgs[n-1].Text)
	}
	fmt.Fprintln(out)
	return err
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the new tail of each streaming snapshot.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	active  bool
	printed string
}

func (p *streamPrinter) begin() {
	p.mu.Lock()
	p.active = true
	p.printed = ""
	p.mu.Unlock()
}

// finish stops printing and returns everything written since begin.
func (p *streamPrinter) finish() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	return p.printed
}

func (p *streamPrinter) observe(s conversation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || s.State != conversation.StateStreaming {
		return
	}
	if strings.HasPrefix(s.Streaming, p.printed) && len(s.Streaming) > len(p.printed) {
		io.WriteString(p.w, s.Streaming[len(p.printed):])
		p.printed = s.Streaming
	}
}
