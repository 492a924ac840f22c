// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/gemchat/internal/auth"
	"github.com/jeranaias/gemchat/internal/conversation"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/ui/chat"
	"github.com/jeranaias/gemchat/internal/ui/login"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Sessions is the credential store as the app uses it.
type Sessions interface {
	login.Authenticator
	Logout(ctx context.Context) error
	CurrentIdentity(ctx context.Context) (auth.User, bool, error)
}

// Controller is the conversation controller as the app uses it.
type Controller interface {
	chat.Controller
	SetIdentity(ctx context.Context, identity string) error
	ClearIdentity()
	Subscribe(fn func(conversation.Snapshot)) (unsubscribe func())
}

// Screen identifies the visible screen.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenChat
)

type identitySetMsg struct {
	identity string
	err      error
}

type loggedOutMsg struct {
	err error
}

// =============================================================================
// APP MODEL
// =============================================================================

// App is the root Bubble Tea model.
type App struct {
	ctx      context.Context
	sessions Sessions
	ctrl     Controller
	logger   *log.Logger
	quit     key.Binding

	screen   Screen
	restored string
	login    login.Model
	chat     chat.Model
}

// NewApp creates the root model. A non-empty restored identity opens the
// chat screen directly, as after a previous login.
func NewApp(ctx context.Context, sessions Sessions, ctrl Controller, theme *styles.Theme, logger *log.Logger, restored string) App {
	if logger == nil {
		logger = logging.Discard()
	}
	a := App{
		ctx:      ctx,
		sessions: sessions,
		ctrl:     ctrl,
		logger:   logger,
		quit:     login.DefaultKeyMap().Quit,
		screen:   ScreenLogin,
		restored: restored,
		login:    login.New(sessions, theme),
		chat:     chat.New(ctx, ctrl, theme),
	}
	if restored != "" {
		a.screen = ScreenChat
	}
	return a
}

// Screen returns the visible screen.
func (a App) Screen() Screen { return a.screen }

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.login.Init(), a.chat.Init()}
	if a.restored != "" {
		cmds = append(cmds, a.setIdentity(a.restored))
	}
	return tea.Batch(cmds...)
}

func (a App) setIdentity(identity string) tea.Cmd {
	ctx, ctrl := a.ctx, a.ctrl
	return func() tea.Msg {
		return identitySetMsg{identity: identity, err: ctrl.SetIdentity(ctx, identity)}
	}
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, a.quit) {
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		var cmdLogin, cmdChat tea.Cmd
		a.login, cmdLogin = a.login.Update(msg)
		a.chat, cmdChat = a.chat.Update(msg)
		return a, tea.Batch(cmdLogin, cmdChat)

	case login.LoggedInMsg:
		a.logger.Info("TUI_LOGIN", "identity", msg.User.Email)
		a.screen = ScreenChat
		a.login = a.login.Reset()
		return a, a.setIdentity(msg.User.Email)

	case identitySetMsg:
		if msg.err != nil {
			a.logger.Warn("TUI_IDENTITY_DEFERRED", "identity", msg.identity, "error", msg.err)
			a.chat = a.chat.WithNotice(msg.err.Error())
		}
		return a, nil

	case chat.LogoutMsg:
		a.logger.Info("TUI_LOGOUT")
		a.screen = ScreenLogin
		a.chat = a.chat.Reset()
		ctx, sessions, ctrl := a.ctx, a.sessions, a.ctrl
		return a, func() tea.Msg {
			err := sessions.Logout(ctx)
			ctrl.ClearIdentity()
			return loggedOutMsg{err: err}
		}

	case loggedOutMsg:
		if msg.err != nil {
			a.logger.Error("TUI_LOGOUT_FAILED", "error", msg.err)
		}
		return a, nil

	case chat.SnapshotMsg:
		var cmd tea.Cmd
		a.chat, cmd = a.chat.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	if a.screen == ScreenChat {
		a.chat, cmd = a.chat.Update(msg)
	} else {
		a.login, cmd = a.login.Update(msg)
	}
	return a, cmd
}

// View implements tea.Model.
func (a App) View() string {
	if a.screen == ScreenChat {
		return a.chat.View()
	}
	return a.login.View()
}

// =============================================================================
// RUN
// =============================================================================

// Options configures Run.
type Options struct {
	Sessions   Sessions
	Controller Controller
	Logger     *log.Logger
	// RenderFPS caps streaming redraws; 0 means DefaultRenderFPS.
	RenderFPS int
}

// Run shows the TUI until the user quits or ctx ends. The current identity,
// if any, is restored first.
func Run(ctx context.Context, opts Options) error {
	restored := ""
	user, ok, err := opts.Sessions.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("read current user: %w", err)
	}
	if ok {
		restored = user.Email
	}

	app := NewApp(ctx, opts.Sessions, opts.Controller, styles.NewTheme(), opts.Logger, restored)
	p := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	bridge := NewBridge(p.Send, opts.RenderFPS)
	unsubscribe := opts.Controller.Subscribe(bridge.Publish)
	defer unsubscribe()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go bridge.Run(pumpCtx)

	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			// Interrupted from outside; not a failure of the program.
			return nil
		}
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
