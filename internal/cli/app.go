// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jeranaias/gemchat/internal/auth"
	"github.com/jeranaias/gemchat/internal/cloud"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/conversation"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/kv"
	"github.com/jeranaias/gemchat/internal/logging"
)

// =============================================================================
// SHARED COMMAND STATE
// =============================================================================

// shared is the state every command in one tree sees.
type shared struct {
	opts *globalOptions
	cfg  *config.Config
}

// configFile returns the --config path or the default location.
func (s *shared) configFile() (string, error) {
	if s.opts.configPath != "" {
		return s.opts.configPath, nil
	}
	return config.DefaultPath()
}

// config loads the configuration once and applies --data-dir.
func (s *shared) config() (*config.Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	path, err := s.configFile()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if s.opts.dataDir != "" {
		cfg.DataDir = s.opts.dataDir
	}
	config.SetGlobal(cfg)
	s.cfg = cfg
	return cfg, nil
}

// withApp wraps fn so it runs against an opened App that is closed after.
// mirror allows --verbose to copy log records to stderr; the TUI never does.
func (s *shared) withApp(mirror bool, fn func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := s.open(cmd, mirror)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, args, app)
	}
}

// =============================================================================
// APP
// =============================================================================

// App is the wired set of services a command works with.
type App struct {
	Config     *config.Config
	DataDir    string
	Logger     *log.Logger
	KV         kv.Store
	Auth       *auth.Store
	History    *history.Store
	Adapter    *cloud.Adapter
	Controller *conversation.Controller

	logCloser io.Closer
}

func (s *shared) open(cmd *cobra.Command, mirror bool) (*App, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return nil, err
	}
	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}

	var mirrorTo io.Writer
	if mirror && s.opts.verbose {
		mirrorTo = cmd.ErrOrStderr()
	}
	logger, logCloser, err := logging.New(logging.Options{
		Path:       logPath,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Mirror:     mirrorTo,
	})
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(cfg.Store.Backend, dataDir)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	hist := history.NewStore(store, logger)
	adapter := cloud.NewAdapter(cloud.Connector(cfg, logger), logger)

	logger.Debug("APP_OPEN", "command", cmd.CommandPath(), "backend", cfg.Store.Backend,
		"provider", cfg.Provider, "model", cfg.Model(), "data_dir", dataDir)

	return &App{
		Config:     cfg,
		DataDir:    dataDir,
		Logger:     logger,
		KV:         store,
		Auth:       auth.NewStore(store, auth.WithLogger(logger), auth.WithLatency(cfg.AuthLatency())),
		History:    hist,
		Adapter:    adapter,
		Controller: conversation.New(hist, conversation.AdapterOpener(adapter), conversation.WithLogger(logger)),
		logCloser:  logCloser,
	}, nil
}

// Close releases the store and the log file.
func (a *App) Close() error {
	return errors.Join(a.KV.Close(), a.logCloser.Close())
}
