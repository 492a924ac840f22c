// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger used across gemchat.
//
// Logs go to a size-rotated file so the full-screen UI is never written over.
// Messages are event names in the EVENT_NAME style with key/value pairs:
//
//	logger.Info("EXCHANGE_COMPLETE", "exchange", id, "fragments", n)
//
// Secrets (API keys, passwords) must never be passed to the logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Path is the log file. Empty disables the file sink.
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int

	// Mirror, when set, also receives every record (stderr for --verbose).
	Mirror io.Writer
}

// New returns a logger writing to a rotating file and the optional mirror.
// The returned closer releases the file handle.
func New(opts Options) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			LocalTime:  true,
		}
		writers = append(writers, rotator)
		closer = rotator
	}
	if opts.Mirror != nil {
		writers = append(writers, opts.Mirror)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Formatter:       log.LogfmtFormatter,
	})
	return logger, closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
