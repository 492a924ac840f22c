// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// =============================================================================
// PROMPTER
// =============================================================================

// prompter reads answers from the command's input. Secrets are read without
// echo when the input is a terminal.
type prompter struct {
	in  io.Reader
	out io.Writer
	br  *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, out: cmd.OutOrStdout(), br: bufio.NewReader(in)}
}

// terminal returns the input file when it is a terminal.
func (p *prompter) terminal() (*os.File, bool) {
	f, ok := p.in.(*os.File)
	if !ok || !isTerminal(f) {
		return nil, false
	}
	return f, true
}

// Line prints label and returns the next input line without its newline.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Secret is Line without echo on a terminal.
func (p *prompter) Secret(label string) (string, error) {
	f, ok := p.terminal()
	if !ok {
		return p.Line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// Confirm asks a yes/no question; anything but y or yes is no.
func (p *prompter) Confirm(question string) (bool, error) {
	answer, err := p.Line(question + " [y/N] ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// =============================================================================
// REPL LINE SOURCE
// =============================================================================

// lineSource feeds the chat REPL. Prompt returns io.EOF when input ends.
type lineSource interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// newLineSource uses liner with persistent input history on a terminal and
// the plain prompter otherwise.
func newLineSource(p *prompter, historyFile string) lineSource {
	if f, ok := p.terminal(); ok && f == os.Stdin {
		return newLinerSource(historyFile)
	}
	return plainSource{p: p}
}

type plainSource struct {
	p *prompter
}

func (s plainSource) Prompt(prompt string) (string, error) {
	return s.p.Line(prompt)
}

func (plainSource) Close() error { return nil }

// linerSource provides line editing and arrow-key history.
type linerSource struct {
	line        *liner.State
	historyFile string
}

func newLinerSource(historyFile string) *linerSource {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	s := &linerSource{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return s
}

func (s *linerSource) Prompt(prompt string) (string, error) {
	input, err := s.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		s.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the input history (0600) and restores the terminal.
func (s *linerSource) Close() error {
	defer s.line.Close()

	if err := os.MkdirAll(filepath.Dir(s.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = s.line.WriteHistory(f)
	return err
}
