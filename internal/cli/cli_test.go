// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/auth"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/conversation"
	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/kv"
	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// HELPERS
// =============================================================================

type result struct {
	out    string
	errOut string
	err    error
}

// testEnv isolates a command run in dir from the user's real setup.
func testEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY",
		"GEMCHAT_PROVIDER", "GEMCHAT_DATA_DIR", "GEMCHAT_MODEL", "GEMCHAT_STORE", "GEMCHAT_LOG_LEVEL", "GEMCHAT_AUTH_LATENCY_MS"} {
		t.Setenv(k, "")
	}
	t.Cleanup(config.ResetGlobalForTesting)
	return t.TempDir()
}

func run(t *testing.T, dir, stdin string, args ...string) result {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetArgs(append([]string{"--config", filepath.Join(dir, "config.toml"), "--data-dir", dir}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func signupAndLogin(t *testing.T, dir, email, password string) {
	t.Helper()
	r := run(t, dir, password+"\n"+password+"\n", "signup", "--email", email)
	require.NoError(t, r.err)
	r = run(t, dir, password+"\n", "login", "--email", email)
	require.NoError(t, r.err)
}

func seedHistory(t *testing.T, dir, identity string, h model.History) {
	t.Helper()
	store, err := kv.Open(kv.BackendSQLite, dir)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, history.NewStore(store, nil).Save(context.Background(), identity, h))
}

func textFrame(text string) string {
	b, _ := json.Marshal(text)
	return `data: {"candidates":[{"content":{"role":"model","parts":[{"text":` + string(b) + `}]}}]}` + "\r\n\r\n"
}

// geminiServer streams frames for every request and points the config at it.
func geminiServer(t *testing.T, dir string, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := "[gemini]\nbase_url = \"" + server.URL + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(cfg), 0600))
	t.Setenv("API_KEY", "test-key")
}

// =============================================================================
// ACCOUNT COMMANDS
// =============================================================================

func TestSignupLoginWhoami(t *testing.T) {
	dir := testEnv(t)

	r := run(t, dir, "p1\np1\n", "signup", "--email", "a@x.com")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Account created successfully!")

	// Signup does not log in.
	r = run(t, dir, "", "whoami")
	assert.ErrorIs(t, r.err, errNotLoggedIn)

	r = run(t, dir, "p1\n", "login", "--email", "a@x.com")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "a@x.com")

	r = run(t, dir, "", "whoami")
	require.NoError(t, r.err)
	assert.Equal(t, "a@x.com\n", r.out)
}

func TestSignupPromptsForEmail(t *testing.T) {
	dir := testEnv(t)

	r := run(t, dir, "b@x.com\nsecret\nsecret\n", "signup")
	require.NoError(t, r.err)

	r = run(t, dir, "b@x.com\nsecret\n", "login")
	require.NoError(t, r.err)
}

func TestEmailFlagIsTrimmed(t *testing.T) {
	dir := testEnv(t)

	require.NoError(t, run(t, dir, "p1\np1\n", "signup", "--email", " c@x.com ").err)
	require.NoError(t, run(t, dir, "p1\n", "login", "--email", "c@x.com\t").err)

	r := run(t, dir, "", "whoami")
	require.NoError(t, r.err)
	assert.Equal(t, "c@x.com\n", r.out)
}

func TestSignupPasswordMismatch(t *testing.T) {
	dir := testEnv(t)

	r := run(t, dir, "p1\np2\n", "signup", "--email", "a@x.com")
	assert.ErrorIs(t, r.err, errPasswordMismatch)

	r = run(t, dir, "p1\n", "login", "--email", "a@x.com")
	assert.ErrorIs(t, r.err, auth.ErrInvalidCredentials)
}

func TestSignupDuplicate(t *testing.T) {
	dir := testEnv(t)

	require.NoError(t, run(t, dir, "p1\np1\n", "signup", "--email", "a@x.com").err)
	r := run(t, dir, "p2\np2\n", "signup", "--email", "a@x.com")
	assert.ErrorIs(t, r.err, auth.ErrDuplicateIdentity)

	// The original password still works.
	require.NoError(t, run(t, dir, "p1\n", "login", "--email", "a@x.com").err)
}

func TestLoginWrongPasswordKeepsSession(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")

	r := run(t, dir, "wrong\n", "login", "--email", "a@x.com")
	assert.ErrorIs(t, r.err, auth.ErrInvalidCredentials)

	r = run(t, dir, "", "whoami")
	require.NoError(t, r.err)
	assert.Equal(t, "a@x.com\n", r.out)
}

func TestLogout(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")

	require.NoError(t, run(t, dir, "", "logout").err)
	assert.ErrorIs(t, run(t, dir, "", "whoami").err, errNotLoggedIn)
}

func TestFileBackend(t *testing.T) {
	dir := testEnv(t)
	t.Setenv("GEMCHAT_STORE", "file")

	signupAndLogin(t, dir, "a@x.com", "p1")
	r := run(t, dir, "", "whoami")
	require.NoError(t, r.err)
	assert.Equal(t, "a@x.com\n", r.out)
	assert.DirExists(t, filepath.Join(dir, "store"))
}

// =============================================================================
// HISTORY COMMANDS
// =============================================================================

func sampleHistory() model.History {
	return model.History{model.UserMessage("hello"), model.ModelMessage("Hi there")}
}

func TestHistoryShow(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	seedHistory(t, dir, "a@x.com", sampleHistory())

	r := run(t, dir, "", "history", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "You:")
	assert.Contains(t, r.out, "hello")
	assert.Contains(t, r.out, "Assistant:")
	assert.Contains(t, r.out, "Hi there")

	r = run(t, dir, "", "history", "show", "--user", "nobody@x.com")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "No messages.")
}

func TestHistoryShowRequiresLogin(t *testing.T) {
	dir := testEnv(t)
	assert.ErrorIs(t, run(t, dir, "", "history", "show").err, errNotLoggedIn)
}

func TestHistoryList(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	seedHistory(t, dir, "a@x.com", sampleHistory())
	seedHistory(t, dir, "b@x.com", model.History{model.UserMessage("one")})

	r := run(t, dir, "", "history", "list")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "* a@x.com")
	assert.Contains(t, r.out, "2 messages")
	assert.Contains(t, r.out, "b@x.com")
	assert.Contains(t, r.out, "1 messages")
}

func TestHistoryClear(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	seedHistory(t, dir, "a@x.com", sampleHistory())

	r := run(t, dir, "n\n", "history", "clear")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Cancelled.")
	assert.Contains(t, run(t, dir, "", "history", "show").out, "Hi there")

	r = run(t, dir, "", "history", "clear", "--yes")
	require.NoError(t, r.err)
	assert.Contains(t, run(t, dir, "", "history", "show").out, "No messages.")
}

func TestHistoryExportJSONToStdout(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	seedHistory(t, dir, "a@x.com", sampleHistory())

	r := run(t, dir, "", "history", "export", "--format", "json")
	require.NoError(t, r.err)

	var got struct {
		Identity string `json:"identity"`
		Messages []struct {
			Role string `json:"role"`
			Text string `json:"text"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.out), &got))
	assert.Equal(t, "a@x.com", got.Identity)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hi there", got.Messages[1].Text)
}

func TestHistoryExportToDirectory(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	seedHistory(t, dir, "a@x.com", sampleHistory())
	outDir := t.TempDir()

	r := run(t, dir, "", "history", "export", "--format", "md", "-o", outDir)
	require.NoError(t, r.err)

	matches, err := filepath.Glob(filepath.Join(outDir, "chat_a_x.com_*.md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hi there")
}

func TestHistoryExportToFile(t *testing.T) {
	dir := testEnv(t)
	seedHistory(t, dir, "a@x.com", sampleHistory())
	path := filepath.Join(t.TempDir(), "out.yaml")

	r := run(t, dir, "", "history", "export", "--user", "a@x.com", "--format", "yaml", "-o", path)
	require.NoError(t, r.err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "identity: a@x.com")
}

func TestHistoryExportUnknownFormat(t *testing.T) {
	dir := testEnv(t)
	r := run(t, dir, "", "history", "export", "--user", "a@x.com", "--format", "pdf")
	assert.ErrorIs(t, r.err, export.ErrUnknownFormat)
}

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

func TestConfigPathInitShow(t *testing.T) {
	dir := testEnv(t)
	path := filepath.Join(dir, "config.toml")

	r := run(t, dir, "", "config", "path")
	require.NoError(t, r.err)
	assert.Equal(t, path+"\n", r.out)

	require.NoError(t, run(t, dir, "", "config", "init").err)
	assert.FileExists(t, path)

	r = run(t, dir, "", "config", "init")
	assert.ErrorContains(t, r.err, "already exists")
	require.NoError(t, run(t, dir, "", "config", "init", "--force").err)

	r = run(t, dir, "", "config", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, `provider = "gemini"`)
	assert.Contains(t, r.out, dir)
}

func TestInvalidConfigFails(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("provider = \"nope\"\n"), 0600))

	assert.Error(t, run(t, dir, "", "whoami").err)
}

// =============================================================================
// CHAT REPL
// =============================================================================

func TestChatStreamsAndPersists(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	geminiServer(t, dir, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, textFrame("Hi"))
		io.WriteString(w, textFrame(" there"))
	})

	r := run(t, dir, "hello\n/quit\n", "chat")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Hi there")

	r = run(t, dir, "", "history", "export", "--format", "json")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, `"text": "hello"`)
	assert.Contains(t, r.out, `"text": "Hi there"`)
}

func TestChatStreamFailureShowsFallback(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	geminiServer(t, dir, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"boom"}}`)
	})

	r := run(t, dir, "hello\n", "chat")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, model.FallbackReply)

	r = run(t, dir, "", "history", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, model.FallbackReply)
}

func TestChatWithoutAPIKey(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")

	r := run(t, dir, "hello\n/quit\n", "chat")
	require.NoError(t, r.err)
	assert.Contains(t, r.errOut, "API_KEY is not set")
	assert.Contains(t, run(t, dir, "", "history", "show").out, "No messages.")
}

func TestChatNewAndLogout(t *testing.T) {
	dir := testEnv(t)
	signupAndLogin(t, dir, "a@x.com", "p1")
	seedHistory(t, dir, "a@x.com", sampleHistory())

	r := run(t, dir, "/help\n/new\n/bogus\n/logout\n", "chat")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "2 messages in history")
	assert.Contains(t, r.out, "/logout")
	assert.Contains(t, r.out, "Started a new chat.")
	assert.Contains(t, r.errOut, "unknown command /bogus")

	assert.ErrorIs(t, run(t, dir, "", "whoami").err, errNotLoggedIn)
	assert.Contains(t, run(t, dir, "", "history", "show", "--user", "a@x.com").out, "No messages.")
}

func TestChatRequiresLogin(t *testing.T) {
	dir := testEnv(t)
	assert.ErrorIs(t, run(t, dir, "", "chat").err, errNotLoggedIn)
}

func TestStreamPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}

	streaming := func(text string) conversation.Snapshot {
		return conversation.Snapshot{State: conversation.StateStreaming, Streaming: text}
	}

	p.observe(streaming("ignored"))
	p.begin()
	p.observe(streaming("Hi"))
	p.observe(streaming("Hi"))
	p.observe(streaming("Hi there"))
	p.observe(conversation.Snapshot{State: conversation.StateReady})
	assert.Equal(t, "Hi there", p.finish())
	p.observe(streaming("Hi there!"))

	assert.Equal(t, "Hi there", buf.String())
}
