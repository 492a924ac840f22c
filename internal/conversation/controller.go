// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jeranaias/gemchat/internal/cloud"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// HistoryStore persists one history per identity.
type HistoryStore interface {
	Load(ctx context.Context, identity string) model.History
	Save(ctx context.Context, identity string, h model.History) error
}

// Session answers prompts in the context it was opened with.
type Session interface {
	SendStreaming(ctx context.Context, prompt string) cloud.Stream
}

// Opener opens sessions seeded with a history.
type Opener interface {
	Open(history model.History) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(history model.History) (Session, error)

// Open implements Opener.
func (f OpenerFunc) Open(history model.History) (Session, error) {
	return f(history)
}

// AdapterOpener opens sessions through a cloud.Adapter.
func AdapterOpener(a *cloud.Adapter) Opener {
	return OpenerFunc(func(history model.History) (Session, error) {
		s, err := a.Open(history)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyPrompt rejects a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrBusy rejects a submit while an exchange is in flight.
	ErrBusy = errors.New("an exchange is already in progress")

	// ErrNoIdentity rejects a submit before an identity is set.
	ErrNoIdentity = errors.New("no user is logged in")

	// ErrNotReady rejects a new chat outside the Ready state.
	ErrNotReady = errors.New("conversation is not ready")
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the active identity's history, session handle and
// streaming buffer. It is safe for concurrent use. Listeners registered with
// Subscribe run synchronously, one at a time and in state-change order. They
// may call Snapshot but must not call back into mutating Controller methods.
//
// At most one exchange per identity is in flight, even across a logout and
// login of the same identity while a detached exchange is still draining.
type Controller struct {
	store  HistoryStore
	opener Opener
	logger *log.Logger

	mu       sync.Mutex
	state    State
	identity string
	messages model.History
	session  Session
	buffer   string
	// epoch changes whenever the identity does, so an exchange can tell
	// that the state it started from is gone.
	epoch uint64
	// inflight holds identities with an unresolved exchange, attached or not.
	inflight map[string]struct{}
	// seq numbers published states; delivered is the newest one handed to
	// listeners, guarded by notifyMu.
	seq       uint64
	delivered uint64

	notifyMu  sync.Mutex
	subMu     sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Controller in the Idle state.
func New(store HistoryStore, opener Opener, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		opener:    opener,
		logger:    logging.Discard(),
		state:     StateIdle,
		inflight:  make(map[string]struct{}),
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn to receive a Snapshot after every state change and
// returns a function that removes it.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.listeners, id)
		c.subMu.Unlock()
	}
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Identity:  c.identity,
		State:     c.state,
		Messages:  c.messages.Clone(),
		Streaming: c.buffer,
	}
}

// unlockAndPublish releases c.mu and delivers the state it guarded. c.mu is
// never held while waiting for notifyMu, so a listener may read Snapshot. A
// state overtaken by a newer delivery is skipped.
func (c *Controller) unlockAndPublish() {
	c.seq++
	seq := c.seq
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.delivered = seq

	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

// SetIdentity makes identity the active user: its history is loaded and a
// session is opened from it, and the controller becomes Ready. An empty
// identity behaves like ClearIdentity.
//
// A session that cannot be opened (for example a missing API key) is
// returned as the error, but the controller is still Ready; the open is
// retried on the next Submit.
func (c *Controller) SetIdentity(ctx context.Context, identity string) error {
	if identity == "" {
		c.ClearIdentity()
		return nil
	}

	history := c.store.Load(ctx, identity)

	c.mu.Lock()
	c.epoch++
	c.identity = identity
	c.messages = history
	c.buffer = ""
	c.session = nil

	session, err := c.opener.Open(history.Clone())
	if err != nil {
		c.logger.Warn("SESSION_OPEN_DEFERRED", "identity", identity, "error", err)
	} else {
		c.session = session
	}
	c.state = StateReady
	c.logger.Info("IDENTITY_SET", "identity", identity, "messages", len(history))
	c.unlockAndPublish()
	return err
}

// ClearIdentity discards the session and in-memory history and waits for a
// new identity.
func (c *Controller) ClearIdentity() {
	c.mu.Lock()
	c.epoch++
	prev := c.identity
	c.identity = ""
	c.messages = nil
	c.session = nil
	c.buffer = ""
	c.state = StateAwaitingIdentity
	if prev != "" {
		c.logger.Info("IDENTITY_CLEARED", "identity", prev)
	}
	c.unlockAndPublish()
}

// =============================================================================
// NEW CHAT
// =============================================================================

// NewChat persists an empty history for the active identity and drops the
// session; the next Submit opens a fresh one. Only valid in Ready, and
// ErrBusy while a detached exchange of the identity is still unresolved.
func (c *Controller) NewChat(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotReady
	}
	if _, busy := c.inflight[c.identity]; busy {
		c.mu.Unlock()
		return ErrBusy
	}

	if err := c.store.Save(ctx, c.identity, model.History{}); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("reset history: %w", err)
	}
	c.messages = model.History{}
	c.session = nil
	c.buffer = ""
	c.logger.Info("CHAT_RESET", "identity", c.identity)
	c.unlockAndPublish()
	return nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit runs one exchange and blocks until it is resolved.
//
// Blank prompts (ErrEmptyPrompt), a busy controller (ErrBusy) and a missing
// identity (ErrNoIdentity) are rejected without any change. If no session is
// open one is opened from the current history; a failure there is returned
// unchanged (a *cloud.ConfigurationError) and nothing else happens.
//
// Transport failures are not returned: the fallback reply is recorded and
// persisted instead. The only other error is a failure to persist the
// finished exchange.
func (c *Controller) Submit(ctx context.Context, prompt string) error {
	if util.IsBlank(prompt) {
		return ErrEmptyPrompt
	}

	c.mu.Lock()
	switch c.state {
	case StateReady:
	case StateStreaming:
		c.mu.Unlock()
		return ErrBusy
	default:
		c.mu.Unlock()
		return ErrNoIdentity
	}
	if _, busy := c.inflight[c.identity]; busy {
		// A detached exchange of this identity has not been saved yet.
		c.mu.Unlock()
		return ErrBusy
	}

	if c.session == nil {
		session, err := c.opener.Open(c.messages.Clone())
		if err != nil {
			c.logger.Warn("SESSION_OPEN_FAILED", "identity", c.identity, "error", err)
			c.mu.Unlock()
			return err
		}
		c.session = session
	}

	exchangeID := uuid.NewString()
	identity := c.identity
	epoch := c.epoch
	session := c.session
	withPrompt := c.messages.Append(model.UserMessage(prompt))

	c.inflight[identity] = struct{}{}
	c.messages = withPrompt
	c.buffer = ""
	c.state = StateStreaming
	c.logger.Info("EXCHANGE_START", "exchange", exchangeID, "identity", identity, "prompt_chars", len(prompt))
	c.unlockAndPublish()

	start := time.Now()
	result := c.drain(epoch, session.SendStreaming(ctx, prompt))
	final := withPrompt.Append(result.reply())

	if result.Outcome == Aborted {
		c.logger.Error("EXCHANGE_ABORTED", "exchange", exchangeID, "fragments", result.Fragments, "error", result.Err)
	} else {
		c.logger.Info("EXCHANGE_COMPLETE", "exchange", exchangeID, "fragments", result.Fragments,
			"reply_chars", len(result.Text), "latency", time.Since(start))
	}

	// The exchange is persisted even if the caller's context ended meanwhile.
	saveErr := c.store.Save(context.WithoutCancel(ctx), identity, final)
	if saveErr != nil {
		c.logger.Error("HISTORY_SAVE_FAILED", "exchange", exchangeID, "error", saveErr)
		saveErr = fmt.Errorf("save history: %w", saveErr)
	}

	c.mu.Lock()
	delete(c.inflight, identity)
	if c.epoch != epoch {
		if c.identity == identity && c.state == StateReady {
			// The identity came back while detached. Adopt the saved
			// history so memory matches the store; the session was seeded
			// without this exchange.
			c.messages = final
			c.session = nil
			c.logger.Info("EXCHANGE_REATTACHED", "exchange", exchangeID, "identity", identity)
			c.unlockAndPublish()
			return saveErr
		}
		// Identity changed mid-exchange; the new state is not ours to touch.
		c.mu.Unlock()
		c.logger.Info("EXCHANGE_DETACHED", "exchange", exchangeID, "identity", identity)
		return saveErr
	}
	c.messages = final
	c.buffer = ""
	if result.Outcome == Aborted {
		c.state = StateError
		c.unlockAndPublish()

		c.mu.Lock()
		if c.epoch != epoch || c.state != StateError {
			c.mu.Unlock()
			return saveErr
		}
	}
	c.state = StateReady
	c.unlockAndPublish()
	return saveErr
}

// drain consumes the stream, publishing the cumulative text after every
// fragment.
func (c *Controller) drain(epoch uint64, stream cloud.Stream) exchangeResult {
	defer stream.Close()

	var text strings.Builder
	n := 0
	for stream.Next() {
		text.WriteString(stream.Fragment())
		n++
		c.setBuffer(epoch, text.String())
	}
	if err := stream.Err(); err != nil {
		return exchangeResult{Outcome: Aborted, Text: text.String(), Fragments: n, Err: err}
	}
	return exchangeResult{Outcome: Completed, Text: text.String(), Fragments: n}
}

// setBuffer replaces the streaming buffer with the running concatenation.
func (c *Controller) setBuffer(epoch uint64, cumulative string) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.buffer = cumulative
	c.unlockAndPublish()
}
