// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/auth"
	"github.com/jeranaias/gemchat/internal/cloud"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/kv"
	"github.com/jeranaias/gemchat/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

// scriptedStream yields fragments, then ends with err. When gate is set,
// each fragment waits for a value on it.
type scriptedStream struct {
	fragments []string
	err       error
	gate      chan struct{}
	pos       int
	current   string
	closed    bool
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.fragments) {
		s.current = ""
		return false
	}
	if s.gate != nil {
		<-s.gate
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Fragment() string { return s.current }

func (s *scriptedStream) Err() error {
	if s.pos >= len(s.fragments) {
		return s.err
	}
	return nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeSession struct {
	opener *fakeOpener
}

func (s *fakeSession) SendStreaming(_ context.Context, prompt string) cloud.Stream {
	o := s.opener
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)
	if len(o.streams) == 0 {
		return &scriptedStream{}
	}
	next := o.streams[0]
	o.streams = o.streams[1:]
	return next
}

// fakeOpener hands out sessions that replay queued streams.
type fakeOpener struct {
	mu      sync.Mutex
	err     error
	seeds   []model.History
	prompts []string
	streams []*scriptedStream
}

func (o *fakeOpener) Open(h model.History) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.seeds = append(o.seeds, h.Clone())
	return &fakeSession{opener: o}, nil
}

func (o *fakeOpener) queue(streams ...*scriptedStream) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streams = append(o.streams, streams...)
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seeds)
}

// failingStore loads empty histories and fails every save.
type failingStore struct{}

func (failingStore) Load(context.Context, string) model.History { return model.History{} }
func (failingStore) Save(context.Context, string, model.History) error {
	return errors.New("disk full")
}

// recorder keeps every published snapshot.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.State)
	}
	return out
}

func (r *recorder) buffers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.snaps {
		if s.State == StateStreaming && s.Streaming != "" {
			out = append(out, s.Streaming)
		}
	}
	return out
}

type fixture struct {
	ctx     context.Context
	kv      *kv.MemoryStore
	history *history.Store
	opener  *fakeOpener
	ctrl    *Controller
	rec     *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backing := kv.NewMemoryStore()
	store := history.NewStore(backing, nil)
	opener := &fakeOpener{}
	ctrl := New(store, opener)
	rec := &recorder{}
	ctrl.Subscribe(rec.record)
	return &fixture{
		ctx:     context.Background(),
		kv:      backing,
		history: store,
		opener:  opener,
		ctrl:    ctrl,
		rec:     rec,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenario_SignupLoginSubmit(t *testing.T) {
	f := newFixture(t)
	creds := auth.NewStore(f.kv)

	require.NoError(t, creds.Signup(f.ctx, "a@x.com", "p1"))
	user, err := creds.Login(f.ctx, "a@x.com", "p1")
	require.NoError(t, err)

	assert.Equal(t, StateIdle, f.ctrl.Snapshot().State)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, user.Email))
	assert.Equal(t, StateReady, f.ctrl.Snapshot().State)

	f.opener.queue(&scriptedStream{fragments: []string{"Hi", " there"}})
	require.NoError(t, f.ctrl.Submit(f.ctx, "hello"))

	want := model.History{model.UserMessage("hello"), model.ModelMessage("Hi there")}
	assert.Equal(t, want, f.history.Load(f.ctx, "a@x.com"))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, want, snap.Messages)
	assert.Empty(t, snap.Streaming)
	assert.False(t, snap.InFlight())

	assert.Equal(t, []string{"Hi", "Hi there"}, f.rec.buffers(), "buffer holds the running concatenation")
}

func TestScenario_NewChatPersistsEmptyAndReseeds(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.history.Save(f.ctx, "a@x.com", model.History{
		model.UserMessage("old"), model.ModelMessage("reply"),
	}))
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))
	require.Len(t, f.opener.seeds, 1)
	assert.Len(t, f.opener.seeds[0], 2)

	require.NoError(t, f.ctrl.NewChat(f.ctx))

	raw, ok, err := f.kv.Get(f.ctx, history.Key("a@x.com"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(raw))
	assert.Empty(t, f.ctrl.Snapshot().Messages)
	assert.Equal(t, StateReady, f.ctrl.Snapshot().State)
	assert.Equal(t, 1, f.opener.openCount(), "session is reopened lazily")

	f.opener.queue(&scriptedStream{fragments: []string{"fresh"}})
	require.NoError(t, f.ctrl.Submit(f.ctx, "hello"))

	require.Equal(t, 2, f.opener.openCount())
	assert.Empty(t, f.opener.seeds[1], "new session starts with an empty seed history")
}

func TestScenario_SubmitWhileStreamingIsNoOp(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	gate := make(chan struct{})
	f.opener.queue(&scriptedStream{fragments: []string{"Hi", " there"}, gate: gate})

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Submit(f.ctx, "hello") }()

	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateStreaming
	}, time.Second, time.Millisecond)

	before := len(f.ctrl.Snapshot().Messages)
	assert.ErrorIs(t, f.ctrl.Submit(f.ctx, "second"), ErrBusy)
	assert.Len(t, f.ctrl.Snapshot().Messages, before)
	assert.ErrorIs(t, f.ctrl.NewChat(f.ctx), ErrNotReady)

	gate <- struct{}{}
	gate <- struct{}{}
	require.NoError(t, <-done)

	snap := f.ctrl.Snapshot()
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, []string{"hello"}, f.opener.prompts)
}

func TestScenario_StreamFailureRecordsFallback(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	failure := &cloud.TransportError{Provider: "test", Message: "connection reset"}
	f.opener.queue(&scriptedStream{fragments: []string{"partial"}, err: failure})

	require.NoError(t, f.ctrl.Submit(f.ctx, "hello"), "transport errors are swallowed")

	persisted := f.history.Load(f.ctx, "a@x.com")
	require.Len(t, persisted, 2)
	assert.Equal(t, model.UserMessage("hello"), persisted[0])
	assert.Equal(t, model.ModelMessage(model.FallbackReply), persisted[1])
	assert.Equal(t, "An error occurred. Please try again.", persisted[1].Text)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Streaming)

	states := f.rec.states()
	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, []State{StateError, StateReady}, states[len(states)-2:])

	// Still usable afterwards.
	f.opener.queue(&scriptedStream{fragments: []string{"ok"}})
	require.NoError(t, f.ctrl.Submit(f.ctx, "retry"))
	assert.Len(t, f.history.Load(f.ctx, "a@x.com"), 4)
}

func TestSubmit_BlankPromptChangesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))
	published := len(f.rec.states())

	for _, p := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, f.ctrl.Submit(f.ctx, p), ErrEmptyPrompt)
	}

	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, StateReady, snap.State)
	assert.Len(t, f.rec.states(), published, "no notifications for rejected prompts")
	assert.Empty(t, f.opener.prompts)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestSubmit_WithoutIdentity(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.ctrl.Submit(f.ctx, "hello"), ErrNoIdentity)

	f.ctrl.ClearIdentity()
	assert.Equal(t, StateAwaitingIdentity, f.ctrl.Snapshot().State)
	assert.ErrorIs(t, f.ctrl.Submit(f.ctx, "hello"), ErrNoIdentity)
}

func TestMissingCredentialsSurfaceAtFirstUse(t *testing.T) {
	f := newFixture(t)
	f.opener.err = &cloud.ConfigurationError{Setting: cloud.EnvGeminiKey}

	err := f.ctrl.SetIdentity(f.ctx, "a@x.com")
	assert.ErrorIs(t, err, cloud.ErrConfiguration)
	assert.Equal(t, StateReady, f.ctrl.Snapshot().State)

	err = f.ctrl.Submit(f.ctx, "hello")
	assert.ErrorIs(t, err, cloud.ErrConfiguration)
	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, f.history.Load(f.ctx, "a@x.com"))

	// Once the key is available the next submit opens the session.
	f.opener.err = nil
	f.opener.queue(&scriptedStream{fragments: []string{"Hi"}})
	require.NoError(t, f.ctrl.Submit(f.ctx, "hello"))
	assert.Len(t, f.ctrl.Snapshot().Messages, 2)
}

func TestSessionIsReusedAcrossExchanges(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	f.opener.queue(&scriptedStream{fragments: []string{"one"}}, &scriptedStream{fragments: []string{"two"}})
	require.NoError(t, f.ctrl.Submit(f.ctx, "first"))
	require.NoError(t, f.ctrl.Submit(f.ctx, "second"))

	assert.Equal(t, 1, f.opener.openCount())
	assert.Equal(t, []string{"first", "second"}, f.opener.prompts)
	assert.Len(t, f.history.Load(f.ctx, "a@x.com"), 4)
}

func TestLogoutDuringStreamDetachesExchange(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	gate := make(chan struct{})
	f.opener.queue(&scriptedStream{fragments: []string{"late"}, gate: gate})

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Submit(f.ctx, "hello") }()
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateStreaming
	}, time.Second, time.Millisecond)

	f.ctrl.ClearIdentity()
	close(gate)
	require.NoError(t, <-done)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateAwaitingIdentity, snap.State)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Streaming)

	assert.Equal(t, model.History{model.UserMessage("hello"), model.ModelMessage("late")},
		f.history.Load(f.ctx, "a@x.com"), "exchange is still persisted for its identity")
}

func TestRelogDuringDetachedExchange_BusyUntilResolved(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	gate := make(chan struct{})
	f.opener.queue(&scriptedStream{fragments: []string{"first"}, gate: gate})

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Submit(f.ctx, "one") }()
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateStreaming
	}, time.Second, time.Millisecond)

	f.ctrl.ClearIdentity()
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	assert.ErrorIs(t, f.ctrl.Submit(f.ctx, "two"), ErrBusy)
	assert.ErrorIs(t, f.ctrl.NewChat(f.ctx), ErrBusy)

	close(gate)
	require.NoError(t, <-done)

	first := model.History{model.UserMessage("one"), model.ModelMessage("first")}
	assert.Equal(t, first, f.history.Load(f.ctx, "a@x.com"))
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, first, snap.Messages, "memory adopts the detached exchange")

	f.opener.queue(&scriptedStream{fragments: []string{"second"}})
	require.NoError(t, f.ctrl.Submit(f.ctx, "two"))

	f.opener.mu.Lock()
	lastSeed := f.opener.seeds[len(f.opener.seeds)-1]
	f.opener.mu.Unlock()
	assert.Equal(t, first, lastSeed, "new session is seeded with the adopted history")

	assert.Equal(t, model.History{
		model.UserMessage("one"), model.ModelMessage("first"),
		model.UserMessage("two"), model.ModelMessage("second"),
	}, f.history.Load(f.ctx, "a@x.com"))
}

func TestListenerMayReadSnapshotDuringConcurrentChange(t *testing.T) {
	f := newFixture(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	read := make(chan Snapshot, 1)
	var once sync.Once
	f.ctrl.Subscribe(func(Snapshot) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}
		close(entered)
		<-release
		read <- f.ctrl.Snapshot()
	})

	go f.ctrl.ClearIdentity()
	<-entered

	setDone := make(chan error, 1)
	go func() { setDone <- f.ctrl.SetIdentity(f.ctx, "a@x.com") }()
	require.Eventually(t, func() bool {
		return f.ctrl.Snapshot().State == StateReady
	}, time.Second, time.Millisecond, "mutation must not hold the state lock while waiting to publish")

	close(release)
	select {
	case snap := <-read:
		assert.Equal(t, "a@x.com", snap.Identity)
	case <-time.After(2 * time.Second):
		t.Fatal("Snapshot called from a listener blocked")
	}
	select {
	case err := <-setDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SetIdentity never finished publishing")
	}
}

func TestSetIdentity_SwitchLoadsOtherHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.history.Save(f.ctx, "b@x.com", model.History{model.UserMessage("b's")}))

	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))
	assert.Empty(t, f.ctrl.Snapshot().Messages)

	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "b@x.com"))
	snap := f.ctrl.Snapshot()
	assert.Equal(t, "b@x.com", snap.Identity)
	assert.Equal(t, "b's", snap.Messages[0].Text)

	require.NoError(t, f.ctrl.SetIdentity(f.ctx, ""))
	assert.Equal(t, StateAwaitingIdentity, f.ctrl.Snapshot().State)
}

func TestSubmit_SaveFailureIsReported(t *testing.T) {
	opener := &fakeOpener{}
	ctrl := New(failingStore{}, opener)
	ctx := context.Background()
	require.NoError(t, ctrl.SetIdentity(ctx, "a@x.com"))

	opener.queue(&scriptedStream{fragments: []string{"Hi"}})
	err := ctrl.Submit(ctx, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	snap := ctrl.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Len(t, snap.Messages, 2)

	assert.Error(t, ctrl.NewChat(ctx))
	assert.Len(t, ctrl.Snapshot().Messages, 2, "failed reset leaves history in place")
}

func TestStreamIsClosedAfterExchange(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))

	stream := &scriptedStream{fragments: []string{"x"}}
	f.opener.queue(stream)
	require.NoError(t, f.ctrl.Submit(f.ctx, "hello"))
	assert.True(t, stream.closed)
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	var calls int
	unsubscribe := f.ctrl.Subscribe(func(Snapshot) { calls++ })

	require.NoError(t, f.ctrl.SetIdentity(f.ctx, "a@x.com"))
	assert.Equal(t, 1, calls)

	unsubscribe()
	f.ctrl.ClearIdentity()
	assert.Equal(t, 1, calls)
}

func TestExchangeResult_Reply(t *testing.T) {
	ok := exchangeResult{Outcome: Completed, Text: "Hi there"}
	assert.Equal(t, model.ModelMessage("Hi there"), ok.reply())

	aborted := exchangeResult{Outcome: Aborted, Text: "partial", Err: errors.New("x")}
	assert.Equal(t, model.ModelMessage(model.FallbackReply), aborted.reply())
	assert.Equal(t, "aborted", Aborted.String())
}
