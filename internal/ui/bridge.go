// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/gemchat/internal/conversation"
	"github.com/jeranaias/gemchat/internal/ui/chat"
)

// DefaultRenderFPS caps streaming redraws when no rate is configured.
const DefaultRenderFPS = 30

// Bridge forwards controller snapshots to a Bubble Tea program.
//
// Publish never blocks, so it is safe as a controller listener. Only the
// newest undelivered snapshot is kept; older ones are replaced. Streaming
// snapshots are paced by the limiter; every other state is sent as soon as
// the pump sees it. The last snapshot published is always delivered.
type Bridge struct {
	send    func(tea.Msg)
	limiter *rate.Limiter
	mailbox chan conversation.Snapshot
}

// NewBridge creates a bridge that delivers through send (normally
// (*tea.Program).Send) at most fps streaming frames per second.
func NewBridge(send func(tea.Msg), fps int) *Bridge {
	if fps <= 0 {
		fps = DefaultRenderFPS
	}
	return &Bridge{
		send:    send,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
		mailbox: make(chan conversation.Snapshot, 1),
	}
}

// Publish stores s as the newest snapshot.
func (b *Bridge) Publish(s conversation.Snapshot) {
	for {
		select {
		case b.mailbox <- s:
			return
		default:
		}
		// Full: drop the stale snapshot and retry.
		select {
		case <-b.mailbox:
		default:
		}
	}
}

// Run pumps snapshots into the program until ctx ends.
func (b *Bridge) Run(ctx context.Context) {
	for {
		var s conversation.Snapshot
		select {
		case <-ctx.Done():
			return
		case s = <-b.mailbox:
		}

		if s.State == conversation.StateStreaming {
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}
			// Something newer may have arrived while waiting.
			select {
			case s = <-b.mailbox:
			default:
			}
		}
		b.send(chat.SnapshotMsg{Snapshot: s})
	}
}
