// Package notify gives multiple producers a safe way to share a Channel
// that is supposed to have exactly one writer. Channel.Send's try-lock
// (spec.md §4.1 "Send contract") returns ErrLocked rather than blocking
// when two goroutines call Send at the same time, so whichever call loses
// the race silently drops its frame. The dispatcher's own receive loop
// owns a channel's request/response exchange; anything else that needs to
// push an unsolicited frame onto the same channel — the signalfd reaper's
// child-exit forwarding, a handler's asynchronous completion — must
// enqueue through a Queue instead of calling Send directly.
package notify

import (
	"log/slog"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/wire"
)

// Queue serializes Send calls from any number of goroutines onto a single
// Channel via one internal sender goroutine.
type Queue struct {
	ch  *channel.Channel
	log *slog.Logger
	in  chan *wire.Builder
}

// NewQueue wraps ch. Run must be started (typically via `go q.Run(stop)`)
// before any frame enqueued with Send is actually delivered.
func NewQueue(ch *channel.Channel, log *slog.Logger) *Queue {
	return &Queue{ch: ch, log: log, in: make(chan *wire.Builder, 16)}
}

// Send enqueues b for delivery by the Run goroutine. Safe to call
// concurrently from any number of goroutines.
func (q *Queue) Send(b *wire.Builder) {
	q.in <- b
}

// Run drains the queue and sends each frame in turn on q's Channel until
// stop is closed. Exactly one goroutine must run this for the lifetime of
// the queue, matching the channel's one-writer contract.
func (q *Queue) Run(stop <-chan struct{}) {
	for {
		select {
		case b := <-q.in:
			if err := q.ch.Send(b); err != nil {
				q.log.Warn("notify: send failed", "channel", q.ch.Name(), "error", err)
			}
		case <-stop:
			return
		}
	}
}
