// Package dispatch implements the table-driven tagged-message
// demultiplexer described in spec.md §4.2: a compile-time list of (tag,
// min-size, handler) entries, indexed by tag, looked up for each inbound
// frame.
//
// Grounded on original_source/src/linux/init/LSWInit.cpp's
// HandleMessage<TMessage, Args...> variadic-template recursion (replaced
// here by a map from tag to Entry built once in New, where a later entry
// for the same tag replaces an earlier one) and on the teacher's
// internal/harness/rpc.go::dispatch switch, which this generalizes from
// string-keyed JSON-RPC methods to the wire package's binary Tag
// enumeration.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/wire"
)

// ErrUnknownTag is returned when no handler is registered for a frame's
// tag (spec.md §4.2: "mismatch logs the unknown tag and fails with
// EINVAL").
var ErrUnknownTag = errors.New("dispatch: unknown tag, EINVAL")

// Handler processes one inbound frame and is responsible for sending its
// own response via ch, or deliberately not responding for "fire and
// forget" commands (spec.md §4.2 "Algorithm").
type Handler func(ch *channel.Channel, req *wire.Reader) error

// Entry is one row of the handler table: a tag, its minimum valid payload
// size, and the handler to invoke (spec.md §3 "Handler table").
type Entry struct {
	Tag     wire.Tag
	MinSize int
	Handle  Handler
}

// Dispatcher is one of the three personalities spec.md §4.2 describes —
// full init, thin init, or forked sub-channel — distinguished only by
// which Entry list it was built with.
type Dispatcher struct {
	log     *slog.Logger
	entries map[wire.Tag]Entry
}

// New builds a Dispatcher from a handler table. Later entries for the
// same tag overwrite earlier ones, so callers can start from a shared
// base table and override individual handlers per personality.
func New(log *slog.Logger, entries []Entry) *Dispatcher {
	m := make(map[wire.Tag]Entry, len(entries))
	for _, e := range entries {
		m[e.Tag] = e
	}
	return &Dispatcher{log: log, entries: m}
}

// dispatchOne validates a frame against its registered entry and invokes
// the handler, matching the invariant that "the minimum-size check
// precedes any reinterpretation of the payload" (spec.md §9).
func (d *Dispatcher) dispatchOne(ch *channel.Channel, r *wire.Reader) error {
	entry, ok := d.entries[r.Header.Type]
	if !ok {
		d.log.Warn("dispatch: unknown tag", "channel", ch.Name(), "tag", r.Header.Type)
		return ErrUnknownTag
	}
	if int(r.Header.Size) < entry.MinSize {
		d.log.Warn("dispatch: short payload", "channel", ch.Name(), "tag", r.Header.Type, "size", r.Header.Size, "min", entry.MinSize)
		return fmt.Errorf("dispatch: payload too short for tag %s", r.Header.Type)
	}

	if err := entry.Handle(ch, r); err != nil {
		d.log.Error("dispatch: handler failed", "channel", ch.Name(), "tag", r.Header.Type, "error", err)
		return err
	}
	return nil
}

// Run reads frames from ch until it closes or a TagShutdown frame
// arrives. Errors returned by handlers are logged with context and
// dispatch continues; only channel-level failures (protocol errors,
// clean close) end the loop (spec.md §4.2 "Dispatcher loop").
func (d *Dispatcher) Run(ch *channel.Channel) error {
	for {
		r, err := ch.ReceiveOrClosed(wire.TagAny, wire.HeaderSize)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			return err
		}

		if r.Header.Type == wire.TagShutdown {
			return nil
		}

		// Handler errors are logged inside dispatchOne and do not
		// terminate the loop (spec.md §4.2: "Exceptions from handlers
		// are caught, logged with context ..., and dispatch
		// continues").
		_ = d.dispatchOne(ch, r)
	}
}
