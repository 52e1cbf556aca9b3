// Package telemetry emits structured events both to the local logger and
// as telemetry-push wire messages to the host (spec.md §6
// "telemetry-push"). The event shape and JSON-lines encoding choice are
// grounded on the teacher's internal/logstore.LogEntry (timestamped,
// source-tagged structured records); the wire delivery is new, since the
// teacher never forwards its log entries to a remote peer over the same
// binary framed transport guest-init uses.
package telemetry

import (
	"encoding/json"
	"log/slog"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/wire"
)

// Event is one structured telemetry record.
type Event struct {
	Source  string            `json:"source"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Emitter logs an event locally and forwards it to the host over a
// channel, typically the secondary out-of-band notification channel
// spec.md §4.9 step 8 establishes.
type Emitter struct {
	log *slog.Logger
	ch  *channel.Channel
}

// NewEmitter builds an Emitter. ch may be nil, in which case events are
// only logged locally — useful before the secondary channel is
// established, or in tests.
func NewEmitter(log *slog.Logger, ch *channel.Channel) *Emitter {
	return &Emitter{log: log, ch: ch}
}

// Push records ev to the local logger and, if a channel is attached,
// forwards it to the host as a telemetry-push frame.
func (e *Emitter) Push(ev Event) error {
	attrs := make([]any, 0, 2+2*len(ev.Fields))
	attrs = append(attrs, "source", ev.Source)
	for k, v := range ev.Fields {
		attrs = append(attrs, k, v)
	}
	e.log.Info(ev.Message, attrs...)

	if e.ch == nil {
		return nil
	}
	return e.send(ev)
}

func (e *Emitter) send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	const fixedSize = wire.HeaderSize + 4
	bld := wire.NewBuilder(wire.TagTelemetryPush, fixedSize)
	bld.WriteStringAt(wire.HeaderSize, string(payload))
	return e.ch.Send(bld)
}
