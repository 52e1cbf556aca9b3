package telemetry

import (
	"bytes"
	"log/slog"
	"net"
	"testing"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/wire"
)

func TestPushWithoutChannelOnlyLogsLocally(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	e := NewEmitter(log, nil)
	if err := e.Push(Event{Source: "boot", Message: "ready"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("ready")) {
		t.Fatalf("expected local log to contain the message, got %q", buf.String())
	}
}

func TestPushForwardsTelemetryFrame(t *testing.T) {
	hostConn, guestConn := net.Pipe()
	defer hostConn.Close()
	defer guestConn.Close()

	guest := channel.New("guest", guestConn)
	e := NewEmitter(slog.Default(), guest)

	done := make(chan error, 1)
	go func() { done <- e.Push(Event{Source: "system", Message: "child exited"}) }()

	host := channel.New("host", hostConn, channel.IgnoreSequence())
	r, err := host.ReceiveOrClosed(wire.TagTelemetryPush, wire.HeaderSize)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if r.Header.Type != wire.TagTelemetryPush {
		t.Fatalf("tag = %v, want TagTelemetryPush", r.Header.Type)
	}
	if err := <-done; err != nil {
		t.Fatalf("Push: %v", err)
	}
}
