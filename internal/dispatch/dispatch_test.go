package dispatch

import (
	"log/slog"
	"net"
	"testing"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/wire"
)

func TestDispatchUnknownTagIsLoggedAndLoopContinues(t *testing.T) {
	hostConn, guestConn := net.Pipe()
	defer hostConn.Close()
	defer guestConn.Close()

	var gotPing bool
	d := New(slog.Default(), []Entry{
		{Tag: wire.TagConnect, MinSize: wire.HeaderSize, Handle: func(ch *channel.Channel, req *wire.Reader) error {
			gotPing = true
			return nil
		}},
	})

	guest := channel.New("guest", guestConn)
	done := make(chan error, 1)
	go func() { done <- d.Run(guest) }()

	host := channel.New("host", hostConn, channel.IgnoreSequence())
	// An unknown tag is logged and dispatch continues.
	if err := host.Send(wire.NewBuilder(wire.TagMount, wire.HeaderSize)); err != nil {
		t.Fatalf("send unknown tag: %v", err)
	}
	if err := host.Send(wire.NewBuilder(wire.TagConnect, wire.HeaderSize)); err != nil {
		t.Fatalf("send known tag: %v", err)
	}
	if err := host.Send(wire.NewBuilder(wire.TagShutdown, wire.HeaderSize)); err != nil {
		t.Fatalf("send shutdown: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("dispatcher Run returned error: %v", err)
	}
	if !gotPing {
		t.Fatal("expected TagConnect handler to run despite earlier unknown tag")
	}
}
