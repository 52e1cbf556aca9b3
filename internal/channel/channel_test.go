package channel

import (
	"net"
	"testing"

	"github.com/wsl-linux/guestinit/internal/wire"
)

// pingFixedSize is the fixed size (header + two uint32 fields) of the
// synthetic test message used below.
const pingFixedSize = wire.HeaderSize + 8

func buildPing(a, b uint32) *wire.Builder {
	bld := wire.NewBuilder(wire.TagConnect, pingFixedSize)
	fixed := bld.Fixed()
	fixed[wire.HeaderSize] = byte(a)
	fixed[wire.HeaderSize+4] = byte(b)
	return bld
}

func TestSendReceiveRoundTrip(t *testing.T) {
	hostConn, guestConn := net.Pipe()
	defer hostConn.Close()
	defer guestConn.Close()

	host := New("host", hostConn)
	guest := New("guest", guestConn)

	done := make(chan error, 1)
	go func() {
		_, err := guest.ReceiveOrClosed(wire.TagConnect, pingFixedSize)
		done <- err
	}()

	if err := host.Send(buildPing(1, 2)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("receive: %v", err)
	}
}

func TestSequenceViolationClosesChannel(t *testing.T) {
	hostConn, guestConn := net.Pipe()
	defer hostConn.Close()
	defer guestConn.Close()

	guest := New("guest", guestConn)

	// Hand-craft a frame with sequence 2 when 1 is expected (spec.md §8
	// scenario 4: "sequence numbers 1, 3 skipping 2" triggers the same
	// class of failure for the receiver expecting monotonic +1).
	bld := wire.NewBuilder(wire.TagConnect, pingFixedSize)
	frame := bld.Span(2)

	go func() {
		hostConn.Write(frame)
	}()

	_, err := guest.ReceiveOrClosed(wire.TagConnect, pingFixedSize)
	var protoErr *ProtocolError
	if err == nil {
		t.Fatal("expected protocol error, got nil")
	}
	if !asProtocolError(err, &protoErr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if ok {
		*target = pe
	}
	return ok
}

func TestMismatchedTagRejected(t *testing.T) {
	hostConn, guestConn := net.Pipe()
	defer hostConn.Close()
	defer guestConn.Close()

	guest := New("guest", guestConn)
	bld := wire.NewBuilder(wire.TagMount, pingFixedSize)

	go func() {
		frame := bld.Span(1)
		hostConn.Write(frame)
	}()

	_, err := guest.ReceiveOrClosed(wire.TagConnect, pingFixedSize)
	if err == nil {
		t.Fatal("expected tag mismatch to be rejected")
	}
}

func TestCleanCloseYieldsErrClosed(t *testing.T) {
	hostConn, guestConn := net.Pipe()
	guest := New("guest", guestConn)

	go hostConn.Close()

	_, err := guest.ReceiveOrClosed(wire.TagAny, wire.HeaderSize)
	if err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
