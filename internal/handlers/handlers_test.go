package handlers

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/dispatch"
	"github.com/wsl-linux/guestinit/internal/wire"
)

func newPipeChannels(t *testing.T) (host, guest *channel.Channel) {
	t.Helper()
	hostConn, guestConn := net.Pipe()
	t.Cleanup(func() { hostConn.Close(); guestConn.Close() })
	return channel.New("host", hostConn), channel.New("guest", guestConn)
}

func TestHandleGetDiskUnresolvedLunReturnsErrno(t *testing.T) {
	host, guest := newPipeChannels(t)
	env := &Env{Log: slog.Default()}

	go func() {
		d := dispatch.New(env.Log, []dispatch.Entry{
			{Tag: wire.TagGetDisk, MinSize: wire.GetDiskFixedSize, Handle: env.handleGetDisk},
		})
		_ = d.Run(guest)
	}()

	req := wire.NewBuilder(wire.TagGetDisk, wire.GetDiskFixedSize)
	req.Fixed()[wire.GetDiskLunOff] = 99
	if err := host.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}

	resp, err := host.ReceiveOrClosed(wire.TagGetDisk, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.GetDiskErrno() == 0 {
		t.Fatal("expected non-zero errno for an unresolvable LUN")
	}
}

func TestHandleChildExitNotifyDoesNotRespond(t *testing.T) {
	host, guest := newPipeChannels(t)
	env := &Env{Log: slog.Default()}

	go func() {
		d := dispatch.New(env.Log, []dispatch.Entry{
			{Tag: wire.TagChildExitNotify, MinSize: wire.ChildExitFixedSize, Handle: env.handleChildExitNotify},
		})
		_ = d.Run(guest)
	}()

	req := wire.NewBuilder(wire.TagChildExitNotify, wire.ChildExitFixedSize)
	if err := host.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}

	type result struct {
		r   *wire.Reader
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := host.ReceiveOrClosed(wire.TagAny, 0)
		done <- result{r, err}
	}()

	select {
	case <-done:
		t.Fatal("expected no response for a fire-and-forget notification")
	case <-time.After(100 * time.Millisecond):
		// No response arrived, as expected.
	}
}

func TestHandleCreateProcessSpawnsRealCommand(t *testing.T) {
	host, guest := newPipeChannels(t)
	env := &Env{Log: slog.Default()}

	go func() {
		d := dispatch.New(env.Log, []dispatch.Entry{
			{Tag: wire.TagCreateProcess, MinSize: wire.ProcExecFixedSize, Handle: env.handleCreateProcess},
		})
		_ = d.Run(guest)
	}()

	req := wire.NewBuilder(wire.TagCreateProcess, wire.ProcExecFixedSize)
	req.WriteStringAt(wire.ProcExecutableOff, "/bin/true")
	req.WriteStringArray(wire.ProcArgvOff, nil)
	req.WriteStringArray(wire.ProcEnvOff, nil)
	if err := host.Send(req); err != nil {
		t.Fatalf("send: %v", err)
	}

	resp, err := host.ReceiveOrClosed(wire.TagCreateProcess, 0)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if resp.CreateProcessErrno() != 0 {
		t.Fatalf("expected successful spawn, got errno %d", resp.CreateProcessErrno())
	}
	if resp.CreateProcessPid() <= 0 {
		t.Fatalf("expected a positive pid, got %d", resp.CreateProcessPid())
	}
}
