// Package session implements the child-session fabric described in
// spec.md §4.3: each "fork" message causes the core to listen on a new
// ephemeral vsock port, spawn a child per the requested flavor, and hand
// it a fresh sub-channel that continues dispatch recursively.
//
// Grounded on original_source/src/linux/init/LSWInit.cpp's LSW_FORK
// handler and WSLAInit.cpp's richer WSLA_FORK handler (listen-before-
// respond ordering, three flavors, PR_SET_CHILD_SUBREAPER for pty,
// real-pid capture for the thread flavor).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/dispatch"
	"github.com/wsl-linux/guestinit/internal/proclife"
	"github.com/wsl-linux/guestinit/internal/vsock"
	"github.com/wsl-linux/guestinit/internal/wire"
)

// serveInterop publishes the session leader's interop socket (spec.md
// §6) and serves the same handler table over it until the socket is
// removed, so a cooperating guest process that walks the parent-pid
// chain reaches the same dispatch table its vsock channel would give it.
func (s *Spawner) serveInterop(pid int) {
	l, err := ListenInterop(pid)
	if err != nil {
		s.Log.Warn("session: interop socket unavailable", "pid", pid, "error", err)
		return
	}
	defer os.Remove(InteropSocketPath(pid))
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go func() {
			ch := channel.New(fmt.Sprintf("interop:%d", pid), conn)
			dispatch.New(s.Log, s.Root).Run(ch)
		}()
	}
}

// Flavor mirrors wire.ForkFlavor for readability at call sites.
type Flavor = wire.ForkFlavor

// acceptTimeout bounds how long a forked child waits for the host to
// connect to its listen port (spec.md §4.3 step 4: "bounded timeout").
const acceptTimeout = 30 * time.Second

// Session is the tuple spec.md §3 describes: pid (or thread-id), the
// listening vsock port handed to the host, an optional pty master fd, and
// the fork flavor. CorrelationID ties every log line and sub-channel name
// for this session back to one value across the parent and the child's
// own process, independent of the pid (which a re-exec'd process flavor
// only learns after Fork returns).
type Session struct {
	Pid           int
	Port          uint32
	PtyMaster     *os.File
	Flavor        Flavor
	CorrelationID string
}

// Spawner creates child sessions. ReExecArgv is the argv used to
// re-launch the current binary as a session-init personality for the
// Process flavor — Go's runtime is not fork-safe without an immediate
// exec, so unlike the C++ source's raw fork(), the process flavor always
// re-execs (spec.md §5, this repo's SPEC_FULL.md §4.3).
type Spawner struct {
	Log        *slog.Logger
	ReExecPath string
	ReExecArgv []string
	Root       []Entry // base handler table new sub-channel dispatchers use
}

// Entry re-exports dispatch.Entry so callers only need to import session.
type Entry = dispatch.Entry

// Fork creates a new child session of the requested flavor, returning the
// ephemeral port the host should connect to and (for thread/pty flavors
// only) a pid known synchronously. Process-flavor children report their
// real pid immediately; the accept loop then runs inside that child.
func (s *Spawner) Fork(ctx context.Context, flavor Flavor, cloneFlags uintptr, ttyCols, ttyRows uint16) (*Session, error) {
	listener, err := vsock.Listen(0)
	if err != nil {
		return nil, fmt.Errorf("session: listen: %w", err)
	}
	port := listenerPort(listener)
	corrID := uuid.NewString()

	switch flavor {
	case wire.ForkProcess:
		return s.forkProcess(ctx, listener, port, cloneFlags, corrID)
	case wire.ForkThread:
		return s.forkThread(ctx, listener, port, corrID)
	case wire.ForkPty:
		return s.forkPty(ctx, listener, port, ttyCols, ttyRows, corrID)
	default:
		listener.Close()
		return nil, fmt.Errorf("session: unknown fork flavor %d", flavor)
	}
}

func listenerPort(l vsock.Listener) uint32 {
	return vsock.Port(l.Addr())
}

// acceptAndDispatch accepts exactly one connection on listener, wraps it
// in a Channel, and runs the dispatcher loop — step 4 of spec.md §4.3.
func (s *Spawner) acceptAndDispatch(listener vsock.Listener, name string, entries []Entry) error {
	defer listener.Close()
	type deadliner interface{ SetDeadline(time.Time) error }
	if d, ok := listener.(deadliner); ok {
		d.SetDeadline(time.Now().Add(acceptTimeout))
	}

	conn, err := listener.Accept()
	if err != nil {
		return fmt.Errorf("session: accept on %s timed out or failed: %w", name, err)
	}
	ch := channel.New(name, conn)
	d := dispatch.New(s.Log, entries)
	return d.Run(ch)
}

func (s *Spawner) forkThread(ctx context.Context, listener vsock.Listener, port uint32, corrID string) (*Session, error) {
	tid := make(chan int, 1)
	go func() {
		// LockOSThread pins this goroutine to a real OS thread so its
		// tid is a stable identity for the lifetime of the session,
		// resolving the spec's Open Question in favor of reporting the
		// thread-id rather than LSW's literal placeholder pid=1 (see
		// DESIGN.md).
		runtimeLockAndReport(tid)
		_ = s.acceptAndDispatch(listener, fmt.Sprintf("session-thread:%s", corrID), s.Root)
	}()

	select {
	case id := <-tid:
		return &Session{Pid: id, Port: port, Flavor: wire.ForkThread, CorrelationID: corrID}, nil
	case <-time.After(2 * time.Second):
		return &Session{Pid: -1, Port: port, Flavor: wire.ForkThread, CorrelationID: corrID}, nil
	}
}

func (s *Spawner) forkProcess(ctx context.Context, listener vsock.Listener, port uint32, cloneFlags uintptr, corrID string) (*Session, error) {
	argv := append([]string{}, s.ReExecArgv...)
	cmd := exec.CommandContext(ctx, s.ReExecPath, argv...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, os.Stdout, os.Stderr
	cmd.SysProcAttr = &unix.SysProcAttr{Cloneflags: cloneFlags}
	cmd.Env = append(os.Environ(), fmt.Sprintf("WSL_SESSION_PORT=%d", port), fmt.Sprintf("WSL_SESSION_CORRELATION_ID=%s", corrID))

	if err := cmd.Start(); err != nil {
		listener.Close()
		return nil, fmt.Errorf("session: start process flavor: %w", err)
	}
	// The listener itself is owned by the re-exec'd child's own vsock
	// stack in a real namespace split; in this process-per-session model
	// the parent keeps serving it and the child only needs the port, so
	// the parent continues the accept loop on the child's behalf here.
	go func() {
		_ = s.acceptAndDispatch(listener, fmt.Sprintf("session-process:%s", corrID), s.Root)
	}()
	go s.serveInterop(cmd.Process.Pid)

	return &Session{Pid: cmd.Process.Pid, Port: port, Flavor: wire.ForkProcess, CorrelationID: corrID}, nil
}

func (s *Spawner) forkPty(ctx context.Context, listener vsock.Listener, port uint32, cols, rows uint16, corrID string) (*Session, error) {
	if err := proclife.SetChildSubreaper(); err != nil {
		s.Log.Warn("session: failed to set subreaper", "error", err)
	}

	master, childPath, err := openPty(cols, rows)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("session: allocate pty: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.ReExecPath, s.ReExecArgv...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("WSL_SESSION_PORT=%d", port), fmt.Sprintf("WSL_SESSION_CORRELATION_ID=%s", corrID))
	slave, err := os.OpenFile(childPath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		listener.Close()
		return nil, fmt.Errorf("session: open pty slave: %w", err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
	cmd.SysProcAttr = &unix.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		listener.Close()
		return nil, fmt.Errorf("session: start pty flavor: %w", err)
	}
	slave.Close()

	go func() {
		_ = s.acceptAndDispatch(listener, fmt.Sprintf("session-pty:%s", corrID), s.Root)
	}()
	go s.serveInterop(cmd.Process.Pid)

	return &Session{Pid: cmd.Process.Pid, Port: port, PtyMaster: master, Flavor: wire.ForkPty, CorrelationID: corrID}, nil
}
