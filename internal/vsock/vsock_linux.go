//go:build linux

// Package vsock provides the guest-side vsock dial/listen primitives used
// to build the primary and per-session Channels (spec.md §4.1, §6 "Vsock
// ports"). It replaces the hand-rolled AF_VSOCK syscalls of
// internal/harness/vsock_linux.go (this repo's teacher) with
// github.com/mdlayher/vsock, the real public library already present in
// the teacher's own dependency graph as an indirect dependency.
package vsock

import (
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
)

// HostCID is the well-known CID of the hypervisor host as seen from a
// guest VM.
const HostCID = vsock.Host

// Conn and Listener are exposed as the stdlib net interfaces so callers
// compile identically regardless of build target.
type Conn = net.Conn
type Listener = net.Listener

// Dial connects to port on the host CID, used for the primary channel
// connect-back-to-host step of the init boot sequence (spec.md §4.9 step 7)
// and for the stream, relay and session connections opened by handlers.
func Dial(cid, port uint32) (net.Conn, error) {
	conn, err := vsock.Dial(cid, port, nil)
	if err != nil {
		return nil, fmt.Errorf("vsock: dial cid=%d port=%d: %w", cid, port, err)
	}
	return conn, nil
}

// Listen opens a listening socket on an ephemeral vsock port, used by the
// child-session fabric (spec.md §4.3 step 1); the localhost port relay
// listens on loopback TCP instead. Passing 0 lets the kernel assign the port; call Port on
// the returned Listener's Addr to retrieve the assigned value.
func Listen(port uint32) (net.Listener, error) {
	l, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("vsock: listen port=%d: %w", port, err)
	}
	return l, nil
}

// Port extracts the numeric vsock port from a net.Addr produced by this
// package's Listen, so callers that only depend on the vsock package (not
// the concrete mdlayher/vsock type) can recover an ephemeral port assigned
// by passing 0 to Listen.
func Port(addr net.Addr) uint32 {
	if a, ok := addr.(*vsock.Addr); ok {
		return a.Port
	}
	return 0
}
