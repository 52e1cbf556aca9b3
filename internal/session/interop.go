// Interop socket: the per-session UNIX control surface spec.md §6
// describes ("a predictable path derived from the session leader's pid,
// permissions 0777, searched by walking up the parent-pid chain").
// Grounded structurally on the teacher's internal/harness/guestapi.go
// well-known local endpoint (there: a fixed HTTP port on loopback a
// cooperating guest process dials; here: a UNIX socket per session
// leader, since the spec's wording is socket-path-based rather than
// port-based) — same idea of "a fixed local rendezvous point a
// cooperating process finds without being told about it explicitly".
package session

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wsl-linux/guestinit/internal/netinit"
)

// interopDir is where every session leader's socket is published,
// alongside the cross-distribution resolv.conf share (spec.md §4.10) so
// every mount namespace sees the same directory.
var interopDir = filepath.Join(netinit.ShareMountPoint, "interop")

// InteropSocketPath returns the predictable path a session leader with
// the given pid publishes its interop socket at.
func InteropSocketPath(pid int) string {
	return filepath.Join(interopDir, strconv.Itoa(pid)+".sock")
}

// ListenInterop opens the interop socket for a session leader, creating
// interopDir if needed and setting the spec's documented 0777 permission
// so any uid in the VM can dial it.
func ListenInterop(pid int) (net.Listener, error) {
	if err := os.MkdirAll(interopDir, 0777); err != nil {
		return nil, fmt.Errorf("session: interop: mkdir %s: %w", interopDir, err)
	}
	path := InteropSocketPath(pid)
	os.Remove(path) // stale socket from a reused pid

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("session: interop: listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0777); err != nil {
		l.Close()
		return nil, fmt.Errorf("session: interop: chmod %s: %w", path, err)
	}
	return l, nil
}

// FindInterop walks the parent-pid chain starting at pid, returning the
// dialed connection to the first ancestor (inclusive) that has a live
// interop socket published.
func FindInterop(pid int) (net.Conn, error) {
	for p := pid; p > 1; p = parentOf(p) {
		conn, err := net.Dial("unix", InteropSocketPath(p))
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("session: interop: no ancestor of pid %d has a published socket", pid)
}

// parentOf reads the parent pid of p from /proc/<p>/stat, returning 0 if
// it cannot be determined (ending the FindInterop walk).
func parentOf(p int) int {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", p))
	if err != nil {
		return 0
	}
	// Fields after the parenthesized comm name are space-separated; comm
	// itself may contain spaces or parens, so split on the last ')'.
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0
	}
	fields := strings.Fields(string(data[idx+2:]))
	if len(fields) < 2 {
		return 0
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return ppid
}
