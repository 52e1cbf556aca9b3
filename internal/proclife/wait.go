// Package proclife implements process-lifecycle handling: wait-by-pidfd
// with timeout, signal delivery, zombie reaping, subreaper semantics, and
// orphan-kill-on-exit (spec.md §4.5).
package proclife

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// WaitState is the outcome of a wait-for-pid request (spec.md §4.5
// "Wait").
type WaitState uint8

const (
	StateUnknown WaitState = iota
	StateRunning
	StateExited
	StateSignaled
)

// WaitResult is returned by WaitForPid.
type WaitResult struct {
	State    WaitState
	ExitCode int32
	Signal   int32
	Errno    int32
}

// WaitForPid opens a pidfd against pid and polls it for timeout. A timed
// out poll with the child still alive reports StateRunning; an exited
// child is reaped via wait4 and reports StateExited with its exit code;
// a signal-terminated child reports StateSignaled. Any failure reports
// StateUnknown with Errno set (spec.md §4.5 "Wait", §8 boundary: "a pid
// file-descriptor wait with timeout 0 and a live child returns state =
// running").
func WaitForPid(pid int, timeout time.Duration) WaitResult {
	pidfd, err := unix.PidfdOpen(pid, 0)
	if err != nil {
		return WaitResult{State: StateUnknown, Errno: int32(errnoOf(err))}
	}
	defer unix.Close(pidfd)

	pfd := []unix.PollFd{{Fd: int32(pidfd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		return WaitResult{State: StateUnknown, Errno: int32(errnoOf(err))}
	}
	if n == 0 {
		return WaitResult{State: StateRunning}
	}

	// The pidfd became readable: the process has exited. Reap it via a
	// sibling-safe wait (spec.md §4.5: "returns the exit code" via
	// "child reaped via sibling-safe wait").
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return WaitResult{State: StateUnknown, Errno: int32(errnoOf(err))}
	}

	if ws.Signaled() {
		return WaitResult{State: StateSignaled, Signal: int32(ws.Signal())}
	}
	return WaitResult{State: StateExited, ExitCode: int32(ws.ExitStatus())}
}

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}

// Signal delivers sig to pid (spec.md §4.5 "Signal").
func Signal(pid int, sig int) error {
	if err := unix.Kill(pid, unix.Signal(sig)); err != nil {
		return fmt.Errorf("proclife: kill(%d, %d): %w", pid, sig, err)
	}
	return nil
}
