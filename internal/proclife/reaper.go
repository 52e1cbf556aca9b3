package proclife

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// sigchldMask is the single-signal Sigset_t used to block and then
// signalfd SIGCHLD. SIGCHLD (17) falls in the first word of the kernel's
// 64-bit-per-word sigset representation.
func sigchldMask() unix.Sigset_t {
	var set unix.Sigset_t
	set.Val[0] = 1 << (uint(unix.SIGCHLD) - 1)
	return set
}

// signalfdSiginfoSize is sizeof(struct signalfd_siginfo), a fixed part of
// the kernel ABI; the reaper only needs to know a record arrived; it
// doesn't decode the fields (the tight wait4 loop below discovers which
// pids actually exited).
const signalfdSiginfoSize = 128

// Reaper owns the signalfd boot step 10 installs (spec.md §4.9 "Install a
// signalfd that fires on SIGCHLD"). SIGCHLD is blocked on the calling OS
// thread first, matching spec.md §5 "Signal discipline": blocking is what
// lets the signalfd reliably coalesce and harvest every exit instead of
// racing the default disposition.
type Reaper struct {
	fd int
}

// NewReaper blocks SIGCHLD and installs a signalfd to harvest it. Must
// run before any child this process is responsible for reaping is
// forked.
func NewReaper() (*Reaper, error) {
	mask := sigchldMask()
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, fmt.Errorf("proclife: block SIGCHLD: %w", err)
	}
	fd, err := unix.Signalfd(-1, &mask, unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("proclife: signalfd: %w", err)
	}
	return &Reaper{fd: fd}, nil
}

// Close releases the signalfd. It does not unblock SIGCHLD, since the
// process is expected to be tearing down anyway.
func (r *Reaper) Close() error { return unix.Close(r.fd) }

// Run polls the signalfd alongside whatever else the caller is doing in
// other goroutines (spec.md §4.9 "Main loop": "Poll the primary channel
// and the signalfd"). Each time it wakes, it drains the signalfd and
// reaps every exited child in a tight loop — a signalfd only reports "at
// least one SIGCHLD is pending", not how many, so a single readable event
// can correspond to several exits — invoking onReap for each reaped pid.
// Returns when stop is closed or polling itself fails.
func (r *Reaper) Run(log *slog.Logger, stop <-chan struct{}, onReap func(pid int, ws unix.WaitStatus)) error {
	buf := make([]byte, signalfdSiginfoSize)
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		pfd := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("proclife: poll signalfd: %w", err)
		}
		if n == 0 {
			continue
		}

		if _, err := unix.Read(r.fd, buf); err != nil && err != unix.EAGAIN {
			return fmt.Errorf("proclife: read signalfd: %w", err)
		}

		for {
			var ws unix.WaitStatus
			pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
			if err != nil {
				if err != unix.ECHILD {
					log.Warn("reaper: wait4 failed", "error", err)
				}
				break
			}
			if pid <= 0 {
				break
			}
			onReap(pid, ws)
		}
	}
}

// UnblockSIGCHLD restores SIGCHLD to unblocked before an exec that
// replaces the current process image (handleExec, handleLaunchInit):
// unlike fork, exec preserves the caller's signal mask, so a process that
// called NewReaper would otherwise leak a blocked SIGCHLD into whatever
// it execs into (spec.md §5 "Signal discipline": "Any helper fork must
// restore the previous blocked-signal mask... before the exec").
func UnblockSIGCHLD() error {
	mask := sigchldMask()
	if err := unix.PthreadSigmask(unix.SIG_UNBLOCK, &mask, nil); err != nil {
		return fmt.Errorf("proclife: unblock SIGCHLD: %w", err)
	}
	return nil
}
