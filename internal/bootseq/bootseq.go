// Package bootseq orchestrates the first-process bring-up spec.md §4.9
// describes: mount the early filesystems, open the console and kernel
// log device, raise limits, connect back to the host, and enter the main
// dispatch loop. Grounded on the teacher's internal/harness/main.go::Run
// (the same overall shape: mount essentials, install signal handling,
// dial the host, hand off to the connection handler) generalized from a
// single TCP dial to the ordered eleven-step sequence spec.md requires,
// and on original_source/src/linux/init/LSWInit.cpp's LswEntryPoint for
// exact ordering and the fatal-on-first-failure discipline.
package bootseq

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/proclife"
	"github.com/wsl-linux/guestinit/internal/retry"
	"github.com/wsl-linux/guestinit/internal/vsock"
	"github.com/wsl-linux/guestinit/internal/wire"
)

const (
	devKmsgPath     = "/dev/kmsg"
	devConsolePath  = "/dev/console"
	devNullPath     = "/dev/null"
	corePatternPath = "/proc/sys/kernel/core_pattern"

	printFatalSignalsPath = "/proc/sys/kernel/print-fatal-signals"
	devkmsgRateLimitPath  = "/proc/sys/kernel/printk_devkmsg"

	openFileLimit = 1_048_576
	memlockLimit  = 64 << 20

	consoleOpenRetryPeriod  = 200 * time.Millisecond
	consoleOpenRetryTimeout = 10 * time.Second
)

// Options configures one run of the boot sequence.
type Options struct {
	HostCID         uint32
	InitPort        uint32
	NotifyPort      uint32
	EnableCrashDump bool
	InitBinaryPath  string
}

// Result is everything the dispatch loop needs once bring-up succeeds.
type Result struct {
	Primary   *channel.Channel
	Secondary *channel.Channel
}

// Run performs spec.md §4.9 steps 1-9 and returns the two channels needed
// to enter the main loop (steps 10-11 are the caller's responsibility,
// since the signalfd/SIGCHLD plumbing belongs to whichever dispatcher
// table the caller built). The first failure is fatal, matching the
// spec's ordering contract.
func Run(log *slog.Logger, opts Options) (*Result, error) {
	if err := mountEarlyFilesystems(); err != nil {
		return nil, fmt.Errorf("bootseq: mount early filesystems: %w", err)
	}

	kmsg, err := openKmsg()
	if err != nil {
		return nil, fmt.Errorf("bootseq: open kmsg: %w", err)
	}

	if err := raiseLimits(); err != nil {
		return nil, fmt.Errorf("bootseq: raise limits: %w", err)
	}

	writeBestEffort(printFatalSignalsPath, "1")
	writeBestEffort(devkmsgRateLimitPath, "on")

	if err := attachConsole(); err != nil {
		log.Warn("bootseq: console unavailable, logging to kmsg", "error", err)
		redirectTo(kmsg)
	}
	kmsg.Close()

	if err := attachStdin(); err != nil {
		log.Warn("bootseq: /dev/null stdin unavailable", "error", err)
	}

	primaryConn, err := vsock.Dial(opts.HostCID, opts.InitPort)
	if err != nil {
		return nil, fmt.Errorf("bootseq: dial primary channel: %w", err)
	}
	primary := channel.New("primary", primaryConn, channel.WithLogger(log))
	if err := sendCapabilities(primary); err != nil {
		return nil, fmt.Errorf("bootseq: send capabilities: %w", err)
	}

	secondaryConn, err := vsock.Dial(opts.HostCID, opts.NotifyPort)
	if err != nil {
		return nil, fmt.Errorf("bootseq: dial secondary channel: %w", err)
	}
	secondary := channel.New("secondary", secondaryConn, channel.WithLogger(log))

	if opts.EnableCrashDump {
		pattern := fmt.Sprintf("|%s --crash-dump %%P", opts.InitBinaryPath)
		writeBestEffort(corePatternPath, pattern)
	}

	if err := proclife.SetChildSubreaper(); err != nil {
		log.Warn("bootseq: set subreaper failed", "error", err)
	}

	return &Result{Primary: primary, Secondary: secondary}, nil
}

func mountEarlyFilesystems() error {
	mounts := []struct{ source, target, fstype string }{
		{"devtmpfs", "/dev", "devtmpfs"},
		{"proc", "/proc", "proc"},
		{"sysfs", "/sys", "sysfs"},
	}
	for _, m := range mounts {
		if err := os.MkdirAll(m.target, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", m.target, err)
		}
		if err := unix.Mount(m.source, m.target, m.fstype, 0, ""); err != nil && err != unix.EBUSY {
			return fmt.Errorf("mount %s on %s: %w", m.source, m.target, err)
		}
	}
	return nil
}

// openKmsg opens the kernel message device and, in the rare case its fd
// collides with stdin/stdout/stderr, duplicates it past fd 2 (spec.md
// §4.9 step 2).
func openKmsg() (*os.File, error) {
	f, err := os.OpenFile(devKmsgPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	if f.Fd() > 2 {
		return f, nil
	}

	newFd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD, 3)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("dup kmsg past standard fds: %w", err)
	}
	f.Close()
	return os.NewFile(uintptr(newFd), devKmsgPath), nil
}

func raiseLimits() error {
	nofile := unix.Rlimit{Cur: openFileLimit, Max: openFileLimit}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &nofile); err != nil {
		return fmt.Errorf("RLIMIT_NOFILE: %w", err)
	}
	memlock := unix.Rlimit{Cur: memlockLimit, Max: memlockLimit}
	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &memlock); err != nil {
		return fmt.Errorf("RLIMIT_MEMLOCK: %w", err)
	}
	return nil
}

func writeBestEffort(path, value string) {
	_ = os.WriteFile(path, []byte(value), 0)
}

// attachConsole opens /dev/console with a bounded retry (the console
// device can appear slightly after devtmpfs is mounted) and makes it the
// controlling TTY, redirecting stdout/stderr onto it.
func attachConsole() error {
	f, err := retry.WithTimeout(func() (*os.File, error) {
		return os.OpenFile(devConsolePath, os.O_RDWR, 0)
	}, consoleOpenRetryPeriod, consoleOpenRetryTimeout, retry.Transient)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.IoctlSetInt(int(f.Fd()), unix.TIOCSCTTY, 0); err != nil {
		return fmt.Errorf("TIOCSCTTY: %w", err)
	}
	redirectTo(f)
	return nil
}

func redirectTo(f *os.File) {
	unix.Dup2(int(f.Fd()), 1)
	unix.Dup2(int(f.Fd()), 2)
}

func attachStdin() error {
	f, err := os.OpenFile(devNullPath, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return unix.Dup2(int(f.Fd()), 0)
}

// sendCapabilities sends the guest-capabilities message over the
// just-established primary channel: the kernel release string and a
// seccomp-availability probe result (spec.md §4.9 step 7). It is carried
// on TagConnect, the tag the primary channel's first frame always uses.
func sendCapabilities(ch *channel.Channel) error {
	release, err := kernelRelease()
	if err != nil {
		release = "unknown"
	}

	const fixedSize = wire.HeaderSize + 4 /* seccompAvailable bool, padded to 4 */
	bld := wire.NewBuilder(wire.TagConnect, fixedSize)
	seccomp := uint32(0)
	if seccompAvailable() {
		seccomp = 1
	}
	fixed := bld.Fixed()
	fixed[wire.HeaderSize] = byte(seccomp)
	bld.WriteStringAt(fixedSize, release)

	return ch.Send(bld)
}

func kernelRelease() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", err
	}
	return charsToString(uname.Release[:]), nil
}

func charsToString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func seccompAvailable() bool {
	_, err := os.Stat("/proc/sys/kernel/seccomp/actions_avail")
	return err == nil
}
