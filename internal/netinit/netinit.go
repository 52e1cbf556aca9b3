// Package netinit brings up the handful of kernel-level facilities the
// host expects before it starts routing localhost relays through the
// guest (spec.md §4.10): dmesg-restrict/inotify-watch sysctls, the
// loopback interface, a cross-distribution share tmpfs with a
// resolv.conf symlink into it, and binfmt_misc registration for the
// Windows-interop interpreter.
//
// Grounded on the teacher's internal/harness/mount_linux.go::setupNetwork
// (gated bring-up pattern) and internal/harness/netlink_linux.go (direct
// AF_NETLINK request/ACK style, reused here for the loopback flags ioctl
// path instead of netlink since loopback up is conventionally an ioctl).
// The binfmt_misc and shared-tmpfs steps have no teacher equivalent and
// are grounded directly on spec.md §4.10.
package netinit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	dmesgRestrictPath   = "/proc/sys/kernel/dmesg_restrict"
	maxUserWatchesPath  = "/proc/sys/fs/inotify/max_user_watches"
	maxUserWatchesValue = "524288"

	binfmtMiscMount = "/proc/sys/fs/binfmt_misc"
	binfmtRegister  = binfmtMiscMount + "/register"

	// interopName/interopLine match the historical WSL interop
	// binfmt_misc registration line: the two-byte "MZ" magic of a
	// Windows PE executable, handed to /init.
	interopName  = "WSLInterop"
	interopLine  = ":" + interopName + ":M::MZ::/init:PF"
)

// ShareMountPoint is the cross-distribution tmpfs share spec.md §4.10
// describes; a later network agent writes /etc/resolv.conf's real target
// here once it learns the host's DNS configuration.
const ShareMountPoint = "/run/wsl-share"

// Bringup performs every step spec.md §4.10 lists, in order, logging but
// not failing on any individual step — network setup is best-effort
// observed behavior, not a hard dependency of the dispatch loop.
func Bringup(log *slog.Logger) {
	writeSysctl(log, dmesgRestrictPath, "0")
	writeSysctl(log, maxUserWatchesPath, maxUserWatchesValue)

	if err := bringUpLoopback(); err != nil {
		log.Warn("netinit: loopback bring-up failed", "error", err)
	} else {
		log.Debug("netinit: loopback interface up")
	}

	if err := mountShare(); err != nil {
		log.Warn("netinit: cross-distribution share mount failed", "error", err)
	} else if err := symlinkResolvConf(); err != nil {
		log.Warn("netinit: resolv.conf symlink failed", "error", err)
	}

	if err := registerBinfmtInterop(); err != nil {
		log.Warn("netinit: binfmt_misc interop registration failed", "error", err)
	} else {
		log.Debug("netinit: binfmt_misc interop registered")
	}
}

func writeSysctl(log *slog.Logger, path, value string) {
	if err := os.WriteFile(path, []byte(value), 0); err != nil {
		log.Debug("netinit: sysctl write failed", "path", path, "error", err)
	}
}

// ifreqFlags mirrors struct ifreq's ifr_name/ifr_flags layout closely
// enough for SIOCGIFFLAGS/SIOCSIFFLAGS, following the same
// define-the-C-struct-by-hand style the teacher uses for netlink messages
// in internal/harness/netlink_linux.go rather than pulling in a netlink
// library for a single loopback-up ioctl.
type ifreqFlags struct {
	name  [unix.IFNAMSIZ]byte
	flags uint16
	_     [22]byte // pad to sizeof(struct ifreq)
}

// bringUpLoopback sets IFF_UP on "lo" via the classic SIOCGIFFLAGS/
// SIOCSIFFLAGS ioctl pair on an AF_INET socket — the simplest path for
// loopback specifically, unlike eth0 configuration which the teacher
// reaches with raw netlink because it also needs to assign an address
// and route.
func bringUpLoopback() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	defer unix.Close(fd)

	var ifr ifreqFlags
	copy(ifr.name[:], "lo")

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCGIFFLAGS, uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return fmt.Errorf("SIOCGIFFLAGS: %w", errno)
	}
	ifr.flags |= unix.IFF_UP
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSIFFLAGS, uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return fmt.Errorf("SIOCSIFFLAGS: %w", errno)
	}
	return nil
}

func mountShare() error {
	if err := os.MkdirAll(ShareMountPoint, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := unix.Mount("tmpfs", ShareMountPoint, "tmpfs", 0, ""); err != nil && err != unix.EBUSY {
		return fmt.Errorf("mount tmpfs: %w", err)
	}
	if err := unix.Mount("", ShareMountPoint, "", unix.MS_SHARED, ""); err != nil {
		return fmt.Errorf("mark shared: %w", err)
	}
	return nil
}

func symlinkResolvConf() error {
	target := filepath.Join(ShareMountPoint, "resolv.conf")
	os.Remove("/etc/resolv.conf")
	if err := os.Symlink(target, "/etc/resolv.conf"); err != nil {
		return fmt.Errorf("symlink: %w", err)
	}
	return nil
}

// registerBinfmtInterop mounts binfmt_misc if needed and registers the
// Windows-interop interpreter with the "F" (fork-before-exec) flag, which
// keeps the registration valid even after the registering mount
// namespace exits (spec.md §4.10: "remains valid across mount
// namespaces").
func registerBinfmtInterop() error {
	if err := unix.Mount("binfmt_misc", binfmtMiscMount, "binfmt_misc", 0, ""); err != nil && err != unix.EBUSY {
		return fmt.Errorf("mount binfmt_misc: %w", err)
	}
	if err := os.WriteFile(binfmtRegister, []byte(interopLine), 0); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}
