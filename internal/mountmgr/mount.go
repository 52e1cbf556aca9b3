package mountmgr

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wsl-linux/guestinit/internal/wire"
)

// Request describes a single mount operation as decoded from a TagMount
// frame (spec.md §8 scenario 1/2).
type Request struct {
	Source     string
	Target     string
	FSType     string
	Options    string
	Overlay    bool
	Chroot     bool
}

// Result carries back the step at which a mount operation succeeded or
// failed, matching the "mount status" response described in spec.md §4.4
// "Failure model".
type Result struct {
	Errno int32
	Step  wire.MountStep
}

// MountFilesystem issues the mount(2) syscall with parsed flags and
// string options. If NoFail is set and the underlying mount fails with
// ENOENT, and the target path exists, the failure is swallowed and nil is
// returned — matching mountflags.cpp::MountFilesystem's special case
// (spec.md §8 boundary: "nofail and a non-existent source but an existing
// target returns success").
func MountFilesystem(source, target, fsType string, parsed ParsedOptions) error {
	err := unix.Mount(source, target, fsType, uintptr(parsed.MountFlags), parsed.StringOptions)
	if err == nil {
		return nil
	}
	if parsed.NoFail && err == syscall.ENOENT {
		if _, statErr := os.Stat(target); statErr == nil {
			return nil
		}
	}
	return fmt.Errorf("mountmgr: mount(%q, %q, %q): %w", source, target, fsType, err)
}

// Unmount is a thin wrapper so callers do not need to import x/sys/unix
// directly; best-effort failures are the caller's responsibility to log
// (spec.md §4.4 "Detach").
func Unmount(target string) error {
	return unix.Unmount(target, 0)
}
