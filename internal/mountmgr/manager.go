package mountmgr

import (
	"context"
	"errors"
	"log/slog"
	"syscall"

	"github.com/wsl-linux/guestinit/internal/wire"
)

// Manager ties LUN resolution, filesystem detection, flag parsing, and
// the mount syscall together into the single operation the TagMount
// handler performs, reporting the step at which failure occurred (spec.md
// §4.4 "Failure model", §8 scenario 1 & 2).
type Manager struct {
	Log *slog.Logger
}

// MountLun resolves lun to a device, optionally detects its filesystem,
// parses opts, and mounts it at target. It returns a Result whose Step
// names how far the operation got.
func (m *Manager) MountLun(ctx context.Context, lun uint32, target, fsType, opts string) Result {
	deviceName, err := ResolveDeviceName(lun)
	if err != nil {
		m.Log.Warn("mount: failed to resolve LUN", "lun", lun, "error", err)
		// Find-device failures are always reported as ENXIO ("no such
		// device") regardless of which underlying errno the retry loop
		// gave up on: a LUN that was never hot-added surfaces as a
		// readdir ENOENT on the sysfs path, but the host-visible contract
		// is "this LUN does not exist" (spec.md §8 scenario 2), not
		// whatever plumbing error produced it.
		return Result{Errno: -int32(syscall.ENXIO), Step: wire.StepFindDevice}
	}
	devicePath := DevicePath(deviceName)

	if fsType == "" {
		fsType, err = DetectFilesystem(ctx, devicePath)
		if err != nil {
			m.Log.Warn("mount: failed to detect filesystem", "device", devicePath, "error", err)
			return Result{Errno: ErrnoOf(err, syscall.ENXIO), Step: wire.StepDetectFilesystem}
		}
	}

	parsed := ParseMountFlags(opts)
	if err := MountFilesystem(devicePath, target, fsType, parsed); err != nil {
		m.Log.Warn("mount: mount syscall failed", "device", devicePath, "target", target, "error", err)
		return Result{Errno: ErrnoOf(err, syscall.EIO), Step: wire.StepMount}
	}

	return Result{Errno: 0, Step: wire.StepMount}
}

// ErrnoOf extracts a syscall.Errno from err, falling back to def. Shared
// by every handler that reports a result message's error field as a
// negative errno (spec.md §7 "Syscall errors... are carried back to the
// host... as the negative errno").
func ErrnoOf(err error, def syscall.Errno) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(def)
}
