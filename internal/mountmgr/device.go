package mountmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/wsl-linux/guestinit/internal/retry"
)

// scsiBlockDir is the sysfs path template for a hot-added SCSI disk's
// "block" subdirectory (spec.md §6 "Sysfs paths"). Host 0, channel 0,
// target 0, LUN varies — the same convention the Hyper-V/WSL SCSI
// controller uses.
const scsiBlockDirFmt = "/sys/bus/scsi/devices/0:0:0:%d/block"

// ResolveDeviceName resolves a SCSI LUN to its kernel block-device short
// name (e.g. "sda") by listing the sysfs block subdirectory, retrying
// because device discovery is asynchronous with respect to hot-add
// (spec.md §4.4 "LUN → device name resolution").
func ResolveDeviceName(lun uint32) (string, error) {
	dir := fmt.Sprintf(scsiBlockDirFmt, lun)
	return retry.WithTimeout(func() (string, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			name := e.Name()
			if name == "." || name == ".." {
				continue
			}
			return name, nil
		}
		// The sysfs directory exists but is still empty: the device
		// hasn't finished appearing yet. Report syscall.ENOENT, not the
		// bare os.ErrNotExist sentinel, so retry.Transient's
		// errors.Is(err, syscall.ENOENT) check recognizes it as
		// transient instead of ending the retry early.
		return "", &os.PathError{Op: "readdir", Path: dir, Err: syscall.ENOENT}
	}, retry.DefaultPeriod, retry.DefaultTimeout, retry.Transient)
}

// BlockDeviceNumber reads the dev_t (major:minor) for a block device short
// name from /sys/block/<dev>/dev, in the same "%d:%d" format the kernel
// writes there.
func BlockDeviceNumber(deviceName string) (major, minor uint32, err error) {
	path := filepath.Join("/sys/block", deviceName, "dev")
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("mountmgr: read %s: %w", path, err)
	}
	if _, err := fmt.Sscanf(string(b), "%d:%d", &major, &minor); err != nil {
		return 0, 0, fmt.Errorf("mountmgr: parse device number %q for %s: %w", string(b), deviceName, err)
	}
	return major, minor, nil
}

// DevicePath returns the /dev node path for a block device short name.
func DevicePath(deviceName string) string {
	return filepath.Join("/dev", deviceName)
}
