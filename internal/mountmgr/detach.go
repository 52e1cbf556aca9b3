package mountmgr

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// devNumber is a comparable (major, minor) pair.
type devNumber struct{ major, minor uint32 }

// Detach resolves lun's device name and the device numbers of all its
// partitions, unmounts every mount entry whose device-number is in that
// set (best-effort, logging failures), flushes the block device, and
// removes it via the sysfs delete node (spec.md §4.4 "Detach").
func Detach(log *slog.Logger, pid int, lun uint32) error {
	deviceName, err := ResolveDeviceName(lun)
	if err != nil {
		return fmt.Errorf("mountmgr: detach lun %d: resolve device: %w", lun, err)
	}

	devices := map[devNumber]struct{}{}
	major, minor, err := BlockDeviceNumber(deviceName)
	if err != nil {
		return fmt.Errorf("mountmgr: detach lun %d: %w", lun, err)
	}
	devices[devNumber{major, minor}] = struct{}{}

	parts, err := ListDiskPartitions(deviceName)
	if err == nil {
		for _, partName := range parts {
			if pMajor, pMinor, err := BlockDeviceNumber(partName); err == nil {
				devices[devNumber{pMajor, pMinor}] = struct{}{}
			}
		}
	}

	entries, err := List(pid)
	if err == nil {
		for _, e := range entries {
			if _, belongs := devices[devNumber{uint32(e.Major), uint32(e.Minor)}]; !belongs {
				continue
			}
			if err := Unmount(e.Mountpoint); err != nil {
				log.Warn("failed to unmount during detach", "mountpoint", e.Mountpoint, "error", err)
			}
		}
	}

	devicePath := DevicePath(deviceName)
	f, err := os.OpenFile(devicePath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mountmgr: detach lun %d: open %s: %w", lun, devicePath, err)
	}
	if err := flushBlockDevice(f); err != nil {
		f.Close()
		return fmt.Errorf("mountmgr: detach lun %d: flush %s: %w", lun, devicePath, err)
	}
	f.Close()

	deletePath := fmt.Sprintf("/sys/block/%s/device/delete", deviceName)
	if err := os.WriteFile(deletePath, []byte("1"), 0); err != nil {
		return fmt.Errorf("mountmgr: detach lun %d: write %s: %w", lun, deletePath, err)
	}
	return nil
}

// flushBlockDevice issues BLKFLSBUF, matching main.cpp's DetachScsiDisk.
func flushBlockDevice(f *os.File) error {
	return unix.IoctlSetInt(int(f.Fd()), unix.BLKFLSBUF, 0)
}
