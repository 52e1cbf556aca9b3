package mountmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/wsl-linux/guestinit/internal/retry"
)

// blkidPath is the configured external probe binary invoked to detect a
// block device's filesystem type when the caller omits one (spec.md §4.4
// "Filesystem detection"), matching original_source's
// "/usr/sbin/blkid '<dev>' -p -s TYPE -o value -u filesystem" call line.
var blkidPath = "/usr/sbin/blkid"

// DetectFilesystem waits for devicePath to be openable for read, then
// shells out to blkid to determine its filesystem type. Empty output is a
// failure.
func DetectFilesystem(ctx context.Context, devicePath string) (string, error) {
	if err := retry.Void(func() error {
		f, err := os.OpenFile(devicePath, os.O_RDONLY, 0)
		if err != nil {
			return err
		}
		return f.Close()
	}, retry.DefaultPeriod, retry.DefaultTimeout, retry.Transient); err != nil {
		return "", fmt.Errorf("mountmgr: device %s never became available: %w", devicePath, err)
	}

	cmd := exec.CommandContext(ctx, blkidPath, devicePath, "-p", "-s", "TYPE", "-o", "value", "-u", "filesystem")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("mountmgr: blkid %s: %w", devicePath, err)
	}
	fsType := strings.TrimRight(string(out), "\n")
	if fsType == "" {
		return "", fmt.Errorf("mountmgr: blkid %s: empty output", devicePath)
	}
	return fsType, nil
}
