package mountmgr

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/wsl-linux/guestinit/internal/retry"
)

// ListDiskPartitions enumerates the sysfs block subdirectory of diskName
// and maps each partition index to its kernel short name by reading the
// partition's "partition" integer file (spec.md §4.4 "Partition
// enumeration").
func ListDiskPartitions(diskName string) (map[int]string, error) {
	dir := filepath.Join("/sys/block", diskName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, diskName) {
			continue
		}
		idxBytes, err := os.ReadFile(filepath.Join(dir, name, "partition"))
		if err != nil {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(string(idxBytes)))
		if err != nil {
			continue
		}
		out[idx] = name
	}
	return out, nil
}

// ResolvePartition retries ListDiskPartitions until the requested index
// appears or the retry budget expires (spec.md §4.4: "If the caller
// supplied a specific index, retry the whole enumeration until that index
// appears or a timeout expires").
func ResolvePartition(diskName string, index int) (string, error) {
	return retry.WithTimeout(func() (string, error) {
		parts, err := ListDiskPartitions(diskName)
		if err != nil {
			return "", err
		}
		name, ok := parts[index]
		if !ok {
			// ENOENT (not os.ErrNotExist) so retry.Transient keeps waiting.
			return "", &os.PathError{Op: "partition", Path: filepath.Join("/sys/block", diskName), Err: syscall.ENOENT}
		}
		return name, nil
	}, retry.DefaultPeriod, retry.DefaultTimeout, retry.Transient)
}
