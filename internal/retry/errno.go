package retry

import (
	"errors"
	"syscall"
)

// isTransientDeviceError matches original_source's retry predicate used
// for LUN/device discovery: ENOENT (not yet created), ENXIO (no such
// device), EIO (device not yet ready).
func isTransientDeviceError(err error) bool {
	return errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.EIO)
}
