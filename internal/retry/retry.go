// Package retry provides the generic retry-with-timeout combinator used
// for device discovery (LUN and partition resolution, filesystem
// detection), the console open at boot, and the pmem device wait; the
// vsock dials and the plan-9 mount are single attempts that do not go
// through it (spec.md §5 "Cancellation and timeouts", §9
// "Retry-with-timeout"). Grounded on
// wsl::shared::retry::RetryWithTimeout, called from
// original_source/src/linux/init/LSWInit.cpp and main.cpp at every
// transient-device-error call site with the same (period, total,
// predicate) shape.
package retry

import (
	"fmt"
	"time"
)

// DefaultPeriod and DefaultTimeout match the "~100 ms per attempt up to a
// bounded total (on the order of tens of seconds)" default spec.md §4.4
// describes for LUN resolution and filesystem detection.
const (
	DefaultPeriod  = 100 * time.Millisecond
	DefaultTimeout = 30 * time.Second
)

// Predicate decides whether an error from attempt f is transient and
// worth retrying.
type Predicate func(error) bool

// Transient is the shared predicate used at every retry-with-timeout call
// site in the source: retry on ENOENT, ENXIO, EIO and nothing else.
var Transient Predicate = isTransientDeviceError

// WithTimeout calls f repeatedly, sleeping period between attempts, until
// f succeeds, the predicate rejects an error as non-transient, or total
// elapses. It returns the last error on timeout.
func WithTimeout[T any](f func() (T, error), period, total time.Duration, retryable Predicate) (T, error) {
	deadline := time.Now().Add(total)
	var zero T
	var lastErr error
	for {
		v, err := f()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if time.Now().After(deadline) {
			return zero, fmt.Errorf("retry: timed out after %s: %w", total, lastErr)
		}
		time.Sleep(period)
	}
}

// Void is a convenience for f functions with no useful return value.
func Void(f func() error, period, total time.Duration, retryable Predicate) error {
	_, err := WithTimeout(func() (struct{}, error) {
		return struct{}{}, f()
	}, period, total, retryable)
	return err
}
