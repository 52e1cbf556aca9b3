package proclife

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetChildSubreaper sets PR_SET_CHILD_SUBREAPER on the calling process so
// that grandchildren of a pseudo-terminal session are reparented to it
// instead of escaping to PID 1 (spec.md §4.5 "PTY subreaper"). Must be
// called before forking the pty-flavor child.
func SetChildSubreaper() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("proclife: PR_SET_CHILD_SUBREAPER: %w", err)
	}
	return nil
}
