//go:build linux

package session

import "golang.org/x/sys/unix"

// runtimeLockAndReport pins the calling goroutine to its current OS
// thread for the remainder of the session and reports that thread's tid,
// resolving the spec's thread-flavor pid Open Question (see DESIGN.md):
// rather than LSW's literal placeholder pid=1, the thread's own tid is a
// real, stable, waitable identity.
func runtimeLockAndReport(tid chan<- int) {
	lockOSThread()
	tid <- unix.Gettid()
}
