package session

import "runtime"

// lockOSThread pins the calling goroutine to its current OS thread. Split
// out from threadid_linux.go so the non-linux build can still compile the
// rest of this package (only unix.Gettid is linux-specific).
func lockOSThread() {
	runtime.LockOSThread()
}
