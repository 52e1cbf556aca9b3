//go:build !linux

package session

import "os"

func runtimeLockAndReport(tid chan<- int) {
	lockOSThread()
	tid <- os.Getpid()
}
