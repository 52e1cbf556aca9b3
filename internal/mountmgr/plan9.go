package mountmgr

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MountPlan9 mounts a host-shared folder named name (a plan9/virtiofs
// transport tag the host already has a listener for) at target, matching
// main.cpp's MountPlan9 helper used by the mount-folder message.
func MountPlan9(name, target string, readOnly bool) error {
	flags := uintptr(0)
	options := fmt.Sprintf("trans=virtio,version=9p2000.L,msize=262144,aname=%s,cache=loose", name)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if err := unix.Mount(name, target, "9p", flags, options); err != nil {
		return fmt.Errorf("mountmgr: mount plan9 folder %q at %q: %w", name, target, err)
	}
	return nil
}
