package mountmgr

import (
	"fmt"
	"os"

	"github.com/moby/sys/mountinfo"
)

// Entry is a parsed row of the kernel's mount-information table (spec.md
// §3 "Mount entry"). It is a thin alias over github.com/moby/sys/
// mountinfo.Info, the real public package with the same field shape the
// corpus's private sysbox-runc/libcontainer/mount parser
// (_examples/nestybox-sysbox-fs/seccomp/mountInfoParser.go) demonstrates,
// chosen here because it is independently importable instead of vendored.
type Entry = mountinfo.Info

// List returns every entry of /proc/<pid>/mountinfo for the given pid. It
// is used by Detach to find every mount whose device-number belongs to a
// detaching LUN.
func List(pid int) ([]*Entry, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mountinfo", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mountinfo.GetMountsFromReader(f, nil)
}
