package proclife

import (
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/wsl-linux/guestinit/internal/mountmgr"
)

// Teardown runs the init shutdown sequence described in spec.md §4.5 and
// §4.9 "Teardown": reap every orphaned child, sync the filesystem, detach
// every SCSI disk the manager knows about, then power off. Detach lists
// are supplied by the caller (resolved from sysfs at call time, since the
// set of hot-added LUNs is not cached across the process lifetime).
func Teardown(log *slog.Logger, pid int, luns []uint32) {
	ReapOrphans(log)

	unix.Sync()

	for _, lun := range luns {
		if err := mountmgr.Detach(log, pid, lun); err != nil {
			log.Warn("teardown: failed to detach disk", "lun", lun, "error", err)
		}
	}

	log.Info("teardown complete, powering off")
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		log.Error("teardown: reboot(RB_POWER_OFF) failed", "error", err)
	}
}
