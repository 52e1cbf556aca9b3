// guestinit is the PID 1 entry point inside the guest VM: it performs the
// ordered bring-up sequence (spec.md §4.9), connects back to the host,
// and serves the tagged-dispatch request loop until a shutdown message
// or channel closure ends it, at which point it tears the VM down.
//
// Build: GOOS=linux CGO_ENABLED=0 go build -o guestinit ./cmd/guestinit
package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/wsl-linux/guestinit/internal/bootseq"
	"github.com/wsl-linux/guestinit/internal/config"
	"github.com/wsl-linux/guestinit/internal/dispatch"
	"github.com/wsl-linux/guestinit/internal/handlers"
	"github.com/wsl-linux/guestinit/internal/logging"
	"github.com/wsl-linux/guestinit/internal/mountmgr"
	"github.com/wsl-linux/guestinit/internal/notify"
	"github.com/wsl-linux/guestinit/internal/proclife"
	"github.com/wsl-linux/guestinit/internal/reclaim"
	"github.com/wsl-linux/guestinit/internal/session"
	"github.com/wsl-linux/guestinit/internal/telemetry"
	"github.com/wsl-linux/guestinit/internal/vmconfig"
	"github.com/wsl-linux/guestinit/internal/vsock"
	"github.com/wsl-linux/guestinit/internal/wire"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stderr, cfg.DebugMode != "")

	if !cfg.RootInit {
		log.Error("guestinit: WSL_ROOT_INIT not set; use the sessioninit binary for non-root personalities")
		os.Exit(1)
	}

	result, err := bootseq.Run(log, bootseq.Options{
		HostCID:         vsock.HostCID,
		InitPort:        wellKnownInitPort,
		NotifyPort:      wellKnownNotifyPort,
		EnableCrashDump: cfg.CrashDump,
		InitBinaryPath:  os.Args[0],
	})
	if err != nil {
		log.Error("guestinit: boot sequence failed", "error", err)
		os.Exit(1)
	}

	reaper, err := proclife.NewReaper()
	if err != nil {
		log.Error("guestinit: install signalfd reaper failed", "error", err)
		os.Exit(1)
	}

	notifyQueue := notify.NewQueue(result.Secondary, log)

	env := &handlers.Env{
		Log:    log,
		Mounts: &mountmgr.Manager{Log: log},
		Cfg:    vmconfig.New(),
		Notify: notifyQueue,
	}
	env.Spawner = &session.Spawner{
		Log:        log,
		ReExecPath: os.Args[0],
		ReExecArgv: []string{"--session-init"},
		Root:       env.Entries(),
	}

	emitter := telemetry.NewEmitter(log, result.Secondary)
	emitter.Push(telemetry.Event{Source: "boot", Message: "guestinit ready"})

	governor := reclaim.Configure(log, cfg.PageReportingOrder, reclaimMode(cfg.ReclaimMode))
	reclaimCtx, stopReclaim := context.WithCancel(context.Background())
	defer stopReclaim()
	go governor.Run(reclaimCtx)

	stop := make(chan struct{})
	go notifyQueue.Run(stop)

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		if err := reaper.Run(log, stop, func(pid int, ws unix.WaitStatus) {
			notifyQueue.Send(wire.NewChildExitNotify(uint32(pid)))
		}); err != nil {
			log.Error("guestinit: signalfd reaper ended with error", "error", err)
		}
	}()

	d := dispatch.New(log, env.Entries())
	runErr := d.Run(result.Primary)
	if runErr != nil {
		log.Error("guestinit: dispatch loop ended with error", "error", runErr)
	}

	close(stop)
	<-reaperDone
	reaper.Close()

	// Resolve the attached SCSI LUNs (host 0, channel 0, target 0) from
	// sysfs now, so Teardown detaches every disk present at shutdown.
	var luns []uint32
	if entries, err := os.ReadDir("/sys/bus/scsi/devices"); err == nil {
		for _, e := range entries {
			name := e.Name()
			if !strings.HasPrefix(name, "0:0:0:") {
				continue
			}
			if lun, err := strconv.ParseUint(strings.TrimPrefix(name, "0:0:0:"), 10, 32); err == nil {
				luns = append(luns, uint32(lun))
			}
		}
	}
	proclife.Teardown(log, os.Getpid(), luns)
}

// wellKnownInitPort and wellKnownNotifyPort are the vsock ports spec.md
// §6 "Vsock ports" describes: a single well-known port per host-guest
// pair for the primary channel, with every other channel (including the
// secondary notification channel) announced dynamically. The notify
// port is negotiated as well-known here for simplicity in this
// from-scratch implementation; a production deployment would instead
// read it from kernel cmdline, matching how the primary port is
// conventionally fixed by convention between host and guest builds.
const (
	wellKnownInitPort   = 0x10000
	wellKnownNotifyPort = 0x10001
)

// reclaimMode maps the WSL_RECLAIM_MODE cmdline/env token to a
// reclaim.Mode, defaulting to disabled for an unset or unrecognized
// value rather than guessing.
func reclaimMode(s string) reclaim.Mode {
	switch s {
	case "drop-cache":
		return reclaim.ModeDropCache
	case "gradual":
		return reclaim.ModeGradual
	default:
		return reclaim.ModeDisabled
	}
}
