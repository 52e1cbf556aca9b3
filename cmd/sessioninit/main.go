// sessioninit is the thin-init personality re-exec'd by the process-
// flavor child session fabric (spec.md §4.3, §9 "thin init"): it skips
// the full boot sequence (the rootfs and kernel facilities are already
// set up by the full init that forked it) and connects directly to the
// ephemeral vsock port handed to it via WSL_SESSION_PORT, then serves
// the same dispatch table as a nested Channel.
//
// Build: GOOS=linux CGO_ENABLED=0 go build -o sessioninit ./cmd/sessioninit
package main

import (
	"os"
	"strconv"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/config"
	"github.com/wsl-linux/guestinit/internal/dispatch"
	"github.com/wsl-linux/guestinit/internal/handlers"
	"github.com/wsl-linux/guestinit/internal/logging"
	"github.com/wsl-linux/guestinit/internal/mountmgr"
	"github.com/wsl-linux/guestinit/internal/session"
	"github.com/wsl-linux/guestinit/internal/vmconfig"
	"github.com/wsl-linux/guestinit/internal/vsock"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stderr, cfg.DebugMode != "")

	portStr := os.Getenv("WSL_SESSION_PORT")
	port, err := strconv.ParseUint(portStr, 10, 32)
	if err != nil {
		log.Error("sessioninit: WSL_SESSION_PORT missing or invalid", "value", portStr, "error", err)
		os.Exit(1)
	}

	conn, err := vsock.Dial(vsock.HostCID, uint32(port))
	if err != nil {
		log.Error("sessioninit: dial session port failed", "port", port, "error", err)
		os.Exit(1)
	}
	ch := channel.New("session", conn, channel.WithLogger(log))

	env := &handlers.Env{
		Log:    log,
		Mounts: &mountmgr.Manager{Log: log},
		Cfg:    vmconfig.New(),
	}
	env.Spawner = &session.Spawner{
		Log:        log,
		ReExecPath: os.Args[0],
		ReExecArgv: []string{},
		Root:       env.Entries(),
	}

	d := dispatch.New(log, env.Entries())
	if err := d.Run(ch); err != nil {
		log.Error("sessioninit: dispatch loop ended with error", "error", err)
		os.Exit(1)
	}
}
