package channel

import (
	"os"
	"strings"
	"sync"
)

const cmdlinePath = "/proc/cmdline"
const socketLogToken = "WSL_SOCKET_LOG"

var (
	socketLogOnce    sync.Once
	socketLogEnabled bool
)

// SocketLogEnabled reports whether the kernel command line carries the
// WSL_SOCKET_LOG token, gating verbose per-frame payload logging. The
// result is cached after the first call, matching SocketChannel.h's
// static-once check.
func SocketLogEnabled() bool {
	socketLogOnce.Do(func() {
		b, err := os.ReadFile(cmdlinePath)
		if err != nil {
			return
		}
		socketLogEnabled = strings.Contains(string(b), socketLogToken)
	})
	return socketLogEnabled
}
