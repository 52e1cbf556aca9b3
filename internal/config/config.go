// Package config resolves the small set of process-wide tunables the
// guest-init core reads at entry: a socket-log toggle, a crash-dump
// toggle, a debug-mode selector, and the root-init marker that chooses
// between the full-init and session-init personalities (spec.md §6
// "Environment variables consumed at entry"). It is the guest-side analog
// of the out-of-scope "static configuration files parsed by an external
// configuration reader" (spec.md §1): the core only consumes resolved
// typed values here, it never parses a config file format itself.
//
// Grounded on internal/harness/mount_linux.go's parseCmdlineEnv, but the
// process environment is never modified here: Load reads kernel cmdline
// tokens and environment variables side by side. For a valued setting an
// environment variable that is already set wins over the cmdline token;
// a boolean toggle is on when either source carries it.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the tunables resolved once at process start.
type Config struct {
	RootInit           bool
	SocketLog          bool
	CrashDump          bool
	DebugMode          string
	KernelCmdline      string
	ReclaimMode        string
	PageReportingOrder int
}

// Load reads /proc/cmdline and the environment and resolves Config. Safe
// to call more than once; each call re-reads current state.
func Load() Config {
	cmdline := readCmdline()
	order, _ := strconv.Atoi(firstNonEmpty(os.Getenv("WSL_PAGE_REPORTING_ORDER"), tokenValue(cmdline, "WSL_PAGE_REPORTING_ORDER")))
	return Config{
		RootInit:           hasToken(cmdline, "WSL_ROOT_INIT") || envSet("WSL_ROOT_INIT"),
		SocketLog:          hasToken(cmdline, "WSL_SOCKET_LOG") || envSet("WSL_SOCKET_LOG"),
		CrashDump:          hasToken(cmdline, "WSL_CRASH_DUMP") || envSet("WSL_CRASH_DUMP"),
		DebugMode:          firstNonEmpty(os.Getenv("WSL_DEBUG_MODE"), tokenValue(cmdline, "WSL_DEBUG_MODE")),
		KernelCmdline:      cmdline,
		ReclaimMode:        firstNonEmpty(os.Getenv("WSL_RECLAIM_MODE"), tokenValue(cmdline, "WSL_RECLAIM_MODE")),
		PageReportingOrder: order,
	}
}

func readCmdline() string {
	b, err := os.ReadFile("/proc/cmdline")
	if err != nil {
		return ""
	}
	return string(b)
}

func hasToken(cmdline, token string) bool {
	for _, f := range strings.Fields(cmdline) {
		name := f
		if i := strings.IndexByte(f, '='); i >= 0 {
			name = f[:i]
		}
		if name == token {
			return true
		}
	}
	return false
}

func tokenValue(cmdline, token string) string {
	prefix := token + "="
	for _, f := range strings.Fields(cmdline) {
		if strings.HasPrefix(f, prefix) {
			return strings.TrimPrefix(f, prefix)
		}
	}
	return ""
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
