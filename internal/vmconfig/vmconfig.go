// Package vmconfig holds the VM configuration record spec.md §3
// describes: feature flags negotiated at boot, built incrementally as
// the host sends early-config and initial-config messages. No teacher
// equivalent exists for this exact record (the teacher's internal/config
// is a host-daemon config file, not a guest-negotiated one); the field
// set and two-message incremental-build shape are grounded directly on
// spec.md §3 and §6's early-config/initial-config tags.
package vmconfig

import (
	"sync"

	"github.com/wsl-linux/guestinit/internal/wire"
)

// NetworkMode enumerates the networking mode negotiated at boot
// (spec.md §3: "a networking mode enumeration").
type NetworkMode uint32

const (
	NetworkModeNone NetworkMode = iota
	NetworkModeNAT
	NetworkModeMirrored
	NetworkModeVirtioProxy
)

// Fields is the plain-data payload of Config, held separately from its
// mutex so Snapshot can return a cheap, lock-free copy.
type Fields struct {
	// From early-config (wire.TagEarlyConfig): decided before the rootfs is
	// even mounted, so only kernel-adjacent toggles live here.
	SafeMode        bool
	CrashDumpEnable bool

	// From initial-config (wire.TagInitialConfig): the richer feature set,
	// available once the system distro has been selected.
	GPUShares         bool
	GUIApps           bool
	SystemDistro      string
	InboxGPULibraries bool
	KernelModuleLoad  bool
	KernelModulesPath string
	Network           NetworkMode
}

// Config is the VM configuration record, built incrementally from two
// messages and read thereafter by every handler that needs to know which
// optional features are active.
type Config struct {
	mu       sync.RWMutex
	f        Fields
	received map[wire.Tag]bool
}

// New returns an empty, not-yet-populated Config.
func New() *Config {
	return &Config{received: make(map[wire.Tag]bool, 2)}
}

// ApplyEarlyConfig fills in the fields carried by the early-config
// message. Safe to call concurrently with reads from handler goroutines.
func (c *Config) ApplyEarlyConfig(safeMode, crashDumpEnable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.f.SafeMode = safeMode
	c.f.CrashDumpEnable = crashDumpEnable
	c.received[wire.TagEarlyConfig] = true
}

// ApplyInitialConfig fills in the fields carried by the initial-config
// message.
func (c *Config) ApplyInitialConfig(gpuShares, guiApps, inboxGPULibraries, kernelModuleLoad bool, systemDistro, kernelModulesPath string, network NetworkMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.f.GPUShares = gpuShares
	c.f.GUIApps = guiApps
	c.f.InboxGPULibraries = inboxGPULibraries
	c.f.KernelModuleLoad = kernelModuleLoad
	c.f.SystemDistro = systemDistro
	c.f.KernelModulesPath = kernelModulesPath
	c.f.Network = network
	c.received[wire.TagInitialConfig] = true
}

// Ready reports whether both configuration messages have arrived. No
// handler in this repository consults it; Snapshot returns the fields
// whether or not both messages have been applied.
func (c *Config) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.received[wire.TagEarlyConfig] && c.received[wire.TagInitialConfig]
}

// Snapshot returns a copy of the current record for handlers that want a
// consistent read without holding the lock across their own work.
func (c *Config) Snapshot() Fields {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.f
}
