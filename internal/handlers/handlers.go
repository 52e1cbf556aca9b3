// Package handlers wires the shared request handler table used by both
// the full-init and thin-init (session) personalities: mount/unmount/
// detach/get-disk/mount-folder/eject-vhd, wait-pid/signal, fork, tty and
// port relay, process creation/exec/launch-init, the two configuration
// messages, rootfs import/export, and child-exit notification. Grounded
// on the teacher's internal/harness/rpc.go dispatch switch, generalized
// to the binary Tag enumeration via internal/dispatch.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/wsl-linux/guestinit/internal/channel"
	"github.com/wsl-linux/guestinit/internal/dispatch"
	"github.com/wsl-linux/guestinit/internal/importexport"
	"github.com/wsl-linux/guestinit/internal/mountmgr"
	"github.com/wsl-linux/guestinit/internal/netinit"
	"github.com/wsl-linux/guestinit/internal/notify"
	"github.com/wsl-linux/guestinit/internal/proclife"
	"github.com/wsl-linux/guestinit/internal/relay"
	"github.com/wsl-linux/guestinit/internal/retry"
	"github.com/wsl-linux/guestinit/internal/session"
	"github.com/wsl-linux/guestinit/internal/vmconfig"
	"github.com/wsl-linux/guestinit/internal/vsock"
	"github.com/wsl-linux/guestinit/internal/wire"
)

// kernelModuleLoaderPath is the external helper the core execs to load
// the kernel modules named by initial-config's kernel-modules path. The
// core only knows the path and argv to invoke — it does not implement
// insmod/modprobe logic itself (spec.md §1 "Deliberately out of scope":
// "Kernel-module loading... invoked as child processes; the core only
// knows their paths and argv").
const kernelModuleLoaderPath = "/sbin/wsl-load-kernel-modules"

// Env bundles the shared state every handler closes over. It is the Go
// analog of the instance fields a C++ dispatcher object would carry.
type Env struct {
	Log     *slog.Logger
	Mounts  *mountmgr.Manager
	Cfg     *vmconfig.Config
	Spawner *session.Spawner

	// Notify is the serialized sender for frames a handler needs to push
	// outside its own request/response turn — an asynchronous completion
	// (TagWaitForPmem) or a main-loop event (child-exit forwarding). Send
	// on it instead of the raw Channel: a handler goroutine that outlives
	// its own dispatch turn racing the dispatcher's next Channel.Send
	// loses silently under the channel's try-lock (spec.md §4.1 "Send
	// contract"). May be nil in tests that never exercise an async path.
	Notify *notify.Queue

	sessMu   sync.Mutex
	sessions map[int32]*session.Session // pid/tid -> session, for TagTTYRelay lookup
}

func (e *Env) rememberSession(sess *session.Session) {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	if e.sessions == nil {
		e.sessions = make(map[int32]*session.Session)
	}
	e.sessions[int32(sess.Pid)] = sess
}

func (e *Env) lookupSession(pid int32) *session.Session {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	return e.sessions[pid]
}

// Request field offsets, all relative to the start of the frame. Each
// handler only reads the fields its own tag defines.
const (
	mountLunOff       = wire.HeaderSize
	mountTargetOff    = wire.HeaderSize + 4
	mountFSTypeOff    = wire.HeaderSize + 8
	mountOptionsOff   = wire.HeaderSize + 12
	mountFixedSize    = wire.HeaderSize + 16

	unmountTargetOff  = wire.HeaderSize
	unmountFixedSize  = wire.HeaderSize + 4

	detachLunOff   = wire.HeaderSize
	detachFixedSize = wire.HeaderSize + 4

	waitPidOff        = wire.HeaderSize
	waitTimeoutMsOff  = wire.HeaderSize + 4
	waitFixedSize     = wire.HeaderSize + 8

	signalPidOff   = wire.HeaderSize
	signalNumOff   = wire.HeaderSize + 4
	signalFixedSize = wire.HeaderSize + 8

	forkFlavorOff = wire.HeaderSize
	forkColsOff   = wire.HeaderSize + 1
	forkRowsOff   = wire.HeaderSize + 3
	forkFixedSize = wire.HeaderSize + 5

	// streamPortOff/streamPathOff/streamCompressionOff describe the
	// request layout shared by import, export, and import-in-place: the
	// data itself travels over a second vsock connection dialed back to
	// the host on streamPortOff (spec.md §4.3's per-operation ephemeral
	// port pattern, reused here instead of widening the control frame to
	// carry an entire rootfs tarball inline).
	streamPortOff        = wire.HeaderSize
	streamPathOff        = wire.HeaderSize + 4
	streamCompressionOff = wire.HeaderSize + 8
	streamFixedSize      = wire.HeaderSize + 9

	ttyRelayPidOff    = wire.HeaderSize
	ttyRelayPortOff   = wire.HeaderSize + 4
	ttyRelayFixedSize = wire.HeaderSize + 8

	// portRelayDialPortOff is the only field a TagPortRelay request
	// carries: the guest chooses its own ephemeral listener port and
	// reports it back in the response.
	portRelayDialPortOff = wire.HeaderSize
	portRelayFixedSize   = wire.HeaderSize + 4

	mountFolderNameOff     = wire.HeaderSize
	mountFolderPathOff     = wire.HeaderSize + 4
	mountFolderReadOnlyOff = wire.HeaderSize + 8
	mountFolderFixedSize   = wire.HeaderSize + 9

	ejectVhdLunOff   = wire.HeaderSize
	ejectVhdFixedSize = wire.HeaderSize + 4

	waitForPmemIdOff   = wire.HeaderSize
	waitForPmemFixedSize = wire.HeaderSize + 4

	// earlyConfig fields match main.cpp's LxMiniInitMessageEarlyConfig:
	// two kernel-adjacent toggles decided before the rootfs is mounted.
	earlyConfigSafeModeOff  = wire.HeaderSize     // u8 bool
	earlyConfigCrashDumpOff = wire.HeaderSize + 1 // u8 bool
	earlyConfigFixedSize    = wire.HeaderSize + 2

	// initialConfig fields match main.cpp's LxMiniInitMessageInitialConfig:
	// a bitfield of feature toggles, the networking mode enumeration, and
	// two string-tail references (spec.md §3 "VM configuration record").
	initialConfigFlagsOff             = wire.HeaderSize     // u8 bitfield, see initialConfigFlag* below
	initialConfigNetworkOff           = wire.HeaderSize + 4 // u32 vmconfig.NetworkMode
	initialConfigSystemDistroOff      = wire.HeaderSize + 8  // u32 string-tail offset
	initialConfigKernelModulesPathOff = wire.HeaderSize + 12 // u32 string-tail offset
	initialConfigFixedSize            = wire.HeaderSize + 16
)

// Bits within the initialConfigFlagsOff byte.
const (
	initialConfigFlagGPUShares = 1 << iota
	initialConfigFlagGUIApps
	initialConfigFlagInboxGPULibraries
	initialConfigFlagKernelModuleLoad
)

// Entries builds the root handler table shared by the full-init
// personality and every forked sub-channel dispatcher (spec.md §4.2,
// §4.3). Session-fabric children reuse the same table via
// session.Spawner.Root.
func (e *Env) Entries() []dispatch.Entry {
	return []dispatch.Entry{
		{Tag: wire.TagMount, MinSize: mountFixedSize, Handle: e.handleMount},
		{Tag: wire.TagUnmount, MinSize: unmountFixedSize, Handle: e.handleUnmount},
		{Tag: wire.TagDetach, MinSize: detachFixedSize, Handle: e.handleDetach},
		{Tag: wire.TagWaitPid, MinSize: waitFixedSize, Handle: e.handleWaitPid},
		{Tag: wire.TagSignal, MinSize: signalFixedSize, Handle: e.handleSignal},
		{Tag: wire.TagFork, MinSize: forkFixedSize, Handle: e.handleFork},
		{Tag: wire.TagEarlyConfig, MinSize: earlyConfigFixedSize, Handle: e.handleEarlyConfig},
		{Tag: wire.TagInitialConfig, MinSize: initialConfigFixedSize, Handle: e.handleInitialConfig},
		{Tag: wire.TagImport, MinSize: streamFixedSize, Handle: e.handleImport},
		{Tag: wire.TagExport, MinSize: streamFixedSize, Handle: e.handleExport},
		{Tag: wire.TagImportInPlace, MinSize: streamFixedSize, Handle: e.handleImportInPlace},
		{Tag: wire.TagChildExitNotify, MinSize: wire.ChildExitFixedSize, Handle: e.handleChildExitNotify},
		{Tag: wire.TagTTYRelay, MinSize: ttyRelayFixedSize, Handle: e.handleTTYRelay},
		{Tag: wire.TagPortRelay, MinSize: portRelayFixedSize, Handle: e.handlePortRelay},
		{Tag: wire.TagGetDisk, MinSize: wire.GetDiskFixedSize, Handle: e.handleGetDisk},
		{Tag: wire.TagMountFolder, MinSize: mountFolderFixedSize, Handle: e.handleMountFolder},
		{Tag: wire.TagEjectVhd, MinSize: ejectVhdFixedSize, Handle: e.handleEjectVhd},
		{Tag: wire.TagWaitForPmem, MinSize: waitForPmemFixedSize, Handle: e.handleWaitForPmem},
		{Tag: wire.TagResizeDistribution, MinSize: wire.ResizeFixedSize, Handle: e.handleResizeDistribution},
		{Tag: wire.TagCreateProcess, MinSize: wire.ProcExecFixedSize, Handle: e.handleCreateProcess},
		{Tag: wire.TagExec, MinSize: wire.ProcExecFixedSize, Handle: e.handleExec},
		{Tag: wire.TagLaunchInit, MinSize: wire.ProcExecFixedSize, Handle: e.handleLaunchInit},
	}
}

func (e *Env) handleMount(ch *channel.Channel, r *wire.Reader) error {
	lun := r.Uint32(mountLunOff)
	target, _ := r.String(mountTargetOff)
	fsType, _ := r.String(mountFSTypeOff)
	opts, _ := r.String(mountOptionsOff)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res := e.Mounts.MountLun(ctx, lun, target, fsType, opts)
	return ch.Send(wire.NewResult(wire.TagMount, res.Errno, res.Step, ""))
}

func (e *Env) handleUnmount(ch *channel.Channel, r *wire.Reader) error {
	target, _ := r.String(unmountTargetOff)
	errno := int32(0)
	if err := mountmgr.Unmount(target); err != nil {
		errno = mountmgr.ErrnoOf(err, syscall.EINVAL)
		e.Log.Warn("unmount failed", "target", target, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagUnmount, errno, wire.StepUnmount, ""))
}

func (e *Env) handleDetach(ch *channel.Channel, r *wire.Reader) error {
	lun := r.Uint32(detachLunOff)
	errno := int32(0)
	if err := mountmgr.Detach(e.Log, 1, lun); err != nil {
		errno = mountmgr.ErrnoOf(err, syscall.ENXIO)
		e.Log.Warn("detach failed", "lun", lun, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagDetach, errno, wire.StepRemoveDirectory, ""))
}

func (e *Env) handleWaitPid(ch *channel.Channel, r *wire.Reader) error {
	pid := int(r.Uint32(waitPidOff))
	timeout := time.Duration(r.Uint32(waitTimeoutMsOff)) * time.Millisecond
	res := proclife.WaitForPid(pid, timeout)
	return ch.Send(wire.NewWaitResult(uint8(res.State), res.ExitCode, res.Signal, res.Errno))
}

func (e *Env) handleSignal(ch *channel.Channel, r *wire.Reader) error {
	pid := int(r.Uint32(signalPidOff))
	sig := int(r.Uint32(signalNumOff))
	errno := int32(0)
	if err := proclife.Signal(pid, sig); err != nil {
		errno = mountmgr.ErrnoOf(err, syscall.ESRCH)
	}
	return ch.Send(wire.NewResult(wire.TagSignal, errno, 0, ""))
}

func (e *Env) handleFork(ch *channel.Channel, r *wire.Reader) error {
	flavor := wire.ForkFlavor(r.Raw()[forkFlavorOff])
	cols := r.Uint16(forkColsOff)
	rows := r.Uint16(forkRowsOff)

	ctx := context.Background()
	sess, err := e.Spawner.Fork(ctx, flavor, 0, cols, rows)
	if err != nil {
		e.Log.Warn("fork failed", "flavor", flavor, "error", err)
		return ch.Send(wire.NewForkResult(-1, 0, -1))
	}

	if sess.PtyMaster != nil {
		e.rememberSession(sess)
	}

	// Listen-before-respond: the port was already bound inside Fork
	// before this response is sent (spec.md §4.3 step 1-2 ordering).
	return ch.Send(wire.NewForkResult(0, sess.Port, int32(sess.Pid)))
}

func (e *Env) handleEarlyConfig(ch *channel.Channel, r *wire.Reader) error {
	safeMode := r.Raw()[earlyConfigSafeModeOff] != 0
	crashDumpEnable := r.Raw()[earlyConfigCrashDumpOff] != 0
	e.Cfg.ApplyEarlyConfig(safeMode, crashDumpEnable)
	return nil
}

// handleInitialConfig decodes the richer feature set negotiated once the
// system distro is known and, now that the VM configuration record is
// complete, drives the two things its flags gate: network bring-up (only
// when a networking mode was actually negotiated, matching
// main.cpp's StartGuestNetworkService being invoked from within a
// config-message handler rather than unconditionally at boot) and
// kernel-module loading.
func (e *Env) handleInitialConfig(ch *channel.Channel, r *wire.Reader) error {
	flags := r.Raw()[initialConfigFlagsOff]
	network := vmconfig.NetworkMode(r.Uint32(initialConfigNetworkOff))
	systemDistro, _ := r.String(initialConfigSystemDistroOff)
	kernelModulesPath, _ := r.String(initialConfigKernelModulesPathOff)

	e.Cfg.ApplyInitialConfig(
		flags&initialConfigFlagGPUShares != 0,
		flags&initialConfigFlagGUIApps != 0,
		flags&initialConfigFlagInboxGPULibraries != 0,
		flags&initialConfigFlagKernelModuleLoad != 0,
		systemDistro,
		kernelModulesPath,
		network,
	)

	cfg := e.Cfg.Snapshot()
	if cfg.Network != vmconfig.NetworkModeNone {
		netinit.Bringup(e.Log)
	} else {
		e.Log.Debug("initial-config: networking mode none, skipping network bring-up")
	}
	e.maybeLoadKernelModules(cfg)
	return nil
}

// maybeLoadKernelModules execs the external kernel-module loader named by
// kernelModuleLoaderPath, handing it the host-provided modules path as
// its only argument. Loading modules is deliberately not reimplemented
// here (spec.md §1 Non-goal): the core's job is only to know the helper's
// path and argv and invoke it.
func (e *Env) maybeLoadKernelModules(cfg vmconfig.Fields) {
	if !cfg.KernelModuleLoad || cfg.KernelModulesPath == "" {
		return
	}
	out, err := exec.Command(kernelModuleLoaderPath, cfg.KernelModulesPath).CombinedOutput()
	if err != nil {
		e.Log.Warn("initial-config: kernel module loader failed", "path", cfg.KernelModulesPath, "error", err, "output", string(out))
	}
}

// dialStream opens the second vsock connection an import/export request
// names, back toward the host CID on the port the request carries.
func dialStream(r *wire.Reader) (vsock.Conn, string, importexport.Compression, error) {
	port := r.Uint32(streamPortOff)
	path, _ := r.String(streamPathOff)
	kind := importexport.Compression(r.Raw()[streamCompressionOff])
	conn, err := vsock.Dial(vsock.HostCID, port)
	return conn, path, kind, err
}

func (e *Env) handleImport(ch *channel.Channel, r *wire.Reader) error {
	conn, path, kind, err := dialStream(r)
	if err != nil {
		e.Log.Warn("import: dial stream port failed", "error", err)
		return ch.Send(wire.NewResult(wire.TagImport, -1, 0, err.Error()))
	}
	defer conn.Close()

	errno := int32(0)
	msg := ""
	if err := importexport.Import(context.Background(), conn, path, kind); err != nil {
		errno = -1
		msg = err.Error()
		e.Log.Warn("import failed", "path", path, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagImport, errno, 0, msg))
}

func (e *Env) handleExport(ch *channel.Channel, r *wire.Reader) error {
	conn, path, kind, err := dialStream(r)
	if err != nil {
		e.Log.Warn("export: dial stream port failed", "error", err)
		return ch.Send(wire.NewResult(wire.TagExport, -1, 0, err.Error()))
	}
	defer conn.Close()

	errno := int32(0)
	msg := ""
	if err := importexport.Export(context.Background(), conn, path, kind); err != nil {
		errno = -1
		msg = err.Error()
		e.Log.Warn("export failed", "path", path, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagExport, errno, 0, msg))
}

// handleImportInPlace shares the import handler's wire layout and
// semantics: the distinction from TagImport is host-side (the target
// distribution is replaced in place rather than created fresh), which
// does not change anything this guest-side handler does.
func (e *Env) handleImportInPlace(ch *channel.Channel, r *wire.Reader) error {
	conn, path, kind, err := dialStream(r)
	if err != nil {
		e.Log.Warn("import-in-place: dial stream port failed", "error", err)
		return ch.Send(wire.NewResult(wire.TagImportInPlace, -1, 0, err.Error()))
	}
	defer conn.Close()

	errno := int32(0)
	msg := ""
	if err := importexport.Import(context.Background(), conn, path, kind); err != nil {
		errno = -1
		msg = err.Error()
		e.Log.Warn("import-in-place failed", "path", path, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagImportInPlace, errno, 0, msg))
}

// handleChildExitNotify is fire-and-forget: it logs the reported pid and
// sends no reply; no sender in this repository targets it, the guest's
// own reaper sends this tag to the host instead (spec.md
// §4.2 "Handler... is responsible for sending its own response... or
// deliberately not responding").
func (e *Env) handleChildExitNotify(ch *channel.Channel, r *wire.Reader) error {
	pid := r.Uint32(wire.ChildExitPidOff)
	e.Log.Info("child exited", "pid", pid)
	return nil
}

// handleTTYRelay pumps a pty-flavor session's master fd against a second
// vsock connection dialed back to the host (spec.md §4.6). It blocks for
// the lifetime of the relay and reports the outcome once the pty closes
// or the relay connection drops.
func (e *Env) handleTTYRelay(ch *channel.Channel, r *wire.Reader) error {
	pid := int32(r.Uint32(ttyRelayPidOff))
	port := r.Uint32(ttyRelayPortOff)

	sess := e.lookupSession(pid)
	if sess == nil || sess.PtyMaster == nil {
		return ch.Send(wire.NewResult(wire.TagTTYRelay, -1, 0, "no pty session for pid"))
	}
	conn, err := vsock.Dial(vsock.HostCID, port)
	if err != nil {
		e.Log.Warn("tty relay: dial stream port failed", "error", err)
		return ch.Send(wire.NewResult(wire.TagTTYRelay, -1, 0, err.Error()))
	}
	defer conn.Close()

	errno := int32(0)
	if err := relay.TTY(e.Log, sess.PtyMaster, conn, conn); err != nil {
		errno = -1
		e.Log.Warn("tty relay ended with error", "pid", pid, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagTTYRelay, errno, 0, ""))
}

// handlePortRelay opens an ephemeral guest-local TCP listener and bridges
// every accepted connection to a fresh vsock dial back to dialPort on the
// host, replying immediately with the assigned listener port so the host
// can route guest-loopback traffic without waiting for a connection
// (spec.md §4.7).
func (e *Env) handlePortRelay(ch *channel.Channel, r *wire.Reader) error {
	dialPort := r.Uint32(portRelayDialPortOff)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		e.Log.Warn("port relay: listen failed", "error", err)
		return ch.Send(wire.NewPortRelayResult(-1, 0))
	}
	guestPort := uint32(listener.Addr().(*net.TCPAddr).Port)

	go relay.Port(context.Background(), e.Log, listener, vsock.HostCID, dialPort)

	return ch.Send(wire.NewPortRelayResult(0, guestPort))
}

// handleGetDisk resolves a SCSI LUN to its /dev block-device path without
// mounting it, matching original_source's standalone LSW_GET_DISK query
// (used by callers that need the device path for something other than a
// straight filesystem mount, e.g. resize).
func (e *Env) handleGetDisk(ch *channel.Channel, r *wire.Reader) error {
	lun := r.Uint32(wire.GetDiskLunOff)
	name, err := mountmgr.ResolveDeviceName(lun)
	if err != nil {
		e.Log.Warn("get-disk: failed to resolve LUN", "lun", lun, "error", err)
		return ch.Send(wire.NewGetDiskResult(-int32(syscall.ENXIO), ""))
	}
	return ch.Send(wire.NewGetDiskResult(0, mountmgr.DevicePath(name)))
}

// handleMountFolder mounts a host-shared plan9/virtiofs folder, the
// counterpart to TagMount's block-device path (spec.md §1 "mounting
// VHD-backed filesystems" vs. host folder sharing).
func (e *Env) handleMountFolder(ch *channel.Channel, r *wire.Reader) error {
	name, _ := r.String(mountFolderNameOff)
	target, _ := r.String(mountFolderPathOff)
	readOnly := r.Raw()[mountFolderReadOnlyOff] != 0

	errno := int32(0)
	if err := mountmgr.MountPlan9(name, target, readOnly); err != nil {
		errno = mountmgr.ErrnoOf(err, syscall.EIO)
		e.Log.Warn("mount-folder failed", "name", name, "target", target, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagMountFolder, errno, 0, ""))
}

// handleEjectVhd detaches a LUN and reports completion, the same
// operation TagDetach performs under a name that matches the host-side
// VHD lifecycle vocabulary (main.cpp's LxMiniInitMessageEjectVhd).
func (e *Env) handleEjectVhd(ch *channel.Channel, r *wire.Reader) error {
	lun := r.Uint32(ejectVhdLunOff)
	errno := int32(0)
	if err := mountmgr.Detach(e.Log, 1, lun); err != nil {
		errno = mountmgr.ErrnoOf(err, syscall.ENXIO)
		e.Log.Warn("eject-vhd failed", "lun", lun, "error", err)
	}
	return ch.Send(wire.NewResult(wire.TagEjectVhd, errno, 0, ""))
}

// handleWaitForPmem polls for a pmem device node to appear and reports
// completion asynchronously: the request returns immediately and the
// actual result arrives once the device shows up or the retry budget is
// exhausted (main.cpp's ProcessWaitForPmemDeviceMessage).
func (e *Env) handleWaitForPmem(ch *channel.Channel, r *wire.Reader) error {
	pmemID := r.Uint32(waitForPmemIdOff)
	go func() {
		path := fmt.Sprintf("/dev/pmem%d", pmemID)
		errno := int32(0)
		if _, err := retry.WithTimeout(func() (struct{}, error) {
			_, statErr := os.Stat(path)
			return struct{}{}, statErr
		}, retry.DefaultPeriod, retry.DefaultTimeout, retry.Transient); err != nil {
			errno = mountmgr.ErrnoOf(err, syscall.ENXIO)
			e.Log.Warn("wait-for-pmem timed out", "pmem_id", pmemID, "error", err)
		}
		// This goroutine outlives the handler's own dispatch turn, so the
		// result cannot go out via ch.Send directly: it would race
		// whatever frame the dispatch loop is sending at the moment this
		// completes, and Channel.Send's try-lock drops whichever call
		// loses (spec.md §4.1 "Send contract"). Route it through the
		// serialized notification queue instead.
		if e.Notify != nil {
			e.Notify.Send(wire.NewResult(wire.TagWaitForPmem, errno, 0, ""))
		}
	}()
	return nil
}

// handleResizeDistribution fscks and resizes the filesystem backing a
// LUN in place (main.cpp's ProcessResizeDistributionMessage). This
// implementation reports only the final response code; the original's
// redirection of e2fsck/resize2fs stdout to a second vsock stream is not
// reproduced here (see DESIGN.md).
func (e *Env) handleResizeDistribution(ch *channel.Channel, r *wire.Reader) error {
	lun := r.Uint32(wire.ResizeLunOff)

	deviceName, err := mountmgr.ResolveDeviceName(lun)
	if err != nil {
		e.Log.Warn("resize-distribution: failed to resolve LUN", "lun", lun, "error", err)
		return ch.Send(wire.NewResizeDistributionResult(-1))
	}
	devicePath := mountmgr.DevicePath(deviceName)

	if out, err := exec.Command("e2fsck", "-f", "-y", devicePath).CombinedOutput(); err != nil {
		e.Log.Warn("resize-distribution: e2fsck failed", "device", devicePath, "error", err, "output", string(out))
		return ch.Send(wire.NewResizeDistributionResult(-1))
	}
	if out, err := exec.Command("resize2fs", devicePath).CombinedOutput(); err != nil {
		e.Log.Warn("resize-distribution: resize2fs failed", "device", devicePath, "error", err, "output", string(out))
		return ch.Send(wire.NewResizeDistributionResult(-1))
	}
	return ch.Send(wire.NewResizeDistributionResult(0))
}

// handleCreateProcess spawns an arbitrary child process with the given
// argv/env and reports its pid, without the session fabric's channel or
// pty plumbing (util.cpp's CREATE_PROCESS_MESSAGE handling).
func (e *Env) handleCreateProcess(ch *channel.Channel, r *wire.Reader) error {
	exe, _ := r.String(wire.ProcExecutableOff)
	argv := r.StringArray(wire.ProcArgvOff)
	env := r.StringArray(wire.ProcEnvOff)

	cmd := exec.Command(exe, argv...)
	cmd.Env = env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		e.Log.Warn("create-process failed", "executable", exe, "error", err)
		return ch.Send(wire.NewCreateProcessResult(-1, -1))
	}
	return ch.Send(wire.NewCreateProcessResult(0, int32(cmd.Process.Pid)))
}

// handleExec replaces the current process image with the requested
// executable (LSWInit.cpp's LSW_EXEC, always issued inside an
// already-forked session channel so the replacement only affects that
// child). A response is only ever sent on failure: success means this
// process no longer exists to send one.
func (e *Env) handleExec(ch *channel.Channel, r *wire.Reader) error {
	exe, _ := r.String(wire.ProcExecutableOff)
	argv := append([]string{exe}, r.StringArray(wire.ProcArgvOff)...)
	env := r.StringArray(wire.ProcEnvOff)

	// exec preserves the caller's signal mask, unlike fork; a process
	// that installed the signalfd reaper has SIGCHLD blocked and must
	// restore it before replacing its image, or the blocked mask leaks
	// into whatever this execs into (spec.md §5 "Signal discipline").
	if err := proclife.UnblockSIGCHLD(); err != nil {
		e.Log.Warn("exec: failed to unblock SIGCHLD", "error", err)
	}

	err := syscall.Exec(exe, argv, env)
	e.Log.Warn("exec failed", "executable", exe, "error", err)
	return ch.Send(wire.NewResult(wire.TagExec, mountmgr.ErrnoOf(err, syscall.ENOEXEC), 0, err.Error()))
}

// handleLaunchInit execs the real distribution init, the terminal step
// of the guest bring-up sequence (spec.md's Non-goal: "the core exits by
// exec'ing or forking the real distribution init and does not supervise
// it past that point"). Like handleExec, a response is only sent on
// failure.
func (e *Env) handleLaunchInit(ch *channel.Channel, r *wire.Reader) error {
	exe, _ := r.String(wire.ProcExecutableOff)
	argv := append([]string{exe}, r.StringArray(wire.ProcArgvOff)...)
	env := r.StringArray(wire.ProcEnvOff)

	if err := proclife.UnblockSIGCHLD(); err != nil {
		e.Log.Warn("launch-init: failed to unblock SIGCHLD", "error", err)
	}

	err := syscall.Exec(exe, argv, env)
	e.Log.Warn("launch-init failed", "executable", exe, "error", err)
	return ch.Send(wire.NewResult(wire.TagLaunchInit, mountmgr.ErrnoOf(err, syscall.ENOEXEC), 0, err.Error()))
}
