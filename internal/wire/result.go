package wire

import "encoding/binary"

// Field offsets within a TagResult frame's fixed region, all relative to
// the start of the frame (i.e. already past the 8-byte header).
const (
	resultReplyToOff = HeaderSize     // u16: which request tag this answers
	resultErrnoOff   = HeaderSize + 2 // i32 (stored as u32): 0 or -errno
	resultStepOff    = HeaderSize + 6 // u8: MountStep, meaningful for mount/unmount only
	resultMessageOff = HeaderSize + 8 // u32: tail offset of an optional diagnostic string

	resultFixedSize = resultMessageOff + 4
)

// NewResult builds a generic TagResult frame reporting the outcome of
// replyTo: an errno (0 or -errno) and, for mount/unmount operations, the
// step at which failure occurred (spec.md §4.4 "Failure model"). This is
// this repo's resolution of the spec's Open Question in favor of a
// diagnosable generic-error-response type rather than relying on silent
// channel closure alone (see DESIGN.md).
func NewResult(replyTo Tag, errno int32, step MountStep, message string) *Builder {
	b := NewBuilder(TagResult, resultFixedSize)
	fixed := b.Fixed()
	binary.LittleEndian.PutUint16(fixed[resultReplyToOff:], uint16(replyTo))
	binary.LittleEndian.PutUint32(fixed[resultErrnoOff:], uint32(errno))
	fixed[resultStepOff] = byte(step)
	if message != "" {
		b.WriteStringAt(resultMessageOff, message)
	}
	return b
}

// ReplyTo reads the request tag a TagResult frame answers.
func (r *Reader) ReplyTo() Tag {
	return Tag(r.Uint16(resultReplyToOff))
}

// Errno reads the errno field of a TagResult frame (0 or -errno).
func (r *Reader) Errno() int32 {
	return int32(r.Uint32(resultErrnoOff))
}

// Step reads the MountStep field of a TagResult frame.
func (r *Reader) Step() MountStep {
	return MountStep(r.buf[resultStepOff])
}

// Field offsets within a TagFork response's fixed region (spec.md §4.3:
// the response carries the ephemeral vsock port the host should connect
// to, and the spawned pid/tid known synchronously for the thread and pty
// flavors).
const (
	forkResultErrnoOff = HeaderSize     // i32: 0 or -errno
	forkResultPortOff  = HeaderSize + 4 // u32: ephemeral vsock port
	forkResultPidOff   = HeaderSize + 8 // i32: pid or tid, -1 if not known synchronously

	forkResultFixedSize = forkResultPidOff + 4
)

// NewForkResult builds the response to a TagFork request.
func NewForkResult(errno int32, port uint32, pid int32) *Builder {
	b := NewBuilder(TagFork, forkResultFixedSize)
	fixed := b.Fixed()
	binary.LittleEndian.PutUint32(fixed[forkResultErrnoOff:], uint32(errno))
	binary.LittleEndian.PutUint32(fixed[forkResultPortOff:], port)
	binary.LittleEndian.PutUint32(fixed[forkResultPidOff:], uint32(pid))
	return b
}

// ForkPort reads the ephemeral vsock port of a TagFork response.
func (r *Reader) ForkPort() uint32 { return r.Uint32(forkResultPortOff) }

// ForkPid reads the pid/tid field of a TagFork response.
func (r *Reader) ForkPid() int32 { return int32(r.Uint32(forkResultPidOff)) }

// Field offsets within a TagPortRelay response's fixed region (spec.md
// §4.7: the guest binds an ephemeral local listener and reports its port
// back so the host knows where to route loopback connections).
const (
	portRelayErrnoOff = HeaderSize     // i32: 0 or -errno
	portRelayPortOff  = HeaderSize + 4 // u32: ephemeral guest-local port

	portRelayFixedSize = portRelayPortOff + 4
)

// NewPortRelayResult builds the response to a TagPortRelay request.
func NewPortRelayResult(errno int32, port uint32) *Builder {
	b := NewBuilder(TagPortRelay, portRelayFixedSize)
	fixed := b.Fixed()
	binary.LittleEndian.PutUint32(fixed[portRelayErrnoOff:], uint32(errno))
	binary.LittleEndian.PutUint32(fixed[portRelayPortOff:], port)
	return b
}

// PortRelayPort reads the assigned guest-local port of a TagPortRelay response.
func (r *Reader) PortRelayPort() uint32 { return r.Uint32(portRelayPortOff) }

// Field offsets within a TagWaitPid response's fixed region (spec.md
// §4.5 "Wait": state plus, depending on state, an exit code or signal
// number).
const (
	waitResultStateOff    = HeaderSize     // u8: proclife.WaitState
	waitResultExitCodeOff = HeaderSize + 4 // i32
	waitResultSignalOff   = HeaderSize + 8 // i32
	waitResultErrnoOff    = HeaderSize + 12

	waitResultFixedSize = waitResultErrnoOff + 4
)

// NewWaitResult builds the response to a TagWaitPid request.
func NewWaitResult(state uint8, exitCode, signal, errno int32) *Builder {
	b := NewBuilder(TagWaitPid, waitResultFixedSize)
	fixed := b.Fixed()
	fixed[waitResultStateOff] = state
	binary.LittleEndian.PutUint32(fixed[waitResultExitCodeOff:], uint32(exitCode))
	binary.LittleEndian.PutUint32(fixed[waitResultSignalOff:], uint32(signal))
	binary.LittleEndian.PutUint32(fixed[waitResultErrnoOff:], uint32(errno))
	return b
}
