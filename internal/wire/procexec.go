package wire

import "encoding/binary"

// Field offsets shared by TagCreateProcess, TagExec, and TagLaunchInit
// requests: an executable path plus argv/env string arrays (spec.md
// §4.1's variable-length tail fields, grounded on
// original_source/src/linux/init/util.cpp's CREATE_PROCESS_MESSAGE and
// LSWInit.cpp's LSW_EXEC).
const (
	ProcExecutableOff = HeaderSize
	ProcArgvOff       = HeaderSize + 4
	ProcEnvOff        = HeaderSize + 8

	ProcExecFixedSize = HeaderSize + 12
)

// Field offsets within a TagCreateProcess response's fixed region.
const (
	createProcessErrnoOff = HeaderSize     // i32: 0 or -errno
	createProcessPidOff   = HeaderSize + 4 // i32: spawned pid

	createProcessResultFixedSize = createProcessPidOff + 4
)

// NewCreateProcessResult builds the response to a TagCreateProcess request.
func NewCreateProcessResult(errno int32, pid int32) *Builder {
	b := NewBuilder(TagCreateProcess, createProcessResultFixedSize)
	fixed := b.Fixed()
	binary.LittleEndian.PutUint32(fixed[createProcessErrnoOff:], uint32(errno))
	binary.LittleEndian.PutUint32(fixed[createProcessPidOff:], uint32(pid))
	return b
}

// CreateProcessErrno reads the errno field of a TagCreateProcess response.
func (r *Reader) CreateProcessErrno() int32 { return int32(r.Uint32(createProcessErrnoOff)) }

// CreateProcessPid reads the spawned pid of a TagCreateProcess response.
func (r *Reader) CreateProcessPid() int32 { return int32(r.Uint32(createProcessPidOff)) }

// Field offsets within a TagResizeDistribution request: the LUN to fsck
// and resize, and the target size in bytes (0 means "grow to fill the
// device", matching main.cpp's ProcessResizeDistributionMessage).
const (
	ResizeLunOff     = HeaderSize
	ResizeNewSizeOff = HeaderSize + 4

	ResizeFixedSize = HeaderSize + 12
)

// Field offsets within a TagResizeDistribution response's fixed region.
const (
	resizeResponseCodeOff = HeaderSize

	resizeResultFixedSize = resizeResponseCodeOff + 4
)

// NewResizeDistributionResult builds the response to a TagResizeDistribution request.
func NewResizeDistributionResult(responseCode int32) *Builder {
	b := NewBuilder(TagResizeDistribution, resizeResultFixedSize)
	binary.LittleEndian.PutUint32(b.Fixed()[resizeResponseCodeOff:], uint32(responseCode))
	return b
}
