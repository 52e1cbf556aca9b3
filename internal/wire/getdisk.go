package wire

import "encoding/binary"

// Field offsets within a TagGetDisk request: the SCSI LUN to resolve
// (spec.md §4.4's LUN->device resolution, exposed here as a standalone
// query rather than folded into a mount).
const (
	GetDiskLunOff   = HeaderSize
	GetDiskFixedSize = HeaderSize + 4
)

// Field offsets within a TagGetDisk response's fixed region.
const (
	getDiskResultErrnoOff = HeaderSize     // i32: 0 or -errno
	getDiskResultPathOff  = HeaderSize + 4 // u32: tail offset of the resolved /dev path

	getDiskResultFixedSize = getDiskResultPathOff + 4
)

// NewGetDiskResult builds the response to a TagGetDisk request.
func NewGetDiskResult(errno int32, devicePath string) *Builder {
	b := NewBuilder(TagGetDisk, getDiskResultFixedSize)
	fixed := b.Fixed()
	binary.LittleEndian.PutUint32(fixed[getDiskResultErrnoOff:], uint32(errno))
	if devicePath != "" {
		b.WriteStringAt(getDiskResultPathOff, devicePath)
	}
	return b
}

// GetDiskErrno reads the errno field of a TagGetDisk response.
func (r *Reader) GetDiskErrno() int32 { return int32(r.Uint32(getDiskResultErrnoOff)) }

// GetDiskPath reads the resolved device path of a TagGetDisk response.
func (r *Reader) GetDiskPath() (string, bool) { return r.String(getDiskResultPathOff) }
