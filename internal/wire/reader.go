package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reader views a received frame for extracting fixed fields and
// offset-referenced tail data. It does not copy the frame.
type Reader struct {
	Header Header
	buf    []byte
}

// NewReader wraps a complete frame (header included) for field access.
func NewReader(frame []byte) (*Reader, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	if int(h.Size) != len(frame) {
		return nil, fmt.Errorf("wire: header size %d does not match frame length %d", h.Size, len(frame))
	}
	return &Reader{Header: h, buf: frame}, nil
}

// Uint32 reads a little-endian uint32 field at the given byte offset.
func (r *Reader) Uint32(offset int) uint32 {
	return binary.LittleEndian.Uint32(r.buf[offset : offset+4])
}

// Uint16 reads a little-endian uint16 field at the given byte offset.
func (r *Reader) Uint16(offset int) uint16 {
	return binary.LittleEndian.Uint16(r.buf[offset : offset+2])
}

// String reads the NUL-terminated string whose offset is stored in the
// 4-byte field at fieldOffset. An offset of zero means "absent" and
// returns ok=false.
func (r *Reader) String(fieldOffset int) (s string, ok bool) {
	off := r.Uint32(fieldOffset)
	if off == 0 {
		return "", false
	}
	return r.stringAt(int(off)), true
}

func (r *Reader) stringAt(off int) string {
	if off >= len(r.buf) {
		return ""
	}
	end := bytes.IndexByte(r.buf[off:], 0)
	if end < 0 {
		return string(r.buf[off:])
	}
	return string(r.buf[off : off+end])
}

// StringArray reads the NUL-terminated, empty-string-terminated sequence
// of strings whose first entry's offset is stored at fieldOffset.
func (r *Reader) StringArray(fieldOffset int) []string {
	off := int(r.Uint32(fieldOffset))
	if off == 0 {
		return nil
	}
	var out []string
	for off < len(r.buf) {
		s := r.stringAt(off)
		if s == "" {
			break
		}
		out = append(out, s)
		off += len(s) + 1
	}
	return out
}

// Raw returns the complete frame, including header.
func (r *Reader) Raw() []byte { return r.buf }

// Body returns the frame bytes after the header.
func (r *Reader) Body() []byte { return r.buf[HeaderSize:] }
