package wire

import "encoding/binary"

// Builder assembles an outbound frame: a fixed-size header-plus-body
// region followed by a variable-length tail holding NUL-terminated
// strings and string arrays. Fields in the fixed region that reference
// tail data store the tail entry's byte offset from the start of the
// frame; zero means "absent" (spec.md §3, §4.1 "Builder contract").
//
// Grounded on original_source/src/shared/inc/message.h's
// MessageWriter<TMessage> template: the buffer grows as variable-length
// fields are appended, each append records a relative offset that
// survives a future buffer reallocation, and the frame is zero-padded to
// at least FixedSize before being handed to the transport.
type Builder struct {
	tag       Tag
	fixedSize int
	buf       []byte
}

// NewBuilder starts a frame of the given tag whose fixed portion
// (header + typed struct fields) is fixedSize bytes, including the
// header.
func NewBuilder(tag Tag, fixedSize int) *Builder {
	b := &Builder{tag: tag, fixedSize: fixedSize}
	b.buf = make([]byte, fixedSize)
	return b
}

// Fixed returns the fixed-region byte slice for in-place field writes
// (e.g. binary.LittleEndian.PutUint32(b.Fixed()[off:], value)).
func (b *Builder) Fixed() []byte {
	return b.buf[:b.fixedSize]
}

// WriteString appends s plus a NUL terminator to the tail and returns its
// offset from the start of the frame. A caller stores that offset into
// the appropriate fixed-region field.
func (b *Builder) WriteString(s string) uint32 {
	off := uint32(len(b.buf))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return off
}

// WriteStringAt appends s to the tail and writes its offset into the
// 4-byte fixed-region field at fieldOffset. Equivalent to
// MessageWriter::WriteString(unsigned int& Index, ...), which re-resolves
// the field location by relative index so an intervening reallocation of
// buf does not invalidate it.
func (b *Builder) WriteStringAt(fieldOffset int, s string) {
	off := b.WriteString(s)
	binary.LittleEndian.PutUint32(b.buf[fieldOffset:fieldOffset+4], off)
}

// WriteStringArray appends a sequence of NUL-terminated strings
// back-to-back, terminated by an empty string, and writes the offset of
// the first entry into fieldOffset.
func (b *Builder) WriteStringArray(fieldOffset int, items []string) {
	off := uint32(len(b.buf))
	for _, s := range items {
		b.buf = append(b.buf, s...)
		b.buf = append(b.buf, 0)
	}
	b.buf = append(b.buf, 0) // terminating empty string
	binary.LittleEndian.PutUint32(b.buf[fieldOffset:fieldOffset+4], off)
}

// WriteSpan appends raw bytes to the tail and returns their offset.
func (b *Builder) WriteSpan(p []byte) uint32 {
	off := uint32(len(b.buf))
	b.buf = append(b.buf, p...)
	return off
}

// Span finalizes the frame: zero-pads to fixedSize if the accumulated
// content is shorter (alignment padding in the source type), stamps the
// header, and returns the complete frame ready for the channel to send.
// seq is the sequence number assigned by the channel at send time.
func (b *Builder) Span(seq uint16) []byte {
	if len(b.buf) < b.fixedSize {
		pad := make([]byte, b.fixedSize-len(b.buf))
		b.buf = append(b.buf, pad...)
	}
	h := Header{Size: uint32(len(b.buf)), Type: b.tag, Sequence: seq}
	h.Put(b.buf)
	return b.buf
}
