package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed byte length of Header on the wire.
const HeaderSize = 8

// Header is the fixed-layout record at the start of every frame: total
// message size in bytes including the header, a closed-enumeration
// message-type tag, and a per-channel sequence number (spec.md §3
// "Message header").
type Header struct {
	Size     uint32
	Type     Tag
	Sequence uint16
}

// Put encodes h into the first HeaderSize bytes of dst. dst must be at
// least HeaderSize bytes long.
func (h Header) Put(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Size)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint16(dst[6:8], h.Sequence)
}

// ParseHeader decodes a Header from the first HeaderSize bytes of src.
func ParseHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header, got %d bytes want %d", len(src), HeaderSize)
	}
	return Header{
		Size:     binary.LittleEndian.Uint32(src[0:4]),
		Type:     Tag(binary.LittleEndian.Uint16(src[4:6])),
		Sequence: binary.LittleEndian.Uint16(src[6:8]),
	}, nil
}
