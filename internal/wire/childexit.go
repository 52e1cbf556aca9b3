package wire

import "encoding/binary"

// Field offsets for TagChildExitNotify: a single reaped pid. The main
// loop's signalfd reaper sends this frame to the host over the secondary
// notification channel; the dispatcher also accepts an inbound frame of
// this shape and only logs it (spec.md §4.9 "Main loop", §6 "child-exit-
// notification").
const (
	ChildExitPidOff    = HeaderSize
	ChildExitFixedSize = HeaderSize + 4
)

// NewChildExitNotify builds a TagChildExitNotify frame reporting pid.
func NewChildExitNotify(pid uint32) *Builder {
	b := NewBuilder(TagChildExitNotify, ChildExitFixedSize)
	binary.LittleEndian.PutUint32(b.Fixed()[ChildExitPidOff:], pid)
	return b
}
