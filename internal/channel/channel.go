// Package channel implements the framed, sequenced, mutex-disciplined
// message transport described in spec.md §4.1. It is grounded on
// original_source/src/shared/inc/SocketChannel.h: a try-lock mutex per
// direction (failure to acquire means the caller violated the documented
// serial-per-direction contract), a monotonic sequence counter per
// direction, and a clean-close/mid-frame-close distinction surfaced to
// callers as ErrClosed versus a *ProtocolError.
package channel

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/wsl-linux/guestinit/internal/wire"
)

// ErrClosed is returned by Receive when the peer performed a clean
// shutdown with no frame in flight (spec.md §4.1 "A clean close ... yields
// None").
var ErrClosed = errors.New("channel: closed cleanly")

// ErrLocked reports that Send or Receive was called concurrently on the
// same direction of a Channel, which the source documents as a caller
// protocol violation rather than a condition to wait out.
var ErrLocked = errors.New("channel: concurrent use of a single direction, EINVAL")

// ProtocolError represents an unrecoverable framing violation: a bad tag,
// a short payload, or a sequence mismatch. Per spec.md §7, any
// ProtocolError is fatal for the channel; the caller must not reuse it.
type ProtocolError struct {
	Channel string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("channel %q: protocol error: %s", e.Channel, e.Reason)
}

// Channel owns one reliable byte-oriented stream socket plus the
// bookkeeping needed to frame, sequence, and validate messages flowing
// over it (spec.md §3 "Channel").
type Channel struct {
	name           string
	conn           net.Conn
	log            *slog.Logger
	ignoreSequence bool

	sendMu   sync.Mutex
	sendLock int32 // 0 = free, 1 = held; backs a try-lock on top of sendMu

	recvMu   sync.Mutex
	recvLock int32

	sentSequence     uint32
	receivedSequence uint32
}

// Option configures a new Channel.
type Option func(*Channel)

// IgnoreSequence marks a channel whose frames may legitimately interleave
// (spec.md §3: "set for channels that may legitimately interleave").
func IgnoreSequence() Option {
	return func(c *Channel) { c.ignoreSequence = true }
}

// WithLogger attaches a structured logger; socket-level payload logging is
// gated separately by SocketLogEnabled at the call site, mirroring
// SocketChannel.h's WSL_SOCKET_LOG cmdline-token gate.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// New wraps conn as a named Channel.
func New(name string, conn net.Conn, opts ...Option) *Channel {
	c := &Channel{name: name, conn: conn, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the channel's human-readable name, used in log lines.
func (c *Channel) Name() string { return c.name }

// Close releases the underlying socket. Safe to call more than once.
func (c *Channel) Close() error { return c.conn.Close() }

func tryLock(held *int32) bool {
	return atomic.CompareAndSwapInt32(held, 0, 1)
}

func unlock(held *int32) {
	atomic.StoreInt32(held, 0)
}

// Send assembles seq into the frame's header and writes it in full,
// retrying across partial writes. Acquiring the send direction is a
// try-lock: a second concurrent Send call fails immediately with
// ErrLocked rather than blocking, since each direction is documented as
// strictly serial (spec.md §4.1 "Send contract").
func (c *Channel) Send(b *wire.Builder) error {
	if !tryLock(&c.sendLock) {
		return ErrLocked
	}
	defer unlock(&c.sendLock)
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	seq := atomic.AddUint32(&c.sentSequence, 1)
	frame := b.Span(uint16(seq))

	n, err := writeFull(c.conn, frame)
	if err != nil {
		return fmt.Errorf("channel %q: send: %w", c.name, err)
	}
	if n != len(frame) {
		return fmt.Errorf("channel %q: send: short write %d of %d", c.name, n, len(frame))
	}
	return nil
}

func writeFull(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReceiveOrClosed reads the next frame, validating its tag against want
// (or wire.TagAny), its size against minSize, and its sequence number
// against the per-direction counter unless ignoreSequence is set. A clean
// close with nothing in flight returns ErrClosed; any other framing
// failure returns a *ProtocolError and the channel must be discarded
// (spec.md §4.1 "Receive contract").
func (c *Channel) ReceiveOrClosed(want wire.Tag, minSize int) (*wire.Reader, error) {
	if !tryLock(&c.recvLock) {
		return nil, ErrLocked
	}
	defer unlock(&c.recvLock)
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	hdrBuf := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(c.conn, hdrBuf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("mid-frame close or I/O error reading header: %v", err)}
	}

	h, err := wire.ParseHeader(hdrBuf)
	if err != nil {
		return nil, &ProtocolError{Channel: c.name, Reason: err.Error()}
	}
	if int(h.Size) < wire.HeaderSize {
		return nil, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("declared size %d shorter than header", h.Size)}
	}

	frame := make([]byte, h.Size)
	copy(frame, hdrBuf)
	if _, err := io.ReadFull(c.conn, frame[wire.HeaderSize:]); err != nil {
		return nil, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("mid-frame close reading body: %v", err)}
	}

	if want != wire.TagAny && h.Type != want {
		return nil, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("unexpected tag %s, want %s", h.Type, want)}
	}
	if int(h.Size) < minSize {
		return nil, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("payload %d shorter than minimum %d for tag %s", h.Size, minSize, h.Type)}
	}
	if !c.ignoreSequence {
		expected := atomic.AddUint32(&c.receivedSequence, 1)
		if uint32(h.Sequence) != expected {
			return nil, &ProtocolError{Channel: c.name, Reason: fmt.Sprintf("sequence %d, want %d", h.Sequence, expected)}
		}
	}

	r, err := wire.NewReader(frame)
	if err != nil {
		return nil, &ProtocolError{Channel: c.name, Reason: err.Error()}
	}
	return r, nil
}

// Transact sends req and then receives a frame of the given response tag
// and minimum size, preserving per-channel sequencing (spec.md §4.1
// "Transaction").
func (c *Channel) Transact(req *wire.Builder, respTag wire.Tag, respMinSize int) (*wire.Reader, error) {
	if err := c.Send(req); err != nil {
		return nil, err
	}
	return c.ReceiveOrClosed(respTag, respMinSize)
}
