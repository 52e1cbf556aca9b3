package wire

import "testing"

func TestBuilderReaderRoundTrip(t *testing.T) {
	const fixedSize = HeaderSize + 4
	b := NewBuilder(TagMount, fixedSize)
	b.WriteStringAt(HeaderSize, "/dev/sda1")
	frame := b.Span(7)

	r, err := NewReader(frame)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Header.Type != TagMount {
		t.Fatalf("Type = %v, want TagMount", r.Header.Type)
	}
	if r.Header.Sequence != 7 {
		t.Fatalf("Sequence = %d, want 7", r.Header.Sequence)
	}
	s, ok := r.String(HeaderSize)
	if !ok || s != "/dev/sda1" {
		t.Fatalf("String = %q, %v, want %q, true", s, ok, "/dev/sda1")
	}
}

func TestNewResultRoundTrip(t *testing.T) {
	b := NewResult(TagMount, -2, StepFindDevice, "no such device")
	frame := b.Span(1)

	r, err := NewReader(frame)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Header.Type != TagResult {
		t.Fatalf("Type = %v, want TagResult", r.Header.Type)
	}
	if r.ReplyTo() != TagMount {
		t.Fatalf("ReplyTo = %v, want TagMount", r.ReplyTo())
	}
	if r.Errno() != -2 {
		t.Fatalf("Errno = %d, want -2", r.Errno())
	}
	if r.Step() != StepFindDevice {
		t.Fatalf("Step = %v, want StepFindDevice", r.Step())
	}
	msg, ok := r.String(resultMessageOff)
	if !ok || msg != "no such device" {
		t.Fatalf("message = %q, %v, want %q, true", msg, ok, "no such device")
	}
}

func TestTagStringUnknown(t *testing.T) {
	if got := Tag(0x1234).String(); got != "unknown-tag" {
		t.Fatalf("String() = %q, want unknown-tag", got)
	}
}
