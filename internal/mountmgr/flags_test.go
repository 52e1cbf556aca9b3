package mountmgr

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestParseMountFlagsKnownTokens(t *testing.T) {
	cases := []struct {
		opts       string
		wantFlags  uintptr
		wantNoFail bool
	}{
		{"ro,noatime,nofail", unix.MS_RDONLY | unix.MS_NOATIME, true},
		{"rw", 0, false},
		{"defaults", 0, false},
		{"user", unix.MS_NOEXEC | unix.MS_NODEV | unix.MS_NOSUID, false},
		{"user=foo", unix.MS_NOEXEC | unix.MS_NODEV | unix.MS_NOSUID, false},
		{"sync,async", 0, false}, // async clears what sync set
		{"noatime,atime", 0, false},
	}
	for _, c := range cases {
		got := ParseMountFlags(c.opts)
		if got.MountFlags != c.wantFlags {
			t.Errorf("ParseMountFlags(%q).MountFlags = %#x, want %#x", c.opts, got.MountFlags, c.wantFlags)
		}
		if got.NoFail != c.wantNoFail {
			t.Errorf("ParseMountFlags(%q).NoFail = %v, want %v", c.opts, got.NoFail, c.wantNoFail)
		}
	}
}

// TestParseMountFlagsOnlyValidFlagsYieldsEmptyStringOptions exercises the
// boundary behavior from spec.md §8: "Mounting with an options string
// containing only valid flags produces an empty string-options buffer
// passed to the kernel."
func TestParseMountFlagsOnlyValidFlagsYieldsEmptyStringOptions(t *testing.T) {
	got := ParseMountFlags("ro,noatime,nofail")
	if got.StringOptions != "" {
		t.Fatalf("StringOptions = %q, want empty", got.StringOptions)
	}
}

func TestParseMountFlagsPassthrough(t *testing.T) {
	got := ParseMountFlags("ro,data=ordered,barrier=1")
	if got.MountFlags != unix.MS_RDONLY {
		t.Fatalf("MountFlags = %#x, want MS_RDONLY", got.MountFlags)
	}
	if got.StringOptions != "data=ordered,barrier=1" {
		t.Fatalf("StringOptions = %q", got.StringOptions)
	}
}

// TestParseMountFlagsIdempotent checks the pass-through part of the
// round-trip law from spec.md §8: re-parsing the StringOptions that a
// first parse left over yields the same StringOptions again.
func TestParseMountFlagsIdempotent(t *testing.T) {
	s := "ro,noatime,data=ordered"
	first := ParseMountFlags(s)
	second := ParseMountFlags(first.StringOptions)
	if second.StringOptions != first.StringOptions {
		t.Fatalf("re-parsing passthrough options changed them: %q vs %q", first.StringOptions, second.StringOptions)
	}
}
