// Package mountmgr implements the mount/device manager described in
// spec.md §4.4: SCSI LUN → device-node resolution with retry, filesystem
// detection, mount-flag parsing, overlay-filesystem construction,
// partition enumeration, and detach-with-flush.
package mountmgr

import (
	"strings"

	"golang.org/x/sys/unix"
)

// parseKind records how a flag token affects parsing, mirroring
// mountutil.cpp's ParseFlags bitflags (None / Remove / NoFail /
// OptionalValue).
type parseKind uint8

const (
	kindNone parseKind = 0
	// kindRemove marks a token that clears its bits rather than setting them
	// (the negative half of a name/inverse pair, e.g. "async" clears
	// MS_SYNCHRONOUS).
	kindRemove parseKind = 1 << iota
	// kindNoFail marks the "nofail" token itself.
	kindNoFail
	// kindOptionalValue marks a token that may carry a "=value" suffix
	// which is ignored for matching purposes (e.g. "user=foo").
	kindOptionalValue
)

// mountFlag is one row of the flag-name → kernel-mount-flag-bits table.
type mountFlag struct {
	name  string
	bits  uintptr
	kind  parseKind
}

// flagTable is transcribed verbatim (name, bits, parse-kind) from
// original_source/src/linux/mountutil/mountflags.cpp's c_flagMap, which
// expands the FLAG_WITH_NAMED_INVERSE / NO_FLAG_WITH_INVERSE /
// FLAG_WITH_INVERSE macros. Order matches the source file.
var flagTable = []mountFlag{
	{"sync", unix.MS_SYNCHRONOUS, kindNone},
	{"async", unix.MS_SYNCHRONOUS, kindRemove},
	{"atime", unix.MS_NOATIME, kindRemove},
	{"noatime", unix.MS_NOATIME, kindNone},
	{"defaults", 0, kindNone},
	{"dev", unix.MS_NODEV, kindRemove},
	{"nodev", unix.MS_NODEV, kindNone},
	{"diratime", unix.MS_NODIRATIME, kindRemove},
	{"nodiratime", unix.MS_NODIRATIME, kindNone},
	{"dirsync", unix.MS_DIRSYNC, kindNone},
	{"exec", unix.MS_NOEXEC, kindRemove},
	{"noexec", unix.MS_NOEXEC, kindNone},
	{"group", unix.MS_NOSUID | unix.MS_NODEV, kindNone},
	{"nogroup", 0, kindNone},
	{"iversion", unix.MS_I_VERSION, kindNone},
	{"noiversion", unix.MS_I_VERSION, kindRemove},
	{"mand", unix.MS_MANDLOCK, kindNone},
	{"nomand", unix.MS_MANDLOCK, kindRemove},
	{"_netdev", 0, kindNone},
	{"nofail", 0, kindNoFail},
	{"relatime", unix.MS_RELATIME, kindNone},
	{"norelatime", unix.MS_RELATIME, kindRemove},
	{"strictatime", unix.MS_STRICTATIME, kindNone},
	{"nostrictatime", unix.MS_STRICTATIME, kindRemove},
	{"lazytime", unix.MS_LAZYTIME, kindNone},
	{"nolazytime", unix.MS_LAZYTIME, kindRemove},
	{"suid", unix.MS_NOSUID, kindRemove},
	{"nosuid", unix.MS_NOSUID, kindNone},
	{"silent", unix.MS_SILENT, kindNone},
	{"loud", unix.MS_SILENT, kindRemove},
	{"owner", unix.MS_NODEV | unix.MS_NOSUID, kindNone},
	{"noowner", 0, kindNone},
	{"remount", unix.MS_REMOUNT, kindNone},
	{"rw", unix.MS_RDONLY, kindRemove},
	{"ro", unix.MS_RDONLY, kindNone},
	{"user", unix.MS_NOEXEC | unix.MS_NODEV | unix.MS_NOSUID, kindOptionalValue},
	{"nouser", 0, kindNone},
	{"users", unix.MS_NOEXEC | unix.MS_NODEV | unix.MS_NOSUID, kindNone},
	{"nousers", 0, kindNone},
}

// ParsedOptions is the result of parsing a mount options string: the
// accumulated kernel mount-flag bitmask, the nofail toggle, and any
// tokens that did not match a named flag, rejoined with commas to pass
// through to the kernel's string-options argument (spec.md §4.4 "Mount
// flag parsing").
type ParsedOptions struct {
	MountFlags    uintptr
	NoFail        bool
	StringOptions string
}

func findFlag(token string) (mountFlag, bool) {
	name := token
	hasValue := false
	if i := strings.IndexByte(token, '='); i >= 0 {
		name = token[:i]
		hasValue = true
	}
	for _, f := range flagTable {
		if f.name != name {
			continue
		}
		if hasValue && f.kind&kindOptionalValue == 0 {
			// A value suffix is only valid for flags explicitly marked
			// OptionalValue (mountflags.cpp::FindOption skips entries
			// lacking that flag when a value is present).
			continue
		}
		return f, true
	}
	return mountFlag{}, false
}

// ParseMountFlags splits options on commas and resolves each token either
// to kernel mount-flag bits or to a pass-through string option
// (mountflags.cpp::MountParseFlags).
func ParseMountFlags(options string) ParsedOptions {
	var out ParsedOptions
	var passthrough []string

	for _, token := range strings.Split(options, ",") {
		if token == "" {
			continue
		}
		flag, ok := findFlag(token)
		if !ok {
			passthrough = append(passthrough, token)
			continue
		}
		if flag.kind&kindNoFail != 0 {
			out.NoFail = true
			continue
		}
		if flag.kind&kindRemove != 0 {
			out.MountFlags &^= flag.bits
		} else {
			out.MountFlags |= flag.bits
		}
	}

	out.StringOptions = strings.Join(passthrough, ",")
	return out
}
