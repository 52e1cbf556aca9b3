// Package wire defines the on-wire message header, tag enumeration, and
// the offset-based message builder/reader shared by every channel in the
// guest-init core.
package wire

// Tag identifies the type of a framed message. The enumeration is closed:
// the dispatcher rejects any frame whose tag it does not recognize.
type Tag uint16

const (
	TagInvalid Tag = iota
	TagConnect
	TagAccept
	TagOpen
	TagMount
	TagUnmount
	TagDetach
	TagGetDisk
	TagFork
	TagExec
	TagWaitPid
	TagSignal
	TagTTYRelay
	TagPortRelay
	TagCreateProcess
	TagEarlyConfig
	TagInitialConfig
	TagMountFolder
	TagWaitForPmem
	TagResizeDistribution
	TagEjectVhd
	TagLaunchInit
	TagImport
	TagExport
	TagImportInPlace
	TagTelemetryPush
	TagChildExitNotify
	TagResult
	TagShutdown

	// TagAny matches any tag during receive validation; it is never sent.
	TagAny Tag = 0xFFFF
)

var tagNames = map[Tag]string{
	TagInvalid:            "invalid",
	TagConnect:            "connect",
	TagAccept:             "accept",
	TagOpen:               "open",
	TagMount:              "mount",
	TagUnmount:            "unmount",
	TagDetach:             "detach",
	TagGetDisk:            "get-disk",
	TagFork:               "fork",
	TagExec:               "exec",
	TagWaitPid:            "wait-pid",
	TagSignal:             "signal",
	TagTTYRelay:           "tty-relay",
	TagPortRelay:          "port-relay",
	TagCreateProcess:      "create-process",
	TagEarlyConfig:        "early-config",
	TagInitialConfig:      "initial-config",
	TagMountFolder:        "mount-folder",
	TagWaitForPmem:        "wait-for-pmem",
	TagResizeDistribution: "resize-distribution",
	TagEjectVhd:           "eject-vhd",
	TagLaunchInit:         "launch-init",
	TagImport:             "import",
	TagExport:             "export",
	TagImportInPlace:      "import-in-place",
	TagTelemetryPush:      "telemetry-push",
	TagChildExitNotify:    "child-exit-notification",
	TagResult:             "result",
	TagShutdown:           "shutdown",
	TagAny:                "any",
}

func (t Tag) String() string {
	if n, ok := tagNames[t]; ok {
		return n
	}
	return "unknown-tag"
}

// ForkFlavor selects the concurrency unit a TagFork request spawns.
type ForkFlavor uint8

const (
	ForkProcess ForkFlavor = iota
	ForkThread
	ForkPty
)

// MountStep names the step at which a mount operation failed or
// succeeded, carried back in the step field of a TagResult frame built by
// NewResult (spec.md §4.4, §8).
type MountStep uint8

const (
	StepFindDevice MountStep = iota
	StepFindPartition
	StepDetectFilesystem
	StepMount
	StepUnmount
	StepRemoveDirectory
)

func (s MountStep) String() string {
	switch s {
	case StepFindDevice:
		return "find-device"
	case StepFindPartition:
		return "find-partition"
	case StepDetectFilesystem:
		return "detect-filesystem"
	case StepMount:
		return "mount"
	case StepUnmount:
		return "unmount"
	case StepRemoveDirectory:
		return "remove-directory"
	default:
		return "unknown-step"
	}
}
