package mountmgr

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// PivotRoot changes directory into newRoot, bind-mounts newRoot onto
// itself so it is a mount point, and pivots the old root aside before
// unmounting and removing it.
//
// spec.md §9 resolves the source's documented Open Question in favor of
// pivot_root over chroot(".") — original_source's LSW_MOUNT handler uses
// chroot(".") with a "TODO: pivot_root" comment; this repo implements the
// pivot-root transition directly rather than carrying the TODO forward,
// per the spec's explicit "An implementer targeting nested-namespace
// safety should prefer a pivot-root based transition."
func PivotRoot(newRoot string) error {
	if err := os.Chdir(newRoot); err != nil {
		return fmt.Errorf("mountmgr: pivot_root: chdir %s: %w", newRoot, err)
	}

	// new_root must be a mount point; bind-mount it onto itself if the
	// caller passed a plain directory (overlay construction already
	// mounts it as one, but the thin-init path may be handed a bind
	// target that is not yet its own mount).
	if err := unix.Mount(newRoot, newRoot, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("mountmgr: pivot_root: bind-mount self %s: %w", newRoot, err)
	}

	oldRootRel := ".wsl-old-root"
	if err := os.MkdirAll(oldRootRel, 0700); err != nil {
		return fmt.Errorf("mountmgr: pivot_root: mkdir old-root: %w", err)
	}

	if err := unix.PivotRoot(".", oldRootRel); err != nil {
		return fmt.Errorf("mountmgr: pivot_root(%q, %q): %w", newRoot, oldRootRel, err)
	}

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("mountmgr: pivot_root: chdir /: %w", err)
	}

	if err := unix.Unmount(filepath.Join("/", oldRootRel), unix.MNT_DETACH); err != nil {
		return fmt.Errorf("mountmgr: pivot_root: detach old root: %w", err)
	}
	if err := os.RemoveAll(filepath.Join("/", oldRootRel)); err != nil {
		return fmt.Errorf("mountmgr: pivot_root: remove old root mount point: %w", err)
	}
	return nil
}
