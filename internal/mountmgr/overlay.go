package mountmgr

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// BuildOverlay creates, under scratchDir, the three subdirectories the
// "overlayfs" mount option requires — rw (tmpfs), rw/upper, rw/work —
// mounts a tmpfs at rw, then mounts an overlay with lowerdir=lowerDir,
// upperdir=rw/upper, workdir=rw/work, returning the path of the
// constructed overlay mount (spec.md §4.4 "Overlay construction").
func BuildOverlay(scratchDir, lowerDir string) (string, error) {
	rw := filepath.Join(scratchDir, "rw")
	upper := filepath.Join(rw, "upper")
	work := filepath.Join(rw, "work")
	for _, d := range []string{rw, upper, work} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fmt.Errorf("mountmgr: overlay: mkdir %s: %w", d, err)
		}
	}

	if err := unix.Mount("tmpfs", rw, "tmpfs", 0, ""); err != nil {
		return "", fmt.Errorf("mountmgr: overlay: mount tmpfs at %s: %w", rw, err)
	}
	// MkdirAll after the tmpfs mount: the tmpfs starts empty.
	for _, d := range []string{upper, work} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fmt.Errorf("mountmgr: overlay: mkdir %s: %w", d, err)
		}
	}

	opts := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", lowerDir, upper, work)
	if err := unix.Mount("overlay", scratchDir, "overlay", 0, opts); err != nil {
		return "", fmt.Errorf("mountmgr: overlay mount: %w", err)
	}
	return scratchDir, nil
}

// FinishOverlay move-mounts the constructed overlay onto target and
// removes the scratch tree, used when the caller did not also request
// chroot (spec.md §4.4: "otherwise the overlay is move-mounted onto the
// real target and the scratch tree is removed").
func FinishOverlay(overlayPath, target string) error {
	if err := unix.Mount(overlayPath, target, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("mountmgr: move-mount overlay to %s: %w", target, err)
	}
	if err := os.RemoveAll(overlayPath); err != nil {
		return fmt.Errorf("mountmgr: remove overlay scratch dir %s: %w", overlayPath, err)
	}
	return nil
}
