//go:build linux

package session

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openPty allocates a pseudo-terminal pair via /dev/ptmx, unlocks and
// names the slave, and applies the requested initial window size. Grounded
// on original_source/src/linux/init/WSLAInit.cpp's pty-allocation path
// (openpty + ioctl(TIOCSWINSZ)), reimplemented with raw ioctls since Go's
// stdlib has no pty package.
func openPty(cols, rows uint16) (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	if err := unlockPty(master); err != nil {
		master.Close()
		return nil, "", err
	}

	n, err := ptyName(master)
	if err != nil {
		master.Close()
		return nil, "", err
	}

	ws := &unix.Winsize{Col: cols, Row: rows}
	if cols != 0 || rows != 0 {
		if err := unix.IoctlSetWinsize(int(master.Fd()), unix.TIOCSWINSZ, ws); err != nil {
			master.Close()
			return nil, "", fmt.Errorf("set pty window size: %w", err)
		}
	}

	return master, n, nil
}

func unlockPty(master *os.File) error {
	var unlock int32
	return unix.IoctlSetPointerInt(int(master.Fd()), unix.TIOCSPTLCK, int(unlock))
}

func ptyName(master *os.File) (string, error) {
	n, err := unix.IoctlGetInt(int(master.Fd()), unix.TIOCGPTN)
	if err != nil {
		return "", fmt.Errorf("get pty number: %w", err)
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}
