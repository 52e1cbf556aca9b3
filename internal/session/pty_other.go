//go:build !linux

package session

import (
	"errors"
	"os"
)

var errPtyUnsupported = errors.New("session: pty flavor requires linux")

func openPty(cols, rows uint16) (master *os.File, slavePath string, err error) {
	return nil, "", errPtyUnsupported
}
