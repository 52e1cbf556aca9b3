// Package relay implements the bidirectional TTY pump and the localhost
// port-forward accept loop (spec.md §4.6, §4.7).
package relay

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const relayBufSize = 4096

// connFd extracts the underlying file descriptor from a syscall.Conn
// (satisfied by *net.TCPConn, *vsock.Conn, and every other net.Conn this
// repo uses) so the relay can drive it with unix.Poll directly rather
// than through net's internal runtime poller, matching the source's raw
// poll(2) loop.
func connFd(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	var ctrlErr error
	err = raw.Control(func(f uintptr) {
		fd = int(f)
	})
	if err != nil {
		return -1, err
	}
	return fd, ctrlErr
}

// TTY pumps bytes between a process's pseudo-terminal master and two
// remote endpoints, input and output, with the deferred-write buffering
// needed to avoid a cross-stream deadlock where the child blocks writing
// its stdout while the parent blocks writing the child's stdin (spec.md
// §4.6). Grounded line-for-line on
// original_source/src/linux/init/WSLAInit.cpp's
// HandleMessageImpl(WSLA_TTY_RELAY).
func TTY(log *slog.Logger, master *os.File, input, output syscall.Conn) error {
	if err := unix.SetNonblock(int(master.Fd()), true); err != nil {
		return fmt.Errorf("relay: set master nonblocking: %w", err)
	}

	masterFd := int(master.Fd())
	inputFd, err := connFd(input)
	if err != nil {
		return fmt.Errorf("relay: input fd: %w", err)
	}
	outputFd, err := connFd(output)
	if err != nil {
		return fmt.Errorf("relay: output fd: %w", err)
	}

	var pendingStdin []byte
	inputOpen := true

	for {
		timeout := -1
		if len(pendingStdin) > 0 {
			timeout = 100
		}

		fds := []unix.PollFd{{Fd: int32(masterFd), Events: unix.POLLIN}}
		inputIdx := -1
		if inputOpen {
			fds = append(fds, unix.PollFd{Fd: int32(inputFd), Events: unix.POLLIN})
			inputIdx = 1
		}

		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		if len(pendingStdin) > 0 {
			written, werr := unix.Write(masterFd, pendingStdin)
			if werr != nil && werr != unix.EAGAIN && werr != unix.EWOULDBLOCK {
				log.Debug("tty relay: write to master failed", "error", werr)
				break
			}
			if written > 0 {
				pendingStdin = pendingStdin[written:]
			}
		}

		if n == 0 {
			continue
		}

		if inputIdx >= 0 && fds[inputIdx].Revents&unix.POLLIN != 0 && len(pendingStdin) == 0 {
			buf := make([]byte, relayBufSize)
			rn, rerr := unix.Read(inputFd, buf)
			if rn == 0 || (rerr != nil && rerr != unix.EAGAIN) {
				unix.Close(masterFd)
				master.Close()
				inputOpen = false
				break
			} else if rn > 0 {
				written, werr := unix.Write(masterFd, buf[:rn])
				if werr == unix.EAGAIN || werr == unix.EWOULDBLOCK {
					pendingStdin = append(pendingStdin, buf[written:rn]...)
				} else if werr != nil {
					log.Debug("tty relay: write to master failed", "error", werr)
					break
				}
			}
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			buf := make([]byte, relayBufSize)
			rn, rerr := unix.Read(masterFd, buf)
			if rn <= 0 && rerr != unix.EIO {
				break
			}
			if rn > 0 {
				if _, werr := unix.Write(outputFd, buf[:rn]); werr != nil {
					break
				}
			}
		}
	}

	unix.Shutdown(inputFd, unix.SHUT_WR)
	unix.Shutdown(outputFd, unix.SHUT_WR)
	return nil
}
