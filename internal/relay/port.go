package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/wsl-linux/guestinit/internal/vsock"
)

// Port accepts connections on the given listener (handlePortRelay passes
// a loopback TCP listener) and bridges each to a fresh vsock stream
// dialed back toward the host, until ctx is cancelled (spec.md §4.7
// "Localhost Port Relay"). Grounded on the teacher's
// internal/harness/portproxy.go accept/relay shape (io.Copy both
// directions), adapted from "loopback TCP listen, dial host TCP" to
// "loopback TCP listen, dial host vsock".
func Port(ctx context.Context, log *slog.Logger, listener vsock.Listener, hostCID, dialPort uint32) {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Debug("port relay: accept loop ending", "error", err)
			return
		}
		go func() {
			if err := bridge(conn, hostCID, dialPort); err != nil {
				log.Debug("port relay: bridge failed", "error", err)
			}
		}()
	}
}

func bridge(conn net.Conn, hostCID, dialPort uint32) error {
	defer conn.Close()
	peer, err := vsock.Dial(hostCID, dialPort)
	if err != nil {
		return fmt.Errorf("relay: dial host port %d: %w", dialPort, err)
	}
	defer peer.Close()

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(peer, conn)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(conn, peer)
		errc <- err
	}()
	return <-errc
}
