package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/wsl-linux/guestinit/internal/vsock"
	"github.com/wsl-linux/guestinit/internal/wire"
)

// skipUnlessVsockAvailable skips tests that need a real AF_VSOCK socket,
// which is only present inside a guest VM — unit test environments
// (including the one that wrote this file) generally lack it.
func skipUnlessVsockAvailable(t *testing.T) {
	t.Helper()
	l, err := vsock.Listen(0)
	if err != nil {
		t.Skipf("vsock not available in this environment: %v", err)
	}
	l.Close()
}

func TestForkThreadReportsRealTid(t *testing.T) {
	skipUnlessVsockAvailable(t)

	s := &Spawner{Log: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sess, err := s.Fork(ctx, wire.ForkThread, 0, 0, 0)
	if err != nil {
		t.Fatalf("fork thread: %v", err)
	}
	if sess.Pid <= 0 {
		t.Fatalf("expected a real positive tid, got %d", sess.Pid)
	}
	if sess.Flavor != wire.ForkThread {
		t.Fatalf("flavor = %v, want ForkThread", sess.Flavor)
	}
}

func TestForkUnknownFlavorRejected(t *testing.T) {
	skipUnlessVsockAvailable(t)

	s := &Spawner{Log: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	_, err := s.Fork(context.Background(), wire.ForkFlavor(99), 0, 0, 0)
	if err == nil {
		t.Fatal("expected an error for an unrecognized fork flavor")
	}
}
