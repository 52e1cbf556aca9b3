package proclife

import (
	"os/exec"
	"testing"
	"time"
)

func TestWaitForPidRunningThenExited(t *testing.T) {
	cmd := exec.Command("sleep", "0.2")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	pid := cmd.Process.Pid

	// spec.md §8 boundary: a pid file-descriptor wait with timeout 0 and
	// a live child returns state = running.
	res := WaitForPid(pid, 0)
	if res.State != StateRunning && res.State != StateExited {
		t.Fatalf("unexpected immediate state %v (errno %d)", res.State, res.Errno)
	}

	res = WaitForPid(pid, 2*time.Second)
	if res.State != StateExited {
		t.Fatalf("state = %v, want StateExited (errno %d)", res.State, res.Errno)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
	cmd.Wait()
}

func TestSignal(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	if err := Signal(cmd.Process.Pid, 9); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	cmd.Wait()
}
