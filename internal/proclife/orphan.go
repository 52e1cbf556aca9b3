package proclife

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Children reads the kernel's "children of task 1" list
// (/proc/1/task/1/children), the same source LswEntryPoint's teardown
// uses to enumerate PID 1's children (spec.md §4.5 "Orphan cleanup").
func Children() ([]int, error) {
	f, err := os.Open("/proc/1/task/1/children")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		pid, err := strconv.Atoi(sc.Text())
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, sc.Err()
}

// ReapOrphans repeatedly sends SIGKILL to every child of PID 1 and reaps
// whatever exits, re-reading the children list each pass, until it is
// empty (spec.md §4.5 "Orphan cleanup", §8 invariant: "After orphan
// cleanup completes, the children of PID 1 list is empty").
func ReapOrphans(log *slog.Logger) {
	for {
		pids, err := Children()
		if err != nil || len(pids) == 0 {
			return
		}
		for _, pid := range pids {
			if err := unix.Kill(pid, unix.SIGKILL); err != nil {
				log.Debug("orphan cleanup: kill failed", "pid", pid, "error", err)
			}
		}
		reapAllAvailable(log)
	}
}

// reapAllAvailable calls wait4(-1, ..., WNOHANG) until it returns ECHILD
// or reports no exited child ready, draining
// every zombie currently reapable without blocking the teardown sequence.
func reapAllAvailable(log *slog.Logger) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil {
			if err != unix.ECHILD {
				log.Debug("orphan cleanup: wait4 failed", "error", err)
			}
			return
		}
		if pid <= 0 {
			return
		}
		formatReap(log, pid, ws)
	}
}

func formatReap(log *slog.Logger, pid int, ws unix.WaitStatus) {
	if ws.Exited() {
		log.Debug("reaped orphan", "pid", pid, "exit_code", ws.ExitStatus())
		return
	}
	if ws.Signaled() {
		log.Debug("reaped orphan", "pid", pid, "signal", ws.Signal())
	}
}

