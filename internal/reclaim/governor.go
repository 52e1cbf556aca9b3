// Package reclaim implements the memory-reclaim governor: a long-lived
// idle-aware worker that periodically compacts and optionally returns
// unused guest memory to the host (spec.md §4.8). Grounded exactly on
// original_source/src/linux/init/main.cpp's
// ConfigureMemoryReduction, including its constants.
package reclaim

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// Mode selects the reclaim strategy (spec.md §3 "Memory-reclaim governor
// state").
type Mode uint8

const (
	ModeDisabled Mode = iota
	ModeDropCache
	ModeGradual
)

const (
	cycleInterval = 30 * time.Second

	// ringSizeDefault and ringSizeGradual are 20 (10 min) and 6 (3 min)
	// samples respectively.
	ringSizeDefault = 20
	ringSizeGradual = 6

	memoryLowBytes  uint64 = 1_000_000_000   // 1.0 GB watermark
	memoryHighBytes uint64 = 1_100_000_000   // 1.1 GB watermark
	targetFactor           = 0.97

	pageReportingOrderPath = "/sys/module/page_reporting/parameters/page_reporting_order"
	cgroupReclaimPath      = "/sys/fs/cgroup/memory.reclaim"
	dropCachesPath         = "/proc/sys/vm/drop_caches"
	compactMemoryPath      = "/proc/sys/vm/compact_memory"
)

// Governor holds the ring buffer of recent CPU-tick samples and the
// configured mode (spec.md §3).
type Governor struct {
	log    *slog.Logger
	order  int
	mode   Mode
	window []uint64 // ring buffer of cumulative user-CPU-ticks samples
	cap    int

	idling bool
}

// Configure clamps pageReportingOrder to [0,9] (spec.md §8 boundary:
// "-3 and 12 are both silently clamped to 0" — any out-of-range value,
// not just these two, clamps to 0) and writes it to the kernel parameter.
// If the cgroup gradual-mode path is not writable at startup, mode falls
// back to ModeDropCache (spec.md §4.8 invariant).
func Configure(log *slog.Logger, pageReportingOrder int, mode Mode) *Governor {
	order := pageReportingOrder
	if order < 0 || order > 9 {
		log.Warn("reclaim: page_reporting_order out of range, clamping to 0", "requested", order)
		order = 0
	}

	if err := os.WriteFile(pageReportingOrderPath, []byte(strconv.Itoa(order)), 0); err != nil {
		log.Debug("reclaim: failed to write page_reporting_order", "error", err)
	}

	if mode == ModeGradual {
		if unix.Access(cgroupReclaimPath, unix.W_OK) != nil {
			log.Warn("reclaim: memory.reclaim not writable, falling back to drop-cache mode")
			mode = ModeDropCache
		}
	}

	ringSize := ringSizeDefault
	if mode == ModeGradual {
		ringSize = ringSizeGradual
	}

	return &Governor{log: log, order: order, mode: mode, cap: ringSize}
}

// Run spawns the governor's periodic cycle. It never blocks the
// dispatcher (spec.md §4.8 invariant); callers run it in its own
// goroutine. Run returns when ctx is cancelled.
func (g *Governor) Run(ctx context.Context) {
	if g.order == 0 && g.mode == ModeDisabled {
		return
	}

	idleThreshold := idleThresholdTicks()
	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	var start uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stop, err := userCPUTicks()
		if err != nil {
			g.log.Debug("reclaim: failed to sample CPU ticks", "error", err)
			continue
		}
		g.window = append(g.window, stop)
		if len(g.window) > g.cap {
			g.window = g.window[len(g.window)-g.cap:]
		}

		delta := stop - start
		start = stop
		idling := delta < idleThreshold && g.windowIdle(idleThreshold)
		g.idling = idling

		if idling {
			switch g.mode {
			case ModeDropCache:
				g.dropCaches()
			case ModeGradual:
				g.gradualReclaim()
			}
		}

		if g.order != 0 {
			g.maybeCompact(idleThreshold, stop)
		}
	}
}

func (g *Governor) windowIdle(threshold uint64) bool {
	if len(g.window) < 2 {
		return true
	}
	first, last := g.window[0], g.window[len(g.window)-1]
	return (last - first) < threshold*uint64(len(g.window))
}

func (g *Governor) dropCaches() {
	if err := os.WriteFile(dropCachesPath, []byte("1"), 0); err != nil {
		g.log.Debug("reclaim: drop_caches write failed", "error", err)
	}
}

// gradualReclaim implements spec.md §4.8 step 5 / §8 scenario 6 exactly:
// target = max(memoryLow, 0.97 * memoryInUse); bytes_to_free =
// memoryInUse - target, written to the cgroup memory.reclaim node,
// tolerating EAGAIN (kernel could not free that much).
func (g *Governor) gradualReclaim() {
	memoryInUse, err := memoryInUseBytes()
	if err != nil {
		g.log.Debug("reclaim: failed to read memory usage", "error", err)
		return
	}
	bytesToFree, ok := computeBytesToFree(memoryInUse)
	if !ok {
		return
	}

	err = os.WriteFile(cgroupReclaimPath, []byte(strconv.FormatUint(bytesToFree, 10)), 0)
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		g.log.Debug("reclaim: memory.reclaim write failed", "error", err)
		return
	}
	g.log.Info("reclaim: requested memory reclaim", "bytes", humanize.Bytes(bytesToFree))
}

// computeBytesToFree implements spec.md §4.8 step 5 / §8 scenario 6:
// if memory in use exceeds the 1.1 GB high watermark, target is
// 0.97 * current, floored at the 1.0 GB low watermark; the return value
// is the byte count to request the kernel free. ok is false when memory
// use is already at or below the high watermark (nothing to do).
func computeBytesToFree(memoryInUse uint64) (bytesToFree uint64, ok bool) {
	if memoryInUse <= memoryHighBytes {
		return 0, false
	}
	target := uint64(float64(memoryInUse) * targetFactor)
	if target < memoryLowBytes {
		target = memoryLowBytes
	}
	if target >= memoryInUse {
		return 0, false
	}
	return memoryInUse - target, true
}

// maybeCompact re-samples CPU ticks after a 1-second pause and writes
// compact_memory if the delta is still below the idle threshold (spec.md
// §4.8 step 6).
func (g *Governor) maybeCompact(idleThreshold, prevStop uint64) {
	time.Sleep(1 * time.Second)
	stop, err := userCPUTicks()
	if err != nil {
		return
	}
	if (stop - prevStop) < idleThreshold {
		if err := os.WriteFile(compactMemoryPath, []byte("1"), 0); err != nil {
			g.log.Debug("reclaim: compact_memory write failed", "error", err)
		}
	}
}
