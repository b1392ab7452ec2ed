package runtime

import (
	"time"

	"github.com/go-kit/log/level"
)

// GCPause describes one finished collection cycle.
type GCPause struct {
	End      time.Time
	Duration time.Duration
}

// GC performs a full garbage collection cycle: mark everything reachable from
// the shadow stack, sweep the rest, then set the threshold for the next
// automatic cycle to twice the surviving heap, but at least 1 MiB. In stress
// mode the threshold stays zero.
func (h *Heap) GC() {
	start := time.Now()
	if h.config.Verbose {
		level.Debug(h.logger).Log("msg", "starting collection", "cycle", h.stats.GCCount+1, "heap", h.stats.HeapSize, "live", h.stats.LiveObjects)
	}

	// Mark phase: mark all reachable objects.
	h.markStack()

	// Sweep phase: free all non-marked objects and unmark marked objects for
	// the next collection cycle.
	liveBefore := h.stats.LiveObjects
	h.sweep()
	freed := liveBefore - h.stats.LiveObjects

	// Rebuild the free ranges list, merging what was just freed.
	h.arena.buildFreeRanges()

	h.stats.GCCount++
	h.bytesSinceGC = 0
	if h.config.Stress {
		h.threshold = 0
	} else {
		h.threshold = nextThreshold(h.stats.HeapSize)
	}

	end := time.Now()
	h.recordPause(GCPause{End: end, Duration: end.Sub(start)})

	if h.config.Verbose {
		level.Debug(h.logger).Log("msg", "collection done", "freed", freed, "remain", h.stats.LiveObjects, "threshold", Size(h.threshold))
	}
}

// nextThreshold scales the collection threshold with the live heap.
func nextThreshold(heapSize uint64) uint64 {
	threshold := heapSize * 2
	if threshold < minThreshold {
		threshold = minThreshold
	}
	return threshold
}

func (h *Heap) recordPause(p GCPause) {
	if len(h.pauses) == maxPauses {
		copy(h.pauses, h.pauses[1:])
		h.pauses = h.pauses[:maxPauses-1]
	}
	h.pauses = append(h.pauses, p)
	h.pauseTotal += p.Duration
}

// GCPauses returns the most recent collection cycles, oldest first, and the
// total pause time of all cycles so far.
func (h *Heap) GCPauses() ([]GCPause, time.Duration) {
	pauses := make([]GCPause, len(h.pauses))
	copy(pauses, h.pauses)
	return pauses, h.pauseTotal
}
