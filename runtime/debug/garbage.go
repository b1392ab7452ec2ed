// Package debug contains facilities for programs to inspect a heap while it
// is running.
package debug

import (
	"sort"
	"time"

	"github.com/yoru-lang/yoru-runtime/runtime"
)

// GCStats collect information about recent garbage collections.
type GCStats struct {
	LastGC         time.Time       // time of last collection
	NumGC          int64           // number of garbage collections
	PauseTotal     time.Duration   // total pause for all collections
	Pause          []time.Duration // pause history, most recent first
	PauseEnd       []time.Time     // pause end times history, most recent first
	PauseQuantiles []time.Duration
}

// ReadGCStats reads statistics about the collections of h into stats.
// The pause history is limited to the most recent 256 cycles.
//
// If stats.PauseQuantiles is non-empty, ReadGCStats fills it with quantiles
// summarizing the distribution of pause time. For example, if
// len(stats.PauseQuantiles) is 5, it will be filled with the minimum,
// 25%, 50%, 75%, and maximum pause times.
func ReadGCStats(h *runtime.Heap, stats *GCStats) {
	pauses, total := h.GCPauses()

	stats.NumGC = int64(h.ReadStats().GCCount)
	stats.PauseTotal = total
	stats.Pause = stats.Pause[:0]
	stats.PauseEnd = stats.PauseEnd[:0]
	stats.LastGC = time.Time{}
	for i := len(pauses) - 1; i >= 0; i-- {
		stats.Pause = append(stats.Pause, pauses[i].Duration)
		stats.PauseEnd = append(stats.PauseEnd, pauses[i].End)
	}
	if len(pauses) > 0 {
		stats.LastGC = pauses[len(pauses)-1].End
	}

	if n := len(stats.PauseQuantiles); n > 0 {
		if len(pauses) == 0 {
			clear(stats.PauseQuantiles)
			return
		}
		sorted := make([]time.Duration, len(stats.Pause))
		copy(sorted, stats.Pause)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		for i := 0; i < n-1; i++ {
			stats.PauseQuantiles[i] = sorted[len(sorted)*i/(n-1)]
		}
		stats.PauseQuantiles[n-1] = sorted[len(sorted)-1]
	}
}

// FreeOSMemory forces a garbage collection. Freed blocks are merged into the
// heap's free ranges right away; the reservation itself is only given back
// when the heap is destroyed.
func FreeOSMemory(h *runtime.Heap) {
	h.GC()
}

// SetMemoryLimit changes the most memory h may grow to and returns the
// previous limit. A negative input only reports the current limit. The limit
// cannot be raised past the memory reserved when the heap was created.
func SetMemoryLimit(h *runtime.Heap, limit int64) int64 {
	if limit < 0 {
		return int64(h.Config().MaxHeap)
	}
	return int64(h.SetMaxHeap(runtime.Size(limit)))
}
