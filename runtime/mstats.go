package runtime

import (
	"fmt"
	"io"
	"strings"
)

// Stats is a snapshot of the heap's counters. AllocCount, FreedCount and
// GCCount only ever grow; LiveObjects and HeapSize describe the current heap.
// HeapSize counts headers and requested data sizes, not block rounding.
type Stats struct {
	AllocCount  uint64 `yaml:"alloc_count"`
	FreedCount  uint64 `yaml:"freed_count"`
	LiveObjects uint64 `yaml:"live_objects"`
	HeapSize    uint64 `yaml:"heap_size"`
	GCCount     uint64 `yaml:"gc_count"`
}

// WriteTo renders the statistics block printed by PrintStats.
func (s Stats) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Runtime Statistics ===\n")
	fmt.Fprintf(&b, "  Allocations:   %d\n", s.AllocCount)
	fmt.Fprintf(&b, "  GC cycles:     %d\n", s.GCCount)
	fmt.Fprintf(&b, "  Live objects:  %d\n", s.LiveObjects)
	fmt.Fprintf(&b, "  Heap size:     %d bytes\n", s.HeapSize)
	fmt.Fprintf(&b, "  Freed total:   %d\n", s.FreedCount)
	fmt.Fprintf(&b, "==========================\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// ReadStats returns the current statistics.
func (h *Heap) ReadStats() Stats {
	return h.stats
}

// PrintStats writes the current statistics to the diagnostic stream.
func (h *Heap) PrintStats() {
	h.stats.WriteTo(h.stderr)
}

// MemStats describes the backing memory of a heap, in the spirit of
// runtime.MemStats.
type MemStats struct {
	// Sys is the memory reserved for the heap, used or not.
	Sys uint64

	// HeapSys is the part of the reservation currently in use as heap.
	HeapSys uint64

	// HeapInuse is the memory of allocated blocks, including headers and
	// rounding.
	HeapInuse uint64

	// HeapIdle is the memory of free blocks.
	HeapIdle uint64

	// Mallocs and Frees count backing allocations and frees.
	Mallocs uint64
	Frees   uint64

	// TotalAlloc is the cumulative number of bytes requested, headers
	// included.
	TotalAlloc uint64
}

// ReadMemStats populates m with memory statistics of the backing allocator.
func (h *Heap) ReadMemStats(m *MemStats) {
	a := &h.arena
	m.Sys = uint64(cap(a.mem))
	m.HeapSys = uint64(len(a.mem))

	// Count live heads and tails.
	heads, tails := a.countBlocks()
	liveBlocks := heads + tails
	m.HeapInuse = uint64(liveBlocks * bytesPerBlock)

	// Subtract live blocks from total blocks to count free blocks.
	m.HeapIdle = uint64((uintptr(a.endBlock) - liveBlocks) * bytesPerBlock)

	m.Mallocs = a.mallocs
	m.Frees = a.frees
	m.TotalAlloc = a.totalAlloc
}

// DumpHeap writes one character per heap block: '*' for the first block of
// an allocation, '-' for its other blocks and '·' for free blocks.
func (h *Heap) DumpHeap(w io.Writer) {
	h.arena.dumpHeap(w)
}
