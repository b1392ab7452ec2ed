package runtime

import (
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/yoru-lang/yoru-runtime/gclayout"
)

// Alloc returns a pointer to size zeroed bytes of object data, described by
// typ. typ may be nil for raw allocations, which are kept alive by the
// collector but never scanned.
//
// If automatic collection is on and enough memory has been allocated since
// the last cycle, a full collection runs first. The bytes of this request are
// counted before that check, but the new object only exists after the
// collection, so the collection can never free it.
//
// Alloc does not return if the memory cannot be provided, or if typ declares a
// size other than size.
func (h *Heap) Alloc(size uint64, typ *gclayout.TypeDesc) Pointer {
	if typ != nil && typ.Size != size {
		h.runtimePanicAt(0, SizeMismatch, fmt.Sprintf("rt_alloc size mismatch: requested %d bytes, type %s declares %d", size, typ, typ.Size))
	}

	allocSize := headerSize + size
	if allocSize < size {
		// The size overflowed.
		h.runtimePanicAt(0, OutOfMemory, "out of memory")
	}

	h.bytesSinceGC += allocSize
	if h.config.AutoCollect && h.bytesSinceGC >= h.threshold {
		h.GC()
	}

	obj := h.arena.alloc(allocSize)
	if obj == 0 {
		h.runtimePanicAt(0, OutOfMemory, "out of memory")
	}

	// Create the object header and link it at the head of the list.
	h.arena.store32(obj+headerTypeOffset, h.registerType(typ))
	h.arena.store32(obj+headerFlagsOffset, 0)
	h.arena.store64(obj+headerNextOffset, uint64(h.allocList))
	h.arena.store64(obj+headerSizeOffset, size)

	data := obj + headerSize
	clear(h.arena.slice(data, size))
	h.allocList = obj

	h.stats.AllocCount++
	h.stats.LiveObjects++
	h.stats.HeapSize += allocSize

	if h.config.Verbose {
		level.Debug(h.logger).Log("msg", "allocated", "size", size, "type", typ, "addr", data)
	}
	return data
}
