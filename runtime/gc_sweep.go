package runtime

import (
	"github.com/go-kit/log/level"
)

// sweep walks the allocation list once, frees every object that was not
// marked and clears the mark of every survivor for the next cycle. It never
// looks at reference fields.
func (h *Heap) sweep() {
	var prev Pointer
	var freed uint64
	obj := h.allocList
	for obj != 0 {
		next := h.objNext(obj)

		if h.marked(obj) {
			// Object is alive, clear mark for next cycle.
			h.setMarked(obj, false)
			prev = obj
		} else {
			// Object is dead, remove from list and free.
			if prev == 0 {
				h.allocList = next
			} else {
				h.setObjNext(prev, next)
			}

			size := h.objSize(obj)
			h.stats.HeapSize -= headerSize + size
			h.stats.LiveObjects--
			freed++

			if h.config.Verbose {
				level.Debug(h.logger).Log("msg", "freed object", "addr", obj+headerSize, "size", size)
			}

			h.arena.free(obj)
		}

		obj = next
	}
	h.stats.FreedCount += freed
}
