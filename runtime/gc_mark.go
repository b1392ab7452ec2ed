package runtime

// Marking uses an explicit worklist of objects that have been marked but not
// yet scanned, so the depth of the object graph never touches the native
// stack. An object is marked when it is pushed; reaching it again through
// another path (or a cycle) is a no-op.

// markRoot marks the object whose data starts at root and queues it for
// scanning, unless it was already marked.
func (h *Heap) markRoot(root Pointer) {
	obj := root - headerSize
	if h.marked(obj) {
		// This object is already marked.
		return
	}
	h.setMarked(obj, true)
	h.worklist = append(h.worklist, obj)
}

// finishMark scans queued objects until the worklist is empty.
func (h *Heap) finishMark() {
	for len(h.worklist) > 0 {
		// Remove an object from the worklist.
		obj := h.worklist[len(h.worklist)-1]
		h.worklist = h.worklist[:len(h.worklist)-1]

		typ := h.objType(obj)
		if typ.PointerFree() {
			// Raw allocations and scalar types have nothing to scan.
			continue
		}

		data := obj + headerSize
		for i := uint64(0); i < typ.NumPtrs; i++ {
			field := h.LoadPointer(data + Pointer(typ.Offsets[i]))
			if field != 0 {
				h.markRoot(field)
			}
		}
	}
}

// mark marks the object at p and everything reachable from it.
func (h *Heap) mark(p Pointer) {
	if p == 0 {
		return
	}
	h.markRoot(p)
	h.finishMark()
}
