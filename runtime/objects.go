package runtime

import (
	"github.com/yoru-lang/yoru-runtime/gclayout"
)

// ObjectInfo describes one object on the allocation list.
type ObjectInfo struct {
	// Addr is the address of the object's data, as returned by Alloc.
	Addr   Pointer
	Type   *gclayout.TypeDesc
	Size   uint64
	Marked bool
}

// Objects calls fn for every allocated object, newest first, until fn
// returns false.
func (h *Heap) Objects(fn func(ObjectInfo) bool) {
	for obj := h.allocList; obj != 0; obj = h.objNext(obj) {
		info := ObjectInfo{
			Addr:   obj + headerSize,
			Type:   h.objType(obj),
			Size:   h.objSize(obj),
			Marked: h.marked(obj),
		}
		if !fn(info) {
			return
		}
	}
}

// ObjectCount returns the length of the allocation list.
func (h *Heap) ObjectCount() int {
	n := 0
	for obj := h.allocList; obj != 0; obj = h.objNext(obj) {
		n++
	}
	return n
}

// Contains reports whether p is the data address of an allocated object.
func (h *Heap) Contains(p Pointer) bool {
	if !h.arena.isOnHeap(p) {
		return false
	}
	found := false
	h.Objects(func(info ObjectInfo) bool {
		found = info.Addr == p
		return !found
	})
	return found
}

// Refs returns the non-nil references held by the object at p, in
// descriptor order.
func (h *Heap) Refs(p Pointer) []Pointer {
	typ := h.objType(p - headerSize)
	if typ.PointerFree() {
		return nil
	}
	var refs []Pointer
	for i := uint64(0); i < typ.NumPtrs; i++ {
		if field := h.LoadPointer(p + Pointer(typ.Offsets[i])); field != 0 {
			refs = append(refs, field)
		}
	}
	return refs
}
