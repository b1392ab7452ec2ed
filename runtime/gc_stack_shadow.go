package runtime

// The mutator keeps a shadow stack of its frames so that the collector can
// find its roots precisely. Generated code pushes a StackEntry when a function
// is entered and pops it again on the way out; the entry points at the
// function's local slots that hold references. The collector only reads the
// chain. It must match the mutator's call stack exactly whenever Alloc or GC
// is called, otherwise live objects will be freed.

// FrameMap is the static root map of one function, shared by all of its
// activations.
type FrameMap struct {
	NumRoots int32
	NumMeta  int32

	// Name is the function name shown in fatal reports.
	Name string
}

// StackEntry is one activation record on the shadow stack.
type StackEntry struct {
	Next  *StackEntry
	Map   *FrameMap
	Roots []*Pointer
}

// PushFrame records a new innermost frame whose root slots are roots. The
// slots are read at collection time, so the mutator may update them freely.
func (h *Heap) PushFrame(m *FrameMap, roots ...*Pointer) *StackEntry {
	entry := &StackEntry{
		Next:  h.stackChainStart,
		Map:   m,
		Roots: roots,
	}
	h.stackChainStart = entry
	return entry
}

// PopFrame removes the innermost frame.
func (h *Heap) PopFrame() {
	if h.stackChainStart != nil {
		h.stackChainStart = h.stackChainStart.Next
	}
}

// StackChain returns the innermost frame of the shadow stack.
func (h *Heap) StackChain() *StackEntry {
	return h.stackChainStart
}

// markStack marks all root pointers found on the shadow stack, innermost
// frame first.
func (h *Heap) markStack() {
	for entry := h.stackChainStart; entry != nil; entry = entry.Next {
		if entry.Map == nil {
			continue
		}
		for i := 0; i < int(entry.Map.NumRoots) && i < len(entry.Roots); i++ {
			slot := entry.Roots[i]
			if slot != nil && *slot != 0 {
				h.mark(*slot)
			}
		}
	}
}

// shadowStackNames lists the function names on the shadow stack, innermost
// first.
func (h *Heap) shadowStackNames() []string {
	var names []string
	for entry := h.stackChainStart; entry != nil; entry = entry.Next {
		name := ""
		if entry.Map != nil {
			name = entry.Map.Name
		}
		names = append(names, name)
	}
	return names
}
