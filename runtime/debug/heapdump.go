package debug

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/yoru-lang/yoru-runtime/runtime"
)

// HeapDump is a snapshot of a heap: its statistics, every object on the
// allocation list with the references it holds, and the roots of the shadow
// stack.
type HeapDump struct {
	Heap    string        `cbor:"heap"`
	Stats   runtime.Stats `cbor:"stats"`
	Objects []DumpObject  `cbor:"objects"`
	Roots   []DumpRoot    `cbor:"roots"`
}

// DumpObject is one object of a HeapDump.
type DumpObject struct {
	Addr uint64   `cbor:"addr"`
	Type string   `cbor:"type"`
	Size uint64   `cbor:"size"`
	Refs []uint64 `cbor:"refs,omitempty"`
}

// DumpRoot is one non-nil root slot of a HeapDump. Frame counts from the
// innermost frame.
type DumpRoot struct {
	Frame    int    `cbor:"frame"`
	Function string `cbor:"function,omitempty"`
	Slot     int    `cbor:"slot"`
	Addr     uint64 `cbor:"addr"`
}

var dumpEncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Snapshot collects a HeapDump of h. Objects are listed newest first.
func Snapshot(h *runtime.Heap) *HeapDump {
	dump := &HeapDump{
		Heap:  h.ID(),
		Stats: h.ReadStats(),
	}
	h.Objects(func(info runtime.ObjectInfo) bool {
		obj := DumpObject{
			Addr: uint64(info.Addr),
			Type: info.Type.String(),
			Size: info.Size,
		}
		for _, ref := range h.Refs(info.Addr) {
			obj.Refs = append(obj.Refs, uint64(ref))
		}
		dump.Objects = append(dump.Objects, obj)
		return true
	})

	frame := 0
	for entry := h.StackChain(); entry != nil; entry = entry.Next {
		if entry.Map != nil {
			for i := 0; i < int(entry.Map.NumRoots) && i < len(entry.Roots); i++ {
				slot := entry.Roots[i]
				if slot == nil || *slot == 0 {
					continue
				}
				dump.Roots = append(dump.Roots, DumpRoot{
					Frame:    frame,
					Function: entry.Map.Name,
					Slot:     i,
					Addr:     uint64(*slot),
				})
			}
		}
		frame++
	}
	return dump
}

// WriteHeapDump writes a CBOR encoded snapshot of h to w.
func WriteHeapDump(h *runtime.Heap, w io.Writer) error {
	data, err := dumpEncMode.Marshal(Snapshot(h))
	if err != nil {
		return errors.Wrap(err, "encode heap dump")
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "write heap dump")
}

// ReadHeapDump decodes a snapshot written by WriteHeapDump.
func ReadHeapDump(r io.Reader) (*HeapDump, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read heap dump")
	}
	dump := &HeapDump{}
	if err := cbor.Unmarshal(data, dump); err != nil {
		return nil, errors.Wrap(err, "decode heap dump")
	}
	return dump, nil
}
