// Package gclayout describes where outgoing references live inside heap
// objects. Descriptors are produced by the code generator, one per distinct
// compiled type, and are never modified after construction: the collector only
// borrows them.
package gclayout

import "github.com/yoru-lang/yoru-runtime/rtabi"

// PointerSize is the size in bytes of a reference field.
const PointerSize = rtabi.SizePtr

// TypeDesc is the reflection metadata for one compiled type.
//
// Offsets are byte offsets into the object's data region. Only the first
// NumPtrs entries are consulted by the collector. The descriptor is trusted:
// apart from the size check done at allocation time, nothing here is
// validated.
type TypeDesc struct {
	Name    string
	Size    uint64
	NumPtrs uint64
	Offsets []uint32
}

// New returns a descriptor for a type of the given size whose reference
// fields live at the given offsets.
func New(name string, size uint64, offsets ...uint32) *TypeDesc {
	return &TypeDesc{
		Name:    name,
		Size:    size,
		NumPtrs: uint64(len(offsets)),
		Offsets: offsets,
	}
}

// PointerFree reports whether objects of this type contain no references and
// therefore never need to be scanned.
func (t *TypeDesc) PointerFree() bool {
	return t == nil || t.NumPtrs == 0
}

// String returns the type name, for diagnostics.
func (t *TypeDesc) String() string {
	if t == nil {
		return "<raw>"
	}
	if t.Name == "" {
		return "<anonymous>"
	}
	return t.Name
}

// Built-in descriptors for the primitive types of the language.
var (
	Int   = &TypeDesc{Name: "int", Size: rtabi.SizeInt}
	Float = &TypeDesc{Name: "float", Size: rtabi.SizeFloat}
	Bool  = &TypeDesc{Name: "bool", Size: rtabi.SizeBool}

	// String is the {data pointer, length} pair of a runtime string. The
	// payload belongs to whoever produced it and is never traced or freed by
	// the collector, so it declares no references.
	String = &TypeDesc{Name: "string", Size: rtabi.SizeString}
)

// Builtin returns the built-in descriptor the code generator emits under the
// given symbol, or nil if the symbol names none.
func Builtin(symbol string) *TypeDesc {
	switch symbol {
	case rtabi.TypeDescInt:
		return Int
	case rtabi.TypeDescFloat:
		return Float
	case rtabi.TypeDescBool:
		return Bool
	case rtabi.TypeDescString:
		return String
	}
	return nil
}
