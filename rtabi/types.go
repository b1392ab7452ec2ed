// Package rtabi defines the ABI constants shared between the code generator
// and the runtime. The runtime package checks its own layout against these
// values in its tests.
package rtabi

// Basic type sizes in bytes.
const (
	SizeInt    = 8
	SizeFloat  = 8
	SizeBool   = 1
	SizePtr    = 8
	SizeString = 16 // { ptr, len }
)

// Basic type alignments in bytes.
const (
	AlignInt    = 8
	AlignFloat  = 8
	AlignBool   = 1
	AlignPtr    = 8
	AlignString = 8
)

// Object header layout. Objects are returned to generated code as a pointer
// to the data region, which starts ObjHeaderSize bytes after the header.
const (
	ObjHeaderSize = 24

	ObjHeaderTypeOffset  = 0
	ObjHeaderFlagsOffset = 4
	ObjHeaderNextOffset  = 8
	ObjHeaderSizeOffset  = 16
)

// TypeDesc layout as emitted by the code generator.
const (
	TypeDescSize = 24 // size(8) + num_ptrs(8) + offsets*(8)

	TypeDescSizeOffset    = 0
	TypeDescNumPtrsOffset = 8
	TypeDescOffsetsOffset = 16
)

// GC constants.
const (
	// GCStrategy is the code generator's GC strategy name.
	GCStrategy = "shadow-stack"

	// GCMarkBit is the bit of the header flags word holding the mark.
	GCMarkBit = 0
)
