// Package metrics provides a stable interface to the counters of a heap,
// modelled on the standard library's runtime/metrics.
package metrics

import (
	"math"

	"github.com/yoru-lang/yoru-runtime/runtime"
)

// Description describes a runtime metric.
type Description struct {
	// Name is the full name of the metric which includes the unit.
	Name string

	Description string

	Kind ValueKind

	// Cumulative is whether or not the metric is cumulative. A cumulative
	// metric only ever increases.
	Cumulative bool
}

var allDesc = []Description{
	{
		Name:        "/gc/cycles/total:gc-cycles",
		Description: "Count of completed GC cycles.",
		Kind:        KindUint64,
		Cumulative:  true,
	},
	{
		Name:        "/gc/heap/allocs:objects",
		Description: "Cumulative count of heap allocations.",
		Kind:        KindUint64,
		Cumulative:  true,
	},
	{
		Name:        "/gc/heap/frees:objects",
		Description: "Cumulative count of heap objects freed by the garbage collector.",
		Kind:        KindUint64,
		Cumulative:  true,
	},
	{
		Name:        "/gc/heap/goal:bytes",
		Description: "Number of bytes allocated since the last collection that triggers the next automatic one.",
		Kind:        KindUint64,
	},
	{
		Name:        "/gc/heap/live:bytes",
		Description: "Bytes of live objects, headers included, as of the last allocation or collection.",
		Kind:        KindUint64,
	},
	{
		Name:        "/gc/heap/objects:objects",
		Description: "Number of objects on the allocation list.",
		Kind:        KindUint64,
	},
	{
		Name:        "/gc/pauses/total:seconds",
		Description: "Total time spent in collection cycles.",
		Kind:        KindFloat64,
		Cumulative:  true,
	},
	{
		Name:        "/memory/classes/heap/free:bytes",
		Description: "Memory of free heap blocks.",
		Kind:        KindUint64,
	},
	{
		Name:        "/memory/classes/total:bytes",
		Description: "Memory currently in use as heap, free blocks included.",
		Kind:        KindUint64,
	},
}

// All returns a slice of containing metric descriptions for all supported
// metrics, sorted by name.
func All() []Description {
	descs := make([]Description, len(allDesc))
	copy(descs, allDesc)
	return descs
}

// Sample captures a single metric sample.
type Sample struct {
	Name  string
	Value Value
}

// Read populates each Value field in the given slice of metric samples from
// h. Samples with an unknown name get a KindBad value.
func Read(h *runtime.Heap, m []Sample) {
	stats := h.ReadStats()
	var mem runtime.MemStats
	h.ReadMemStats(&mem)
	_, pauseTotal := h.GCPauses()

	for i := range m {
		s := &m[i]
		switch s.Name {
		case "/gc/cycles/total:gc-cycles":
			s.Value = uint64Value(stats.GCCount)
		case "/gc/heap/allocs:objects":
			s.Value = uint64Value(stats.AllocCount)
		case "/gc/heap/frees:objects":
			s.Value = uint64Value(stats.FreedCount)
		case "/gc/heap/goal:bytes":
			s.Value = uint64Value(h.Threshold())
		case "/gc/heap/live:bytes":
			s.Value = uint64Value(stats.HeapSize)
		case "/gc/heap/objects:objects":
			s.Value = uint64Value(stats.LiveObjects)
		case "/gc/pauses/total:seconds":
			s.Value = float64Value(pauseTotal.Seconds())
		case "/memory/classes/heap/free:bytes":
			s.Value = uint64Value(mem.HeapIdle)
		case "/memory/classes/total:bytes":
			s.Value = uint64Value(mem.HeapSys)
		default:
			s.Value = Value{}
		}
	}
}

// Value represents a metric value returned by the runtime.
type Value struct {
	kind   ValueKind
	scalar uint64
}

func uint64Value(v uint64) Value {
	return Value{kind: KindUint64, scalar: v}
}

func float64Value(v float64) Value {
	return Value{kind: KindFloat64, scalar: math.Float64bits(v)}
}

// Float64 returns the internal float64 value for the metric.
//
// If v.Kind() != KindFloat64, this method panics.
func (v Value) Float64() float64 {
	if v.kind != KindFloat64 {
		panic("called Float64 on non-float64 metric value")
	}
	return math.Float64frombits(v.scalar)
}

// Kind returns the tag representing the kind of value this is.
func (v Value) Kind() ValueKind {
	return v.kind
}

// Uint64 returns the internal uint64 value for the metric.
//
// If v.Kind() != KindUint64, this method panics.
func (v Value) Uint64() uint64 {
	if v.kind != KindUint64 {
		panic("called Uint64 on non-uint64 metric value")
	}
	return v.scalar
}

// ValueKind is a tag for a metric Value which indicates its type.
type ValueKind int

const (
	// KindBad indicates that the Value has no type and should not be used.
	KindBad ValueKind = iota

	// KindUint64 indicates that the type of the Value is a uint64.
	KindUint64

	// KindFloat64 indicates that the type of the Value is a float64.
	KindFloat64
)
