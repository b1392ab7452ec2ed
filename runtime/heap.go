// Package runtime is the heap of the Yoru runtime: a precise, non-moving
// mark/sweep collector and the allocator behind it.
//
// A Heap owns every object allocated through it. Objects are found from the
// roots the mutator records on its shadow stack (see PushFrame) and traced
// through the reference offsets of their type descriptors. Everything runs on
// the mutator's own thread: a collection is an ordinary, synchronous call made
// from Alloc or GC. A Heap must not be used from more than one goroutine at a
// time.
//
// All failures are fatal. They print a report and terminate the process
// through the heap's exit hook (os.Exit by default); see Panic.
package runtime

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/yoru-lang/yoru-runtime/gclayout"
)

// Pointer is the address of a byte in a heap. The zero Pointer is nil.
// Pointers returned by Alloc address the data region of an object.
type Pointer uint64

func (p Pointer) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// minThreshold is the lowest the collection threshold ever goes.
const minThreshold = 1 << 20

// maxPauses is the number of recent collections whose pause is remembered.
const maxPauses = 256

// Heap is one independent garbage-collected heap.
type Heap struct {
	id     string
	config Config
	logger log.Logger
	stdout io.Writer
	stderr io.Writer
	color  bool
	exit   func(code int)
	wd     string

	arena arena

	// allocList is the header address of the most recently allocated
	// object. Every live object is reachable from it through header links.
	allocList Pointer

	stats        Stats
	threshold    uint64
	bytesSinceGC uint64

	stackChainStart *StackEntry

	// types maps header type indices to descriptors. Index 0 is reserved
	// for objects without a descriptor.
	types     []*gclayout.TypeDesc
	typeIndex map[*gclayout.TypeDesc]uint32

	worklist []Pointer

	state     panicState
	destroyed bool

	pauses     []GCPause
	pauseTotal time.Duration
}

// Option customizes a Heap.
type Option func(*Heap)

// WithLogger sends verbose GC logging to logger instead of stderr.
func WithLogger(logger log.Logger) Option {
	return func(h *Heap) {
		h.logger = logger
	}
}

// WithOutput redirects the primitive print operations and the diagnostic
// stream.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(h *Heap) {
		h.stdout = stdout
		h.stderr = stderr
		h.color = false
	}
}

// WithExit replaces os.Exit as the way a fatal error ends the process. If
// exit returns, the fatal call panics with a *FatalError instead.
func WithExit(exit func(code int)) Option {
	return func(h *Heap) {
		h.exit = exit
	}
}

// New creates a heap. Stress mode switches on automatic collection and keeps
// the threshold at zero, so every allocation collects first.
func New(cfg Config, opts ...Option) (*Heap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid heap config")
	}
	if cfg.Stress {
		cfg.AutoCollect = true
	}

	h := &Heap{
		id:        uuid.NewString(),
		config:    cfg,
		stdout:    os.Stdout,
		stderr:    colorable.NewColorableStderr(),
		color:     isatty.IsTerminal(os.Stderr.Fd()),
		exit:      os.Exit,
		threshold: minThreshold,
		types:     []*gclayout.TypeDesc{nil},
		typeIndex: map[*gclayout.TypeDesc]uint32{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if cfg.Stress {
		h.threshold = 0
	}
	h.wd, _ = os.Getwd()

	logger := h.logger
	if logger == nil {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(h.stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	}
	if cfg.Verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	h.logger = log.With(logger, "heap", h.id)

	if err := h.arena.init(uintptr(cfg.InitialHeap), uintptr(cfg.MaxHeap)); err != nil {
		return nil, err
	}

	if cfg.Verbose {
		level.Debug(h.logger).Log("msg", "runtime initialized", "auto_collect", cfg.AutoCollect, "stress", cfg.Stress, "max_heap", cfg.MaxHeap)
	}
	return h, nil
}

// Destroy frees every remaining object, whether reachable or not, and gives
// the heap's memory back. Statistics keep their final values. The heap must
// not be used afterwards.
func (h *Heap) Destroy() error {
	if h.destroyed {
		return nil
	}
	for obj := h.allocList; obj != 0; {
		next := h.objNext(obj)
		h.arena.free(obj)
		obj = next
	}

	if h.config.Verbose {
		level.Debug(h.logger).Log("msg", "runtime shutdown")
		h.PrintStats()
	}
	return h.release()
}

// release gives the arena back without walking the object list. Objects
// still allocated are dropped along with it.
func (h *Heap) release() error {
	h.allocList = 0
	h.stackChainStart = nil
	h.destroyed = true
	return h.arena.destroy()
}

// ID returns the heap's unique name, as used in its log lines.
func (h *Heap) ID() string {
	return h.id
}

// Config returns the settings the heap was created with, after the stress
// implication was applied.
func (h *Heap) Config() Config {
	return h.config
}

// Threshold returns the number of bytes that must be allocated before the
// next automatic collection.
func (h *Heap) Threshold() uint64 {
	return h.threshold
}

// SetMaxHeap changes how far the heap may grow and returns the previous
// limit. The new limit is clamped to at least the heap in use and at most the
// memory reserved when the heap was created.
func (h *Heap) SetMaxHeap(limit Size) Size {
	prev := h.config.MaxHeap
	h.config.MaxHeap = Size(h.arena.setLimit(uintptr(limit)))
	return prev
}

// Object header layout. See package rtabi for the code generator's copy.
const (
	headerSize        = 24
	headerTypeOffset  = 0
	headerFlagsOffset = 4
	headerNextOffset  = 8
	headerSizeOffset  = 16

	flagMarked = 1 << 0
)

// Header accessors. obj is the address of an object header, not of its data.

func (h *Heap) objType(obj Pointer) *gclayout.TypeDesc {
	return h.types[h.arena.load32(obj+headerTypeOffset)]
}

func (h *Heap) objNext(obj Pointer) Pointer {
	return Pointer(h.arena.load64(obj + headerNextOffset))
}

func (h *Heap) setObjNext(obj, next Pointer) {
	h.arena.store64(obj+headerNextOffset, uint64(next))
}

func (h *Heap) objSize(obj Pointer) uint64 {
	return h.arena.load64(obj + headerSizeOffset)
}

func (h *Heap) marked(obj Pointer) bool {
	return h.arena.load32(obj+headerFlagsOffset)&flagMarked != 0
}

func (h *Heap) setMarked(obj Pointer, marked bool) {
	flags := h.arena.load32(obj + headerFlagsOffset)
	if marked {
		flags |= flagMarked
	} else {
		flags &^= flagMarked
	}
	h.arena.store32(obj+headerFlagsOffset, flags)
}

// registerType returns the header type index of typ, assigning one on first
// use.
func (h *Heap) registerType(typ *gclayout.TypeDesc) uint32 {
	if typ == nil {
		return 0
	}
	if idx, ok := h.typeIndex[typ]; ok {
		return idx
	}
	idx := uint32(len(h.types))
	h.types = append(h.types, typ)
	h.typeIndex[typ] = idx
	return idx
}

// Data accessors for the mutator. p may point anywhere inside an object's
// data region; nothing is checked beyond the arena bounds.

// Load64 reads the 8-byte word at p.
func (h *Heap) Load64(p Pointer) uint64 {
	return h.arena.load64(p)
}

// Store64 writes the 8-byte word at p.
func (h *Heap) Store64(p Pointer, v uint64) {
	h.arena.store64(p, v)
}

// LoadPointer reads the reference field at p.
func (h *Heap) LoadPointer(p Pointer) Pointer {
	return Pointer(h.arena.load64(p))
}

// StorePointer writes the reference field at p.
func (h *Heap) StorePointer(p, v Pointer) {
	h.arena.store64(p, uint64(v))
}

// LoadInt reads the integer field at p.
func (h *Heap) LoadInt(p Pointer) int64 {
	return int64(h.arena.load64(p))
}

// StoreInt writes the integer field at p.
func (h *Heap) StoreInt(p Pointer, v int64) {
	h.arena.store64(p, uint64(v))
}

// LoadFloat64 reads the floating-point field at p.
func (h *Heap) LoadFloat64(p Pointer) float64 {
	return math.Float64frombits(h.arena.load64(p))
}

// StoreFloat64 writes the floating-point field at p.
func (h *Heap) StoreFloat64(p Pointer, v float64) {
	h.arena.store64(p, math.Float64bits(v))
}

// LoadBool reads the one-byte boolean field at p.
func (h *Heap) LoadBool(p Pointer) bool {
	return h.arena.slice(p, 1)[0] != 0
}

// StoreBool writes the one-byte boolean field at p.
func (h *Heap) StoreBool(p Pointer, v bool) {
	var b byte
	if v {
		b = 1
	}
	h.arena.slice(p, 1)[0] = b
}

// Bytes returns the n bytes at p. The slice aliases heap memory and must not
// be kept across a collection that may free the object.
func (h *Heap) Bytes(p Pointer, n uint64) []byte {
	return h.arena.slice(p, n)
}
