package runtime

import (
	"fmt"

	"github.com/yoru-lang/yoru-runtime/diagnostics"
)

// exitStatus is the process status after any fatal error.
const exitStatus = 1

// ErrorKind classifies fatal errors. None of them can be recovered from.
type ErrorKind int

const (
	OutOfMemory ErrorKind = iota + 1
	SizeMismatch
	BoundsViolation
	UserPanic
)

func (k ErrorKind) String() string {
	switch k {
	case OutOfMemory:
		return "OutOfMemory"
	case SizeMismatch:
		return "SizeMismatch"
	case BoundsViolation:
		return "BoundsViolation"
	case UserPanic:
		return "UserPanic"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// FatalError is the value a fatal call panics with when the exit hook
// returns instead of ending the process.
type FatalError struct {
	Kind   ErrorKind
	Msg    string
	Status int
}

func (e *FatalError) Error() string {
	return "panic: " + e.Msg
}

// panicState tracks the runtime through a fatal error. There is no way
// back to running.
type panicState uint8

const (
	stateRunning panicState = iota
	statePanicking
	stateTerminated
)

// Panic reports msg as a fatal error raised by the program and ends the
// process. It never returns.
func (h *Heap) Panic(msg string) {
	h.runtimePanicAt(1, UserPanic, msg)
}

// PanicString is Panic for a runtime string value.
func (h *Heap) PanicString(s String) {
	h.runtimePanicAt(1, UserPanic, string(s))
}

// BoundsCheck ends the process unless 0 <= index < length.
func (h *Heap) BoundsCheck(index, length int64) {
	if index < 0 || index >= length {
		h.runtimePanicAt(1, BoundsViolation, fmt.Sprintf("index out of range [%d] with length %d", index, length))
	}
}

// runtimePanicAt prints the panic message, the call stack starting skip
// frames above the caller, the shadow stack and the statistics, then exits.
// It never returns.
func (h *Heap) runtimePanicAt(skip int, kind ErrorKind, msg string) {
	err := &FatalError{Kind: kind, Msg: msg, Status: exitStatus}
	if h.state != stateRunning {
		// Failed while reporting an earlier error; don't report again.
		h.exit(exitStatus)
		panic(err)
	}
	h.state = statePanicking

	report := &diagnostics.Report{
		Kind:        kind.String(),
		Msg:         msg,
		Trace:       diagnostics.CaptureTrace(skip + 1),
		ShadowStack: h.shadowStackNames(),
		Stats:       h.stats,
		Color:       h.color,
	}
	report.WriteTo(h.stderr, h.wd)

	h.state = stateTerminated
	h.exit(exitStatus)
	panic(err)
}
