// Package diagnostics formats fatal runtime errors and prints them in a
// consistent way: the panic message, a best-effort call stack, the frames of
// the mutator's shadow stack and a final statistics block.
package diagnostics

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// maxFrames bounds how much of the call stack is captured.
const maxFrames = 64

const (
	colorRed   = "\x1b[31;1m"
	colorReset = "\x1b[0m"
)

// A single captured call-stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Report is everything printed when the runtime terminates on a fatal error.
type Report struct {
	Kind string
	Msg  string

	// Trace is the native call stack at the point of failure, innermost
	// first, with the panic machinery's own frames already removed.
	Trace []Frame

	// ShadowStack lists the function names recorded in the mutator's root
	// chain, innermost first. Frames without a name are shown as "?".
	ShadowStack []string

	// Stats, if set, renders the final runtime statistics.
	Stats io.WriterTo

	// Color highlights the panic line with ANSI escapes.
	Color bool
}

// CaptureTrace records the current call stack. A skip of 0 starts at the
// caller of CaptureTrace. Frames of the Go scheduler itself are dropped.
func CaptureTrace(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var trace []Frame
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			trace = append(trace, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return trace
}

// Write this report to the given writer with 'wd' as the relative working
// directory for source positions.
func (r *Report) WriteTo(w io.Writer, wd string) {
	if r.Color {
		fmt.Fprintf(w, "%spanic:%s %s\n", colorRed, colorReset, r.Msg)
	} else {
		fmt.Fprintf(w, "panic: %s\n", r.Msg)
	}
	if len(r.Trace) > 0 {
		fmt.Fprintln(w, "\nStack trace:")
		for _, frame := range r.Trace {
			frame.WriteTo(w, wd)
		}
	}
	if len(r.ShadowStack) > 0 {
		fmt.Fprintln(w, "\nShadow stack:")
		for _, name := range r.ShadowStack {
			if name == "" {
				name = "?"
			}
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if r.Stats != nil {
		r.Stats.WriteTo(w)
	}
}

// Write this frame to the given writer with 'wd' as the relative working
// directory.
func (f Frame) WriteTo(w io.Writer, wd string) {
	fmt.Fprintf(w, "  %s\n", f.Function)
	if f.File != "" {
		fmt.Fprintf(w, "  \t%s:%d\n", RelativePath(f.File, wd), f.Line)
	}
}

// Convert the path (assumed to be absolute) into a relative path if possible.
// Paths outside of wd stay absolute.
func RelativePath(path, wd string) string {
	// Check whether we even have a working directory.
	if wd == "" {
		return path
	}

	// Make the path relative, for easier reading. Ignore any errors in the
	// process (falling back to the absolute path).
	relpath, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(relpath, "..") {
		return path
	}
	return relpath
}
