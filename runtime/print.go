package runtime

import (
	"io"
	"math"
	"strconv"
)

// String is a runtime string value: a length-prefixed byte sequence. Its
// payload belongs to whoever produced it; the collector never traces or frees
// it.
type String []byte

// The primitive output operations write straight to the heap's stdout, with
// no buffering of their own.

// PrintI64 prints a decimal integer.
func (h *Heap) PrintI64(x int64) {
	io.WriteString(h.stdout, strconv.FormatInt(x, 10))
}

// PrintF64 prints a float with six significant digits, trailing zeros
// removed, like C's %g.
func (h *Heap) PrintF64(x float64) {
	io.WriteString(h.stdout, formatFloat(x))
}

func formatFloat(x float64) string {
	switch {
	case math.IsNaN(x):
		return "nan"
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	}
	return strconv.FormatFloat(x, 'g', 6, 64)
}

// PrintBool prints true or false.
func (h *Heap) PrintBool(b bool) {
	io.WriteString(h.stdout, strconv.FormatBool(b))
}

// PrintString prints the bytes of s as they are.
func (h *Heap) PrintString(s String) {
	h.stdout.Write(s)
}

// Println prints a newline.
func (h *Heap) Println() {
	io.WriteString(h.stdout, "\n")
}
