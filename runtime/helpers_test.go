package runtime

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yoru-lang/yoru-runtime/gclayout"
)

// node is {next *node; value int}.
var node = gclayout.New("node", 16, 0)

// pair is {left, right *pair; value int}.
var pair = gclayout.New("pair", 24, 0, 8)

type testHeap struct {
	*Heap
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	exitCode int
}

func testConfig() Config {
	return Config{
		MaxHeap:     16 << 20,
		InitialHeap: 64 << 10,
	}
}

func newTestHeap(t *testing.T, cfg Config) *testHeap {
	t.Helper()
	th := &testHeap{exitCode: -1}
	h, err := New(cfg,
		WithOutput(&th.stdout, &th.stderr),
		WithExit(func(code int) { th.exitCode = code }),
	)
	require.NoError(t, err)
	th.Heap = h
	t.Cleanup(func() {
		require.NoError(t, h.Destroy())
	})
	return th
}

// expectFatal runs fn and returns the fatal error it ended with.
func expectFatal(t *testing.T, fn func()) (fatal *FatalError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fatal error")
		var ok bool
		fatal, ok = r.(*FatalError)
		require.True(t, ok, "unexpected panic: %v", r)
	}()
	fn()
	return nil
}

// newNode allocates a node holding value that points at next.
func (th *testHeap) newNode(next Pointer, value int64) Pointer {
	p := th.Alloc(node.Size, node)
	th.StorePointer(p, next)
	th.StoreInt(p+8, value)
	return p
}
