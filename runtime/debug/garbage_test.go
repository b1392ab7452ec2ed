package debug

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoru-lang/yoru-runtime/gclayout"
	"github.com/yoru-lang/yoru-runtime/runtime"
)

var node = gclayout.New("node", 16, 0)

func newHeap(t *testing.T) *runtime.Heap {
	t.Helper()
	h, err := runtime.New(runtime.Config{
		MaxHeap:     8 << 20,
		InitialHeap: 64 << 10,
	}, runtime.WithOutput(&bytes.Buffer{}, &bytes.Buffer{}))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, h.Destroy()) })
	return h
}

func TestReadGCStats(t *testing.T) {
	h := newHeap(t)

	var stats GCStats
	stats.PauseQuantiles = make([]time.Duration, 5)
	ReadGCStats(h, &stats)
	assert.Zero(t, stats.NumGC)
	assert.Empty(t, stats.Pause)
	assert.True(t, stats.LastGC.IsZero())
	assert.Equal(t, make([]time.Duration, 5), stats.PauseQuantiles)

	for i := 0; i < 3; i++ {
		h.Alloc(8, nil)
		FreeOSMemory(h)
	}
	ReadGCStats(h, &stats)
	assert.Equal(t, int64(3), stats.NumGC)
	require.Len(t, stats.Pause, 3)
	require.Len(t, stats.PauseEnd, 3)
	assert.Equal(t, stats.PauseEnd[0], stats.LastGC)
	assert.False(t, stats.PauseEnd[0].Before(stats.PauseEnd[2]))
	assert.Equal(t, stats.Pause[0]+stats.Pause[1]+stats.Pause[2], stats.PauseTotal)

	assert.LessOrEqual(t, stats.PauseQuantiles[0], stats.PauseQuantiles[2])
	assert.LessOrEqual(t, stats.PauseQuantiles[2], stats.PauseQuantiles[4])
	assert.Equal(t, uint64(3), h.ReadStats().FreedCount)
}

func TestSetMemoryLimit(t *testing.T) {
	h := newHeap(t)

	assert.Equal(t, int64(8<<20), SetMemoryLimit(h, -1))
	assert.Equal(t, int64(8<<20), SetMemoryLimit(h, 1<<20))
	assert.Equal(t, int64(1<<20), SetMemoryLimit(h, -1))
	assert.Equal(t, runtime.Size(1<<20), h.Config().MaxHeap)

	// The reservation caps how far the limit can be raised again.
	SetMemoryLimit(h, 1<<40)
	assert.Equal(t, int64(8<<20), SetMemoryLimit(h, -1))
}

func TestHeapDump(t *testing.T) {
	h := newHeap(t)

	tail := h.Alloc(node.Size, node)
	head := h.Alloc(node.Size, node)
	h.StorePointer(head, tail)
	raw := h.Alloc(4, nil)

	var empty runtime.Pointer
	root := head
	h.PushFrame(&runtime.FrameMap{NumRoots: 1, Name: "yoru_main"}, &root)
	h.PushFrame(&runtime.FrameMap{NumRoots: 2, Name: "walk"}, &empty, &raw)

	var buf bytes.Buffer
	require.NoError(t, WriteHeapDump(h, &buf))
	dump, err := ReadHeapDump(&buf)
	require.NoError(t, err)

	assert.Equal(t, h.ID(), dump.Heap)
	assert.Equal(t, h.ReadStats(), dump.Stats)
	assert.Equal(t, []DumpObject{
		{Addr: uint64(raw), Type: "<raw>", Size: 4},
		{Addr: uint64(head), Type: "node", Size: 16, Refs: []uint64{uint64(tail)}},
		{Addr: uint64(tail), Type: "node", Size: 16},
	}, dump.Objects)
	assert.Equal(t, []DumpRoot{
		{Frame: 0, Function: "walk", Slot: 1, Addr: uint64(raw)},
		{Frame: 1, Function: "yoru_main", Slot: 0, Addr: uint64(head)},
	}, dump.Roots)

	_, err = ReadHeapDump(bytes.NewReader([]byte{0xff, 0x00}))
	assert.ErrorContains(t, err, "decode heap dump")
}
