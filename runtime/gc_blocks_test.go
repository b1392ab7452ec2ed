package runtime

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, initial, limit uintptr) *arena {
	t.Helper()
	a := &arena{}
	require.NoError(t, a.init(initial, limit))
	t.Cleanup(func() { a.destroy() })
	return a
}

func TestArenaAllocStates(t *testing.T) {
	a := newTestArena(t, 4<<10, 16<<10)
	require.Equal(t, gcBlock(128), a.endBlock)

	small := a.alloc(1)
	require.NotZero(t, small)
	assert.Equal(t, blockStateHead, a.state(blockFromAddr(small)))
	assert.Equal(t, blockFromAddr(small)+1, a.findNext(blockFromAddr(small)))

	big := a.alloc(bytesPerBlock*2 + 1)
	require.NotZero(t, big)
	b := blockFromAddr(big)
	assert.Equal(t, blockStateHead, a.state(b))
	assert.Equal(t, blockStateTail, a.state(b+1))
	assert.Equal(t, blockStateTail, a.state(b+2))
	assert.Equal(t, b+3, a.findNext(b))

	heads, tails := a.countBlocks()
	assert.Equal(t, uintptr(2), heads)
	assert.Equal(t, uintptr(2), tails)

	a.free(big)
	a.free(small)
	heads, tails = a.countBlocks()
	assert.Zero(t, heads)
	assert.Zero(t, tails)
	assert.Equal(t, uint64(2), a.mallocs)
	assert.Equal(t, uint64(2), a.frees)

	// Everything merges back into one range.
	assert.Equal(t, uintptr(4<<10), a.buildFreeRanges())
	assert.Equal(t, uintptr(128), a.rangeLen(a.freeRanges))
	assert.Zero(t, a.load64(a.freeRanges+rangeNextLenOffset))
}

func TestArenaFreeRangeReuse(t *testing.T) {
	a := newTestArena(t, 4<<10, 4<<10)

	var ptrs []Pointer
	for i := 0; i < 8; i++ {
		p := a.alloc(bytesPerBlock)
		require.NotZero(t, p)
		ptrs = append(ptrs, p)
	}

	// Free two single blocks; they are reused before the big tail range.
	a.free(ptrs[2])
	a.free(ptrs[5])
	got := []Pointer{a.alloc(bytesPerBlock), a.alloc(bytesPerBlock)}
	assert.ElementsMatch(t, []Pointer{ptrs[2], ptrs[5]}, got)
}

func TestArenaGrow(t *testing.T) {
	a := newTestArena(t, 4<<10, 16<<10)

	p := a.alloc(8 << 10)
	require.NotZero(t, p)
	assert.Equal(t, 8<<10, len(a.mem))
	assert.Equal(t, gcBlock(256), a.endBlock)

	// Growing to the full reservation still leaves too little room.
	assert.Zero(t, a.alloc(16<<10))
	assert.Equal(t, 16<<10, len(a.mem))
	assert.Equal(t, gcBlock(512), a.endBlock)
	assert.Zero(t, a.alloc(^uint64(0)))
	assert.False(t, a.grow())
}

func TestArenaDump(t *testing.T) {
	a := newTestArena(t, 2<<10, 2<<10)
	a.alloc(bytesPerBlock * 2)
	a.alloc(1)

	var buf bytes.Buffer
	a.dumpHeap(&buf)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "*-*·"), lines[0])
	assert.Equal(t, 64, len([]rune(lines[0])))
}

func TestArenaLimit(t *testing.T) {
	a := newTestArena(t, 4<<10, 64<<10)

	assert.Equal(t, uintptr(16<<10), a.setLimit(16<<10+5))
	assert.NotZero(t, a.alloc(12<<10))
	assert.Zero(t, a.alloc(8<<10))
	assert.Equal(t, 16<<10, len(a.mem))

	// The limit never drops below the heap in use or rises past the
	// reservation.
	assert.Equal(t, uintptr(16<<10), a.setLimit(1))
	assert.Equal(t, uintptr(64<<10), a.setLimit(1<<30))
	assert.NotZero(t, a.alloc(8<<10))
}
