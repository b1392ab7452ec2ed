package runtime

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoru-lang/yoru-runtime/gclayout"
)

func TestGCReachability(t *testing.T) {
	th := newTestHeap(t, testConfig())

	// a -> b -> c, with only b on the stack.
	c := th.newNode(0, 3)
	b := th.newNode(c, 2)
	a := th.newNode(b, 1)

	root := b
	th.PushFrame(&FrameMap{NumRoots: 1, Name: "main"}, &root)
	before := th.ReadStats()
	th.GC()
	after := th.ReadStats()

	assert.False(t, th.Contains(a))
	assert.True(t, th.Contains(b))
	assert.True(t, th.Contains(c))
	assert.Equal(t, int64(2), th.LoadInt(b+8))
	assert.Equal(t, c, th.LoadPointer(b))

	assert.Equal(t, before.FreedCount+1, after.FreedCount)
	assert.Equal(t, uint64(2), after.LiveObjects)
	assert.Equal(t, 2*(headerSize+node.Size), after.HeapSize)
	assert.Equal(t, uint64(1), after.GCCount)

	// Marks are cleared again after every cycle.
	th.Objects(func(info ObjectInfo) bool {
		assert.False(t, info.Marked)
		return true
	})
}

func TestGCCycle(t *testing.T) {
	th := newTestHeap(t, testConfig())

	x := th.newNode(0, 1)
	y := th.newNode(x, 2)
	th.StorePointer(x, y)

	root := x
	th.PushFrame(&FrameMap{NumRoots: 1}, &root)
	th.GC()
	assert.True(t, th.Contains(x))
	assert.True(t, th.Contains(y))
	assert.Equal(t, []Pointer{y}, th.Refs(x))

	// Dropping the only root frees the whole cycle.
	root = 0
	th.GC()
	assert.False(t, th.Contains(x))
	assert.False(t, th.Contains(y))
	assert.Equal(t, uint64(2), th.ReadStats().FreedCount)
	assert.Zero(t, th.ReadStats().LiveObjects)
	assert.Zero(t, th.ReadStats().HeapSize)
}

func TestGCRawAndPointerFree(t *testing.T) {
	th := newTestHeap(t, testConfig())

	// Raw and scalar objects are kept but their contents are never read
	// as references.
	raw := th.Alloc(16, nil)
	boxed := th.Alloc(gclayout.Int.Size, gclayout.Int)
	garbage := th.newNode(0, 0)
	th.Store64(raw, uint64(garbage))
	th.Store64(boxed, uint64(garbage))

	r1, r2 := raw, boxed
	th.PushFrame(&FrameMap{NumRoots: 2}, &r1, &r2)
	th.GC()

	assert.True(t, th.Contains(raw))
	assert.True(t, th.Contains(boxed))
	assert.False(t, th.Contains(garbage))
	assert.Nil(t, th.Refs(raw))
}

func TestGCNilFields(t *testing.T) {
	th := newTestHeap(t, testConfig())

	p := th.Alloc(pair.Size, pair)
	right := th.Alloc(pair.Size, pair)
	th.StorePointer(p+8, right)

	root := p
	th.PushFrame(&FrameMap{NumRoots: 1}, &root)
	th.GC()
	assert.True(t, th.Contains(right))
	assert.Equal(t, []Pointer{right}, th.Refs(p))
}

func TestGCShadowStackFrames(t *testing.T) {
	th := newTestHeap(t, testConfig())

	outer := th.newNode(0, 1)
	inner := th.newNode(0, 2)
	lost := th.newNode(0, 3)
	hidden := th.newNode(0, 4)

	var empty Pointer
	o, i, h := outer, inner, hidden
	th.PushFrame(&FrameMap{NumRoots: 2, Name: "outer"}, &o, &empty)
	// Frames without a map contribute nothing.
	th.PushFrame(nil, &h)
	th.PushFrame(&FrameMap{NumRoots: 2, NumMeta: 1, Name: "inner"}, &i, nil)

	assert.Equal(t, []string{"inner", "", "outer"}, th.shadowStackNames())
	th.GC()
	assert.True(t, th.Contains(outer))
	assert.True(t, th.Contains(inner))
	assert.False(t, th.Contains(lost))
	assert.False(t, th.Contains(hidden))

	th.PopFrame()
	th.PopFrame()
	th.GC()
	assert.False(t, th.Contains(inner))
	assert.True(t, th.Contains(outer))

	th.PopFrame()
	assert.Nil(t, th.StackChain())
	th.PopFrame()
	assert.Nil(t, th.StackChain())
	th.GC()
	assert.Zero(t, th.ObjectCount())
}

func TestGCSlotsReadAtCollection(t *testing.T) {
	th := newTestHeap(t, testConfig())

	var slot Pointer
	entry := th.PushFrame(&FrameMap{NumRoots: 1}, &slot)
	assert.Same(t, entry, th.StackChain())

	a := th.newNode(0, 1)
	slot = a
	b := th.newNode(0, 2)
	th.GC()
	assert.True(t, th.Contains(a))
	assert.False(t, th.Contains(b))

	// Overwriting a slot drops the old object.
	c := th.newNode(0, 3)
	slot = c
	th.GC()
	assert.False(t, th.Contains(a))
	assert.True(t, th.Contains(c))
}

func TestGCDeepChain(t *testing.T) {
	th := newTestHeap(t, testConfig())

	const length = 100000
	var head Pointer
	th.PushFrame(&FrameMap{NumRoots: 1}, &head)
	for i := 0; i < length; i++ {
		head = th.newNode(head, int64(i))
	}
	th.Alloc(8, nil)

	th.GC()
	stats := th.ReadStats()
	assert.Equal(t, uint64(length), stats.LiveObjects)
	assert.Equal(t, uint64(1), stats.FreedCount)

	n := 0
	for p := head; p != 0; p = th.LoadPointer(p) {
		n++
	}
	assert.Equal(t, length, n)
}

// TestGCRandomGraphs checks on random object graphs that a collection keeps
// exactly the objects reachable from the roots.
func TestGCRandomGraphs(t *testing.T) {
	tri := gclayout.New("tri", 24, 0, 8, 16)
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 20; round++ {
		th := newTestHeap(t, testConfig())

		n := 50 + rng.Intn(150)
		objs := make([]Pointer, n)
		edges := make([][]int, n)
		for i := range objs {
			objs[i] = th.Alloc(tri.Size, tri)
		}
		for i := range objs {
			for f := 0; f < 3; f++ {
				if rng.Intn(3) == 0 {
					continue
				}
				j := rng.Intn(n)
				th.StorePointer(objs[i]+Pointer(8*f), objs[j])
				edges[i] = append(edges[i], j)
			}
		}

		roots := make([]Pointer, 1+rng.Intn(4))
		slots := make([]*Pointer, len(roots))
		reachable := map[int]bool{}
		var queue []int
		for k := range roots {
			i := rng.Intn(n)
			roots[k] = objs[i]
			slots[k] = &roots[k]
			if !reachable[i] {
				reachable[i] = true
				queue = append(queue, i)
			}
		}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			for _, j := range edges[i] {
				if !reachable[j] {
					reachable[j] = true
					queue = append(queue, j)
				}
			}
		}

		th.PushFrame(&FrameMap{NumRoots: int32(len(slots))}, slots...)
		th.GC()

		for i, p := range objs {
			require.Equal(t, reachable[i], th.Contains(p), "round %d object %d", round, i)
		}
		stats := th.ReadStats()
		assert.Equal(t, uint64(len(reachable)), stats.LiveObjects)
		assert.Equal(t, uint64(n-len(reachable)), stats.FreedCount)
		assert.Equal(t, stats.AllocCount, stats.LiveObjects+stats.FreedCount)

		th.PopFrame()
		th.GC()
		assert.Zero(t, th.ObjectCount())
	}
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, uint64(1<<20), nextThreshold(0))
	assert.Equal(t, uint64(1<<20), nextThreshold(512<<10))
	assert.Equal(t, uint64(3<<20), nextThreshold(1536<<10))

	th := newTestHeap(t, testConfig())
	assert.Equal(t, uint64(1<<20), th.Threshold())

	big := th.Alloc(1<<20, nil)
	th.PushFrame(&FrameMap{NumRoots: 1}, &big)
	th.GC()
	assert.Equal(t, 2*(headerSize+uint64(1<<20)), th.Threshold())

	th.PopFrame()
	th.GC()
	assert.Equal(t, uint64(1<<20), th.Threshold())
}

func TestAutoCollect(t *testing.T) {
	cfg := testConfig()
	cfg.AutoCollect = true
	th := newTestHeap(t, cfg)

	// 124 bytes per object: the 8457th crosses 1 MiB.
	for i := 0; i < 8456; i++ {
		th.Alloc(100, nil)
	}
	assert.Zero(t, th.ReadStats().GCCount)

	last := th.Alloc(100, nil)
	stats := th.ReadStats()
	assert.Equal(t, uint64(1), stats.GCCount)
	assert.Equal(t, uint64(8456), stats.FreedCount)
	assert.Equal(t, uint64(1), stats.LiveObjects)
	assert.True(t, th.Contains(last))
}

func TestAutoCollectOff(t *testing.T) {
	th := newTestHeap(t, testConfig())
	for i := 0; i < 10000; i++ {
		th.Alloc(100, nil)
	}
	assert.Zero(t, th.ReadStats().GCCount)
	assert.Equal(t, uint64(10000), th.ReadStats().LiveObjects)
}

func TestStress(t *testing.T) {
	cfg := testConfig()
	cfg.Stress = true
	th := newTestHeap(t, cfg)
	assert.True(t, th.Config().AutoCollect)
	assert.Zero(t, th.Threshold())

	var head Pointer
	th.PushFrame(&FrameMap{NumRoots: 1, Name: "stress"}, &head)
	const n = 200
	for i := 0; i < n; i++ {
		th.Alloc(32, nil) // garbage
		head = th.newNode(head, int64(i))
	}

	stats := th.ReadStats()
	assert.Equal(t, uint64(2*n), stats.GCCount)
	assert.Equal(t, uint64(n), stats.FreedCount)
	assert.Equal(t, uint64(n), stats.LiveObjects)
	assert.Zero(t, th.Threshold())

	// The list is intact, newest first.
	i := int64(n - 1)
	for p := head; p != 0; p = th.LoadPointer(p) {
		assert.Equal(t, i, th.LoadInt(p+8))
		i--
	}
	assert.Equal(t, int64(-1), i)

	pauses, total := th.GCPauses()
	assert.Len(t, pauses, maxPauses)
	assert.True(t, total >= pauses[0].Duration)
	assert.False(t, pauses[len(pauses)-1].End.Before(pauses[0].End))
}

func TestVerboseLogging(t *testing.T) {
	var logs bytes.Buffer
	cfg := testConfig()
	cfg.Verbose = true
	th := &testHeap{}
	h, err := New(cfg,
		WithOutput(&th.stdout, &th.stderr),
		WithLogger(log.NewLogfmtLogger(&logs)),
	)
	require.NoError(t, err)

	p := h.Alloc(node.Size, node)
	h.Alloc(8, nil)
	root := p
	h.PushFrame(&FrameMap{NumRoots: 1}, &root)
	h.GC()
	require.NoError(t, h.Destroy())
	require.NoError(t, h.Destroy())

	out := logs.String()
	assert.Contains(t, out, "msg=\"runtime initialized\"")
	assert.Contains(t, out, "msg=allocated size=16 type=node")
	assert.Contains(t, out, "msg=\"freed object\"")
	assert.Contains(t, out, "msg=\"collection done\" freed=1 remain=1")
	assert.Contains(t, out, "msg=\"runtime shutdown\"")
	assert.Contains(t, out, "heap="+h.ID())

	// Shutdown prints the final statistics, which still count the objects
	// released by teardown as live.
	assert.Contains(t, th.stderr.String(), "  Live objects:  1\n")
}

func TestQuietByDefault(t *testing.T) {
	var logs bytes.Buffer
	h, err := New(testConfig(), WithLogger(log.NewLogfmtLogger(&logs)))
	require.NoError(t, err)
	h.Alloc(8, nil)
	h.GC()
	require.NoError(t, h.Destroy())
	assert.Empty(t, logs.String())
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(Config{MaxHeap: 1 << 20})
	assert.EqualError(t, err, "invalid heap config: initial heap size must be positive")
}
