package main

import (
	"github.com/yoru-lang/yoru-runtime/gclayout"
	"github.com/yoru-lang/yoru-runtime/runtime"
)

// The programs below are written the way the compiler lowers Yoru code:
// every function that holds references pushes a frame listing its reference
// slots, and pops it on the way out.

type program struct {
	description string
	main        func(h *runtime.Heap)
}

var programs = map[string]program{
	"list":   {"build a linked list and sum its values", listProgram},
	"tree":   {"allocate and check binary trees of growing depth", treeProgram},
	"cycle":  {"create reference cycles and collect them", cycleProgram},
	"churn":  {"allocate short-lived objects around a small live set", churnProgram},
	"bounds": {"index past the end of an array", boundsProgram},
	"panic":  {"fail with a user panic", panicProgram},
	"oom":    {"allocate until the heap is exhausted", oomProgram},
}

var (
	// listNode is {next *listNode; value int}.
	listNode = gclayout.New("ListNode", 16, 0)

	// treeNode is {left, right *treeNode; item int}.
	treeNode = gclayout.New("TreeNode", 24, 0, 8)

	// chunk is {next *chunk; payload [1 MiB - 8]byte}.
	chunk = gclayout.New("Chunk", 1<<20, 0)
)

func printString(h *runtime.Heap, s string) {
	h.PrintString(runtime.String(s))
}

var listMainFrame = &runtime.FrameMap{NumRoots: 1, Name: "yoru_main"}

func listProgram(h *runtime.Heap) {
	var head runtime.Pointer
	h.PushFrame(listMainFrame, &head)
	defer h.PopFrame()

	for i := int64(1); i <= 10; i++ {
		n := h.Alloc(listNode.Size, listNode)
		h.StorePointer(n, head)
		h.StoreInt(n+8, i)
		head = n
	}

	var sum int64
	for p := head; p != 0; p = h.LoadPointer(p) {
		sum += h.LoadInt(p + 8)
	}
	printString(h, "sum = ")
	h.PrintI64(sum)
	h.Println()
	printString(h, "mean = ")
	h.PrintF64(float64(sum) / 10)
	h.Println()
}

const (
	minTreeDepth    = 4
	maxTreeDepth    = 10
	longLivedFactor = 4
)

var (
	treeMainFrame = &runtime.FrameMap{NumRoots: 2, Name: "yoru_main"}
	bottomUpFrame = &runtime.FrameMap{NumRoots: 2, Name: "bottomUpTree"}
)

func bottomUpTree(h *runtime.Heap, depth int) runtime.Pointer {
	var left, right runtime.Pointer
	h.PushFrame(bottomUpFrame, &left, &right)
	defer h.PopFrame()

	if depth > 0 {
		left = bottomUpTree(h, depth-1)
		right = bottomUpTree(h, depth-1)
	}
	t := h.Alloc(treeNode.Size, treeNode)
	h.StorePointer(t, left)
	h.StorePointer(t+8, right)
	h.StoreInt(t+16, int64(depth))
	return t
}

// itemCheck counts the nodes of a tree. It never allocates, so it needs no
// frame.
func itemCheck(h *runtime.Heap, t runtime.Pointer) int64 {
	left := h.LoadPointer(t)
	if left == 0 {
		return 1
	}
	return 1 + itemCheck(h, left) + itemCheck(h, h.LoadPointer(t+8))
}

func treeProgram(h *runtime.Heap) {
	var longLived, temp runtime.Pointer
	h.PushFrame(treeMainFrame, &longLived, &temp)
	defer h.PopFrame()

	longLived = bottomUpTree(h, maxTreeDepth)

	for depth := minTreeDepth; depth <= maxTreeDepth; depth += 2 {
		iterations := 1 << (maxTreeDepth - depth + longLivedFactor)
		var check int64
		for i := 0; i < iterations; i++ {
			temp = bottomUpTree(h, depth)
			check += itemCheck(h, temp)
		}
		temp = 0
		h.PrintI64(int64(iterations))
		printString(h, " trees of depth ")
		h.PrintI64(int64(depth))
		printString(h, " check: ")
		h.PrintI64(check)
		h.Println()
		h.GC()
	}

	printString(h, "long lived tree of depth ")
	h.PrintI64(int64(maxTreeDepth))
	printString(h, " check: ")
	h.PrintI64(itemCheck(h, longLived))
	h.Println()
}

var (
	cycleMainFrame = &runtime.FrameMap{NumRoots: 1, Name: "yoru_main"}
	makeRingFrame  = &runtime.FrameMap{NumRoots: 2, Name: "makeRing"}
)

// makeRing returns one node of a closed ring of n nodes.
func makeRing(h *runtime.Heap, n int) runtime.Pointer {
	var first, last runtime.Pointer
	h.PushFrame(makeRingFrame, &first, &last)
	defer h.PopFrame()

	first = h.Alloc(listNode.Size, listNode)
	last = first
	for i := 1; i < n; i++ {
		p := h.Alloc(listNode.Size, listNode)
		h.StorePointer(p, last)
		h.StoreInt(p+8, int64(i))
		last = p
	}
	h.StorePointer(first, last)
	return first
}

func cycleProgram(h *runtime.Heap) {
	var ring runtime.Pointer
	h.PushFrame(cycleMainFrame, &ring)
	defer h.PopFrame()

	for i := 0; i < 100; i++ {
		ring = makeRing(h, 10)
	}
	before := h.ReadStats()
	h.GC()
	after := h.ReadStats()

	printString(h, "freed ")
	h.PrintI64(int64(after.FreedCount - before.FreedCount))
	printString(h, " objects, ")
	h.PrintI64(int64(after.LiveObjects))
	printString(h, " live")
	h.Println()

	n := int64(0)
	p := ring
	for {
		n++
		p = h.LoadPointer(p)
		if p == ring {
			break
		}
	}
	printString(h, "ring length ")
	h.PrintI64(n)
	h.Println()
}

var churnMainFrame = &runtime.FrameMap{NumRoots: 2, Name: "yoru_main"}

func churnProgram(h *runtime.Heap) {
	var live, scratch runtime.Pointer
	h.PushFrame(churnMainFrame, &live, &scratch)
	defer h.PopFrame()

	for i := 0; i < 100; i++ {
		n := h.Alloc(listNode.Size, listNode)
		h.StorePointer(n, live)
		live = n
	}
	for i := 0; i < 50000; i++ {
		scratch = h.Alloc(64, nil)
		h.Bytes(scratch, 64)[0] = byte(i)
	}
	scratch = 0

	stats := h.ReadStats()
	printString(h, "allocations ")
	h.PrintI64(int64(stats.AllocCount))
	printString(h, ", collections ")
	h.PrintI64(int64(stats.GCCount))
	h.Println()
}

var boundsMainFrame = &runtime.FrameMap{NumRoots: 1, Name: "yoru_main"}

func boundsProgram(h *runtime.Heap) {
	const length = 5
	var arr runtime.Pointer
	h.PushFrame(boundsMainFrame, &arr)
	defer h.PopFrame()

	arr = h.Alloc(length*8, nil)
	for i := int64(0); i < length; i++ {
		h.StoreInt(arr+runtime.Pointer(8*i), i*i)
	}
	for i := int64(0); i <= length; i++ {
		h.BoundsCheck(i, length)
		h.PrintI64(h.LoadInt(arr + runtime.Pointer(8*i)))
		h.Println()
	}
}

var panicMainFrame = &runtime.FrameMap{Name: "yoru_main"}

func panicProgram(h *runtime.Heap) {
	h.PushFrame(panicMainFrame)
	defer h.PopFrame()

	h.PanicString(runtime.String("something went wrong"))
}

var oomMainFrame = &runtime.FrameMap{NumRoots: 1, Name: "yoru_main"}

func oomProgram(h *runtime.Heap) {
	var chain runtime.Pointer
	h.PushFrame(oomMainFrame, &chain)
	defer h.PopFrame()

	for {
		c := h.Alloc(chunk.Size, chunk)
		h.StorePointer(c, chain)
		chain = c
	}
}
