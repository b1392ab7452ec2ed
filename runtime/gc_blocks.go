package runtime

// The backing allocator hands out runs of fixed-size blocks from a single byte
// arena. It is the "underlying memory request" of the collector: it knows
// nothing about object graphs, it only allocates and frees ranges.
//
// Every allocation is rounded up to a whole number of blocks. The first block
// of an allocation is the "head", the following ones (if any) are "tails".
// The state of every block is kept in a metadata array next to the arena, 2
// bits per block, so that the extent of any allocation can be found from its
// first address alone.
//
// Free blocks are indexed by a list of free ranges that lives inside the free
// memory itself. The list is rebuilt from the block states after every
// collection, which also merges neighbouring ranges.
//
// The arena is reserved once, up to the configured maximum, and is grown in
// place by doubling the part that is in use. Addresses never change.

import (
	"encoding/binary"
	"io"
)

const (
	wordSize           = 8
	wordsPerBlock      = 4 // number of words in an allocated block
	bytesPerBlock      = wordsPerBlock * wordSize
	stateBits          = 2 // how many bits a block state takes (see blockState type)
	blocksPerStateByte = 8 / stateBits
)

// heapStart is the address of the first byte of the arena. Addresses below it
// are never valid, which keeps 0 free to mean nil.
const heapStart Pointer = 0x10000

// blockState stores the three states in which a block can be.
// It holds 1 bit in each nibble.
// When stored into a state byte, each bit in a nibble corresponds to a different block.
// For blocks A-D, a state byte would be laid out as 0bDCBA_DCBA.
type blockState uint8

const (
	blockStateLow  blockState = 1
	blockStateHigh blockState = 1 << blocksPerStateByte

	blockStateFree blockState = 0
	blockStateHead blockState = blockStateLow
	blockStateTail blockState = blockStateHigh
	blockStateMask blockState = blockStateLow | blockStateHigh
)

// blockStateEach is a mask that can be used to extract a nibble from the block state.
const blockStateEach = 1<<blocksPerStateByte - 1

// The block number in the arena.
type gcBlock uintptr

// blockFromAddr returns the block containing the given arena address.
func blockFromAddr(addr Pointer) gcBlock {
	return gcBlock((addr - heapStart) / bytesPerBlock)
}

// Return the address of the start of the block.
func (b gcBlock) address() Pointer {
	return heapStart + Pointer(b)*bytesPerBlock
}

// A free range starts with its length in blocks, the next range of a greater
// length, and the next range of the same length. Ranges on the inner
// (same-length) list only use the first word, as their next link.
const (
	rangeLenOffset         = 0
	rangeNextLenOffset     = 8
	rangeNextWithLenOffset = 16
	rangeMoreNextOffset    = 0
)

type arena struct {
	mem      []byte  // len is the heap in use, cap is the reservation
	limit    uintptr // the heap never grows past this, at most cap(mem)
	release  func() error
	metadata []byte // block states, blocksPerStateByte per byte
	endBlock gcBlock

	// freeRanges is the head of the outer free-range list, ordered by
	// increasing length.
	freeRanges Pointer

	mallocs    uint64
	frees      uint64
	totalAlloc uint64
}

// init reserves limit bytes and makes the first initial bytes usable.
func (a *arena) init(initial, limit uintptr) error {
	limit -= limit % bytesPerBlock
	if limit < bytesPerBlock*blocksPerStateByte {
		limit = bytesPerBlock * blocksPerStateByte
	}
	initial -= initial % bytesPerBlock
	if initial < bytesPerBlock*blocksPerStateByte {
		initial = bytesPerBlock * blocksPerStateByte
	}
	if initial > limit {
		initial = limit
	}
	mem, release, err := reserveArena(limit)
	if err != nil {
		return err
	}
	a.mem = mem[:initial]
	a.limit = limit
	a.release = release
	a.calculateHeapAddresses()
	a.buildFreeRanges()
	return nil
}

// destroy gives the reservation back. The arena is unusable afterwards.
func (a *arena) destroy() error {
	release := a.release
	*a = arena{}
	if release == nil {
		return nil
	}
	return release()
}

// calculateHeapAddresses updates endBlock and sizes the metadata after the
// usable part of the arena changed. New metadata is zero, i.e. free.
func (a *arena) calculateHeapAddresses() {
	a.endBlock = gcBlock(uintptr(len(a.mem)) / bytesPerBlock)
	metadataSize := int((a.endBlock + blocksPerStateByte - 1) / blocksPerStateByte)
	if metadataSize > len(a.metadata) {
		a.metadata = append(a.metadata, make([]byte, metadataSize-len(a.metadata))...)
	}
}

// grow doubles the usable part of the arena, up to the limit. It reports
// whether the heap grew at all.
func (a *arena) grow() bool {
	size := uintptr(len(a.mem))
	if size >= a.limit {
		return false
	}
	newSize := size * 2
	if newSize > a.limit {
		newSize = a.limit
	}
	a.mem = a.mem[:newSize]
	a.calculateHeapAddresses()

	// Rebuild the free ranges list so the new space joins the free range at
	// the old end of the heap, if there is one.
	a.buildFreeRanges()
	return true
}

// setLimit moves the growth limit, keeping it between the heap in use and the
// reservation. It returns the limit now in effect.
func (a *arena) setLimit(limit uintptr) uintptr {
	limit -= limit % bytesPerBlock
	if limit < uintptr(len(a.mem)) {
		limit = uintptr(len(a.mem))
	}
	if limit > uintptr(cap(a.mem)) {
		limit = uintptr(cap(a.mem))
	}
	a.limit = limit
	return limit
}

func (a *arena) isOnHeap(addr Pointer) bool {
	return addr >= heapStart && addr < heapStart+Pointer(len(a.mem))
}

// slice returns the n bytes of memory at addr.
func (a *arena) slice(addr Pointer, n uint64) []byte {
	off := uint64(addr - heapStart)
	return a.mem[off : off+n : off+n]
}

func (a *arena) load64(addr Pointer) uint64 {
	return binary.LittleEndian.Uint64(a.slice(addr, 8))
}

func (a *arena) store64(addr Pointer, v uint64) {
	binary.LittleEndian.PutUint64(a.slice(addr, 8), v)
}

func (a *arena) load32(addr Pointer) uint32 {
	return binary.LittleEndian.Uint32(a.slice(addr, 4))
}

func (a *arena) store32(addr Pointer, v uint32) {
	binary.LittleEndian.PutUint32(a.slice(addr, 4), v)
}

func (a *arena) stateByte(b gcBlock) byte {
	return a.metadata[b/blocksPerStateByte]
}

// Return the block state given a state byte. The state byte must have been
// obtained using a.stateByte(b), otherwise the result is incorrect.
func (b gcBlock) stateFromByte(stateByte byte) blockState {
	return blockState(stateByte>>(b%blocksPerStateByte)) & blockStateMask
}

// state returns the current block state.
func (a *arena) state(b gcBlock) blockState {
	return b.stateFromByte(a.stateByte(b))
}

// setState replaces the state of a block.
func (a *arena) setState(b gcBlock, newState blockState) {
	shift := b % blocksPerStateByte
	stateBytePtr := &a.metadata[b/blocksPerStateByte]
	*stateBytePtr = *stateBytePtr&^uint8(blockStateMask<<shift) | uint8(newState<<shift)
}

// findNext returns the first block just past the end of the tail. This may or
// may not be the head of an object.
func (a *arena) findNext(b gcBlock) gcBlock {
	if a.state(b) == blockStateHead {
		b++
	}
	for b < a.endBlock && a.state(b) == blockStateTail {
		b++
	}
	return b
}

// loadLink reads a link of the outer free-range list. The zero address
// stands for the list head.
func (a *arena) loadLink(at Pointer) Pointer {
	if at == 0 {
		return a.freeRanges
	}
	return Pointer(a.load64(at))
}

func (a *arena) storeLink(at, v Pointer) {
	if at == 0 {
		a.freeRanges = v
		return
	}
	a.store64(at, uint64(v))
}

func (a *arena) rangeLen(r Pointer) uintptr {
	return uintptr(a.load64(r + rangeLenOffset))
}

// insertFreeRange inserts a range of n blocks starting at ptr into the free list.
func (a *arena) insertFreeRange(ptr Pointer, n uintptr) {
	// Find the insertion point by length.
	// Skip until the next range is at least the target length.
	insDst := Pointer(0)
	for next := a.loadLink(insDst); next != 0 && a.rangeLen(next) < n; next = a.loadLink(insDst) {
		insDst = next + rangeNextLenOffset
	}

	next := a.loadLink(insDst)
	if next != 0 && a.rangeLen(next) == n {
		// Insert into the list with this length.
		a.store64(ptr+rangeMoreNextOffset, a.load64(next+rangeNextWithLenOffset))
		a.store64(next+rangeNextWithLenOffset, uint64(ptr))
	} else {
		// Insert into the list of lengths.
		a.store64(ptr+rangeLenOffset, uint64(n))
		a.store64(ptr+rangeNextLenOffset, uint64(next))
		a.store64(ptr+rangeNextWithLenOffset, 0)
		a.storeLink(insDst, ptr)
	}
}

// popFreeRange removes a range of n blocks from the free list.
// It returns 0 if there are no sufficiently long ranges.
func (a *arena) popFreeRange(n uintptr) Pointer {
	// Find the removal point by length.
	remDst := Pointer(0)
	for next := a.loadLink(remDst); next != 0 && a.rangeLen(next) < n; next = a.loadLink(remDst) {
		remDst = next + rangeNextLenOffset
	}

	rangeWithLength := a.loadLink(remDst)
	if rangeWithLength == 0 {
		// No ranges are long enough.
		return 0
	}
	removedLen := a.rangeLen(rangeWithLength)

	// Remove the range.
	var ptr Pointer
	if nextWithLen := Pointer(a.load64(rangeWithLength + rangeNextWithLenOffset)); nextWithLen != 0 {
		// Remove from the list with this length.
		a.store64(rangeWithLength+rangeNextWithLenOffset, a.load64(nextWithLen+rangeMoreNextOffset))
		ptr = nextWithLen
	} else {
		// Remove from the list of lengths.
		a.storeLink(remDst, Pointer(a.load64(rangeWithLength+rangeNextLenOffset)))
		ptr = rangeWithLength
	}

	if removedLen > n {
		// Insert the leftover range.
		a.insertFreeRange(ptr+Pointer(n*bytesPerBlock), removedLen-n)
	}
	return ptr
}

// alloc returns the address of size bytes of (not zeroed) memory, growing
// the heap if needed. It returns 0 if the request cannot be satisfied.
func (a *arena) alloc(size uint64) Pointer {
	// Round the size up to a multiple of blocks.
	rounded := size + bytesPerBlock - 1
	if rounded < size {
		// The size overflowed.
		return 0
	}
	neededBlocks := uintptr(rounded / bytesPerBlock)
	if neededBlocks == 0 {
		neededBlocks = 1
	}
	if uint64(neededBlocks)*bytesPerBlock > uint64(a.limit) {
		return 0
	}

	// Acquire a range of free blocks.
	var ptr Pointer
	for {
		ptr = a.popFreeRange(neededBlocks)
		if ptr != 0 {
			break
		}
		if !a.grow() {
			return 0
		}
	}

	// Set the backing blocks as being allocated.
	block := blockFromAddr(ptr)
	a.setState(block, blockStateHead)
	for i := block + 1; i != block+gcBlock(neededBlocks); i++ {
		a.setState(i, blockStateTail)
	}

	a.mallocs++
	a.totalAlloc += size
	return ptr
}

// free returns the allocation starting at ptr to the free list.
func (a *arena) free(ptr Pointer) {
	block := blockFromAddr(ptr)
	end := a.findNext(block)
	for b := block; b < end; b++ {
		a.setState(b, blockStateFree)
	}
	a.insertFreeRange(ptr, uintptr(end-block))
	a.frees++
}

// buildFreeRanges rebuilds the freeRanges list.
// This must be called after a sweep or heap grow.
// It returns how many bytes are free in the heap.
func (a *arena) buildFreeRanges() uintptr {
	a.freeRanges = 0
	block := a.endBlock
	var totalBlocks uintptr
	for {
		// Skip backwards over occupied blocks.
		for block > 0 && a.state(block-1) != blockStateFree {
			block--
		}
		if block == 0 {
			break
		}

		// Find the start of the free range.
		end := block
		for block > 0 && a.state(block-1) == blockStateFree {
			block--
		}

		// Insert the free range.
		n := uintptr(end - block)
		totalBlocks += n
		a.insertFreeRange(block.address(), n)
	}
	return totalBlocks * bytesPerBlock
}

// countBlocks returns the number of allocated head and tail blocks.
func (a *arena) countBlocks() (heads, tails uintptr) {
	metadataEnd := int((a.endBlock + blocksPerStateByte - 1) / blocksPerStateByte)
	for _, stateByte := range a.metadata[:metadataEnd] {
		// A bit in the low nibble implies a head.
		// A bit in the high nibble implies a tail.
		heads += uintptr(count4LUT[stateByte&blockStateEach])
		tails += uintptr(count4LUT[stateByte>>blocksPerStateByte])
	}
	return
}

// dumpHeap writes the state of each block: '*' for a head, '-' for a tail
// and '·' for a free block, 64 blocks per line.
func (a *arena) dumpHeap(w io.Writer) {
	line := make([]byte, 0, 64*2+1)
	for block := gcBlock(0); block < a.endBlock; block++ {
		switch a.state(block) {
		case blockStateHead:
			line = append(line, '*')
		case blockStateTail:
			line = append(line, '-')
		default: // free
			line = append(line, "·"...)
		}
		if block%64 == 63 || block+1 == a.endBlock {
			line = append(line, '\n')
			w.Write(line)
			line = line[:0]
		}
	}
}

// count4LUT is a lookup table used to count set bits in a 4-bit mask.
var count4LUT = [16]uint8{
	0b0000: 0,
	0b0001: 1,
	0b0010: 1,
	0b0011: 2,
	0b0100: 1,
	0b0101: 2,
	0b0110: 2,
	0b0111: 3,
	0b1000: 1,
	0b1001: 2,
	0b1010: 2,
	0b1011: 3,
	0b1100: 2,
	0b1101: 3,
	0b1110: 3,
	0b1111: 4,
}
