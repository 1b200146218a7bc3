package heap

// place installs an allocation of asize bytes into the free block bp,
// which must already have been removed from its free list. It returns
// the header offset of the block that ends up allocated, which may
// differ from bp when the large-request branch places the allocation at
// the high end of the donor block.
func (h *Heap) place(bp, asize int) int {
	csize := h.blockSize(bp)
	prevAlloc := h.isPrevAlloc(bp)

	if csize-asize < MinBlockSize {
		// No room for a splinter: the whole block becomes allocated.
		h.writeAllocated(bp, csize, prevAlloc)
		h.setPrevAlloc(bp+csize, true)
		return bp
	}

	if asize < SplitThreshold {
		// Small request: place at the low address, leaving the remainder
		// free at the high address. Clustering small allocations at low
		// addresses keeps larger free regions contiguous.
		h.writeAllocated(bp, asize, prevAlloc)

		remainder := bp + asize
		remSize := csize - asize
		h.writeFree(remainder, remSize, true)
		h.insertFreeBlock(remainder)
		h.setPrevAlloc(remainder+remSize, false)
		return bp
	}

	// Large request: place at the high address, leaving the remainder
	// free at the low address so it stays available for further small
	// requests.
	remSize := csize - asize
	h.writeFree(bp, remSize, prevAlloc)
	h.insertFreeBlock(bp)

	allocated := bp + remSize
	h.writeAllocated(allocated, asize, false)
	h.setPrevAlloc(allocated+asize, true)
	return allocated
}
