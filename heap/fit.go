package heap

// findFit implements a first-fit search over the segregated free lists.
// Bin upper bounds are not guarantees of minimum block size within a bin
// (a block sits in the bin keyed by its own size, and a request may need
// a larger block than the bin's nominal upper bound implies), so every
// candidate's size is checked against asize regardless of which bin it
// came from. The scan deliberately falls through empty or exhausted bins
// all the way to L15 rather than stopping at the first bin whose range
// matches asize.
func (h *Heap) findFit(asize int) (bp int, bin int, ok bool) {
	start := classifyBin(asize)
	for b := start; b < NumLists; b++ {
		for cur := h.freeList[b]; cur != nullLink; cur = h.readLink(cur) {
			if h.blockSize(cur) >= asize {
				return cur, b, true
			}
		}
	}
	return 0, 0, false
}
