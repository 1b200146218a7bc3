package heap

import "github.com/pkg/errors"

// Validate walks the heap once, checking every universal invariant:
// header/footer agreement, absence of adjacent free blocks, prevAlloc bit
// consistency, and free-list bookkeeping agreeing with a fresh
// block-chain walk. It is always compiled in (unlike Check) because the
// cost of a single pass is proportional to the block count, not to some
// larger fixed overhead, and callers may reasonably want to assert heap
// health outside of a heap_debug build.
func (h *Heap) Validate() error {
	prologue := h.firstBlockPredecessor()
	if !h.isAlloc(prologue) || !h.isPrevAlloc(prologue) {
		return errors.New("heap: prologue is not intact")
	}

	epilogue := h.epilogueOffset()
	if h.blockSize(epilogue) != 0 || !h.isAlloc(epilogue) {
		return errors.New("heap: epilogue is not intact")
	}

	walkedFree := 0
	walkedFreeBytes := 0
	prevWasFree := false

	for bp := prologue + prologueSize; bp != epilogue; bp = h.nextBlock(bp) {
		size := h.blockSize(bp)
		if size < MinBlockSize {
			return errors.Errorf("heap: block at %d has size %d, below the minimum block size", bp, size)
		}
		if size%DWordSize != 0 {
			return errors.Errorf("heap: block at %d has unaligned size %d", bp, size)
		}

		free := !h.isAlloc(bp)
		if free {
			if h.header(bp) != h.footer(bp) {
				return errors.Errorf("heap: block at %d has mismatched header and footer", bp)
			}
			if prevWasFree {
				return errors.Errorf("heap: block at %d is free and immediately follows another free block", bp)
			}
			walkedFree++
			walkedFreeBytes += size
		}

		next := h.nextBlock(bp)
		if h.isPrevAlloc(next) == free {
			return errors.Errorf("heap: block at %d disagrees with its successor's prevAlloc bit", bp)
		}

		prevWasFree = free
	}

	listFree, listFreeBytes, err := h.walkFreeLists()
	if err != nil {
		return err
	}

	if listFree != walkedFree {
		return errors.Errorf("heap: free-list walk found %d blocks but the block-chain walk found %d", listFree, walkedFree)
	}
	if listFreeBytes != walkedFreeBytes {
		return errors.Errorf("heap: free-list walk found %d free bytes but the block-chain walk found %d", listFreeBytes, walkedFreeBytes)
	}
	if listFree != h.blocksFreeCount {
		return errors.Errorf("heap: tracked free-block count %d disagrees with the free-list walk's %d", h.blocksFreeCount, listFree)
	}
	if listFreeBytes != h.blocksFreeBytes {
		return errors.Errorf("heap: tracked free-byte count %d disagrees with the free-list walk's %d", h.blocksFreeBytes, listFreeBytes)
	}
	if h.live.Count() != h.allocCount {
		return errors.Errorf("heap: live-allocation table has %d entries but allocCount is %d", h.live.Count(), h.allocCount)
	}

	return nil
}

// walkFreeLists confirms every listed block lies in range, is marked
// free, and obeys its bin's size constraint.
func (h *Heap) walkFreeLists() (count, bytes int, err error) {
	lo, hi := h.firstBlockPredecessor()+prologueSize, h.epilogueOffset()

	for bin, head := range h.freeList {
		for bp := head; bp != nullLink; bp = h.readLink(bp) {
			if bp < lo || bp >= hi {
				return 0, 0, errors.Errorf("heap: free list %d contains block at %d, outside heap bounds", bin, bp)
			}
			if h.isAlloc(bp) {
				return 0, 0, errors.Errorf("heap: free list %d contains block at %d, which is marked allocated", bin, bp)
			}
			if got := classifyBin(h.blockSize(bp)); got != bin {
				return 0, 0, errors.Errorf("heap: block at %d has size %d, which belongs in list %d, not list %d", bp, h.blockSize(bp), got, bin)
			}
			count++
			bytes += h.blockSize(bp)
		}
	}

	return count, bytes, nil
}

// firstBlockPredecessor returns the header offset of the prologue block.
func (h *Heap) firstBlockPredecessor() int {
	return h.prim.Lo() + paddingSize
}
