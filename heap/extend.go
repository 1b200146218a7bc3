package heap

import "golang.org/x/exp/slog"

// extend grows the heap by at least minBytes, rounded up to preserve
// double-word alignment. The new region is installed as a single free
// block whose header overwrites what was the old epilogue, coalesced
// with the previous tail block if it was free, and returns the offset of
// the resulting free block.
func (h *Heap) extend(minBytes int) (int, error) {
	size := roundUp8(minBytes)
	if size < MinBlockSize {
		size = MinBlockSize
	}

	epilogue := h.epilogueOffset()

	newBase, err := h.prim.Break(size)
	if err != nil {
		return 0, err
	}
	if newBase != epilogue+HeaderSize {
		// The heap primitive is expected to hand back exactly the byte
		// following the current epilogue header; anything else means the
		// bookkeeping in this package and the primitive have diverged.
		panic("heap: extend received a break offset that does not abut the epilogue")
	}

	oldEpiloguePrevAlloc := h.isPrevAlloc(epilogue)

	// The new block's header lands where the old epilogue used to be.
	h.writeFree(epilogue, size, oldEpiloguePrevAlloc)

	newEpilogue := epilogue + size
	h.writeAllocated(newEpilogue, 0, false)

	free := h.coalesce(epilogue)
	h.logger.Debug("heap extended", slog.Int("offset", free), slog.Int("requestedBytes", minBytes), slog.Int("committedBytes", size))
	return free, nil
}

// epilogueOffset returns the header offset of the always-present,
// zero-sized epilogue sentinel: the last four bytes the heap primitive
// has committed.
func (h *Heap) epilogueOffset() int {
	return h.prim.Hi() + 1 - HeaderSize
}
