package heap

import "math"

// Statistics is a coarse summary of a heap's occupancy.
type Statistics struct {
	AllocationCount int
	AllocationBytes int
	FreeBlockCount  int
	FreeBytes       int
	TotalBytes      int
}

// DetailedStatistics additionally tracks the min/max size seen among
// allocations and free ranges.
type DetailedStatistics struct {
	Statistics
	AllocationSizeMin int
	AllocationSizeMax int
	FreeSizeMin       int
	FreeSizeMax       int
}

// Statistics summarizes the current heap occupancy.
func (h *Heap) Statistics() Statistics {
	return Statistics{
		AllocationCount: h.allocCount,
		AllocationBytes: h.committedBytes() - h.blocksFreeBytes,
		FreeBlockCount:  h.blocksFreeCount,
		FreeBytes:       h.blocksFreeBytes,
		TotalBytes:      h.committedBytes(),
	}
}

// DetailedStatistics summarizes the current heap occupancy, additionally
// walking every block to compute size extrema. It is more expensive than
// Statistics and intended for diagnostics, not the hot path.
func (h *Heap) DetailedStatistics() DetailedStatistics {
	stats := DetailedStatistics{
		Statistics:        h.Statistics(),
		AllocationSizeMin: math.MaxInt,
		FreeSizeMin:       math.MaxInt,
	}

	_ = h.VisitBlocks(func(offset, size int, free bool) error {
		if free {
			if size < stats.FreeSizeMin {
				stats.FreeSizeMin = size
			}
			if size > stats.FreeSizeMax {
				stats.FreeSizeMax = size
			}
		} else {
			if size < stats.AllocationSizeMin {
				stats.AllocationSizeMin = size
			}
			if size > stats.AllocationSizeMax {
				stats.AllocationSizeMax = size
			}
		}
		return nil
	})

	return stats
}

func (h *Heap) committedBytes() int {
	return h.prim.Hi() + 1 - h.firstBlockPredecessor() - prologueSize - HeaderSize
}

// VisitBlocks calls handleBlock once for each block between the prologue
// and the epilogue, in address order. Depending on heap size this can be
// slow and is intended for diagnostics.
func (h *Heap) VisitBlocks(handleBlock func(offset, size int, free bool) error) error {
	epilogue := h.epilogueOffset()
	for bp := h.firstBlockPredecessor() + prologueSize; bp != epilogue; bp = h.nextBlock(bp) {
		if err := handleBlock(bp, h.blockSize(bp), !h.isAlloc(bp)); err != nil {
			return err
		}
	}
	return nil
}
