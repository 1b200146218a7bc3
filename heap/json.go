package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// WriteJSON streams a diagnostic map of the heap's current state: total
// bytes, used bytes, allocation count, free region count, and a per-bin
// breakdown of how many free blocks each segregated list currently
// holds. It returns the finished bytes.
func (h *Heap) WriteJSON() ([]byte, error) {
	w := jwriter.NewWriter()

	stats := h.Statistics()

	obj := w.Object()
	obj.Name("TotalBytes").Int(stats.TotalBytes)
	obj.Name("AllocationBytes").Int(stats.AllocationBytes)
	obj.Name("AllocationCount").Int(stats.AllocationCount)
	obj.Name("FreeBytes").Int(stats.FreeBytes)
	obj.Name("FreeBlockCount").Int(stats.FreeBlockCount)

	bins := obj.Name("FreeListCounts").Array()
	for _, head := range h.freeList {
		count := 0
		for bp := head; bp != nullLink; bp = h.readLink(bp) {
			count++
		}
		bins.Int(count)
	}
	bins.End()

	obj.End()

	return w.Bytes(), w.Error()
}
