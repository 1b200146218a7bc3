//go:build heap_debug

package heap

import (
	"fmt"
	"unsafe"
)

// DebugMargin is the number of bytes of magic-value padding placed
// immediately after every allocation's requested bytes, inside the slack
// adjustedSize already rounds up to. A caller that writes past what it
// asked for corrupts this margin before it can reach a neighbouring
// block's header.
const DebugMargin = 16

// corruptionMagicValue is the 4-byte pattern written across DebugMargin
// bytes past an allocation's requested size.
const corruptionMagicValue uint32 = 0x7F84E666

// writeMagicMargin writes corruptionMagicValue across DebugMargin bytes
// starting offset bytes past data.
func writeMagicMargin(data unsafe.Pointer, offset int) {
	dest := unsafe.Add(data, offset)
	words := DebugMargin / WordSize
	for i := 0; i < words; i++ {
		*(*uint32)(dest) = corruptionMagicValue
		dest = unsafe.Add(dest, WordSize)
	}
}

// validateMagicMargin reports whether the margin written by
// writeMagicMargin at offset bytes past data is still intact.
func validateMagicMargin(data unsafe.Pointer, offset int) bool {
	src := unsafe.Add(data, offset)
	words := DebugMargin / WordSize
	for i := 0; i < words; i++ {
		if *(*uint32)(src) != corruptionMagicValue {
			return false
		}
		src = unsafe.Add(src, WordSize)
	}
	return true
}

// Check runs Validate, then confirms every live allocation's corruption
// margin is untouched, aborting the process with a descriptive diagnostic
// naming the call site if any invariant fails. Build with the heap_debug
// tag to enable it: this is a debug instrument, never a correctness
// mechanism a production build can rely on.
func (h *Heap) Check(lineno int) {
	if err := h.Validate(); err != nil {
		panic(fmt.Sprintf("heap: invariant violation at line %d: %v", lineno, err))
	}

	h.live.Iter(func(ptr uintptr, n int) (stop bool) {
		if !validateMagicMargin(unsafe.Pointer(ptr), n) {
			panic(fmt.Sprintf("heap: corruption margin overwritten at line %d for a %d-byte allocation", lineno, n))
		}
		return false
	})
}
