//go:build !heap_debug

package heap

import "unsafe"

// DebugMargin is zero outside heap_debug builds, so adjustedSize's
// rounding is unaffected and no space is reserved for a corruption
// margin.
const DebugMargin = 0

// writeMagicMargin no-ops outside heap_debug builds.
func writeMagicMargin(data unsafe.Pointer, offset int) {}

// validateMagicMargin always reports true outside heap_debug builds.
func validateMagicMargin(data unsafe.Pointer, offset int) bool { return true }

// Check is a debug-only invariant check. It no-ops in the default build:
// it is a debug instrument, not a correctness mechanism, so production
// builds pay nothing for it.
func (h *Heap) Check(lineno int) {}
