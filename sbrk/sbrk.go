// Package sbrk implements the heap-extension primitive that the segfit
// allocator treats as an external collaborator: a single, monotonically
// growing byte region standing in for a process break.
//
// A Region reserves a fixed-capacity backing array up front, the way a host
// operating system reserves a contiguous virtual address range without
// committing it. Break advances monotonically inside that reservation.
// Because the backing array is never reallocated, every address handed out
// by Break remains valid for the lifetime of the Region — a plain
// append-growable []byte could not make that guarantee, since append may
// relocate the underlying array and invalidate every pointer the allocator
// has already returned to its callers.
package sbrk

import "github.com/pkg/errors"

// ErrOutOfMemory is returned by Break when growing the region would exceed
// its reserved capacity.
var ErrOutOfMemory = errors.New("sbrk: address space exhausted")

// Region is a fixed-capacity byte range with a monotonically increasing
// break pointer, standing in for the sbrk(2)/brk(2) family of primitives.
//
// Region is not safe for concurrent use; callers that need concurrency
// safety should serialize access the way allocator.Allocator does.
type Region struct {
	buf   []byte
	brk   int
	limit int
}

// NewRegion reserves a Region with the given maximum capacity in bytes.
// No memory beyond the initial break is considered part of the heap until
// Break is called.
func NewRegion(capacity int) *Region {
	if capacity < 0 {
		capacity = 0
	}
	return &Region{
		buf:   make([]byte, capacity),
		brk:   0,
		limit: capacity,
	}
}

// Break extends the region by n bytes and returns the offset of the first
// new byte, mirroring sbrk(2)'s "return the old break" contract. It returns
// ErrOutOfMemory, and leaves the region unchanged, if growing by n would
// exceed the reserved capacity. n must not be negative.
func (r *Region) Break(n int) (int, error) {
	if n < 0 {
		return 0, errors.Errorf("sbrk: negative increment %d", n)
	}
	if r.brk+n > r.limit {
		return 0, ErrOutOfMemory
	}

	old := r.brk
	r.brk += n
	return old, nil
}

// Lo returns the lowest valid offset in the region, inclusive. The region is
// empty (Lo() > Hi()) until the first successful Break.
func (r *Region) Lo() int {
	return 0
}

// Hi returns the highest valid offset in the region, inclusive of the last
// byte that has been committed via Break.
func (r *Region) Hi() int {
	return r.brk - 1
}

// Cap returns the total reserved capacity of the region, regardless of how
// much of it has been committed via Break.
func (r *Region) Cap() int {
	return r.limit
}

// Bytes returns the committed portion of the region as a slice. The slice
// aliases the region's backing array: writes through it are writes to heap
// memory, and the slice must not be retained past the region's lifetime or
// treated as append-safe (its capacity is fixed at reservation time).
func (r *Region) Bytes() []byte {
	return r.buf[:r.brk]
}

// Contains reports whether offset lies within the committed region.
func (r *Region) Contains(offset int) bool {
	return offset >= r.Lo() && offset <= r.Hi()
}
