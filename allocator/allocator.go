// Package allocator wraps heap.Heap with a mutex, giving callers a
// concurrency-safe malloc/free/realloc/calloc surface over a single
// growable arena. Locking lives here rather than inside heap.Heap itself,
// keeping the segregated-fit block index single-threaded and pushing
// synchronization out to the layer that owns the public API.
package allocator

import (
	"unsafe"

	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/segfit/segfit/heap"
	"github.com/segfit/segfit/sbrk"
)

// DefaultCapacity is the size of the backing region reserved when no
// CreateOptions.Capacity is given: 64MiB, leaving room for the heap to
// extend many times beyond its initial chunk before the region is
// exhausted.
const DefaultCapacity = 64 * 1024 * 1024

// CreateOptions configures a new Allocator. It is valid to leave every
// field at its zero value.
type CreateOptions struct {
	// Capacity is the maximum number of bytes the underlying region may
	// ever grow to. Zero selects DefaultCapacity.
	Capacity int

	// Logger receives structured debug events for every alloc, free and
	// heap extension. A nil Logger disables logging.
	Logger *slog.Logger
}

// Allocator is a mutex-serialized malloc/free/realloc/calloc surface over
// a single heap.Heap. The zero value is not usable; construct one with
// New.
type Allocator struct {
	mu sync.Mutex
	h  *heap.Heap
}

// New reserves a region of the requested capacity, lays out the heap
// skeleton and returns a ready-to-use Allocator.
func New(options CreateOptions) (*Allocator, error) {
	capacity := options.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 0 {
		return nil, errors.Newf("allocator: negative capacity %d", capacity)
	}

	region := sbrk.NewRegion(capacity)
	h := heap.New(region, options.Logger)
	if err := h.Init(); err != nil {
		return nil, errors.Wrap(err, "allocator: failed to initialize heap")
	}

	return &Allocator{h: h}, nil
}

// Alloc returns a pointer to at least n writable bytes, or nil if n<=0 or
// the allocator has exhausted its region's capacity.
func (a *Allocator) Alloc(n int) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.Alloc(n)
}

// Free returns ptr's backing block to the free list. It is a no-op if
// ptr is nil, and panics if ptr was not returned by this Allocator.
func (a *Allocator) Free(ptr unsafe.Pointer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.h.Free(ptr)
}

// Realloc resizes the allocation at ptr to n bytes. See heap.Heap.Realloc
// for the nil/zero edge cases.
func (a *Allocator) Realloc(ptr unsafe.Pointer, n int) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.Realloc(ptr, n)
}

// Zalloc allocates nmemb*size zeroed bytes, following calloc's contract.
func (a *Allocator) Zalloc(nmemb, size int) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.Zalloc(nmemb, size)
}

// Check validates every invariant the heap is expected to maintain and
// returns the first violation found, if any. It is safe to call at any
// time but walks the entire block chain, so callers should reserve it
// for tests and diagnostics rather than the hot path.
func (a *Allocator) Check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.Validate()
}

// Statistics returns a coarse snapshot of the allocator's occupancy.
func (a *Allocator) Statistics() heap.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.Statistics()
}

// DetailedStatistics additionally walks every block to compute size
// extrema; see heap.Heap.DetailedStatistics.
func (a *Allocator) DetailedStatistics() heap.DetailedStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.DetailedStatistics()
}

// WriteJSON streams a diagnostic snapshot of the allocator's current
// state; see heap.Heap.WriteJSON.
func (a *Allocator) WriteJSON() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.WriteJSON()
}
