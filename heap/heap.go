package heap

import (
	"math"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// ErrOutOfMemory is returned when the heap primitive refuses to grow far
// enough to satisfy a request. The heap remains consistent and every
// prior allocation is untouched.
var ErrOutOfMemory = errors.New("heap: out of memory")

// Primitive is the external heap-extension collaborator: a monotonically
// growing address range plus its inclusive bounds. *sbrk.Region satisfies
// this interface, but the heap package depends only on the interface so
// the block allocator and free-list index stay decoupled from how
// address space is actually reserved.
type Primitive interface {
	// Break extends the region by n bytes and returns the offset of the
	// first new byte, or an error if the region cannot grow that far.
	Break(n int) (int, error)
	// Lo returns the lowest committed offset, inclusive.
	Lo() int
	// Hi returns the highest committed offset, inclusive.
	Hi() int
	// Bytes returns the committed region as a slice over stable backing
	// storage: the slice's length may grow between calls, but a given
	// index's address never changes once committed.
	Bytes() []byte
}

// Heap is a segregated-fit block allocator over a single Primitive. It is
// not safe for concurrent use; see the allocator package for a
// mutex-serialized wrapper.
type Heap struct {
	prim   Primitive
	logger *slog.Logger

	freeList [NumLists]int

	allocCount      int
	blocksFreeCount int
	blocksFreeBytes int

	// live maps a payload address to its requested (pre-rounding) size.
	// It is kept in every build: Free uses it to reject a pointer that
	// was never returned by this heap instead of corrupting a
	// neighbouring block, and Validate/Check use it to confirm the
	// allocation count agrees with the addresses actually handed to
	// callers.
	live *swiss.Map[uintptr, int]
}

// New creates a Heap bound to the given primitive. Call Init before using
// it. A nil logger disables logging.
func New(prim Primitive, logger *slog.Logger) *Heap {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}))
	}

	h := &Heap{
		prim:   prim,
		logger: logger,
		live:   swiss.NewMap[uintptr, int](64),
	}
	for i := range h.freeList {
		h.freeList[i] = nullLink
	}
	return h
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Init lays out the heap skeleton (padding word, prologue, epilogue) and
// installs the first free block. It returns an error if the primitive
// cannot supply the initial reservation.
func (h *Heap) Init() error {
	base, err := h.prim.Break(paddingSize + prologueSize + HeaderSize)
	if err != nil {
		return errors.Wrap(err, "heap: failed to reserve initial skeleton")
	}

	// Alignment padding word.
	h.writeWord(base, 0)

	prologue := base + paddingSize
	h.writeAllocated(prologue, prologueSize, true)
	h.writeWord(prologue+prologueSize-FooterSize, packHeader(prologueSize, true, true))

	epilogue := prologue + prologueSize
	h.writeAllocated(epilogue, 0, true)

	if _, err := h.extend(ChunkSize); err != nil {
		return errors.Wrap(err, "heap: failed to install initial free block")
	}

	h.logger.Debug("heap initialized", slog.Int("chunkBytes", ChunkSize))
	return nil
}

// Alloc returns a pointer to at least n writable bytes, or nil if n<=0 or
// the heap is out of memory.
func (h *Heap) Alloc(n int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}

	asize := adjustedSize(n)

	bp, bin, ok := h.findFit(asize)
	if !ok {
		if _, err := h.extend(maxInt(asize, ChunkSize)); err != nil {
			h.logger.Debug("heap out of memory", slog.Int("requestedSize", n), slog.Int("adjustedSize", asize))
			return nil
		}
		bp, bin, ok = h.findFit(asize)
		if !ok {
			// The extension succeeded but somehow didn't yield a fit;
			// treat this defensively as out-of-memory rather than panic.
			return nil
		}
	}

	h.removeFreeBlock(bp)
	allocated := h.place(bp, asize)
	h.allocCount++

	ptr := h.offsetToPtr(payloadOffset(allocated))
	h.live.Put(uintptr(ptr), n)
	writeMagicMargin(ptr, n)

	h.logger.Debug("alloc", slog.Int("bin", bin), slog.Int("offset", payloadOffset(allocated)), slog.Int("requestedSize", n), slog.Int("blockSize", asize))
	return ptr
}

// Free returns the block backing ptr to the free-block index. It is a
// no-op if ptr is nil.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	requestedSize, ok := h.live.Get(uintptr(ptr))
	if !ok {
		panic("heap: free of a pointer that was not returned by this heap")
	}
	if !validateMagicMargin(ptr, requestedSize) {
		panic("heap: corruption margin overwritten past the end of an allocation")
	}
	h.live.Delete(uintptr(ptr))

	bp := blockFromPayload(h.ptrToOffset(ptr))
	size := h.blockSize(bp)
	prevAlloc := h.isPrevAlloc(bp)

	h.writeFree(bp, size, prevAlloc)
	h.setPrevAlloc(bp+size, false)
	h.coalesce(bp)

	h.allocCount--
	h.logger.Debug("free", slog.Int("offset", payloadOffset(bp)), slog.Int("blockSize", size))
}

// Realloc resizes the allocation at ptr to n bytes, copying the smaller
// of the old and new sizes' worth of payload. realloc(nil, n) behaves
// like Alloc(n); realloc(ptr, 0) frees ptr and returns nil.
func (h *Heap) Realloc(ptr unsafe.Pointer, n int) unsafe.Pointer {
	if n == 0 {
		h.Free(ptr)
		return nil
	}
	if ptr == nil {
		return h.Alloc(n)
	}

	bp := blockFromPayload(h.ptrToOffset(ptr))
	oldPayloadBytes := h.blockSize(bp) - HeaderSize

	newPtr := h.Alloc(n)
	if newPtr == nil {
		return nil
	}

	copyLen := oldPayloadBytes
	if n < copyLen {
		copyLen = n
	}
	src := h.prim.Bytes()[h.ptrToOffset(ptr) : h.ptrToOffset(ptr)+copyLen]
	dst := h.prim.Bytes()[h.ptrToOffset(newPtr) : h.ptrToOffset(newPtr)+copyLen]
	copy(dst, src)

	h.Free(ptr)
	return newPtr
}

// Zalloc allocates space for nmemb objects of size bytes each and zeroes
// it, following calloc's contract. It rejects (returns nil for) an
// nmemb*size product that would overflow int, and never touches memory
// if the underlying Alloc call fails.
func (h *Heap) Zalloc(nmemb, size int) unsafe.Pointer {
	if nmemb < 0 || size < 0 {
		return nil
	}
	if nmemb == 0 || size == 0 {
		return h.Alloc(0)
	}
	if nmemb > math.MaxInt/size {
		return nil
	}

	total := nmemb * size
	ptr := h.Alloc(total)
	if ptr == nil {
		return nil
	}

	buf := h.prim.Bytes()
	off := h.ptrToOffset(ptr)
	for i := off; i < off+total; i++ {
		buf[i] = 0
	}
	return ptr
}

func (h *Heap) offsetToPtr(offset int) unsafe.Pointer {
	return unsafe.Pointer(&h.prim.Bytes()[offset])
}

func (h *Heap) ptrToOffset(ptr unsafe.Pointer) int {
	base := unsafe.Pointer(&h.prim.Bytes()[0])
	return int(uintptr(ptr) - uintptr(base))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// AllocationCount returns the number of live allocations.
func (h *Heap) AllocationCount() int { return h.allocCount }

// SumFreeSize returns the total number of bytes across every free block.
func (h *Heap) SumFreeSize() int { return h.blocksFreeBytes }

// FreeRegionsCount returns the number of distinct free blocks.
func (h *Heap) FreeRegionsCount() int { return h.blocksFreeCount }
