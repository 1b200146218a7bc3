package heap

import "encoding/binary"

// Every block is addressed by the byte offset of its header within the
// primitive's committed region. Blocks never move once created except by
// being absorbed into a neighbour during coalescing.

// packHeader folds size, prevAlloc and alloc into a single 32-bit word.
// Since every block size is a multiple of 8, its low 3 bits are always
// zero, so the alloc bits can be OR'd directly into the size field
// without a shift.
func packHeader(size int, prevAlloc, alloc bool) uint32 {
	word := uint32(size)
	if prevAlloc {
		word |= 1 << 2
	}
	if alloc {
		word |= 1
	}
	return word
}

func headerSize(word uint32) int      { return int(word &^ 0x7) }
func headerPrevAlloc(word uint32) bool { return word&(1<<2) != 0 }
func headerAlloc(word uint32) bool     { return word&1 != 0 }

func (h *Heap) readWord(offset int) uint32 {
	buf := h.prim.Bytes()
	return binary.LittleEndian.Uint32(buf[offset : offset+4])
}

func (h *Heap) writeWord(offset int, word uint32) {
	buf := h.prim.Bytes()
	binary.LittleEndian.PutUint32(buf[offset:offset+4], word)
}

func (h *Heap) header(bp int) uint32 { return h.readWord(bp) }
func (h *Heap) footer(bp int) uint32 { return h.readWord(bp + headerSize(h.readWord(bp)) - FooterSize) }

func (h *Heap) blockSize(bp int) int     { return headerSize(h.readWord(bp)) }
func (h *Heap) isAlloc(bp int) bool      { return headerAlloc(h.readWord(bp)) }
func (h *Heap) isPrevAlloc(bp int) bool  { return headerPrevAlloc(h.readWord(bp)) }

// writeFree writes matching header and footer for a free block of the
// given size and prevAlloc bit at bp. Free blocks always carry a footer;
// allocated blocks never do.
func (h *Heap) writeFree(bp, size int, prevAlloc bool) {
	word := packHeader(size, prevAlloc, false)
	h.writeWord(bp, word)
	h.writeWord(bp+size-FooterSize, word)
}

// writeAllocated writes only a header for an allocated block; its last
// word is left untouched for the caller's payload.
func (h *Heap) writeAllocated(bp, size int, prevAlloc bool) {
	h.writeWord(bp, packHeader(size, prevAlloc, true))
}

// setPrevAlloc rewrites the prevAlloc bit of the block at bp without
// disturbing its size or its own alloc state, keeping header and footer
// (if any) in agreement.
func (h *Heap) setPrevAlloc(bp int, prevAlloc bool) {
	word := h.readWord(bp)
	size := headerSize(word)
	alloc := headerAlloc(word)
	newWord := packHeader(size, prevAlloc, alloc)
	h.writeWord(bp, newWord)
	if !alloc {
		h.writeWord(bp+size-FooterSize, newWord)
	}
}

// nextBlock returns the header offset of the block immediately following
// bp in address order. It may be the epilogue.
func (h *Heap) nextBlock(bp int) int {
	return bp + h.blockSize(bp)
}

// prevBlock returns the header offset of the block immediately preceding
// bp in address order. Only valid when bp's prevAlloc bit is false: the
// predecessor's footer only exists when the predecessor is free.
func (h *Heap) prevBlock(bp int) int {
	prevFooter := h.readWord(bp - FooterSize)
	prevSize := headerSize(prevFooter)
	return bp - prevSize
}

// payloadOffset returns the byte offset of the first payload byte of the
// block at bp.
func payloadOffset(bp int) int { return bp + HeaderSize }

// blockFromPayload recovers a block's header offset from its payload
// offset.
func blockFromPayload(payload int) int { return payload - HeaderSize }
