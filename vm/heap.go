package scm

import "sync"

/*
	Heap is a linked list of chunks, each a fixed-capacity arena of object
	slots with its own free list, adapted from "a block of raw bytes sized
	to a granularity" to "a slice of *Object slots" since Go objects are
	already self-describing and the host runtime, not us, owns their
	physical storage (see DESIGN.md's note on the arena-of-pointers
	adaptation for cyclic heap graphs).

	Allocation is first-fit across the chunks in order; when every chunk is
	full a new chunk is grown (up to maxChunks). Only when growth is
	refused is a collection triggered, followed by one more attempt; a
	collection never runs while the heap can still grow. If that attempt
	also fails the pre-allocated out-of-memory exception is returned --
	never constructed on the spot, since constructing it would itself
	allocate and recurse.
*/

const (
	defaultChunkSlots = 4096
	defaultMaxChunks  = 256
)

type chunk struct {
	slots    []*Object
	free     []int // indices of unused slots, LIFO
	nextFree int    // high-water mark before the free list is exhausted
}

func newChunk(slots int) *chunk {
	return &chunk{slots: make([]*Object, slots)}
}

func (c *chunk) allocSlot() (int, bool) {
	if n := len(c.free); n > 0 {
		idx := c.free[n-1]
		c.free = c.free[:n-1]
		return idx, true
	}
	if c.nextFree < len(c.slots) {
		idx := c.nextFree
		c.nextFree++
		return idx, true
	}
	return 0, false
}

func (c *chunk) release(idx int) {
	c.slots[idx] = nil
	c.free = append(c.free, idx)
}

type Heap struct {
	mu         sync.Mutex
	chunks     []*chunk
	chunkSlots int
	maxChunks  int
	liveCount  int
	oomExc     Value
	stackExc   Value
	types      *typeRegistry
}

func NewHeap() *Heap {
	h := &Heap{chunkSlots: defaultChunkSlots, maxChunks: defaultMaxChunks, types: newTypeRegistry()}
	h.chunks = append(h.chunks, newChunk(h.chunkSlots))
	h.oomExc = h.preallocateException(ExcOutOfMemory, "out of memory")
	h.stackExc = h.preallocateException(ExcOutOfStack, "out of stack")
	return h
}

// preallocateException builds an exception object directly, bypassing
// alloc_tagged, precisely because the OOM and out-of-stack exceptions
// must exist before we know allocation still works.
func (h *Heap) preallocateException(kind ExceptionKind, msg string) Value {
	obj := &Object{Header: Header{Tag: TagException, Immutable: true}, Payload: &Exception{
		Kind: kind, Message: internedMessage(msg),
	}}
	return HeapValue(obj)
}

func internedMessage(s string) Value {
	obj := &Object{Header: Header{Tag: TagString, Immutable: true}, Payload: &SchemeString{Bytes: []byte(s), ByteLen: len(s)}}
	return HeapValue(obj)
}

// Alloc implements alloc_tagged(ctx, tag): it either returns a zeroed
// object with the header set and payload installed, or -- after a GC
// retry still fails -- the pre-allocated OOM exception. gc is the
// collector callback the context supplies so the heap doesn't need to
// import the scheduler/context machinery itself.
func (h *Heap) Alloc(tag Tag, payload any, gc func()) Value {
	if v, ok := h.tryAlloc(tag, payload); ok {
		return v
	}
	if gc != nil {
		gc()
	}
	if v, ok := h.tryAlloc(tag, payload); ok {
		return v
	}
	return h.oomExc
}

func (h *Heap) tryAlloc(tag Tag, payload any) (Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ci, c := range h.chunks {
		if idx, ok := c.allocSlot(); ok {
			obj := &Object{Header: Header{Tag: tag}, Payload: payload}
			c.slots[idx] = obj
			obj.slotIdx = idx
			obj.chunkIdx = ci
			h.liveCount++
			return HeapValue(obj), true
		}
	}

	if len(h.chunks) >= h.maxChunks {
		return Value{}, false
	}

	nc := newChunk(h.chunkSlots)
	h.chunks = append(h.chunks, nc)
	ci := len(h.chunks) - 1
	idx, _ := nc.allocSlot()
	obj := &Object{Header: Header{Tag: tag}, Payload: payload}
	nc.slots[idx] = obj
	obj.slotIdx = idx
	obj.chunkIdx = ci
	h.liveCount++
	return HeapValue(obj), true
}

func (h *Heap) OutOfMemory() Value  { return h.oomExc }
func (h *Heap) OutOfStack() Value   { return h.stackExc }
func (h *Heap) LiveObjects() int    { return h.liveCount }
func (h *Heap) Types() *typeRegistry { return h.types }

// forEachObject walks every occupied slot across every chunk, in chunk
// order then slot order, for sweep and for walking the heap in tests.
// Finalizer execution order during sweep follows this same order, a
// choice documented (but not otherwise load-bearing) in DESIGN.md.
func (h *Heap) forEachObject(fn func(o *Object)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.chunks {
		for _, o := range c.slots {
			if o != nil {
				fn(o)
			}
		}
	}
}

// free returns an object's slot to its chunk's free list. Called only by
// the collector during sweep, with the object already unmarked and any
// finalizer already run.
func (h *Heap) free(o *Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.chunks {
		if o.slotIdx < len(c.slots) && c.slots[o.slotIdx] == o {
			c.release(o.slotIdx)
			o.Freed = true
			h.liveCount--
			return
		}
	}
}
