package scm

import (
	"time"
	"unsafe"
)

/*
	GC implements a precise, non-moving, mark-and-sweep collector: enumerate
	roots, mark transitively through each object's MarkChildren closure,
	resolve ephemerons to a fixed
	point (an ephemeron's value is kept alive only once its key is marked
	by some other path), clear dead weak slots, then sweep every chunk
	freeing anything left unmarked -- running each freed object's
	Finalizer first, in chunk/slot discovery order (see heap.go).

	A collection is triggered either by Heap.Alloc once the heap is full
	and may not grow another chunk, or explicitly via GC.Collect.
*/
type GC struct {
	rt *Runtime

	cycles    int
	lastFreed int
	lastLive  int

	// GCStats gates the per-cycle accounting log line; off by default so
	// a hot allocation path doesn't pay for string formatting nobody reads.
	GCStats bool
}

func NewGC(rt *Runtime) *GC {
	return &GC{rt: rt}
}

// Collect runs one full mark-sweep cycle and returns the number of
// objects freed.
func (gc *GC) Collect() int {
	start := time.Now()
	heap := gc.rt.Heap

	heap.forEachObject(func(o *Object) { o.Marked = false })

	var ephemerons []*Object
	mark := func(v Value) {
		gc.markValue(v, &ephemerons)
	}
	gc.rt.markGlobalRoots(mark)

	gc.resolveEphemerons(ephemerons)

	freed := gc.sweep()

	gc.cycles++
	gc.lastFreed = freed
	gc.lastLive = heap.LiveObjects()

	if gc.GCStats && gc.rt.Log != nil {
		bytes := freed * int(unsafe.Sizeof(Object{}))
		gc.rt.Log.Noticef("gc: cycle %d freed %d objects (%d bytes), %d live, %s",
			gc.cycles, freed, bytes, gc.lastLive, time.Since(start))
	}
	return freed
}

// markValue marks o and recurses through MarkChildren, collecting any
// ephemeron encountered along the way instead of tracing through it
// directly -- an ephemeron's value must not keep its own key alive.
func (gc *GC) markValue(v Value, ephemerons *[]*Object) {
	o := v.Obj()
	if o == nil || o.Marked {
		return
	}
	o.Marked = true

	if o.Tag == TagEphemeron {
		*ephemerons = append(*ephemerons, o)
		return
	}

	desc := gc.rt.Heap.Types().Lookup(o.Tag)
	if desc == nil || desc.MarkChildren == nil {
		return
	}
	desc.MarkChildren(o, func(child Value) { gc.markValue(child, ephemerons) })
}

// resolveEphemerons runs a fixed-point loop: repeatedly scan pending
// ephemerons, and for any whose key is
// already marked, mark its value too (which may itself be another
// ephemeron's key). Stop when a full pass marks nothing new.
func (gc *GC) resolveEphemerons(pending []*Object) {
	for {
		progressed := false
		var stillPending []*Object
		for _, eo := range pending {
			e := eo.Payload.(*Ephemeron)
			if keyObj := e.Key.Obj(); keyObj == nil || keyObj.Marked {
				var nested []*Object
				gc.markValue(e.Val, &nested)
				if len(nested) > 0 {
					pending = append(pending, nested...)
				}
				progressed = true
				continue
			}
			stillPending = append(stillPending, eo)
		}
		pending = stillPending
		if !progressed || len(pending) == 0 {
			break
		}
	}
	// Any ephemeron whose key never got marked is dead weight; its Val
	// slot is cleared so the value itself can be swept if otherwise
	// unreachable.
	for _, eo := range pending {
		e := eo.Payload.(*Ephemeron)
		e.Val = False
	}
}

// sweep clears any weak slot pointing at an unmarked object, runs
// finalizers on unmarked objects, and returns their slots to the heap's
// free lists.
func (gc *GC) sweep() int {
	heap := gc.rt.Heap
	types := heap.Types()

	heap.forEachObject(func(o *Object) {
		if !o.Marked {
			return
		}
		desc := types.Lookup(o.Tag)
		if desc == nil || desc.WeakSlots == nil {
			return
		}
		for _, slot := range desc.WeakSlots(o) {
			if target := slot.Obj(); target != nil && !target.Marked {
				*slot = False
			}
		}
	})

	var dead []*Object
	heap.forEachObject(func(o *Object) {
		if !o.Marked {
			dead = append(dead, o)
		}
	})

	for _, o := range dead {
		if desc := types.Lookup(o.Tag); desc != nil && desc.Finalizer != nil {
			desc.Finalizer(o)
		}
		heap.free(o)
	}
	return len(dead)
}

func (gc *GC) Cycles() int    { return gc.cycles }
func (gc *GC) LastFreed() int { return gc.lastFreed }
func (gc *GC) LastLive() int  { return gc.lastLive }

// collectForAlloc is the callback Heap.Alloc invokes when the heap is
// full and may not grow; AllocTagged passes it on every call.
func (gc *GC) collectForAlloc() { gc.Collect() }

// AllocTagged is the runtime-level entry point every VM allocation opcode
// calls; it wires GC.Collect in as the heap's retry hook.
func (rt *Runtime) AllocTagged(tag Tag, payload any) Value {
	if rt.allocStats != nil {
		rt.allocStats.record(3)
	}
	return rt.Heap.Alloc(tag, payload, rt.GC.collectForAlloc)
}
