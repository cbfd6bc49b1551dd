package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGCPreservesReachableFreesUnreachable is the core GC liveness
// property: anything reachable from a root survives a cycle, anything
// not reachable from any root is freed.
func TestGCPreservesReachableFreesUnreachable(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	kept := rt.NewPair(Fixnum(1), Null)
	ctx.Push(kept)

	_ = rt.NewPair(Fixnum(2), Null) // unreachable once this call returns

	rt.GC.Collect()

	assert.False(t, kept.Obj().Freed)
	found := false
	rt.Heap.forEachObject(func(o *Object) {
		if o == kept.Obj() {
			found = true
		}
	})
	assert.True(t, found)
}

func TestGCFreesGarbageAfterPop(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	garbage := rt.NewPair(Fixnum(99), Null)
	ctx.Push(garbage)
	ctx.Pop() // no longer reachable from the stack

	rt.GC.Collect()

	assert.True(t, garbage.Obj().Freed)
}

func TestGCPreserveReleaseProtectsValue(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	v := rt.NewPair(Fixnum(7), Null)
	f := ctx.Preserve(v)
	rt.GC.Collect()
	assert.False(t, v.Obj().Freed, "a preserved value must survive a collection")

	ctx.Release(f)
	rt.GC.Collect()
	assert.True(t, v.Obj().Freed, "once released with no other root, the value should be collected")
}

// TestPreserveReleaseLIFOInvariant is the "preserve/release root protocol"
// testable property: releasing out of LIFO order must panic.
func TestPreserveReleaseLIFOInvariant(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	f1 := ctx.Preserve(Fixnum(1))
	f2 := ctx.Preserve(Fixnum(2))

	assert.Panics(t, func() {
		ctx.Release(f1) // f2 is on top; releasing f1 first violates LIFO
	})

	ctx.Release(f2)
	ctx.Release(f1)
}

func TestGCEphemeronDropsValueWhenKeyUnreachable(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	key := rt.NewPair(Fixnum(1), Null)
	val := rt.NewPair(Fixnum(2), Null)
	eph := rt.AllocTagged(TagEphemeron, &Ephemeron{Key: key, Val: val})
	ctx.Push(eph) // the ephemeron itself is reachable, its key is not

	rt.GC.Collect()

	require.False(t, eph.Obj().Freed)
	e := eph.Obj().Payload.(*Ephemeron)
	assert.True(t, e.Val.IsBool() && !e.Val.IsTruthy(), "ephemeron value should be cleared once its key is dead")
}

func TestGCEphemeronKeepsValueWhenKeyReachable(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	key := rt.NewPair(Fixnum(1), Null)
	val := rt.NewPair(Fixnum(2), Null)
	eph := rt.AllocTagged(TagEphemeron, &Ephemeron{Key: key, Val: val})
	ctx.Push(eph)
	ctx.Push(key) // key kept alive through an independent root

	rt.GC.Collect()

	e := eph.Obj().Payload.(*Ephemeron)
	assert.False(t, val.Obj().Freed)
	assert.True(t, Eqv(e.Val, val))
}

func TestGCStatsFlagDefaultsOff(t *testing.T) {
	rt := NewRuntime()
	assert.False(t, rt.GC.GCStats, "GC accounting logs must be opt-in, not emitted on every cycle by default")
}

func TestGCCollectReportsAccountingRegardlessOfStatsFlag(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()
	ctx.Push(rt.NewPair(Fixnum(1), Null))

	before := rt.GC.Cycles()
	rt.GC.Collect()
	assert.Equal(t, before+1, rt.GC.Cycles())
	assert.GreaterOrEqual(t, rt.GC.LastLive(), 1)
}

func TestGCMillionPairsLiveness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large allocation test in short mode")
	}
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	const n = 1_000_000
	head := Null
	for i := 0; i < n; i++ {
		head = rt.NewPair(Fixnum(int64(i)), head)
	}
	ctx.Push(head)

	rt.GC.Collect()

	count := 0
	cur := head
	for !cur.IsNull() {
		count++
		cur = cur.Obj().Payload.(*Pair).Cdr
	}
	assert.Equal(t, n, count)
}
