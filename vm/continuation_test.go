package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCaptureContinuationSnapshotsStack verifies that capturing a
// continuation takes a deep copy: later mutation of the context's live
// stack must not be visible through the captured snapshot.
func TestCaptureContinuationSnapshotsStack(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	ctx.Push(Fixnum(1))
	ctx.Push(Fixnum(2))

	k := rt.captureContinuation(ctx)
	require.True(t, k.IsContinuation())
	kk := k.Obj().Payload.(*Continuation)
	require.Len(t, kk.Stack, 2)

	ctx.Push(Fixnum(3))
	ctx.Stack[0] = Fixnum(99)

	assert.Equal(t, int64(1), kk.Stack[0].Fixnum(), "snapshot must be unaffected by later mutation")
	assert.Len(t, kk.Stack, 2)
}

// TestResumeContinuationRestoresStackAndPushesValue is the direct,
// non-VM-driven form of the call/cc round trip: resuming a captured
// continuation must replace the context's stack wholesale with the
// snapshot and then push the resume value on top.
func TestResumeContinuationRestoresStackAndPushesValue(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	ctx.Push(Fixnum(1))
	ctx.Push(Fixnum(2))
	k := rt.captureContinuation(ctx)

	// Diverge the live stack after capture.
	ctx.Push(Fixnum(3))
	ctx.Push(Fixnum(4))
	ctx.Push(Fixnum(5))

	rt.resumeContinuation(ctx, k, Fixnum(42))

	require.Len(t, ctx.Stack, 3)
	assert.Equal(t, int64(1), ctx.Stack[0].Fixnum())
	assert.Equal(t, int64(2), ctx.Stack[1].Fixnum())
	assert.Equal(t, int64(42), ctx.Stack[2].Fixnum())
}

// TestResumeContinuationIsMultiShot asserts the documented re-entrant
// property: invoking the same captured continuation twice produces two
// independent, correct restorations rather than one corrupting the
// other.
func TestResumeContinuationIsMultiShot(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	ctx.Push(Fixnum(10))
	k := rt.captureContinuation(ctx)

	rt.resumeContinuation(ctx, k, Fixnum(1))
	require.Len(t, ctx.Stack, 2)
	assert.Equal(t, int64(1), ctx.Stack[1].Fixnum())

	// Mutate the now-live stack, then resume the SAME continuation again.
	ctx.Push(Fixnum(777))
	rt.resumeContinuation(ctx, k, Fixnum(2))

	require.Len(t, ctx.Stack, 2, "second resume must restore the original snapshot, not build on the first resume's stack")
	assert.Equal(t, int64(10), ctx.Stack[0].Fixnum())
	assert.Equal(t, int64(2), ctx.Stack[1].Fixnum())
}

// TestResumeContinuationUnwindsDynamicWindAfterThunks checks that
// resuming a continuation captured at a shallower dynamic-wind depth
// pops the wind frames entered since capture.
func TestResumeContinuationUnwindsDynamicWindAfterThunks(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	k := rt.captureContinuation(ctx)
	require.Empty(t, k.Obj().Payload.(*Continuation).DynamicWind)

	before := rt.Intern("before-thunk")
	after := rt.Intern("after-thunk")
	ctx.DynamicWind = append(ctx.DynamicWind, WindFrame{Before: before, After: after})
	require.Len(t, ctx.DynamicWind, 1)

	rt.resumeContinuation(ctx, k, Void)

	assert.Empty(t, ctx.DynamicWind, "resuming to a shallower snapshot must unwind wind frames entered after capture")
}

// TestResumeContinuationOnNonContinuationRaises exercises the type
// guard at the top of resumeContinuation.
func TestResumeContinuationOnNonContinuationRaises(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	rt.resumeContinuation(ctx, Fixnum(5), Void)

	require.True(t, ctx.Done)
	assert.Equal(t, ExcType, ctx.Err.Payload.(*Exception).Kind)
}

// TestDoCallResumesContinuationInsteadOfEnteringProcedure exercises
// doCall's continuation special case directly: calling a captured
// continuation as though it were an ordinary one-argument procedure
// resumes it rather than raising a type error.
func TestDoCallResumesContinuationInsteadOfEnteringProcedure(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	ctx.Push(Fixnum(1))
	k := rt.captureContinuation(ctx)

	// Mimic the CALL/TAIL_CALL convention: [proc, arg] with proc below arg.
	ctx.Push(k)
	ctx.Push(Fixnum(42))
	raised := rt.doCall(ctx, k, 1, false)

	require.False(t, raised)
	require.Len(t, ctx.Stack, 2)
	assert.Equal(t, int64(42), ctx.Stack[len(ctx.Stack)-1].Fixnum())
}
