package scm

/*
	First-class continuations are implemented by full snapshot/restore of
	a Context's value stack, call-frame stack and dynamic-wind stack --
	the natural approach for an interpreter without a segmented or
	copyable native stack. CALLCC
	captures the current continuation as an ordinary heap value (tag
	TagContinuation) and hands it to the receiving procedure; applying
	that value later (as RESUMECC, or as an ordinary call in the CALL/
	TAIL_CALL path -- see doCall's special case) discards the invoking
	context's current stack and frames and replaces them wholesale with
	the snapshot, then pushes the resume value and continues execution
	at the saved IP.

	Because the snapshot is a deep copy, captured continuations are fully
	re-entrant: invoking the same continuation twice does not corrupt an
	earlier invocation's state, matching R7RS's multi-shot semantics.
*/

func (rt *Runtime) captureContinuation(ctx *Context) Value {
	stackCopy := make([]Value, len(ctx.Stack))
	copy(stackCopy, ctx.Stack)
	framesCopy := make([]Frame, len(ctx.Frames))
	copy(framesCopy, ctx.Frames)
	windCopy := make([]WindFrame, len(ctx.DynamicWind))
	copy(windCopy, ctx.DynamicWind)

	k := &Continuation{
		Stack: stackCopy, Frames: framesCopy, DynamicWind: windCopy,
		FP: ctx.FP, IP: ctx.IP, Code: ctx.Code, Proc: ctx.Proc,
	}
	return rt.AllocTagged(TagContinuation, k)
}

// resumeContinuation restores ctx to the state k captured, then pushes
// val as the result of the (now-resumed) call/cc expression. Any
// dynamic-wind frames deeper than k's snapshot are popped first, but
// their After thunks are not called; frames present in k but not
// currently active are restored without calling their Before thunks
// (see DESIGN.md).
func (rt *Runtime) resumeContinuation(ctx *Context, k Value, val Value) {
	if !k.IsContinuation() {
		rt.raiseInto(ctx, ExcType, "continuation application: not a continuation")
		return
	}
	kk := k.Obj().Payload.(*Continuation)

	ctx.unwindDynamicWind(len(kk.DynamicWind))

	ctx.Stack = append([]Value(nil), kk.Stack...)
	ctx.Frames = append([]Frame(nil), kk.Frames...)
	ctx.DynamicWind = append([]WindFrame(nil), kk.DynamicWind...)
	ctx.FP = kk.FP
	ctx.IP = kk.IP
	ctx.Code = kk.Code
	ctx.Proc = kk.Proc
	ctx.Push(val)
}
