package scm

import "fmt"

/*
	doCall implements the calling convention both CALL and TAIL_CALL share:
	check arity, splice a variadic rest-list if needed, then either push a
	new Frame (CALL) or reuse the current one in place (TAIL_CALL, so a
	properly tail-recursive Scheme loop never grows ctx.Frames). The
	procedure sits on the stack just below its nargs arguments
	(Peek(nargs) in vm.go); the arguments become the new frame's locals,
	and the procedure slot stays below them at FP-1 until RET drops it.
*/
func (rt *Runtime) doCall(ctx *Context, proc Value, nargs int, tail bool) (raised bool) {
	if proc.IsContinuation() {
		args := make([]Value, nargs)
		for i := nargs - 1; i >= 0; i-- {
			args[i] = ctx.Pop()
		}
		ctx.Pop() // drop the procedure slot CALL/TAIL_CALL left under the args
		val := Void
		if len(args) > 0 {
			val = args[len(args)-1]
		}
		rt.resumeContinuation(ctx, proc, val)
		return false
	}
	if !proc.IsProcedure() {
		rt.raiseInto(ctx, ExcType, "call: not a procedure")
		return true
	}
	p := proc.Obj().Payload.(*Procedure)
	codeObj := p.Code.Obj()
	if codeObj == nil || codeObj.Tag != TagBytecode {
		rt.raiseInto(ctx, ExcType, "call: procedure has no code")
		return true
	}
	bc := codeObj.Payload.(*Bytecode)

	if err := rt.checkArity(bc, p, nargs); err != nil {
		rt.raiseInto(ctx, ExcArity, err.Error())
		return true
	}
	rt.spliceRest(ctx, bc, nargs)

	// The locals are the fixed arguments plus the spliced rest list, or
	// every argument as passed when no rest list was built.
	nlocals := nargs
	if bc.Variadic && !bc.UnusedRest {
		nlocals = bc.NumArgs + 1
	}
	argsBase := ctx.StackLen() - nlocals - 1 // index of the procedure slot below the args
	if tail && len(ctx.Frames) > 0 {
		// Reuse the current frame: shift the new args down over the old
		// frame's locals and shrink the stack, so depth never grows. The
		// procedure slot sits at ctx.FP-1 for the lifetime of any frame
		// (see below), so that's where the new proc+args land too.
		dest := ctx.FP - 1
		newArgs := ctx.Stack[argsBase : argsBase+nlocals+1]
		copy(ctx.Stack[dest:], newArgs)
		ctx.Stack = ctx.Stack[:dest+nlocals+1]
	} else {
		fr := Frame{PrevFP: ctx.FP, SavedIP: ctx.IP, SavedCode: ctx.Code, SavedProc: ctx.Proc}
		ctx.Frames = append(ctx.Frames, fr)
		// FP points one past the procedure slot, so LOCAL_REF 0 reaches the
		// first argument; RET truncates back through FP-1 to drop the
		// procedure slot too.
		ctx.FP = argsBase + 1
	}
	ctx.Proc = proc
	ctx.Code = codeObj
	ctx.IP = 0
	return false
}

func (rt *Runtime) checkArity(bc *Bytecode, p *Procedure, nargs int) error {
	if bc.Variadic {
		if nargs < bc.NumArgs {
			return fmt.Errorf("%s: expected at least %d arguments, got %d", p.Name, bc.NumArgs, nargs)
		}
		return nil
	}
	if nargs != bc.NumArgs {
		return fmt.Errorf("%s: expected %d arguments, got %d", p.Name, bc.NumArgs, nargs)
	}
	return nil
}

// spliceRest folds trailing arguments beyond NumArgs into a single
// rest-list local, the variadic calling convention's one structural
// change to an otherwise fixed-arity frame layout.
func (rt *Runtime) spliceRest(ctx *Context, bc *Bytecode, nargs int) {
	if !bc.Variadic || bc.UnusedRest {
		return
	}
	extra := nargs - bc.NumArgs
	if extra < 0 {
		extra = 0
	}
	rest := make([]Value, extra)
	for i := extra - 1; i >= 0; i-- {
		rest[i] = ctx.Pop()
	}
	ctx.Push(rt.ListFromSlice(rest))
}

// invokeTrampoline turns the Raise()-produced signal into an actual call
// on the dispatch loop: it pushes the handler and its argument, then
// calls doCall directly rather than re-entering Run, so RAISE behaves
// like an ordinary non-tail call from the handler's perspective.
func (rt *Runtime) invokeTrampoline(ctx *Context, sig *vmSignal) {
	e := sig.exc.Payload.(*Exception)
	ctx.Push(e.TrampProc)
	for _, a := range e.TrampArgs {
		ctx.Push(a)
	}
	rt.doCall(ctx, e.TrampProc, len(e.TrampArgs), false)
}

// NativeFunc is the signature every FCALL-reachable primitive must
// implement: it receives the runtime, the calling context (for raising
// exceptions or reading ports), and its arguments, already popped off
// the stack in argument order.
type NativeFunc func(rt *Runtime, ctx *Context, args []Value) (Value, error)

var nativeTable []NativeFunc
var nativeNames = map[string]nativeID{}

// RegisterNative appends a primitive to the FCALL dispatch table and
// returns the slot FCALLN (or a fixed FCALL0..4) should reference. Call
// this during runtime setup, before any bytecode referencing the name is
// assembled.
func RegisterNative(name string, fn NativeFunc) nativeID {
	id := nativeID(len(nativeTable))
	nativeTable = append(nativeTable, fn)
	nativeNames[name] = id
	return id
}

// LookupNative resolves a primitive name to the slot the assembler
// should encode as an FCALL's immediate operand.
func LookupNative(name string) (nativeID, bool) {
	id, ok := nativeNames[name]
	return id, ok
}

func (rt *Runtime) callNative(ctx *Context, id nativeID, args []Value) (Value, error) {
	if int(id) < 0 || int(id) >= len(nativeTable) {
		return Value{}, fmt.Errorf("fcall: unknown native id %d", id)
	}
	return nativeTable[id](rt, ctx, args)
}

func (rt *Runtime) forcePromise(ctx *Context, v Value) Value {
	if !v.IsPromise() {
		return v
	}
	pr := v.Obj().Payload.(*Promise)
	if pr.Done {
		return pr.Value
	}
	// Forcing a promise re-enters the dispatch loop on the thunk's own
	// bytecode; a full re-entrant force (one that can itself block or
	// yield) is out of scope, so this drives the thunk to completion
	// synchronously on a scratch context sharing the same globals.
	sub := NewContext(ctx.Global)
	sub.Proc = pr.Thunk
	p := pr.Thunk.Obj().Payload.(*Procedure)
	sub.Code = p.Code.Obj()
	result, _ := rt.Run(sub)
	if result == StepFinished {
		pr.Value = sub.Result
		pr.Done = true
	}
	return pr.Value
}
