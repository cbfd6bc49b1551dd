package scm

import "fmt"

/*
	Exceptions are ordinary heap values (see Exception in object.go); this
	file is the machinery that turns a Go-level control-flow signal into
	one, and back. RAISE pops the innermost installed handler and calls it
	with the exception; when the handler chain is empty the context halts
	with Done set and Err holding the raised exception, its kind
	unchanged. Neither path touches the dynamic-wind stack.

	excTrampoline is not a user-visible exception kind: it is how a native
	procedure requests "call this procedure with these arguments, then
	return control to me" without the Go call stack growing, the same
	purpose RESUMECC's snapshot serves for continuations.
*/

// vmSignal is the Go-level control-transfer value the dispatch loop
// recognizes; it is never exposed to Scheme code.
type vmSignal struct {
	exc *Object
}

func (s *vmSignal) Error() string {
	e := s.exc.Payload.(*Exception)
	return fmt.Sprintf("%s: %s", e.Kind, schemeStringOf(e.Message))
}

func schemeStringOf(v Value) string {
	o := v.Obj()
	if o == nil || o.Tag != TagString {
		return ""
	}
	s := o.Payload.(*SchemeString)
	if s.Indirect != nil {
		return schemeStringOf(HeapValue(s.Indirect))[s.Offset : s.Offset+s.ByteLen]
	}
	return string(s.Bytes)
}

// NewException allocates an Exception object of the given kind through
// the runtime's normal allocation path, so OOM during error construction
// correctly degrades to the pre-allocated out-of-memory exception rather
// than recursing.
func (rt *Runtime) NewException(kind ExceptionKind, message string, irritants ...Value) Value {
	msg := rt.NewString(message)
	v := rt.AllocTagged(TagException, &Exception{Kind: kind, Message: msg, Irritants: irritants})
	if v.Tag() != TagException {
		return v // OOM fallback already an exception value
	}
	return v
}

// Raise is the RAISE opcode's implementation: walk the handler chain,
// innermost first, invoking each as a procedure call with the exception
// as its sole argument via the trampoline mechanism so the handler runs
// on the normal dispatch loop rather than recursive Go calls. If no
// handler remains the context halts with Done=true and Err set.
func (ctx *Context) Raise(excVal Value) *vmSignal {
	exc := excVal.Obj()
	if h, ok := ctx.CurrentHandler(); ok {
		ctx.PopHandler()
		return &vmSignal{exc: &Object{Header: Header{Tag: TagException}, Payload: &Exception{
			Kind: excTrampoline, TrampProc: h, TrampArgs: []Value{excVal},
		}}}
	}
	ctx.Done = true
	ctx.Err = exc
	return &vmSignal{exc: exc}
}

// unwindDynamicWind pops wind frames down to targetDepth and returns
// their After thunks, innermost first, without calling them.
// resumeContinuation is its only caller and discards the result.
func (ctx *Context) unwindDynamicWind(targetDepth int) []Value {
	var afters []Value
	for len(ctx.DynamicWind) > targetDepth {
		n := len(ctx.DynamicWind)
		afters = append(afters, ctx.DynamicWind[n-1].After)
		ctx.DynamicWind = ctx.DynamicWind[:n-1]
	}
	return afters
}
