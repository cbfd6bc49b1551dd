package scm

import (
	"os"

	"github.com/google/uuid"
)

/*
	Context is the first-class execution state of one green thread: a
	value stack, an instruction
	pointer, the procedure currently executing, links to a parent and to
	sibling contexts spawned from it, a saved-root chain for the
	preserve/release protocol, and the dynamic-wind stack. The collector
	walks a context through markRoots; a context keeps no mark stack of
	its own.

	Every context carries a stable ID (google/uuid) purely for diagnostics
	(the scheduler's log lines name it); it plays no role in identity or
	equality.
*/
type Context struct {
	ID uuid.UUID

	Global *Object // environment, the global bindings table

	Stack []Value
	FP    int // frame pointer into Stack for the active call
	IP    int
	Code  *Object // current Bytecode object, or nil at toplevel

	Proc Value // current Procedure value, or Undefined at toplevel

	// Frames is the call-frame stack: one entry per active (non-tail)
	// call, recording exactly what the calling convention says a frame
	// must -- the previous frame pointer, the saved instruction pointer,
	// and the saved procedure/code to resume into on RET. Tail calls
	// reuse the top frame instead of pushing a new one.
	Frames []Frame

	Parent   *Context
	Children []*Context

	// DynamicWind is the stack of (before, after) thunk pairs currently
	// active, copied by call/cc on capture and restored on resume (see
	// continuation.go for which thunks run).
	DynamicWind []WindFrame

	// savedRoots is the LIFO chain the preserve/release protocol pushes
	// and pops onto. Each frame additionally protects a slice of Values
	// so a native-call boundary can keep otherwise-stack-invisible
	// temporaries alive across an allocation that might trigger GC.
	savedRoots []*rootFrame

	handlers []Value // exception-handler chain, innermost last

	refuel int // scheduler preemption checkpoint counter, see scheduler.go

	Done   bool
	Result Value
	Err    *Object // exception object, if Done and the run ended abnormally

	// SingleStep, when true, makes Run return StepYielded after exactly
	// one instruction -- the debug REPL's stepping primitive.
	SingleStep bool

	// modulePath and ignoreSystemPath are seeded once from the
	// CHIBI_MODULE_PATH / CHIBI_IGNORE_SYSTEM_PATH environment variables.
	// Nothing in this runtime resolves module names against them -- a
	// surface-syntax loader is out of scope -- but an embedder inspecting
	// a Context can still read back what the environment asked for.
	modulePath       string
	ignoreSystemPath bool
}

// ModulePath returns the module search path this context was seeded
// with (CHIBI_MODULE_PATH at construction time), and whether the system
// path should be ignored (CHIBI_IGNORE_SYSTEM_PATH).
func (ctx *Context) ModulePath() (path string, ignoreSystemPath bool) {
	return ctx.modulePath, ctx.ignoreSystemPath
}

type WindFrame struct {
	Before, After Value
}

// Frame is one call-frame as the calling convention defines it: enough
// to resume the caller exactly where TAIL_CALL/CALL left off.
type Frame struct {
	PrevFP int
	SavedIP   int
	SavedCode *Object
	SavedProc Value
}

type rootFrame struct {
	values []Value
}

func NewContext(global *Object) *Context {
	id, _ := uuid.NewRandom()
	_, ignoreSystemPath := os.LookupEnv("CHIBI_IGNORE_SYSTEM_PATH")
	return &Context{
		ID:               id,
		Global:           global,
		Stack:            make([]Value, 0, 256),
		Proc:             Undefined,
		refuel:           defaultRefuel,
		modulePath:       os.Getenv("CHIBI_MODULE_PATH"),
		ignoreSystemPath: ignoreSystemPath,
	}
}

// Preserve pushes a new root frame protecting vs from collection until
// the matching Release. Frames must be released in LIFO order; this is
// the "preserve/release root protocol" invariant the testable properties
// section checks directly.
func (ctx *Context) Preserve(vs ...Value) *rootFrame {
	f := &rootFrame{values: vs}
	ctx.savedRoots = append(ctx.savedRoots, f)
	return f
}

// Release pops the most recently preserved frame. Panics if f is not the
// top of the chain, since that signals a LIFO violation in the caller.
func (ctx *Context) Release(f *rootFrame) {
	n := len(ctx.savedRoots)
	if n == 0 || ctx.savedRoots[n-1] != f {
		panic("scm: Release called out of LIFO order")
	}
	ctx.savedRoots = ctx.savedRoots[:n-1]
}

// PushHandler/PopHandler maintain the exception-handler chain RAISE
// consults, innermost handler last.
func (ctx *Context) PushHandler(h Value) { ctx.handlers = append(ctx.handlers, h) }
func (ctx *Context) PopHandler() Value {
	n := len(ctx.handlers)
	if n == 0 {
		return Undefined
	}
	h := ctx.handlers[n-1]
	ctx.handlers = ctx.handlers[:n-1]
	return h
}
func (ctx *Context) CurrentHandler() (Value, bool) {
	n := len(ctx.handlers)
	if n == 0 {
		return Undefined, false
	}
	return ctx.handlers[n-1], true
}

// markRoots visits every Value this context keeps alive: the value
// stack, the current procedure and code object, the procedure and code
// saved in each call frame, the saved-root chain, the handler chain, the
// dynamic-wind stack, and recursively every child
// context spawned from this one (a green thread's context tree is itself
// a root set, per the process-wide preservation rules).
func (ctx *Context) markRoots(visit func(Value)) {
	for _, v := range ctx.Stack {
		visit(v)
	}
	visit(ctx.Proc)
	if ctx.Code != nil {
		visit(HeapValue(ctx.Code))
	}
	if ctx.Global != nil {
		visit(HeapValue(ctx.Global))
	}
	for _, fr := range ctx.Frames {
		visit(fr.SavedProc)
		if fr.SavedCode != nil {
			visit(HeapValue(fr.SavedCode))
		}
	}
	for _, f := range ctx.savedRoots {
		for _, v := range f.values {
			visit(v)
		}
	}
	for _, h := range ctx.handlers {
		visit(h)
	}
	for _, w := range ctx.DynamicWind {
		visit(w.Before)
		visit(w.After)
	}
	if !ctx.Err.IsNilObj() {
		visit(HeapValue(ctx.Err))
	}
	for _, c := range ctx.Children {
		c.markRoots(visit)
	}
}

// IsNilObj exists because *Object is a plain nil-able pointer; this
// helper keeps markRoots free of a raw nil check scattered inline.
func (o *Object) IsNilObj() bool { return o == nil }

// Push/Pop/Peek implement the value stack the bytecode VM operates on
// directly -- CALL, RET, and every arithmetic opcode push and pop here.
func (ctx *Context) Push(v Value) { ctx.Stack = append(ctx.Stack, v) }

func (ctx *Context) Pop() Value {
	n := len(ctx.Stack)
	v := ctx.Stack[n-1]
	ctx.Stack = ctx.Stack[:n-1]
	return v
}

func (ctx *Context) Peek(depth int) Value {
	return ctx.Stack[len(ctx.Stack)-1-depth]
}

func (ctx *Context) StackLen() int { return len(ctx.Stack) }

const defaultRefuel = 10000

// Refuel is consumed by the scheduler at each cooperative checkpoint
// (CALL/TAILCALL/loop-back jumps); when it reaches zero the running
// context yields back to the scheduler even without blocking I/O.
func (ctx *Context) Refuel() int     { return ctx.refuel }
func (ctx *Context) SetRefuel(n int) { ctx.refuel = n }
func (ctx *Context) ConsumeRefuel() bool {
	ctx.refuel--
	return ctx.refuel <= 0
}
