package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCallCCRoundTrip is the canonical call/cc scenario:
// (call/cc (lambda (k) (k 42))) must evaluate to 42, restoring the
// captured continuation's stack exactly at the point of capture.
func TestCallCCRoundTrip(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	// The receiving lambda: (k 42), an ordinary call on its sole argument
	// -- doCall's continuation special case resumes k instead of entering
	// a bytecode body.
	inner, err := Assemble("k-body", "local_ref 0\npush 0\ncall 1\nret\n")
	require.NoError(t, err)
	inner.NumArgs = 1
	inner.Literals = []Value{Fixnum(42)}
	proc := rt.NewProcedure(rt.NewBytecodeObj(inner), nil, ProcNone, 1, "k-body")

	outer, err := Assemble("outer", "push 0\ncallcc\nret\n")
	require.NoError(t, err)
	outer.Literals = []Value{proc}

	ctx.Code = rt.NewBytecodeObj(outer).Obj()
	ctx.Proc = Undefined
	result, _ := rt.Run(ctx)
	require.Equal(t, StepFinished, result)
	assert.Equal(t, int64(42), ctx.Result.Fixnum())
}

// TestTailCallDoesNotGrowFrames checks the tail-call non-growth property:
// a self tail-recursive loop of a large number of iterations must never
// add to ctx.Frames.
func TestTailCallDoesNotGrowFrames(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	// loop(n): if n == 0 then n else loop(n - 1), compiled by hand as a
	// tail self-call.
	bc, err := Assemble("loop", `
	local_ref 0
	push 0
	eqn
	jump_unless body
	local_ref 0
	ret
body:
	push 2
	local_ref 0
	push 1
	sub
	tail_call 1
`)
	require.NoError(t, err)
	bc.NumArgs = 1
	bc.Literals = []Value{Fixnum(0), Fixnum(1), Value{}}

	proc := rt.NewProcedure(rt.NewBytecodeObj(bc), nil, ProcNone, 1, "loop")
	bc.Literals[2] = proc

	ctx.Push(proc)
	ctx.Push(Fixnum(1000000))
	raised := rt.doCall(ctx, proc, 1, false)
	require.False(t, raised)

	for {
		res, _ := rt.Run(ctx)
		if res == StepFinished {
			break
		}
		if res == StepYielded {
			continue
		}
		t.Fatalf("unexpected step result %v", res)
	}

	assert.Equal(t, int64(0), ctx.Result.Fixnum())
	assert.Empty(t, ctx.Frames, "a tail-recursive loop must never grow the frame stack")
}

func TestVMArithmeticAndComparisonOpcodes(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	bc, err := Assemble("arith", "push 0\npush 1\nadd\nret\n")
	require.NoError(t, err)
	bc.Literals = []Value{Fixnum(10), Fixnum(32)}
	ctx.Code = rt.NewBytecodeObj(bc).Obj()
	ctx.Proc = Undefined

	result, _ := rt.Run(ctx)
	require.Equal(t, StepFinished, result)
	assert.Equal(t, int64(42), ctx.Result.Fixnum())
}

func TestVMConsCarCdr(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	bc, err := Assemble("cons", "push 0\npush 1\ncons\ncar\nret\n")
	require.NoError(t, err)
	bc.Literals = []Value{Fixnum(1), Fixnum(2)}
	ctx.Code = rt.NewBytecodeObj(bc).Obj()
	ctx.Proc = Undefined

	result, _ := rt.Run(ctx)
	require.Equal(t, StepFinished, result)
	assert.Equal(t, int64(1), ctx.Result.Fixnum())
}

func TestVMUnboundGlobalRaises(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	bc, err := Assemble("g", "global_ref 0\nret\n")
	require.NoError(t, err)
	bc.Literals = []Value{rt.Intern("undefined-name")}
	ctx.Code = rt.NewBytecodeObj(bc).Obj()
	ctx.Proc = Undefined

	result, _ := rt.Run(ctx)
	assert.Equal(t, StepRaised, result)
	assert.True(t, ctx.Done)
	assert.Equal(t, ExcUncaught, ctx.Err.Payload.(*Exception).Kind)
}

// TestStringPortLineCounting is a line-counter scenario: reading past
// newlines on a source string port must advance Port.Line.
func TestStringPortLineCounting(t *testing.T) {
	p := NewStringInputPort("test", "a\nb\nc")
	assert.Equal(t, 1, p.Line)
	for i := 0; i < 2; i++ {
		_, err := p.ReadChar()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, p.Line, "reading past the first newline should advance Line")
	for i := 0; i < 2; i++ {
		_, err := p.ReadChar()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, p.Line)
}
