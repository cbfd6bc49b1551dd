package scm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeGensymProducesDistinctUninternedSymbols(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	a, err := rt.CallBuiltin(ctx, "gensym", nil)
	require.NoError(t, err)
	b, err := rt.CallBuiltin(ctx, "gensym", nil)
	require.NoError(t, err)

	require.True(t, a.IsSymbol())
	require.True(t, b.IsSymbol())
	assert.NotEqual(t, a.Obj(), b.Obj())
	assert.True(t, strings.HasPrefix(a.Obj().Payload.(*Symbol).Name, "g~"))
}

func TestNativeGensymUsesGivenPrefix(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()
	sym := rt.Intern("tmp")

	v, err := rt.CallBuiltin(ctx, "gensym", []Value{sym})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v.Obj().Payload.(*Symbol).Name, "tmp~"))
}

func TestNativeEqvAndEqual(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	v, err := rt.CallBuiltin(ctx, "eqv?", []Value{Fixnum(3), Fixnum(3)})
	require.NoError(t, err)
	assert.True(t, v.IsTruthy())

	a := rt.NewPair(Fixnum(1), Null)
	b := rt.NewPair(Fixnum(1), Null)
	v, err = rt.CallBuiltin(ctx, "eqv?", []Value{a, b})
	require.NoError(t, err)
	assert.False(t, v.IsTruthy())

	v, err = rt.CallBuiltin(ctx, "equal?", []Value{a, b})
	require.NoError(t, err)
	assert.True(t, v.IsTruthy())
}

func TestNativeWriteAndDisplayToStringPort(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()
	port := rt.AllocTagged(TagPort, NewStringOutputPort("out"))

	_, err := rt.CallBuiltin(ctx, "write", []Value{rt.NewString("hi"), port})
	require.NoError(t, err)
	_, err = rt.CallBuiltin(ctx, "display", []Value{rt.NewString("hi"), port})
	require.NoError(t, err)

	out := port.Obj().Payload.(*Port).String()
	assert.Equal(t, `"hi"hi`, out, "write must quote the string, display must not")
}

func TestNativeApplySpreadsListArgumentsAndPushesProcBelowArgs(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()

	// (lambda (a b) (- a b)), called via apply with a mix of direct and
	// spread-list arguments: (apply proc 10 '(3)).
	bc, err := Assemble("sub2", "local_ref 0\nlocal_ref 1\nsub\nret\n")
	require.NoError(t, err)
	bc.NumArgs = 2
	proc := rt.NewProcedure(rt.NewBytecodeObj(bc), nil, ProcNone, 2, "sub2")

	rest := rt.NewPair(Fixnum(3), Null)
	_, err = rt.CallBuiltin(ctx, "apply", []Value{proc, Fixnum(10), rest})
	require.NoError(t, err)

	result, _ := rt.Run(ctx)
	require.Equal(t, StepFinished, result)
	assert.Equal(t, int64(7), ctx.Result.Fixnum())
}

func TestCallBuiltinUnknownNameErrors(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()
	_, err := rt.CallBuiltin(ctx, "no-such-builtin", nil)
	assert.Error(t, err)
}
