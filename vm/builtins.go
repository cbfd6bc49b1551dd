package scm

import (
	"fmt"

	"github.com/google/uuid"
)

/*
	builtins.go registers the handful of native procedures that are
	awkward or impossible to express as bytecode opcodes directly --
	generating a fresh uninterned symbol, apply, eqv?/equal?, write/
	display through the port layer, and make-parameter. Each is added to
	the native dispatch table via RegisterNative in this package's init,
	so every Runtime shares the same table. None is bound into the global
	environment: bytecode reaches one through FCALL with the id
	LookupNative returns, and Go code through CallBuiltin.
*/

func init() {
	RegisterNative("gensym", nativeGensym)
	RegisterNative("apply", nativeApply)
	RegisterNative("eqv?", nativeEqv)
	RegisterNative("equal?", nativeEqual)
	RegisterNative("write", nativeWrite)
	RegisterNative("display", nativeDisplay)
	RegisterNative("make-parameter", nativeMakeParameter)
}

// CallBuiltin invokes a registered native procedure directly by name,
// bypassing the bytecode dispatch loop entirely. A bytecode listing that
// wants to reach the same primitive does so with FCALLN using the id
// LookupNative returns, pushing its arguments and the id itself per the
// FCALLN calling convention in vm.go; binding natives under a bare
// Scheme name reachable from ordinary CALL sites is a surface-syntax
// compiler concern, out of scope here.
func (rt *Runtime) CallBuiltin(ctx *Context, name string, args []Value) (Value, error) {
	id, ok := LookupNative(name)
	if !ok {
		return Value{}, fmt.Errorf("no such builtin: %s", name)
	}
	return rt.callNative(ctx, id, args)
}

// nativeMakeParameter builds a fresh parameter object (a one-slot TR
// instance) holding its initial value; PARAMETER_REF then reads it
// straight out of the bytecode literal pool.
func nativeMakeParameter(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	init := Undefined
	if len(args) > 0 {
		init = args[0]
	}
	return rt.NewParameter(init), nil
}

func nativeGensym(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Value{}, err
	}
	prefix := "g"
	if len(args) > 0 && args[0].IsSymbol() {
		prefix = args[0].Obj().Payload.(*Symbol).Name
	}
	name := fmt.Sprintf("%s~%s", prefix, id.String()[:8])
	o := &Object{Header: Header{Tag: TagSymbol}, Payload: &Symbol{Name: name}}
	return HeapValue(o), nil
}

func nativeApply(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, fmt.Errorf("apply: requires a procedure argument")
	}
	proc := args[0]
	var callArgs []Value
	for i := 1; i < len(args)-1; i++ {
		callArgs = append(callArgs, args[i])
	}
	if len(args) > 1 {
		tail, ok := SliceFromList(args[len(args)-1])
		if !ok {
			return Value{}, fmt.Errorf("apply: last argument must be a list")
		}
		callArgs = append(callArgs, tail...)
	}
	ctx.Push(proc)
	for _, a := range callArgs {
		ctx.Push(a)
	}
	if raised := rt.doCall(ctx, proc, len(callArgs), false); raised {
		return Value{}, fmt.Errorf("apply: callee raised")
	}
	return Undefined, nil
}

func nativeEqv(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("eqv?: expected 2 arguments")
	}
	return Bool(Eqv(args[0], args[1])), nil
}

func nativeEqual(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, fmt.Errorf("equal?: expected 2 arguments")
	}
	return Bool(Equal(args[0], args[1])), nil
}

func nativeWrite(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, fmt.Errorf("write: expected at least 1 argument")
	}
	return writeToArgPort(args, Write)
}

func nativeDisplay(rt *Runtime, ctx *Context, args []Value) (Value, error) {
	if len(args) < 1 {
		return Value{}, fmt.Errorf("display: expected at least 1 argument")
	}
	return writeToArgPort(args, Display)
}

func writeToArgPort(args []Value, render func(Value) string) (Value, error) {
	s := render(args[0])
	if len(args) > 1 && args[1].IsPort() {
		port := args[1].Obj().Payload.(*Port)
		if err := port.WriteString(s); err != nil {
			return Value{}, err
		}
	} else {
		fmt.Print(s)
	}
	return Void, nil
}
