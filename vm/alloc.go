package scm

// This file collects the small allocation helpers every other package
// file leans on -- Cons, NewString, NewVector, and friends -- so that
// CONS, MAKE_VECTOR and friends in vm.go stay one line each.

func (rt *Runtime) NewPair(car, cdr Value) Value {
	return rt.AllocTagged(TagPair, &Pair{Car: car, Cdr: cdr})
}

func (rt *Runtime) NewString(s string) Value {
	return rt.AllocTagged(TagString, &SchemeString{Bytes: []byte(s), ByteLen: len(s), length: -1})
}

func (rt *Runtime) NewVector(n int, fill Value) Value {
	slots := make([]Value, n)
	for i := range slots {
		slots[i] = fill
	}
	return rt.AllocTagged(TagVector, &Vector{Slots: slots})
}

func (rt *Runtime) NewBytevector(n int) Value {
	return rt.AllocTagged(TagBytes, &Bytevector{Bytes: make([]byte, n)})
}

func (rt *Runtime) NewProcedure(code Value, upvalues []Value, flags ProcFlag, arity int, name string) Value {
	return rt.AllocTagged(TagProcedure, &Procedure{Code: code, Upvalues: upvalues, Flags: flags, Arity: arity, Name: name})
}

func (rt *Runtime) NewBytecodeObj(bc *Bytecode) Value {
	return rt.AllocTagged(TagBytecode, bc)
}

func (rt *Runtime) NewPort(p *Port) Value {
	return rt.AllocTagged(TagPort, p)
}

// ListFromSlice builds a proper list out of vs, tail-first, grounded on
// the reader's need to assemble parsed list data without recursion blowing
// the Go stack on long input.
func (rt *Runtime) ListFromSlice(vs []Value) Value {
	result := Null
	for i := len(vs) - 1; i >= 0; i-- {
		result = rt.NewPair(vs[i], result)
	}
	return result
}

// SliceFromList walks a proper list into a Go slice; ok is false if the
// list is improper (a non-pair, non-null cdr is found).
func SliceFromList(v Value) (vs []Value, ok bool) {
	for {
		if v.IsNull() {
			return vs, true
		}
		o := v.Obj()
		if o == nil || o.Tag != TagPair {
			return vs, false
		}
		p := o.Payload.(*Pair)
		vs = append(vs, p.Car)
		v = p.Cdr
	}
}
