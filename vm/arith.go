package scm

// arith implements the fixnum-only arithmetic opcodes. Bignum/rational/
// flonum promotion is not attempted; overflow and division by zero raise
// rather than silently wrapping, since a silent wraparound would violate
// the language's numeric tower even in this reduced form.
func (rt *Runtime) arith(ctx *Context, op Op, a, b Value) (Value, bool) {
	if !a.IsFixnum() || !b.IsFixnum() {
		rt.raiseInto(ctx, ExcType, "arithmetic: operands must be numbers")
		return Value{}, true
	}
	x, y := a.Fixnum(), b.Fixnum()

	switch op {
	case ADD:
		if v, ok := BoxFixnum(x + y); ok {
			return v, false
		}
	case SUB:
		if v, ok := BoxFixnum(x - y); ok {
			return v, false
		}
	case MUL:
		if p := x * y; x == 0 || p/x == y {
			if v, ok := BoxFixnum(p); ok {
				return v, false
			}
		}
	case DIV, QUOTIENT:
		if y == 0 {
			rt.raiseInto(ctx, ExcDivideByZero, "division by zero")
			return Value{}, true
		}
		if v, ok := BoxFixnum(x / y); ok {
			return v, false
		}
	case REMAINDER:
		if y == 0 {
			rt.raiseInto(ctx, ExcDivideByZero, "division by zero")
			return Value{}, true
		}
		return Fixnum(x % y), false
	case LT:
		return Bool(x < y), false
	case LE:
		return Bool(x <= y), false
	case EQN:
		return Bool(x == y), false
	}
	rt.raiseInto(ctx, ExcRange, "arithmetic: result out of fixnum range")
	return Value{}, true
}

// Eqv implements the identity-like equivalence the EQ opcode needs:
// immediates compare by value, heap objects by pointer identity (the
// same shortcut chibi-scheme's sexp_eqv takes before falling back to
// structural comparison for strings/pairs in `equal?`, which this
// reduced runtime does not implement as a separate opcode).
func Eqv(a, b Value) bool {
	if a.Kind() != b.Kind() {
		if a.IsHeap() && b.IsHeap() {
			return a.Obj() == b.Obj()
		}
		return false
	}
	if a.IsHeap() {
		return a.Obj() == b.Obj()
	}
	return a.bits() == b.bits()
}

// Equal implements R7RS equal?: structural equivalence over pairs,
// vectors, bytevectors and strings; identity (Eqv) for everything else.
// seen guards against cyclic structure, walked the same way the printer
// walks shared structure.
func Equal(a, b Value) bool {
	return equalRec(a, b, make(map[[2]uintptr]bool))
}

func equalRec(a, b Value, seen map[[2]uintptr]bool) bool {
	if Eqv(a, b) {
		return true
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch a.Tag() {
	case TagPair:
		key := [2]uintptr{objAddr(a), objAddr(b)}
		if seen[key] {
			return true
		}
		seen[key] = true
		pa, pb := a.Obj().Payload.(*Pair), b.Obj().Payload.(*Pair)
		return equalRec(pa.Car, pb.Car, seen) && equalRec(pa.Cdr, pb.Cdr, seen)
	case TagVector:
		va, vb := a.Obj().Payload.(*Vector), b.Obj().Payload.(*Vector)
		if len(va.Slots) != len(vb.Slots) {
			return false
		}
		for i := range va.Slots {
			if !equalRec(va.Slots[i], vb.Slots[i], seen) {
				return false
			}
		}
		return true
	case TagBytes:
		ba, bb := a.Obj().Payload.(*Bytevector), b.Obj().Payload.(*Bytevector)
		return bytesEqual(ba.Bytes, bb.Bytes)
	case TagString:
		return goString(a) == goString(b)
	default:
		return false
	}
}

func objAddr(v Value) uintptr { return valueIdentity(v) }

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
