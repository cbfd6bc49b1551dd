package scm

import "fmt"

/*
	Run drives one Context through its Bytecode until it either finishes
	(RET at the outermost frame, or DONE), blocks on I/O, exhausts its
	refuel at a checkpoint, or raises an uncaught exception. It is the
	classic bytecode interpreter's exec loop: a big opcode switch over
	a flat instruction stream, a value stack, and a handful of registers
	(FP, IP, current Proc/Code) threaded through Context instead of
	function-local variables, so the scheduler can suspend and resume a
	context at arbitrary points.
*/

// StepResult tells the scheduler why Run returned control.
type StepResult int

const (
	StepFinished StepResult = iota
	StepYielded
	StepBlocked
	StepRaised
)

type blockedIO struct {
	fd    int
	write bool
}

// Run executes ctx's current procedure until one of the StepResult
// conditions above holds. It is safe to call again on a yielded or
// blocked context to resume exactly where it left off.
func (rt *Runtime) Run(ctx *Context) (StepResult, *blockedIO) {
	for {
		if ctx.Code == nil {
			return StepFinished, nil
		}
		bc := ctx.Code.Payload.(*Bytecode)
		if ctx.IP >= len(bc.Code) {
			return StepFinished, nil
		}
		instr := bc.Code[ctx.IP]
		ctx.IP++

		switch instr.Op {
		case NOOP:

		case PUSH:
			ctx.Push(bc.Literals[instr.Arg])

		case DROP:
			for i := int32(0); i < instr.Arg; i++ {
				ctx.Pop()
			}

		case RESERVE:
			for i := int32(0); i < instr.Arg; i++ {
				ctx.Push(Undefined)
			}

		case STACK_REF:
			ctx.Push(ctx.Peek(int(instr.Arg)))

		case LOCAL_REF:
			ctx.Push(ctx.Stack[ctx.FP+int(instr.Arg)])

		case LOCAL_SET:
			ctx.Stack[ctx.FP+int(instr.Arg)] = ctx.Pop()

		case CLOSURE_REF:
			proc := ctx.Proc.Obj().Payload.(*Procedure)
			ctx.Push(proc.Upvalues[instr.Arg])

		case CLOSURE_VARS:
			n := int(instr.Arg)
			ups := make([]Value, n)
			for i := n - 1; i >= 0; i-- {
				ups[i] = ctx.Pop()
			}
			codeVal := ctx.Pop()
			ctx.Push(rt.NewProcedure(codeVal, ups, ProcNone, 0, ""))

		case GLOBAL_REF, GLOBAL_KNOWN_REF:
			sym := bc.Literals[instr.Arg]
			name := sym.Obj().Payload.(*Symbol).Name
			env := ctx.Global.Payload.(*Environment)
			cell, ok := env.Lookup(name)
			if !ok {
				return rt.raiseInto(ctx, ExcUncaught, "unbound variable: "+name)
			}
			ctx.Push(*cell)

		case PARAMETER_REF:
			param := bc.Literals[instr.Arg]
			rec, ok := param.Obj().Payload.(*Record)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "parameter_ref: literal is not a parameter object")
			}
			ctx.Push(rec.Slots[0])

		case AND:
			b := ctx.Pop()
			a := ctx.Pop()
			ctx.Push(Bool(a.IsTruthy() && b.IsTruthy()))

		case NULLP:
			ctx.Push(Bool(ctx.Pop().IsNull()))
		case FIXNUMP:
			ctx.Push(Bool(ctx.Pop().IsFixnum()))
		case SYMBOLP:
			ctx.Push(Bool(ctx.Pop().IsSymbol()))
		case CHARP:
			ctx.Push(Bool(ctx.Pop().IsChar()))
		case EOFP:
			ctx.Push(Bool(ctx.Pop().IsEOF()))

		case TYPEP:
			v := ctx.Pop()
			ctx.Push(Bool(v.Tag() == Tag(instr.Arg)))

		case MAKE:
			descVal := bc.Literals[instr.Arg]
			desc, ok := descVal.Obj().Payload.(*TypeDescriptorPayload)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "make: literal is not a type descriptor")
			}
			ctx.Push(rt.NewInstance(desc.Descriptor))

		case SLOT_REF:
			idx := ctx.Pop()
			obj := ctx.Pop()
			rec, ok := obj.Obj().Payload.(*Record)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "slot-ref: not a record")
			}
			i := int(idx.Fixnum())
			if i < 0 || i >= len(rec.Slots) {
				return rt.raiseInto(ctx, ExcRange, "slot-ref: index out of range")
			}
			ctx.Push(rec.Slots[i])

		case SLOT_SET:
			val := ctx.Pop()
			idx := ctx.Pop()
			obj := ctx.Pop()
			rec, ok := obj.Obj().Payload.(*Record)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "slot-set!: not a record")
			}
			i := int(idx.Fixnum())
			if i < 0 || i >= len(rec.Slots) {
				return rt.raiseInto(ctx, ExcRange, "slot-set!: index out of range")
			}
			rec.Slots[i] = val

		case ISA:
			typeVal := ctx.Pop()
			obj := ctx.Pop()
			desc, ok := typeVal.Obj().Payload.(*TypeDescriptorPayload)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "isa?: not a type descriptor")
			}
			ctx.Push(Bool(obj.Tag() == desc.Descriptor.Tag))

		case SLOTN_REF:
			obj := ctx.Pop()
			rec, ok := obj.Obj().Payload.(*Record)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "slotn_ref: not a record")
			}
			i := int(instr.Arg)
			if i < 0 || i >= len(rec.Slots) {
				return rt.raiseInto(ctx, ExcRange, "slotn_ref: index out of range")
			}
			ctx.Push(rec.Slots[i])

		case SLOTN_SET:
			val := ctx.Pop()
			obj := ctx.Pop()
			rec, ok := obj.Obj().Payload.(*Record)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "slotn_set: not a record")
			}
			i := int(instr.Arg)
			if i < 0 || i >= len(rec.Slots) {
				return rt.raiseInto(ctx, ExcRange, "slotn_set: index out of range")
			}
			rec.Slots[i] = val

		case CAR:
			p := ctx.Pop()
			if !p.IsPair() {
				return rt.raiseInto(ctx, ExcType, "car: not a pair")
			}
			ctx.Push(p.Obj().Payload.(*Pair).Car)
		case CDR:
			p := ctx.Pop()
			if !p.IsPair() {
				return rt.raiseInto(ctx, ExcType, "cdr: not a pair")
			}
			ctx.Push(p.Obj().Payload.(*Pair).Cdr)
		case SET_CAR:
			v := ctx.Pop()
			p := ctx.Pop()
			p.Obj().Payload.(*Pair).Car = v
			ctx.Push(Void)
		case SET_CDR:
			v := ctx.Pop()
			p := ctx.Pop()
			p.Obj().Payload.(*Pair).Cdr = v
			ctx.Push(Void)
		case CONS:
			d := ctx.Pop()
			a := ctx.Pop()
			ctx.Push(rt.NewPair(a, d))

		case ADD, SUB, MUL, DIV, QUOTIENT, REMAINDER, LT, LE, EQN:
			b := ctx.Pop()
			a := ctx.Pop()
			res, raised := rt.arith(ctx, instr.Op, a, b)
			if raised {
				return StepRaised, nil
			}
			ctx.Push(res)

		case EQ:
			b := ctx.Pop()
			a := ctx.Pop()
			ctx.Push(Bool(Eqv(a, b)))

		case CHAR2INT:
			ctx.Push(Fixnum(int64(ctx.Pop().Char())))
		case INT2CHAR:
			ctx.Push(Char(rune(ctx.Pop().Fixnum())))
		case CHAR_UPCASE:
			ctx.Push(Char(toUpperRune(ctx.Pop().Char())))
		case CHAR_DOWNCASE:
			ctx.Push(Char(toLowerRune(ctx.Pop().Char())))

		case VECTOR_REF:
			idx := ctx.Pop()
			v := ctx.Pop()
			vec := v.Obj().Payload.(*Vector)
			i := idx.Fixnum()
			if i < 0 || int(i) >= len(vec.Slots) {
				return rt.raiseInto(ctx, ExcRange, "vector-ref: index out of range")
			}
			ctx.Push(vec.Slots[i])
		case VECTOR_SET:
			val := ctx.Pop()
			idx := ctx.Pop()
			v := ctx.Pop()
			vec := v.Obj().Payload.(*Vector)
			i := idx.Fixnum()
			if i < 0 || int(i) >= len(vec.Slots) {
				return rt.raiseInto(ctx, ExcRange, "vector-set!: index out of range")
			}
			vec.Slots[i] = val
			ctx.Push(Void)
		case VECTOR_LENGTH:
			v := ctx.Pop()
			ctx.Push(Fixnum(int64(len(v.Obj().Payload.(*Vector).Slots))))
		case MAKE_VECTOR:
			fill := ctx.Pop()
			n := ctx.Pop()
			ctx.Push(rt.NewVector(int(n.Fixnum()), fill))

		case BYTES_REF:
			idx := ctx.Pop()
			v := ctx.Pop()
			bv := v.Obj().Payload.(*Bytevector)
			ctx.Push(Fixnum(int64(bv.Bytes[idx.Fixnum()])))
		case BYTES_SET:
			val := ctx.Pop()
			idx := ctx.Pop()
			v := ctx.Pop()
			bv := v.Obj().Payload.(*Bytevector)
			bv.Bytes[idx.Fixnum()] = byte(val.Fixnum())
			ctx.Push(Void)
		case BYTES_LENGTH:
			v := ctx.Pop()
			ctx.Push(Fixnum(int64(len(v.Obj().Payload.(*Bytevector).Bytes))))

		case STRING_LENGTH:
			v := ctx.Pop()
			ctx.Push(Fixnum(int64(stringLength(v))))
		case STRING_REF:
			idx := ctx.Pop()
			v := ctx.Pop()
			if !idx.IsStringCursor() {
				return rt.raiseInto(ctx, ExcType, "string-ref: index must be a string cursor")
			}
			r, ok := stringRefCursor(v, idx.CursorOffset())
			if !ok {
				return rt.raiseInto(ctx, ExcRange, "string-ref: index out of range")
			}
			ctx.Push(Char(r))
		case STRING_SET:
			return rt.raiseInto(ctx, ExcType, "string-set!: immutable string layout")
		case STRING_CURSOR_NEXT:
			v := ctx.Pop()
			ctx.Push(StringCursor(v.CursorOffset() + 1))
		case STRING_CURSOR_PREV:
			v := ctx.Pop()
			ctx.Push(StringCursor(v.CursorOffset() - 1))
		case STRING_CURSOR_END:
			v := ctx.Pop()
			ctx.Push(StringCursor(stringLength(v)))

		case SCP:
			ctx.Push(Bool(ctx.Pop().IsStringCursor()))

		case SC_LT:
			b := ctx.Pop()
			a := ctx.Pop()
			ctx.Push(Bool(a.CursorOffset() < b.CursorOffset()))

		case SC_LE:
			b := ctx.Pop()
			a := ctx.Pop()
			ctx.Push(Bool(a.CursorOffset() <= b.CursorOffset()))

		case WRITE_CHAR:
			p := ctx.Pop()
			r := ctx.Pop()
			port := p.Obj().Payload.(*Port)
			if err := port.WriteChar(r.Char()); err != nil {
				return rt.raiseInto(ctx, ExcFile, err.Error())
			}
			ctx.Push(Void)
		case WRITE_STRING:
			p := ctx.Pop()
			s := ctx.Pop()
			port := p.Obj().Payload.(*Port)
			if err := port.WriteString(goString(s)); err != nil {
				return rt.raiseInto(ctx, ExcFile, err.Error())
			}
			ctx.Push(Void)
		case READ_CHAR, PEEK_CHAR:
			p := ctx.Pop()
			port := p.Obj().Payload.(*Port)
			var r rune
			var err error
			if instr.Op == READ_CHAR {
				r, err = port.ReadChar()
			} else {
				r, err = port.PeekChar()
			}
			if err == ErrWouldBlock {
				ctx.IP--
				ctx.Push(p)
				rt.Scheduler.BlockOnFd(ctx, port.Fd(), false)
				return StepBlocked, &blockedIO{fd: port.Fd(), write: false}
			}
			if err != nil {
				ctx.Push(EOFObject)
			} else {
				ctx.Push(Char(r))
			}

		case MAKE_EXCEPTION:
			irritCount := int(instr.Arg)
			irritants := make([]Value, irritCount)
			for i := irritCount - 1; i >= 0; i-- {
				irritants[i] = ctx.Pop()
			}
			msg := ctx.Pop()
			kind := ctx.Pop()
			ctx.Push(rt.AllocTagged(TagException, &Exception{
				Kind: ExceptionKind(goString(kind)), Message: msg, Irritants: irritants,
			}))

		case RAISE:
			excVal := ctx.Pop()
			sig := ctx.Raise(excVal)
			if ctx.Done {
				return StepRaised, nil
			}
			rt.invokeTrampoline(ctx, sig)

		case MAKE_PROCEDURE:
			codeVal := bc.Literals[instr.Arg]
			ctx.Push(rt.NewProcedure(codeVal, nil, ProcNone, 0, ""))

		case JUMP, JUMP_UNLESS:
			from := ctx.IP
			if instr.Op == JUMP || !ctx.Pop().IsTruthy() {
				ctx.IP = int(instr.Arg)
			}
			// A backward branch is a refuel checkpoint, like CALL/TAIL_CALL.
			if ctx.IP < from && rt.Scheduler.Yield(ctx) {
				return StepYielded, nil
			}

		case CALL, TAIL_CALL:
			nargs := int(instr.Arg)
			proc := ctx.Peek(nargs)
			if raised := rt.doCall(ctx, proc, nargs, instr.Op == TAIL_CALL); raised {
				return StepRaised, nil
			}
			if rt.Scheduler.Yield(ctx) {
				return StepYielded, nil
			}

		case FCALL0, FCALL1, FCALL2, FCALL3, FCALL4, FCALLN:
			nargs := int(instr.Op - FCALL0)
			id := nativeID(instr.Arg)
			if instr.Op == FCALLN {
				nargs = int(instr.Arg)
				id = nativeID(ctx.Pop().Fixnum())
			}
			args := make([]Value, nargs)
			for i := nargs - 1; i >= 0; i-- {
				args[i] = ctx.Pop()
			}
			result, err := rt.callNative(ctx, id, args)
			if err != nil {
				return rt.raiseInto(ctx, ExcABI, err.Error())
			}
			ctx.Push(result)

		case APPLY1:
			argList := ctx.Pop()
			proc := ctx.Pop()
			args, ok := SliceFromList(argList)
			if !ok {
				return rt.raiseInto(ctx, ExcType, "apply: improper argument list")
			}
			ctx.Push(proc)
			for _, a := range args {
				ctx.Push(a)
			}
			if raised := rt.doCall(ctx, proc, len(args), false); raised {
				return StepRaised, nil
			}

		case CALLCC:
			k := rt.captureContinuation(ctx)
			proc := ctx.Pop()
			ctx.Push(proc)
			ctx.Push(k)
			if raised := rt.doCall(ctx, proc, 1, false); raised {
				return StepRaised, nil
			}

		case RESUMECC:
			k := ctx.Pop()
			val := ctx.Pop()
			rt.resumeContinuation(ctx, k, val)

		case YIELD:
			rt.Scheduler.Enqueue(ctx)
			return StepYielded, nil

		case FORCE:
			p := ctx.Pop()
			ctx.Push(rt.forcePromise(ctx, p))

		case RET:
			val := ctx.Pop()
			if len(ctx.Frames) == 0 {
				ctx.Done = true
				ctx.Result = val
				return StepFinished, nil
			}
			n := len(ctx.Frames)
			fr := ctx.Frames[n-1]
			ctx.Frames = ctx.Frames[:n-1]
			ctx.Stack = ctx.Stack[:ctx.FP-1] // -1 drops the procedure slot below the locals
			ctx.FP = fr.PrevFP
			ctx.IP = fr.SavedIP
			ctx.Code = fr.SavedCode
			ctx.Proc = fr.SavedProc
			if ctx.Code == nil {
				// Unwound past the outermost bytecode frame into whatever
				// native Go call entered the VM directly (CallBuiltin, a
				// trampoline, an apply from host code); there is no
				// caller IP to resume into, so this finishes the same as
				// the Frames-already-empty case above.
				ctx.Done = true
				ctx.Result = val
				return StepFinished, nil
			}
			ctx.Push(val)

		case DONE:
			ctx.Done = true
			if ctx.StackLen() > 0 {
				ctx.Result = ctx.Pop()
			}
			return StepFinished, nil

		default:
			return rt.raiseInto(ctx, ExcUncaught, fmt.Sprintf("unimplemented opcode %s", instr.Op))
		}

		if ctx.SingleStep {
			return StepYielded, nil
		}
	}
}

func (rt *Runtime) raiseInto(ctx *Context, kind ExceptionKind, msg string) (StepResult, *blockedIO) {
	excVal := rt.NewException(kind, msg)
	ctx.Done = true
	ctx.Err = excVal.Obj()
	return StepRaised, nil
}

type nativeID int32

func goString(v Value) string {
	o := v.Obj()
	if o == nil || o.Tag != TagString {
		return ""
	}
	s := o.Payload.(*SchemeString)
	if s.Indirect != nil {
		base := goString(HeapValue(s.Indirect))
		return base[s.Offset : s.Offset+s.ByteLen]
	}
	return string(s.Bytes)
}

func stringLength(v Value) int {
	o := v.Obj()
	s := o.Payload.(*SchemeString)
	if s.length >= 0 {
		return s.length
	}
	n := len([]rune(goString(v)))
	s.length = n
	return n
}

func stringRefCursor(v Value, cursor int) (rune, bool) {
	rs := []rune(goString(v))
	if cursor < 0 || cursor >= len(rs) {
		return 0, false
	}
	return rs[cursor], true
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}
