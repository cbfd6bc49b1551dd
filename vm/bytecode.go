package scm

import "fmt"

/*
	The VM is a stack machine: every opcode either pushes, pops, or rewrites
	the top of the current context's value stack. Most opcodes carry no
	inline operand at all (CAR, ADD, RET, ...); a handful carry a single
	32-bit immediate that indexes into the bytecode's literal pool or frame
	(PUSH, LOCAL_REF, CALL, JUMP, ...). Aligned-bytecode builds pad the
	operand to a full word; this implementation always uses a fixed-width
	Instruction rather than a packed byte stream, trading code density for a
	dispatch loop with no byte-level decoding.

	Numbering below is normative -- do not renumber without bumping the
	bytecode format version, since compiled Bytecode objects embed these
	values directly.
*/

type Op uint8

const (
	NOOP Op = iota
	RAISE
	RESUMECC
	CALLCC
	APPLY1
	TAIL_CALL
	CALL
	FCALL0
	FCALL1
	FCALL2
	FCALL3
	FCALL4
	FCALLN
	JUMP_UNLESS
	JUMP
	PUSH
	RESERVE
	DROP
	GLOBAL_REF
	GLOBAL_KNOWN_REF
	PARAMETER_REF
	STACK_REF
	LOCAL_REF
	LOCAL_SET
	CLOSURE_REF
	CLOSURE_VARS
	VECTOR_REF
	VECTOR_SET
	VECTOR_LENGTH
	BYTES_REF
	BYTES_SET
	BYTES_LENGTH
	STRING_REF
	STRING_SET
	STRING_LENGTH
	STRING_CURSOR_NEXT
	STRING_CURSOR_PREV
	STRING_CURSOR_END
	MAKE_PROCEDURE
	MAKE_VECTOR
	MAKE_EXCEPTION
	AND
	NULLP
	FIXNUMP
	SYMBOLP
	CHARP
	EOFP
	TYPEP
	MAKE
	SLOT_REF
	SLOT_SET
	ISA
	SLOTN_REF
	SLOTN_SET
	CAR
	CDR
	SET_CAR
	SET_CDR
	CONS
	ADD
	SUB
	MUL
	DIV
	QUOTIENT
	REMAINDER
	LT
	LE
	EQN
	EQ
	CHAR2INT
	INT2CHAR
	CHAR_UPCASE
	CHAR_DOWNCASE
	WRITE_CHAR
	WRITE_STRING
	READ_CHAR
	PEEK_CHAR
	YIELD
	FORCE
	RET
	DONE
	SCP
	SC_LT
	SC_LE

	opCount
)

var opNames = [opCount]string{
	NOOP: "noop", RAISE: "raise", RESUMECC: "resumecc", CALLCC: "callcc",
	APPLY1: "apply1", TAIL_CALL: "tail_call", CALL: "call",
	FCALL0: "fcall0", FCALL1: "fcall1", FCALL2: "fcall2", FCALL3: "fcall3",
	FCALL4: "fcall4", FCALLN: "fcalln",
	JUMP_UNLESS: "jump_unless", JUMP: "jump",
	PUSH: "push", RESERVE: "reserve", DROP: "drop",
	GLOBAL_REF: "global_ref", GLOBAL_KNOWN_REF: "global_known_ref",
	PARAMETER_REF: "parameter_ref",
	STACK_REF:     "stack_ref", LOCAL_REF: "local_ref", LOCAL_SET: "local_set",
	CLOSURE_REF: "closure_ref", CLOSURE_VARS: "closure_vars",
	VECTOR_REF: "vector_ref", VECTOR_SET: "vector_set", VECTOR_LENGTH: "vector_length",
	BYTES_REF: "bytes_ref", BYTES_SET: "bytes_set", BYTES_LENGTH: "bytes_length",
	STRING_REF: "string_ref", STRING_SET: "string_set", STRING_LENGTH: "string_length",
	STRING_CURSOR_NEXT: "string_cursor_next", STRING_CURSOR_PREV: "string_cursor_prev",
	STRING_CURSOR_END: "string_cursor_end",
	MAKE_PROCEDURE:    "make_procedure", MAKE_VECTOR: "make_vector", MAKE_EXCEPTION: "make_exception",
	AND: "and", NULLP: "nullp", FIXNUMP: "fixnump", SYMBOLP: "symbolp",
	CHARP: "charp", EOFP: "eofp", TYPEP: "typep",
	MAKE: "make", SLOT_REF: "slot_ref", SLOT_SET: "slot_set", ISA: "isa",
	SLOTN_REF: "slotn_ref", SLOTN_SET: "slotn_set",
	CAR: "car", CDR: "cdr", SET_CAR: "set_car", SET_CDR: "set_cdr", CONS: "cons",
	ADD: "add", SUB: "sub", MUL: "mul", DIV: "div",
	QUOTIENT: "quotient", REMAINDER: "remainder",
	LT: "lt", LE: "le", EQN: "eqn", EQ: "eq",
	CHAR2INT: "char2int", INT2CHAR: "int2char",
	CHAR_UPCASE: "char_upcase", CHAR_DOWNCASE: "char_downcase",
	WRITE_CHAR: "write_char", WRITE_STRING: "write_string",
	READ_CHAR: "read_char", PEEK_CHAR: "peek_char",
	YIELD: "yield", FORCE: "force", RET: "ret", DONE: "done",
	SCP: "scp", SC_LT: "sc_lt", SC_LE: "sc_le",
}

var nameToOp map[string]Op

func init() {
	nameToOp = make(map[string]Op, len(opNames))
	for op, name := range opNames {
		if name != "" {
			nameToOp[name] = Op(op)
		}
	}
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "?unknown-op?"
}

// LookupOp resolves a mnemonic used by the text assembler back to its Op.
func LookupOp(mnemonic string) (Op, bool) {
	op, ok := nameToOp[mnemonic]
	return op, ok
}

// HasImmediate reports whether an opcode carries an inline 32-bit operand
// (an index into the literal pool, a frame slot number, a count, or a
// branch target) rather than taking all of its arguments from the stack.
// A branch target is the absolute index of the instruction to continue
// at; branches are not encoded relative to the branching instruction.
func (o Op) HasImmediate() bool {
	switch o {
	case PUSH, RESERVE, DROP, GLOBAL_REF, GLOBAL_KNOWN_REF, PARAMETER_REF,
		STACK_REF, LOCAL_REF, LOCAL_SET, CLOSURE_REF, CLOSURE_VARS,
		CALL, TAIL_CALL, JUMP, JUMP_UNLESS,
		FCALL0, FCALL1, FCALL2, FCALL3, FCALL4, FCALLN,
		MAKE_PROCEDURE, MAKE_EXCEPTION, TYPEP, SLOTN_REF, SLOTN_SET, MAKE:
		return true
	default:
		return false
	}
}

// Instruction is one fixed-width bytecode word: an opcode plus its
// optional immediate operand. Bytecode objects store these as a flat
// []Instruction rather than a packed byte stream (see package doc).
type Instruction struct {
	Op  Op
	Arg int32
}

func (i Instruction) String() string {
	if i.Op.HasImmediate() {
		return fmt.Sprintf("%s %d", i.Op, i.Arg)
	}
	return i.Op.String()
}

// Bytecode is the unit the VM executes: a named instruction stream paired
// with the literal pool PUSH indexes into, a source map for error
// reporting, and the assembler's static estimate of peak stack depth
// (MaxStackUsed), which the VM does not consult.
type Bytecode struct {
	Name         string
	Code         []Instruction
	Literals     []Value
	SourceMap    map[int]int // instruction index -> source line, optional
	MaxStackUsed int
	NumArgs      int
	Variadic     bool
	UnusedRest   bool
}

func (b *Bytecode) String() string {
	return fmt.Sprintf("#[bytecode %s]", b.Name)
}
