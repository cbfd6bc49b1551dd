package scm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

/*
	Assemble compiles a text mnemonic listing into a Bytecode object. One
	instruction per line, `mnemonic [operand]`; a line ending in `:` is a
	label definition, and an operand that is exactly a label's name is
	replaced with that label's resolved instruction index -- the same
	two-pass label-patching idiom a binary bytecode compiler would use
	(strip comments with a regexp and record labels on the first pass,
	then resolve each operand against the label table on the second)
	adapted from a packed instruction encoding to this VM's flat
	[]Instruction stream.

	This is the front end this runtime offers in place of a surface-syntax
	compiler (parsing and compiling Scheme source to bytecode is out of
	scope) -- tests and examples that need executable bytecode author it
	directly in this mnemonic form.
*/
var asmComment = regexp.MustCompile(`;.*`)

type AssembleError struct {
	Line int
	Msg  string
}

func (e *AssembleError) Error() string {
	return fmt.Sprintf("assemble: line %d: %s", e.Line, e.Msg)
}

// Assemble parses src (one instruction or directive per line) into a
// Bytecode named name. The only directive is `.args N [variadic]`; the
// text form has no way to write literals, so callers fill Literals
// directly or through AddLiteral.
func Assemble(name string, src string) (*Bytecode, error) {
	bc := &Bytecode{Name: name, SourceMap: make(map[int]int)}
	labels := make(map[string]int)

	type pendingLine struct {
		lineNo int
		mnem   string
		operand string
	}
	var pending []pendingLine

	for lineNo, raw := range strings.Split(src, "\n") {
		line := asmComment.ReplaceAllString(raw, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if strings.ContainsAny(label, " \t") {
				return nil, &AssembleError{lineNo + 1, "label contains whitespace: " + label}
			}
			labels[label] = len(pending)
			continue
		}
		if strings.HasPrefix(line, ".args") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				n, err := strconv.Atoi(fields[1])
				if err != nil {
					return nil, &AssembleError{lineNo + 1, "bad .args operand"}
				}
				bc.NumArgs = n
			}
			if len(fields) >= 3 && fields[2] == "variadic" {
				bc.Variadic = true
			}
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		mnem := fields[0]
		operand := ""
		if len(fields) > 1 {
			operand = strings.TrimSpace(fields[1])
		}
		pending = append(pending, pendingLine{lineNo + 1, mnem, operand})
	}

	for _, pl := range pending {
		op, ok := LookupOp(pl.mnem)
		if !ok {
			return nil, &AssembleError{pl.lineNo, "unknown mnemonic: " + pl.mnem}
		}
		var arg int32
		if op.HasImmediate() {
			if pl.operand == "" {
				return nil, &AssembleError{pl.lineNo, pl.mnem + " requires an operand"}
			}
			if idx, ok := labels[pl.operand]; ok {
				arg = int32(idx)
			} else {
				n, err := strconv.ParseInt(pl.operand, 10, 32)
				if err != nil {
					return nil, &AssembleError{pl.lineNo, "bad operand: " + pl.operand}
				}
				arg = int32(n)
			}
		}
		bc.Code = append(bc.Code, Instruction{Op: op, Arg: arg})
		bc.SourceMap[len(bc.Code)-1] = pl.lineNo
	}

	bc.MaxStackUsed = estimateMaxStack(bc)
	return bc, nil
}

// AddLiteral appends v to the bytecode's literal pool and returns its
// index, for callers building a Bytecode programmatically (tests,
// REPL "assemble and run") rather than from text.
func AddLiteral(bc *Bytecode, v Value) int32 {
	bc.Literals = append(bc.Literals, v)
	return int32(len(bc.Literals) - 1)
}

// estimateMaxStack is a conservative static estimate (peak cumulative
// push count, ignoring control flow merges) stored in
// Bytecode.MaxStackUsed. Nothing in the VM reads it: Context.Push grows
// the stack slice on demand.
func estimateMaxStack(bc *Bytecode) int {
	depth, max := 0, 0
	for _, instr := range bc.Code {
		depth += stackDelta(instr.Op)
		if depth > max {
			max = depth
		}
		if depth < 0 {
			depth = 0
		}
	}
	return max
}

func stackDelta(op Op) int {
	switch op {
	case PUSH, GLOBAL_REF, GLOBAL_KNOWN_REF, LOCAL_REF, CLOSURE_REF, STACK_REF:
		return 1
	case DROP, LOCAL_SET, SET_CAR, SET_CDR, JUMP_UNLESS:
		return -1
	case ADD, SUB, MUL, DIV, QUOTIENT, REMAINDER, LT, LE, EQN, EQ, CONS, AND,
		VECTOR_REF, BYTES_REF, STRING_REF:
		return -1
	default:
		return 0
	}
}
