package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAssembleAddScenario is a concrete end-to-end assembler scenario:
// PUSH 5, PUSH 7, ADD, RET should evaluate to 12.
func TestAssembleAddScenario(t *testing.T) {
	bc := &Bytecode{Name: "add"}
	five := AddLiteral(bc, Fixnum(5))
	seven := AddLiteral(bc, Fixnum(7))

	src := ""
	src += "push " + itoa(five) + "\n"
	src += "push " + itoa(seven) + "\n"
	src += "add\n"
	src += "ret\n"

	assembled, err := Assemble("add", src)
	require.NoError(t, err)
	assembled.Literals = bc.Literals

	rt := NewRuntime()
	ctx := rt.NewTopContext()
	ctx.Code = rt.NewBytecodeObj(assembled).Obj()
	ctx.Proc = Undefined

	result, _ := rt.Run(ctx)
	require.Equal(t, StepFinished, result)
	assert.Equal(t, int64(12), ctx.Result.Fixnum())
}

func TestAssembleLabelsResolveJumps(t *testing.T) {
	src := `
	push 0
loop:
	jump_unless done
	jump loop
done:
	ret
`
	bc, err := Assemble("loopy", src)
	require.NoError(t, err)
	require.Len(t, bc.Code, 4)
	assert.Equal(t, JUMP_UNLESS, bc.Code[1].Op)
	assert.Equal(t, int32(3), bc.Code[1].Arg) // "done" label index
	assert.Equal(t, JUMP, bc.Code[2].Op)
	assert.Equal(t, int32(1), bc.Code[2].Arg) // "loop" label index
}

func TestAssembleArgsDirective(t *testing.T) {
	bc, err := Assemble("f", ".args 2 variadic\nret\n")
	require.NoError(t, err)
	assert.Equal(t, 2, bc.NumArgs)
	assert.True(t, bc.Variadic)
}

func TestAssembleUnknownMnemonicErrors(t *testing.T) {
	_, err := Assemble("bad", "frobnicate 1\n")
	assert.Error(t, err)
}

func TestAssembleCommentsStripped(t *testing.T) {
	bc, err := Assemble("c", "; a comment\nret ; trailing\n")
	require.NoError(t, err)
	require.Len(t, bc.Code, 1)
	assert.Equal(t, RET, bc.Code[0].Op)
}

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
