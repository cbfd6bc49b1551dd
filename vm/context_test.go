package scm

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextPushPopPeek(t *testing.T) {
	ctx := NewContext(nil)
	ctx.Push(Fixnum(1))
	ctx.Push(Fixnum(2))
	ctx.Push(Fixnum(3))

	assert.Equal(t, int64(3), ctx.Peek(0).Fixnum())
	assert.Equal(t, int64(2), ctx.Peek(1).Fixnum())
	assert.Equal(t, int64(3), ctx.Pop().Fixnum())
	assert.Equal(t, 2, ctx.StackLen())
}

func TestContextHandlerChainLIFO(t *testing.T) {
	ctx := NewContext(nil)
	_, ok := ctx.CurrentHandler()
	assert.False(t, ok)

	ctx.PushHandler(Fixnum(1))
	ctx.PushHandler(Fixnum(2))
	h, ok := ctx.CurrentHandler()
	assert.True(t, ok)
	assert.Equal(t, int64(2), h.Fixnum())

	assert.Equal(t, int64(2), ctx.PopHandler().Fixnum())
	assert.Equal(t, int64(1), ctx.PopHandler().Fixnum())
	assert.True(t, ctx.PopHandler().IsUndefined())
}

func TestContextRefuelCountsDownToZero(t *testing.T) {
	ctx := NewContext(nil)
	ctx.SetRefuel(2)
	assert.False(t, ctx.ConsumeRefuel())
	assert.True(t, ctx.ConsumeRefuel())
}

func TestContextMarkRootsVisitsStackAndChildren(t *testing.T) {
	rt := NewRuntime()
	parent := rt.NewTopContext()
	child := rt.Spawn(parent)

	pv := rt.NewPair(Fixnum(1), Null)
	cv := rt.NewPair(Fixnum(2), Null)
	parent.Push(pv)
	child.Push(cv)

	var visited []Value
	parent.markRoots(func(v Value) { visited = append(visited, v) })

	var sawParent, sawChild bool
	for _, v := range visited {
		if v.IsHeap() && v.Obj() == pv.Obj() {
			sawParent = true
		}
		if v.IsHeap() && v.Obj() == cv.Obj() {
			sawChild = true
		}
	}
	assert.True(t, sawParent)
	assert.True(t, sawChild, "markRoots should recurse into child contexts")
}

func TestContextModulePathSeededFromEnvironment(t *testing.T) {
	t.Setenv("CHIBI_MODULE_PATH", "/usr/lib/chibi:/opt/chibi")
	t.Setenv("CHIBI_IGNORE_SYSTEM_PATH", "1")

	ctx := NewContext(nil)
	path, ignore := ctx.ModulePath()
	assert.Equal(t, "/usr/lib/chibi:/opt/chibi", path)
	assert.True(t, ignore)
}

func TestContextModulePathEmptyWhenUnset(t *testing.T) {
	t.Setenv("CHIBI_MODULE_PATH", "")
	os.Unsetenv("CHIBI_IGNORE_SYSTEM_PATH")

	ctx := NewContext(nil)
	path, ignore := ctx.ModulePath()
	assert.Equal(t, "", path)
	assert.False(t, ignore)
}

func TestContextIsNilObj(t *testing.T) {
	var o *Object
	assert.True(t, o.IsNilObj())
	o2 := &Object{}
	assert.False(t, o2.IsNilObj())
}
