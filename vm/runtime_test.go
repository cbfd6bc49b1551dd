package scm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternReturnsSameObjectForSameName(t *testing.T) {
	rt := NewRuntime()
	a := rt.Intern("hello")
	b := rt.Intern("hello")
	assert.Equal(t, a.Obj(), b.Obj())

	c := rt.Intern("world")
	assert.NotEqual(t, a.Obj(), c.Obj())
}

func TestInternIsStableAcrossBuckets(t *testing.T) {
	rt := NewRuntime()
	names := []string{"a", "lambda", "call/cc", "x", "define-record-type", "+", "..."}
	for _, n := range names {
		v1 := rt.Intern(n)
		v2 := rt.Intern(n)
		assert.Equal(t, v1.Obj(), v2.Obj(), "interning %q twice must return the same object", n)
	}
}

func TestSpawnLinksParentAndChild(t *testing.T) {
	rt := NewRuntime()
	parent := rt.NewTopContext()
	child := rt.Spawn(parent)

	require.Len(t, parent.Children, 1)
	assert.Equal(t, child, parent.Children[0])
	assert.Equal(t, parent, child.Parent)

	all := rt.Contexts()
	assert.Len(t, all, 2)
}

func TestPreserveGlobalAndReleaseGlobalRefCount(t *testing.T) {
	rt := NewRuntime()
	v := rt.NewPair(Fixnum(1), Null)
	key := valueIdentity(v)

	rt.PreserveGlobal(v)
	rt.PreserveGlobal(v)
	_, ok := rt.preserved[key]
	require.True(t, ok)
	assert.Equal(t, 2, rt.preserved[key].count)

	rt.ReleaseGlobal(v)
	_, ok = rt.preserved[key]
	require.True(t, ok, "a single release must not drop a doubly-preserved value")
	assert.Equal(t, 1, rt.preserved[key].count)

	rt.ReleaseGlobal(v)
	_, ok = rt.preserved[key]
	assert.False(t, ok, "the second release must remove the entry")
}

func TestValueIdentityDistinguishesDistinctHeapObjects(t *testing.T) {
	rt := NewRuntime()
	a := rt.NewPair(Fixnum(1), Null)
	b := rt.NewPair(Fixnum(1), Null)
	assert.NotEqual(t, valueIdentity(a), valueIdentity(b))
	assert.Equal(t, valueIdentity(a), valueIdentity(a))
}

func TestMarkGlobalRootsVisitsSymbolsContextsAndPreserved(t *testing.T) {
	rt := NewRuntime()
	ctx := rt.NewTopContext()
	sym := rt.Intern("a-root-symbol")

	onStack := rt.NewPair(Fixnum(7), Null)
	ctx.Push(onStack)

	onlyPreserved := rt.NewPair(Fixnum(8), Null)
	rt.PreserveGlobal(onlyPreserved)
	defer rt.ReleaseGlobal(onlyPreserved)

	seen := make(map[*Object]bool)
	rt.markGlobalRoots(func(v Value) {
		if o := v.Obj(); o != nil {
			seen[o] = true
		}
	})

	assert.True(t, seen[rt.Global])
	assert.True(t, seen[sym.Obj()])
	assert.True(t, seen[onStack.Obj()])
	assert.True(t, seen[onlyPreserved.Obj()])
}
