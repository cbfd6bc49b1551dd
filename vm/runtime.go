package scm

import (
	"sync"

	"github.com/dchest/siphash"
)

/*
	Runtime is the top-level handle an embedder holds: the heap, the
	interned symbol table, the set of live contexts (green threads), and
	the process-wide preservation multiset, a root source alongside each
	context's own roots. Exactly one Runtime is normally created per
	embedding; Context values are always children of one Runtime's Global
	environment.
*/
type Runtime struct {
	mu sync.Mutex

	Heap *Heap
	GC   *GC

	Global *Object // root Environment object

	// symbols is the interned symbol table, sharded into fixed buckets by
	// a siphash of the name, made literal as a root source rather than
	// leaning on a single Go map's internal (unspecified, unhashable-by-us)
	// bucketing.
	symbols     [symbolBuckets]map[string]*Object
	symbolsLock [symbolBuckets]sync.RWMutex
	hashKey0    uint64
	hashKey1    uint64

	contexts []*Context

	// preserved is the process-wide preservation multiset: values kept
	// alive regardless of context reachability, reference counted so
	// nested preserve/unpreserve calls compose.
	preserved map[uintptr]*preserveEntry

	Scheduler *Scheduler
	Log       *Logger

	allocStats *AllocSiteStats

	// ParameterType is the one-slot record type backing make-parameter:
	// PARAMETER_REF reads a literal-pool instance's sole slot.
	ParameterType *TypeDescriptor
}

type preserveEntry struct {
	value Value
	count int
}

const symbolBuckets = 64

func NewRuntime() *Runtime {
	rt := &Runtime{
		preserved: make(map[uintptr]*preserveEntry),
		hashKey0:  0x646f6e277420,
		hashKey1:  0x73746561,
	}
	for i := range rt.symbols {
		rt.symbols[i] = make(map[string]*Object)
	}
	rt.Heap = NewHeap()
	rt.Log = NewLogger("scm")
	rt.Global = &Object{Header: Header{Tag: TagEnvironment}, Payload: NewEnvironment(nil)}
	rt.GC = NewGC(rt)
	rt.Scheduler = NewScheduler(rt)
	rt.ParameterType = rt.DefineRecordType("parameter", 1)
	return rt
}

// NewParameter creates a fresh parameter object holding init, the
// Go-level equivalent of (make-parameter init): PARAMETER_REF's literal
// operand and SLOT_SET/SLOTN_SET at index 0 are how bytecode reads and
// rebinds it (the latter typically wrapped in a parameterize expansion's
// dynamic-wind before/after thunks).
func (rt *Runtime) NewParameter(init Value) Value {
	p := rt.NewInstance(rt.ParameterType)
	p.Obj().Payload.(*Record).Slots[0] = init
	return p
}

// NewTopContext creates the first, top-level Context bound to the
// runtime's global environment.
func (rt *Runtime) NewTopContext() *Context {
	ctx := NewContext(rt.Global)
	rt.mu.Lock()
	rt.contexts = append(rt.contexts, ctx)
	rt.mu.Unlock()
	return ctx
}

// Spawn creates a child Context linked to parent, the shape a green
// thread's "fork" operation produces: a fresh value stack, shared global
// environment, and a parent link the collector walks through.
func (rt *Runtime) Spawn(parent *Context) *Context {
	child := NewContext(rt.Global)
	child.Parent = parent
	parent.Children = append(parent.Children, child)
	rt.mu.Lock()
	rt.contexts = append(rt.contexts, child)
	rt.mu.Unlock()
	return child
}

func (rt *Runtime) Contexts() []*Context {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Context, len(rt.contexts))
	copy(out, rt.contexts)
	return out
}

func (rt *Runtime) symbolBucket(name string) int {
	h := siphash.Hash(rt.hashKey0, rt.hashKey1, []byte(name))
	return int(h % symbolBuckets)
}

// Intern returns the unique Symbol object for name, allocating it on
// first use. The symbol table is itself a root source, since an interned
// symbol must outlive any single context.
func (rt *Runtime) Intern(name string) Value {
	b := rt.symbolBucket(name)
	rt.symbolsLock[b].RLock()
	if o, ok := rt.symbols[b][name]; ok {
		rt.symbolsLock[b].RUnlock()
		return HeapValue(o)
	}
	rt.symbolsLock[b].RUnlock()

	rt.symbolsLock[b].Lock()
	defer rt.symbolsLock[b].Unlock()
	if o, ok := rt.symbols[b][name]; ok {
		return HeapValue(o)
	}
	o := &Object{Header: Header{Tag: TagSymbol, Immutable: true}, Payload: &Symbol{Name: name}}
	rt.symbols[b][name] = o
	return HeapValue(o)
}

func valueIdentity(v Value) uintptr {
	if o := v.Obj(); o != nil {
		return uintptr(o.slotIdx+1) ^ uintptr(o.chunkIdx)<<32
	}
	return uintptr(v.bits())
}

// PreserveGlobal adds v to the process-wide preservation multiset, the
// root source that survives even when no context references v -- used for
// values an embedder's native code holds onto directly. ReleaseGlobal
// decrements the count, releasing the value once it reaches zero.
func (rt *Runtime) PreserveGlobal(v Value) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := valueIdentity(v)
	if e, ok := rt.preserved[key]; ok {
		e.count++
		return
	}
	rt.preserved[key] = &preserveEntry{value: v, count: 1}
}

func (rt *Runtime) ReleaseGlobal(v Value) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	key := valueIdentity(v)
	e, ok := rt.preserved[key]
	if !ok {
		return
	}
	e.count--
	if e.count <= 0 {
		delete(rt.preserved, key)
	}
}

// markGlobalRoots visits the global environment, every live context's
// roots, the symbol table, and the preservation multiset -- the full
// root enumeration the garbage collector section lists.
func (rt *Runtime) markGlobalRoots(visit func(Value)) {
	if rt.Global != nil {
		visit(HeapValue(rt.Global))
	}
	for _, ctx := range rt.Contexts() {
		ctx.markRoots(visit)
	}
	for b := range rt.symbols {
		rt.symbolsLock[b].RLock()
		for _, o := range rt.symbols[b] {
			visit(HeapValue(o))
		}
		rt.symbolsLock[b].RUnlock()
	}

	rt.mu.Lock()
	for _, e := range rt.preserved {
		visit(e.value)
	}
	rt.mu.Unlock()
}
