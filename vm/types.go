package scm

import "sync"

// Tag enumerates the heap object kinds. New types may be registered at
// runtime (RegisterType), appending to the globals' types vector.
type Tag uint16

const (
	TagNone Tag = iota
	TagPair
	TagVector
	TagBytes
	TagString
	TagSymbol
	TagPort
	TagException
	TagProcedure
	TagBytecode
	TagEnvironment
	TagMacro
	TagSyntacticClosure
	TagLambdaAST
	TagContext
	TagCPointer
	TagPromise
	TagEphemeron
	TagTypeDescriptor
	TagContinuation

	firstUserTag
)

/*
	TypeDescriptor is the Go-idiomatic stand-in for a numeric shape-field
	table (field_base, size_base/off/scale, weak_base, ...) as a chibi-style
	interpreter might encode it. Such a scheme lets the collector and
	equal? iterate any object's payload without per-type code, at the cost
	of every type describing itself once via a handful of integers -- a
	trick that leans on C's freedom to reinterpret a struct as a span of
	machine words.

	Go gives no safe equivalent (no pointer arithmetic over struct fields),
	so DESIGN.md documents the trade made here: each type instead
	registers two small closures, MarkChildren and WeakSlots, that do the
	same job -- "visit every strong/weak reference this object holds" --
	without unsafe field-offset math. EqualLen records the counterpart of
	field_eq_len_base (how many leading fields an equality walk would
	compare); Equal in arith.go does not read it and compares per tag.
*/
type TypeDescriptor struct {
	Tag         Tag
	Name        string
	Size        func(o *Object) int // logical element/byte count, for diagnostics
	MarkChildren func(o *Object, visit func(Value))
	WeakSlots    func(o *Object) []*Value
	Finalizer    func(o *Object)
	EqualLen     int

	// NumSlots is the fixed field count MAKE allocates for an instance of
	// this type; SLOT_REF/SLOT_SET/SLOTN_REF/SLOTN_SET index into it.
	NumSlots int
}

type typeRegistry struct {
	mu    sync.RWMutex
	byTag map[Tag]*TypeDescriptor
	next  Tag
}

func newTypeRegistry() *typeRegistry {
	r := &typeRegistry{byTag: make(map[Tag]*TypeDescriptor), next: firstUserTag}
	for _, d := range builtinDescriptors() {
		r.byTag[d.Tag] = d
	}
	return r
}

// RegisterType appends a user-defined type descriptor at runtime and
// returns the freshly allocated Tag it was assigned.
func (r *typeRegistry) RegisterType(d *TypeDescriptor) Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := r.next
	r.next++
	d.Tag = tag
	r.byTag[tag] = d
	return tag
}

func (r *typeRegistry) Lookup(tag Tag) *TypeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTag[tag]
}

func noChildren(*Object, func(Value)) {}
func noWeak(*Object) []*Value          { return nil }

// Record is the generic instance payload for any type registered through
// RegisterType: a flat slot vector, the same shape for every user type
// regardless of field count, matching the MAKE/SLOT_REF/SLOT_SET opcodes'
// view of an object as "a tag plus a run of fields" rather than a
// hand-written Go struct per Scheme record type.
type Record struct {
	Slots []Value
}

func recordMarkChildren(o *Object, visit func(Value)) {
	for _, s := range o.Payload.(*Record).Slots {
		visit(s)
	}
}

// DefineRecordType registers a new record type with the given field count
// and returns its descriptor, ready to be boxed (TypeDescriptorValue) into
// a bytecode literal for MAKE/ISA to reference. This is the embedding-side
// entry point RegisterType exists for: host code (or, eventually, a
// define-record-type expander) calls it once per shape at setup time.
func (rt *Runtime) DefineRecordType(name string, numSlots int) *TypeDescriptor {
	desc := &TypeDescriptor{
		Name:         name,
		NumSlots:     numSlots,
		MarkChildren: recordMarkChildren,
		WeakSlots:    noWeak,
	}
	rt.Heap.Types().RegisterType(desc)
	return desc
}

// TypeDescriptorValue boxes a descriptor as a heap value so it can sit in
// a bytecode literal pool, the form MAKE and ISA expect their operand in.
func (rt *Runtime) TypeDescriptorValue(desc *TypeDescriptor) Value {
	return rt.AllocTagged(TagTypeDescriptor, &TypeDescriptorPayload{Descriptor: desc})
}

// NewInstance allocates a fresh, slot-undefined instance of desc, the
// Go-level equivalent of the MAKE opcode.
func (rt *Runtime) NewInstance(desc *TypeDescriptor) Value {
	slots := make([]Value, desc.NumSlots)
	for i := range slots {
		slots[i] = Undefined
	}
	return rt.AllocTagged(desc.Tag, &Record{Slots: slots})
}

func builtinDescriptors() []*TypeDescriptor {
	return []*TypeDescriptor{
		{Tag: TagPair, Name: "pair", EqualLen: 2, MarkChildren: func(o *Object, visit func(Value)) {
			p := o.Payload.(*Pair)
			visit(p.Car)
			visit(p.Cdr)
		}, WeakSlots: noWeak},
		{Tag: TagVector, Name: "vector", MarkChildren: func(o *Object, visit func(Value)) {
			for _, v := range o.Payload.(*Vector).Slots {
				visit(v)
			}
		}, WeakSlots: noWeak},
		{Tag: TagBytes, Name: "bytevector", MarkChildren: noChildren, WeakSlots: noWeak},
		{Tag: TagString, Name: "string", MarkChildren: func(o *Object, visit func(Value)) {
			if s := o.Payload.(*SchemeString); s.Indirect != nil {
				visit(HeapValue(s.Indirect))
			}
		}, WeakSlots: noWeak},
		{Tag: TagSymbol, Name: "symbol", MarkChildren: noChildren, WeakSlots: noWeak},
		{Tag: TagPort, Name: "port", MarkChildren: noChildren, WeakSlots: noWeak,
			Finalizer: func(o *Object) { o.Payload.(*Port).Close() }},
		{Tag: TagException, Name: "exception", MarkChildren: func(o *Object, visit func(Value)) {
			e := o.Payload.(*Exception)
			visit(e.Message)
			for _, irr := range e.Irritants {
				visit(irr)
			}
			visit(e.Proc)
			visit(e.Source)
		}, WeakSlots: noWeak},
		{Tag: TagProcedure, Name: "procedure", MarkChildren: func(o *Object, visit func(Value)) {
			p := o.Payload.(*Procedure)
			visit(p.Code)
			for _, u := range p.Upvalues {
				visit(u)
			}
		}, WeakSlots: noWeak},
		{Tag: TagBytecode, Name: "bytecode", MarkChildren: func(o *Object, visit func(Value)) {
			for _, l := range o.Payload.(*Bytecode).Literals {
				visit(l)
			}
		}, WeakSlots: noWeak},
		{Tag: TagEnvironment, Name: "environment", MarkChildren: func(o *Object, visit func(Value)) {
			e := o.Payload.(*Environment)
			if e.Parent != nil {
				visit(HeapValue(e.Parent))
			}
			for _, cell := range e.Bindings {
				visit(*cell)
			}
		}, WeakSlots: noWeak},
		{Tag: TagMacro, Name: "macro", MarkChildren: noChildren, WeakSlots: noWeak},
		{Tag: TagSyntacticClosure, Name: "syntactic-closure", MarkChildren: func(o *Object, visit func(Value)) {
			s := o.Payload.(*SyntacticClosure)
			visit(HeapValue(s.Env))
			visit(s.Expr)
		}, WeakSlots: noWeak},
		{Tag: TagLambdaAST, Name: "lambda-ast", MarkChildren: noChildren, WeakSlots: noWeak},
		{Tag: TagContext, Name: "context", MarkChildren: func(o *Object, visit func(Value)) {
			ctx := o.Payload.(*Context)
			ctx.markRoots(visit)
		}, WeakSlots: noWeak},
		{Tag: TagCPointer, Name: "cpointer", MarkChildren: noChildren, WeakSlots: noWeak,
			Finalizer: func(o *Object) {
				if fin := o.Payload.(*CPointer).Finalizer; fin != nil {
					fin(o.Payload.(*CPointer).Ptr)
				}
			}},
		{Tag: TagPromise, Name: "promise", MarkChildren: func(o *Object, visit func(Value)) {
			visit(o.Payload.(*Promise).Value)
		}, WeakSlots: noWeak},
		{Tag: TagEphemeron, Name: "ephemeron", MarkChildren: noChildren, WeakSlots: func(o *Object) []*Value {
			e := o.Payload.(*Ephemeron)
			return []*Value{&e.Key, &e.Val}
		}},
		{Tag: TagTypeDescriptor, Name: "type-descriptor", MarkChildren: noChildren, WeakSlots: noWeak},
		{Tag: TagContinuation, Name: "continuation", MarkChildren: func(o *Object, visit func(Value)) {
			k := o.Payload.(*Continuation)
			for _, v := range k.Stack {
				visit(v)
			}
			for _, w := range k.DynamicWind {
				visit(w.Before)
				visit(w.After)
			}
		}, WeakSlots: noWeak},
	}
}
