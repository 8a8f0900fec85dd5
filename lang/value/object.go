package value

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/josharian/intern"
)

// HeapObject is implemented by every Value variant that lives on the VM's
// object heap (as opposed to Nil, Bool and Number, which are copied by
// value). Its next/setNext pair are unexported so that only types
// embedding ObjHeader - declared in this package - can satisfy it; this is
// what keeps the intrusive list well-formed.
type HeapObject interface {
	Value
	next() HeapObject
	setNext(HeapObject)
}

// ObjHeader is embedded by every heap object. It carries the link to the
// next object in the VM's intrusive allocation list, the set from which a
// future mark-sweep collector would start (see spec Open Questions); this
// repository does not implement collection, only the list it would walk.
type ObjHeader struct {
	nextObj HeapObject
}

func (h *ObjHeader) next() HeapObject     { return h.nextObj }
func (h *ObjHeader) setNext(o HeapObject) { h.nextObj = o }

// Link prepends o onto the intrusive list rooted at *head and returns o, so
// allocation sites can write `return Link(&heap, &ObjString{...})`.
func Link(head *HeapObject, o HeapObject) HeapObject {
	o.setNext(*head)
	*head = o
	return o
}

// Each walks every object reachable from head, in reverse allocation order
// (most-recently-allocated first).
func Each(head HeapObject, fn func(HeapObject)) {
	for o := head; o != nil; o = o.next() {
		fn(o)
	}
}

// ObjString is an immutable, interned heap string. Two ObjStrings with
// equal content are always the same object (see Heap.Intern), so Lox's ==
// on strings reduces to Go's == on *ObjString.
type ObjString struct {
	ObjHeader
	chars string
	hash  uint32
}

func (s *ObjString) String() string { return s.chars }
func (s *ObjString) Type() string   { return "string" }

// Chars returns the string's raw byte content.
func (s *ObjString) Chars() string { return s.chars }

// Hash returns the string's precomputed FNV-1a hash.
func (s *ObjString) Hash() uint32 { return s.hash }

// Native is a host function: it receives the call's argument values (a
// view of the VM stack, popped after it returns) and returns a result. Its Fn field is the object.h NativeFn
// equivalent.
type Native struct {
	ObjHeader
	Name string
	Fn   func(args []Value) (Value, error)
}

func (n *Native) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }
func (n *Native) Type() string   { return "native" }

// fnv1a computes the 32-bit FNV-1a hash of s, matching clox's hashString.
func fnv1a(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// Heap owns the VM's object allocations: the intrusive list of every
// object ever created (for an eventual collector to walk) and the string
// intern table that makes reference equality sound for Lox string ==.
type Heap struct {
	objects HeapObject
	strings *swiss.Map[string, *ObjString]
}

// NewHeap returns an empty object heap.
func NewHeap() *Heap {
	return &Heap{strings: swiss.NewMap[string, *ObjString](64)}
}

// Intern returns the canonical *ObjString for s, allocating one and
// registering it in both the intern table and the object list if this is
// the first time s has been seen. Interning must complete before any
// caller observes the result, so that at every point in time every String
// in memory is present in the intern table.
func (h *Heap) Intern(s string) *ObjString {
	// Dedupe the backing storage across equal Go strings before wrapping
	// one in a heap object; reduces retained memory when the same lexeme
	// is scanned many times (e.g. a literal inside a loop body).
	deduped := intern.String(s)
	if existing, ok := h.strings.Get(deduped); ok {
		return existing
	}
	obj := &ObjString{chars: deduped, hash: fnv1a(deduped)}
	h.strings.Put(deduped, obj)
	Link(&h.objects, obj)
	return obj
}

// Alloc registers a non-string heap object (a Function or Native) on the
// intrusive allocation list without interning it.
func (h *Heap) Alloc(o HeapObject) HeapObject {
	return Link(&h.objects, o)
}

// Objects walks every object ever allocated on the heap, most recent
// first.
func (h *Heap) Objects(fn func(HeapObject)) {
	Each(h.objects, fn)
}
