package heap

import (
	"tok/internal/limits"
	"tok/internal/object"
)

// RootSource is anything that owns references the collector cannot see on
// its own. The VM and any live compiler register themselves here.
type RootSource interface {
	MarkRoots(h *Heap)
}

const initialGCThreshold = 1024 * 1024

// Heap owns every Tok object: the intrusive all-objects list, the weak
// string intern table, allocation accounting, and the collector.
type Heap struct {
	objects object.Object
	strings object.Table

	bytesAllocated int64
	nextGC         int64
	stress         bool

	// gray worklist; lives in Go-managed memory, never on this heap, so
	// growing it cannot re-enter a collection.
	gray []object.Object

	roots   []RootSource
	protect []object.Value

	budget    *limits.Budget
	budgetErr error
}

func New() *Heap {
	return &Heap{nextGC: initialGCThreshold}
}

// SetStress makes every growing allocation run a full collection first.
func (h *Heap) SetStress(on bool) { h.stress = on }

func (h *Heap) SetBudget(b *limits.Budget) { h.budget = b }

// TakeBudgetErr returns and clears the pending over-budget error, if any.
func (h *Heap) TakeBudgetErr() error {
	err := h.budgetErr
	h.budgetErr = nil
	return err
}

func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }
func (h *Heap) NextGC() int64         { return h.nextGC }

func (h *Heap) AddRoot(r RootSource) {
	h.roots = append(h.roots, r)
}

func (h *Heap) RemoveRoot(r RootSource) {
	for i, have := range h.roots {
		if have == r {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Protect pins a value as a temporary root. Any routine whose intermediate
// products are not yet reachable from the stacks must protect them before
// the next allocation. Unprotect pops in LIFO order.
func (h *Heap) Protect(v object.Value) { h.protect = append(h.protect, v) }

func (h *Heap) Unprotect() { h.protect = h.protect[:len(h.protect)-1] }

// register links a freshly built object into the heap and charges its size.
// Collection checks run before linking, so a triggered GC can never sweep
// the newcomer, and nothing collects between the check and the link.
func (h *Heap) register(o object.Object) {
	size := o.Size()
	h.maybeCollect(size)
	h.addBytes(size)

	hdr := o.GC()
	hdr.Next = h.objects
	h.objects = o
}

// Adjust records growth or shrinkage that happens after an object was
// registered, such as a table acquiring entries.
func (h *Heap) Adjust(delta int64) {
	if delta > 0 {
		h.maybeCollect(delta)
	}
	h.addBytes(delta)
}

func (h *Heap) maybeCollect(incoming int64) {
	if h.stress || h.bytesAllocated+incoming > h.nextGC {
		h.Collect()
		return
	}
	// A forced collection may free enough to keep the budget intact.
	if h.budget != nil && h.budgetErr == nil && h.budget.WouldExceed(incoming) {
		h.Collect()
	}
}

// addBytes updates the counters without ever collecting.
func (h *Heap) addBytes(delta int64) {
	h.bytesAllocated += delta
	if delta > 0 && h.budget != nil && h.budgetErr == nil {
		if err := h.budget.Charge(delta); err != nil {
			h.budgetErr = err
		}
	}
}

// Intern returns the canonical String for s, creating and registering it on
// first sight. Two interned strings are content-equal iff identical.
func (h *Heap) Intern(s string) *object.String {
	hash := object.HashString(s)
	if found := h.strings.FindString(s, hash); found != nil {
		return found
	}
	str := &object.String{Value: s, Hash: hash}
	h.register(str)

	// The intern table is weak, so it does not keep str alive by itself;
	// protect it across the table charge.
	h.Protect(object.ObjVal(str))
	h.strings.Set(str, object.Nil())
	h.Adjust(object.CostTableEntry())
	h.Unprotect()
	return str
}

func (h *Heap) NewFunction() *object.Function {
	fn := &object.Function{Chunk: object.NewChunk()}
	h.register(fn)
	return fn
}

func (h *Heap) NewClosure(fn *object.Function) *object.Closure {
	c := &object.Closure{Fn: fn, Upvalues: make([]*object.Upvalue, fn.UpvalueCount)}
	h.register(c)
	return c
}

func (h *Heap) NewUpvalue(slot int) *object.Upvalue {
	u := &object.Upvalue{Slot: slot}
	h.register(u)
	return u
}

func (h *Heap) NewClass(name *object.String) *object.Class {
	c := &object.Class{Name: name}
	h.register(c)
	return c
}

func (h *Heap) NewInstance(class *object.Class) *object.Instance {
	i := &object.Instance{Class: class}
	h.register(i)
	return i
}

func (h *Heap) NewBoundMethod(receiver object.Value, method *object.Closure) *object.BoundMethod {
	b := &object.BoundMethod{Receiver: receiver, Method: method}
	h.register(b)
	return b
}

func (h *Heap) NewNative(name string, fn object.NativeFn) *object.Native {
	n := &object.Native{Name: name, Fn: fn}
	h.register(n)
	return n
}

// Objects walks the all-objects list. Test hook for the heap invariants.
func (h *Heap) Objects(f func(object.Object) bool) {
	for o := h.objects; o != nil; o = o.GC().Next {
		if !f(o) {
			return
		}
	}
}

// LookupInterned reports the interned string for s, if any. Test hook.
func (h *Heap) LookupInterned(s string) *object.String {
	return h.strings.FindString(s, object.HashString(s))
}

// FreeAll releases every remaining object and the intern table. Called on
// VM teardown.
func (h *Heap) FreeAll() {
	for o := h.objects; o != nil; {
		next := o.GC().Next
		o.GC().Next = nil
		o = next
	}
	h.objects = nil
	h.strings = object.Table{}
	h.gray = nil
	h.bytesAllocated = 0
}
