package heap

import (
	"fmt"
	"testing"

	"tok/internal/limits"
	"tok/internal/object"
)

// pin is a test root holding explicit values.
type pin struct {
	values []object.Value
}

func (p *pin) MarkRoots(h *Heap) {
	for _, v := range p.values {
		h.MarkValue(v)
	}
}

func countObjects(h *Heap) int {
	n := 0
	h.Objects(func(object.Object) bool {
		n++
		return true
	})
	return n
}

func TestInternReturnsSameObject(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	a := h.Intern("hello")
	root.values = append(root.values, object.ObjVal(a))
	b := h.Intern("hello")
	if a != b {
		t.Fatal("interning the same content must return one object")
	}
	if a.Hash != object.HashString("hello") {
		t.Fatal("interned string should cache its hash")
	}
}

func TestCollectFreesUnreachable(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	kept := h.Intern("kept")
	root.values = append(root.values, object.ObjVal(kept))
	h.Intern("garbage")

	before := countObjects(h)
	if before != 2 {
		t.Fatalf("expected 2 objects, got %d", before)
	}

	h.Collect()

	if got := countObjects(h); got != 1 {
		t.Fatalf("expected 1 survivor, got %d", got)
	}
	if h.LookupInterned("garbage") != nil {
		t.Fatal("intern table still holds a swept string")
	}
	if h.LookupInterned("kept") != kept {
		t.Fatal("rooted string fell out of the intern table")
	}
}

func TestCollectTracesReferences(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	fn := h.NewFunction()
	root.values = append(root.values, object.ObjVal(fn))

	name := h.Intern("inner")
	fn.Chunk.AddConstant(object.ObjVal(name))

	closure := h.NewClosure(fn)
	root.values = []object.Value{object.ObjVal(closure)}

	h.Collect()

	// closure -> function -> constant string all survive.
	if got := countObjects(h); got != 3 {
		t.Fatalf("expected 3 survivors, got %d", got)
	}
	if h.LookupInterned("inner") != name {
		t.Fatal("constant string lost")
	}
}

func TestCollectIsIdempotent(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	s := h.Intern("stay")
	root.values = append(root.values, object.ObjVal(s))
	for i := 0; i < 10; i++ {
		h.Intern(fmt.Sprintf("junk%d", i))
	}

	h.Collect()
	after1 := countObjects(h)
	bytes1 := h.BytesAllocated()

	h.Collect()
	if got := countObjects(h); got != after1 {
		t.Fatalf("second collect changed survivors: %d -> %d", after1, got)
	}
	if got := h.BytesAllocated(); got != bytes1 {
		t.Fatalf("second collect changed accounting: %d -> %d", bytes1, got)
	}
}

func TestBytesAllocatedMatchesLiveSet(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	for i := 0; i < 5; i++ {
		s := h.Intern(fmt.Sprintf("live%d", i))
		root.values = append(root.values, object.ObjVal(s))
	}
	h.Intern("dead")

	h.Collect()

	var sum int64
	h.Objects(func(o object.Object) bool {
		if o.GC().Marked {
			t.Fatal("mark bit survived the sweep")
		}
		sum += o.Size()
		return true
	})
	if h.BytesAllocated() != sum {
		t.Fatalf("bytesAllocated %d != live total %d", h.BytesAllocated(), sum)
	}
}

func TestStressModeCollectsEagerly(t *testing.T) {
	h := New()
	h.SetStress(true)
	root := &pin{}
	h.AddRoot(root)

	// With stress on, the second allocation collects and reaps the first.
	h.Intern("ephemeral")
	s := h.Intern("other")
	root.values = append(root.values, object.ObjVal(s))

	if h.LookupInterned("ephemeral") != nil {
		t.Fatal("stress collection should have pruned the unrooted string")
	}
}

func TestProtectGuardsIntermediates(t *testing.T) {
	h := New()
	h.SetStress(true)

	// No roots at all: only Protect keeps the first string alive across
	// the second allocation.
	a := h.Intern("left")
	h.Protect(object.ObjVal(a))
	b := h.Intern("right")
	h.Protect(object.ObjVal(b))

	joined := h.Intern(a.Value + b.Value)
	h.Unprotect()
	h.Unprotect()

	if joined.Value != "leftright" {
		t.Fatalf("unexpected concatenation %q", joined.Value)
	}
	if h.LookupInterned("left") != a {
		t.Fatal("protected string was collected")
	}
}

func TestUpvalueKeepsClosedValueAlive(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	uv := h.NewUpvalue(-1)
	captured := h.Intern("captured")
	uv.Closed = object.ObjVal(captured)
	root.values = append(root.values, object.ObjVal(uv))

	h.Collect()
	if h.LookupInterned("captured") != captured {
		t.Fatal("closed-over value was swept")
	}
}

func TestClassGraphMarking(t *testing.T) {
	h := New()
	root := &pin{}
	h.AddRoot(root)

	className := h.Intern("Thing")
	class := h.NewClass(className)
	root.values = append(root.values, object.ObjVal(class))

	methodName := h.Intern("go")
	fn := h.NewFunction()
	fn.Name = methodName
	method := h.NewClosure(fn)
	class.Methods.Set(methodName, object.ObjVal(method))

	inst := h.NewInstance(class)
	fieldName := h.Intern("f")
	fieldVal := h.Intern("v")
	inst.Fields.Set(fieldName, object.ObjVal(fieldVal))
	bound := h.NewBoundMethod(object.ObjVal(inst), method)
	root.values = append(root.values, object.ObjVal(bound))

	h.Collect()

	for _, s := range []string{"Thing", "go", "f", "v"} {
		if h.LookupInterned(s) == nil {
			t.Fatalf("string %q lost through the class graph", s)
		}
	}
}

func TestBudgetOverrun(t *testing.T) {
	h := New()
	h.SetBudget(limits.NewBudget(200))

	// Unrooted allocations get collected away and never trip the budget.
	h.Intern("a")
	if err := h.TakeBudgetErr(); err != nil {
		t.Fatalf("small allocation should fit: %v", err)
	}

	root := &pin{}
	h.AddRoot(root)
	for i := 0; i < 10; i++ {
		s := h.Intern(fmt.Sprintf("wide-string-%04d", i))
		root.values = append(root.values, object.ObjVal(s))
	}
	err := h.TakeBudgetErr()
	if err == nil {
		t.Fatal("expected budget overrun")
	}
	if _, ok := err.(limits.MaxMemoryError); !ok {
		t.Fatalf("expected MaxMemoryError, got %T", err)
	}
	if h.TakeBudgetErr() != nil {
		t.Fatal("TakeBudgetErr should clear the pending error")
	}
}
