package heap

import "tok/internal/object"

const gcHeapGrowFactor = 2

// Collect runs a full tri-colour mark-sweep: mark roots gray, trace until
// the worklist drains, prune unreached intern entries, then sweep whites.
func (h *Heap) Collect() {
	h.markRoots()
	h.traceReferences()

	// The intern table is weak: it was not treated as a root, so any key
	// still white is garbage and must not dangle after the sweep.
	h.strings.DeleteIf(func(key *object.String) bool {
		return !key.Marked
	})

	h.sweep()
	h.nextGC = h.bytesAllocated * gcHeapGrowFactor
	if h.nextGC < initialGCThreshold {
		h.nextGC = initialGCThreshold
	}
	if h.budget != nil {
		h.budget.Sync(h.bytesAllocated)
	}
}

func (h *Heap) markRoots() {
	for _, v := range h.protect {
		h.MarkValue(v)
	}
	for _, r := range h.roots {
		r.MarkRoots(h)
	}
}

func (h *Heap) MarkValue(v object.Value) {
	if v.IsObj() {
		h.MarkObject(v.Obj)
	}
}

func (h *Heap) MarkObject(o object.Object) {
	if o == nil || o.GC().Marked {
		return
	}
	o.GC().Marked = true
	h.gray = append(h.gray, o)
}

// MarkTable marks both keys and values; used for the globals table and by
// blackening classes and instances.
func (h *Heap) MarkTable(t *object.Table) {
	t.Range(func(key *object.String, value object.Value) bool {
		h.MarkObject(key)
		h.MarkValue(value)
		return true
	})
}

func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
}

// blacken scans one gray object's outgoing references. There is no separate
// black encoding: black is marked and off the worklist.
func (h *Heap) blacken(o object.Object) {
	switch o := o.(type) {
	case *object.String, *object.Native:
		// no outgoing references

	case *object.Function:
		if o.Name != nil {
			h.MarkObject(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			h.MarkValue(c)
		}

	case *object.Closure:
		h.MarkObject(o.Fn)
		for _, u := range o.Upvalues {
			if u != nil {
				h.MarkObject(u)
			}
		}

	case *object.Upvalue:
		h.MarkValue(o.Closed)

	case *object.Class:
		h.MarkObject(o.Name)
		h.MarkTable(&o.Methods)

	case *object.Instance:
		h.MarkObject(o.Class)
		h.MarkTable(&o.Fields)

	case *object.BoundMethod:
		h.MarkValue(o.Receiver)
		h.MarkObject(o.Method)
	}
}

// sweep unlinks every white object, clears marks on survivors, and settles
// the allocation counter on the exact live total.
func (h *Heap) sweep() {
	var live int64
	var prev object.Object
	o := h.objects
	for o != nil {
		hdr := o.GC()
		if hdr.Marked {
			hdr.Marked = false
			live += o.Size()
			prev = o
			o = hdr.Next
			continue
		}
		unreached := o
		o = hdr.Next
		if prev == nil {
			h.objects = o
		} else {
			prev.GC().Next = o
		}
		unreached.GC().Next = nil
	}
	h.bytesAllocated = live
}
