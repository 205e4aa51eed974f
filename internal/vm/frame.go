package vm

import "tok/internal/object"

// CallFrame is one ongoing function call: the closure being run, the index
// of the next instruction byte, and the base of this call's stack window.
// Slot 0 of the window holds the callee (or the receiver, in methods).
type CallFrame struct {
	closure *object.Closure
	ip      int
	slots   int
}

func (f *CallFrame) chunk() *object.Chunk {
	return f.closure.Fn.Chunk
}
