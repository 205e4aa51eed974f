package vm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"tok/internal/heap"
	"tok/internal/object"
)

const (
	// FramesMax bounds call depth; one past it is a stack overflow.
	FramesMax = 64
	// StackSize gives every frame room for a full complement of locals.
	StackSize = FramesMax * 256
)

// VM interprets compiled functions. All mutable interpreter state lives
// here: the operand stack, call frames, globals, the open-upvalue list, and
// the link to the managed heap.
type VM struct {
	heap *heap.Heap

	stack [StackSize]object.Value
	sp    int

	frames     [FramesMax]CallFrame
	frameCount int

	globals      object.Table
	openUpvalues *object.Upvalue
	initString   *object.String

	stdout     io.Writer
	stderr     io.Writer
	stdin      io.Reader
	lineReader *bufio.Reader
	started    time.Time
}

// RuntimeError carries the failure message plus the rendered stack trace
// that was already written to stderr.
type RuntimeError struct {
	Message string
	Trace   string
}

func (e *RuntimeError) Error() string { return e.Message }

func New(h *heap.Heap, stdout, stderr io.Writer, stdin io.Reader) *VM {
	vm := &VM{
		heap:    h,
		stdout:  stdout,
		stderr:  stderr,
		stdin:   stdin,
		started: time.Now(),
	}
	h.AddRoot(vm)

	// Interned once so init lookups during construction calls never hash.
	vm.initString = h.Intern("init")

	vm.defineNative("clock", vm.clockNative)
	vm.defineNative("readLine", vm.readLineNative)
	return vm
}

// Free tears the VM down: drop it from the root set and release every
// remaining object.
func (vm *VM) Free() {
	vm.resetStacks()
	vm.initString = nil
	vm.globals = object.Table{}
	vm.heap.RemoveRoot(vm)
	vm.heap.FreeAll()
}

// Interpret wraps the compiled script in a closure and runs it to
// completion. The function is kept on the stack while the closure is
// allocated so a collection in between cannot reap it.
func (vm *VM) Interpret(fn *object.Function) error {
	vm.push(object.ObjVal(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(object.ObjVal(closure))
	vm.call(closure, 0)

	return vm.run()
}

// MarkRoots reports every reference the collector must treat as live: the
// value stack, frame closures, open upvalues, globals, and the interned
// "init" name.
func (vm *VM) MarkRoots(h *heap.Heap) {
	for i := 0; i < vm.sp; i++ {
		h.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		h.MarkObject(uv)
	}
	h.MarkTable(&vm.globals)
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
}

// --- stack ---

func (vm *VM) push(v object.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() object.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) object.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) resetStacks() {
	vm.sp = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[vm.frameCount-1]
}

// --- calls and method dispatch ---

func (vm *VM) callValue(callee object.Value, argCount int) *RuntimeError {
	if callee.IsObj() {
		switch callee := callee.Obj.(type) {
		case *object.Closure:
			return vm.call(callee, argCount)

		case *object.Class:
			// The callee slot becomes `this` for the initializer.
			vm.stack[vm.sp-argCount-1] = object.ObjVal(vm.heap.NewInstance(callee))
			if initializer, ok := callee.Methods.Get(vm.initString); ok {
				return vm.call(initializer.Obj.(*object.Closure), argCount)
			}
			if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return nil

		case *object.BoundMethod:
			vm.stack[vm.sp-argCount-1] = callee.Receiver
			return vm.call(callee.Method, argCount)

		case *object.Native:
			args := vm.stack[vm.sp-argCount : vm.sp]
			result, err := callee.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.sp -= argCount + 1
			vm.push(result)
			return nil
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) call(closure *object.Closure, argCount int) *RuntimeError {
	if argCount != closure.Fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Fn.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}

	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.sp - argCount - 1
	return nil
}

func (vm *VM) invoke(name *object.String, argCount int) *RuntimeError {
	receiver := vm.peek(argCount)

	instance, ok := receiver.Obj.(*object.Instance)
	if !receiver.IsObj() || !ok {
		return vm.runtimeError("Only instances have methods.")
	}

	// A field shadowing the method name wins and is called as a plain value.
	if value, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.sp-argCount-1] = value
		return vm.callValue(value, argCount)
	}

	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *object.Class, name *object.String, argCount int) *RuntimeError {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Value)
	}
	return vm.call(method.Obj.(*object.Closure), argCount)
}

// bindMethod replaces the instance on top of the stack with a bound method
// pairing it with the named method of class.
func (vm *VM) bindMethod(class *object.Class, name *object.String) *RuntimeError {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Value)
	}

	bound := vm.heap.NewBoundMethod(vm.peek(0), method.Obj.(*object.Closure))
	vm.pop()
	vm.push(object.ObjVal(bound))
	return nil
}

// --- upvalues ---

// captureUpvalue returns the open upvalue for slot, inserting a new one into
// the descending-sorted list if no closure captured that slot yet. Sharing
// one upvalue per slot is what makes writes through one closure visible
// through another.
func (vm *VM) captureUpvalue(slot int) *object.Upvalue {
	var prev *object.Upvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Slot > slot {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.Slot == slot {
		return uv
	}

	created := vm.heap.NewUpvalue(slot)
	created.Next = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above last off the stack:
// the slot's value moves into the upvalue and the entry leaves the open
// list. The transition is one-way.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		uv := vm.openUpvalues
		uv.Closed = vm.stack[uv.Slot]
		uv.Slot = -1
		vm.openUpvalues = uv.Next
		uv.Next = nil
	}
}

// OpenUpvalues walks the open list. Test hook for the ordering invariant.
func (vm *VM) OpenUpvalues(f func(*object.Upvalue) bool) {
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		if !f(uv) {
			return
		}
	}
}

// upvalueGet reads through an upvalue wherever it currently lives.
func (vm *VM) upvalueGet(uv *object.Upvalue) object.Value {
	if uv.IsOpen() {
		return vm.stack[uv.Slot]
	}
	return uv.Closed
}

func (vm *VM) upvalueSet(uv *object.Upvalue, v object.Value) {
	if uv.IsOpen() {
		vm.stack[uv.Slot] = v
	} else {
		uv.Closed = v
	}
}

// --- natives ---

// defineNative installs a host function as a global. Name and function are
// kept on the stack across the allocations between them, per the allocator
// discipline.
func (vm *VM) defineNative(name string, fn object.NativeFn) {
	nameStr := vm.heap.Intern(name)
	vm.push(object.ObjVal(nameStr))
	native := vm.heap.NewNative(name, fn)
	vm.push(object.ObjVal(native))

	if vm.globals.Set(nameStr, vm.peek(0)) {
		vm.heap.Adjust(object.CostTableEntry())
	}
	vm.pop()
	vm.pop()
}

// --- error reporting ---

// runtimeError renders the message and a [line N] in fn() trace, innermost
// frame first, writes both to stderr, and leaves the stacks reset.
func (vm *VM) runtimeError(format string, args ...any) *RuntimeError {
	message := fmt.Sprintf(format, args...)

	var trace strings.Builder
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Fn
		line := fn.Chunk.Line(frame.ip - 1)
		if fn.Name == nil {
			fmt.Fprintf(&trace, "[line %d] in script\n", line)
		} else {
			fmt.Fprintf(&trace, "[line %d] in %s()\n", line, fn.Name.Value)
		}
	}

	fmt.Fprintln(vm.stderr, message)
	fmt.Fprint(vm.stderr, trace.String())
	vm.resetStacks()

	return &RuntimeError{Message: message, Trace: trace.String()}
}
