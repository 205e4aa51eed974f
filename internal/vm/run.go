package vm

import (
	"tok/internal/code"
	"tok/internal/object"
)

// run is the dispatch loop: one instruction per iteration, no yield points.
// Any *RuntimeError aborts execution; the stacks were already reset and the
// diagnostics written by runtimeError.
func (vm *VM) run() error {
	frame := vm.currentFrame()

	readByte := func() byte {
		b := frame.chunk().Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		s := int(code.ReadUint16(frame.chunk().Code[frame.ip:]))
		frame.ip += 2
		return s
	}
	readConstant := func() object.Value {
		return frame.chunk().Constants[readByte()]
	}
	readString := func() *object.String {
		return readConstant().AsString()
	}

	for {
		// The allocator parks budget overruns rather than panicking inside
		// an instruction; surface them at the next boundary.
		if err := vm.heap.TakeBudgetErr(); err != nil {
			return vm.runtimeError("%s", err.Error())
		}

		switch op := code.Opcode(readByte()); op {
		case code.OpConstant:
			vm.push(readConstant())

		case code.OpNil:
			vm.push(object.Nil())
		case code.OpTrue:
			vm.push(object.Bool(true))
		case code.OpFalse:
			vm.push(object.Bool(false))

		case code.OpPop:
			vm.pop()

		case code.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.slots+slot])

		case code.OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.slots+slot] = vm.peek(0)

		case code.OpGetGlobal:
			name := readString()
			value, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Value)
			}
			vm.push(value)

		case code.OpDefineGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.heap.Adjust(object.CostTableEntry())
			}
			vm.pop()

		case code.OpSetGlobal:
			name := readString()
			// Assignment never creates a global; undo the insert and report.
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Value)
			}

		case code.OpGetUpvalue:
			slot := int(readByte())
			vm.push(vm.upvalueGet(frame.closure.Upvalues[slot]))

		case code.OpSetUpvalue:
			slot := int(readByte())
			vm.upvalueSet(frame.closure.Upvalues[slot], vm.peek(0))

		case code.OpGetProperty:
			receiver := vm.peek(0)
			instance, ok := receiver.Obj.(*object.Instance)
			if !receiver.IsObj() || !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := readString()

			if value, found := instance.Fields.Get(name); found {
				vm.pop()
				vm.push(value)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}

		case code.OpSetProperty:
			target := vm.peek(1)
			instance, ok := target.Obj.(*object.Instance)
			if !target.IsObj() || !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := readString()
			if instance.Fields.Set(name, vm.peek(0)) {
				vm.heap.Adjust(object.CostTableEntry())
			}

			value := vm.pop()
			vm.pop()
			vm.push(value)

		case code.OpGetSuper:
			name := readString()
			superclass := vm.pop().Obj.(*object.Class)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case code.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(object.Bool(a.Equals(b)))

		case code.OpGreater:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(object.Bool(a > b))

		case code.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(object.Bool(a < b))

		case code.OpAdd:
			switch {
			case vm.peek(0).IsString() && vm.peek(1).IsString():
				vm.concatenate()
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(object.Number(a + b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case code.OpSubtract:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(object.Number(a - b))

		case code.OpMultiply:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(object.Number(a * b))

		case code.OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			vm.push(object.Number(a / b))

		case code.OpNot:
			vm.push(object.Bool(vm.pop().IsFalsey()))

		case code.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(object.Number(-vm.pop().AsNumber()))

		case code.OpPrint:
			printValue(vm.stdout, vm.pop())

		case code.OpJump:
			offset := readShort()
			frame.ip += offset

		case code.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}

		case code.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case code.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case code.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case code.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			superclass := vm.pop().Obj.(*object.Class)
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}
			frame = vm.currentFrame()

		case code.OpClosure:
			fn := readConstant().Obj.(*object.Function)
			closure := vm.heap.NewClosure(fn)
			vm.push(object.ObjVal(closure))
			for i := range closure.Upvalues {
				isLocal := readByte()
				index := int(readByte())
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case code.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case code.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}

			vm.sp = frame.slots
			vm.push(result)
			frame = vm.currentFrame()

		case code.OpClass:
			vm.push(object.ObjVal(vm.heap.NewClass(readString())))

		case code.OpInherit:
			superclass := vm.peek(1)
			super, ok := superclass.Obj.(*object.Class)
			if !superclass.IsObj() || !ok {
				return vm.runtimeError("Superclass must be a class.")
			}

			// Copy-down inheritance: the subclass starts with every
			// superclass method and overrides by inserting after.
			sub := vm.peek(0).Obj.(*object.Class)
			sub.Methods.AddAll(&super.Methods)
			vm.heap.Adjust(int64(super.Methods.Len()) * object.CostTableEntry())
			vm.pop()

		case code.OpMethod:
			name := readString()
			method := vm.peek(0)
			class := vm.peek(1).Obj.(*object.Class)
			if class.Methods.Set(name, method) {
				vm.heap.Adjust(object.CostTableEntry())
			}
			vm.pop()

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

// concatenate interns a + b. Operands stay on the stack until the result
// exists so the allocation cannot reap them.
func (vm *VM) concatenate() {
	b := vm.peek(0).AsString()
	a := vm.peek(1).AsString()
	result := vm.heap.Intern(a.Value + b.Value)
	vm.pop()
	vm.pop()
	vm.push(object.ObjVal(result))
}
