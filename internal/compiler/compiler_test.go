package compiler

import (
	"fmt"
	"strings"
	"testing"

	"tok/internal/code"
	"tok/internal/heap"
	"tok/internal/object"
)

func compileOK(t *testing.T, source string) *object.Function {
	t.Helper()
	fn, diags := Compile(source, heap.New())
	if fn == nil {
		var msgs []string
		for _, d := range diags {
			msgs = append(msgs, d.Message)
		}
		t.Fatalf("compile failed: %v", msgs)
	}
	return fn
}

func expectError(t *testing.T, source, want string) {
	t.Helper()
	fn, diags := Compile(source, heap.New())
	if fn != nil {
		t.Fatalf("expected error containing %q, but compile succeeded", want)
	}
	for _, d := range diags {
		if strings.Contains(d.Message, want) {
			return
		}
	}
	var got []string
	for _, d := range diags {
		got = append(got, d.Message)
	}
	t.Fatalf("no diagnostic contains %q; got %v", want, got)
}

func ops(fn *object.Function) []code.Opcode {
	var out []code.Opcode
	chunk := fn.Chunk
	for offset := 0; offset < len(chunk.Code); {
		op := code.Opcode(chunk.Code[offset])
		out = append(out, op)
		def, ok := code.Lookup(op)
		if !ok {
			break
		}
		offset++
		for _, w := range def.OperandWidths {
			offset += w
		}
		if op == code.OpClosure {
			inner := chunk.Constants[chunk.Code[offset-1]].Obj.(*object.Function)
			offset += inner.UpvalueCount * 2
		}
	}
	return out
}

func TestEmptyProgram(t *testing.T) {
	fn := compileOK(t, "")
	want := []code.Opcode{code.OpNil, code.OpReturn}
	got := ops(fn)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestExpressionStatementEmission(t *testing.T) {
	fn := compileOK(t, "1 + 2 * 3;")
	want := []code.Opcode{
		code.OpConstant, code.OpConstant, code.OpConstant,
		code.OpMultiply, code.OpAdd, code.OpPop,
		code.OpNil, code.OpReturn,
	}
	got := ops(fn)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestComparisonDesugaring(t *testing.T) {
	// >= and <= compile to the inverted primitive plus NOT.
	fn := compileOK(t, "1 >= 2;")
	got := ops(fn)
	want := []code.Opcode{
		code.OpConstant, code.OpConstant, code.OpLess, code.OpNot,
		code.OpPop, code.OpNil, code.OpReturn,
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGlobalVarDeclaration(t *testing.T) {
	fn := compileOK(t, "var a = 1; print a;")
	got := ops(fn)
	want := []code.Opcode{
		code.OpConstant, code.OpDefineGlobal,
		code.OpGetGlobal, code.OpPrint,
		code.OpNil, code.OpReturn,
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLocalSlotsInsideBlock(t *testing.T) {
	fn := compileOK(t, "{ var a = 1; print a; }")
	got := ops(fn)
	want := []code.Opcode{
		code.OpConstant, // a's initializer stays in its slot
		code.OpGetLocal, code.OpPrint,
		code.OpPop, // scope exit
		code.OpNil, code.OpReturn,
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestIfElseJumpsPatched(t *testing.T) {
	fn := compileOK(t, "if (true) print 1; else print 2;")
	chunk := fn.Chunk

	// OP_TRUE, then JUMP_IF_FALSE over (POP, CONST, PRINT, JUMP).
	if code.Opcode(chunk.Code[0]) != code.OpTrue {
		t.Fatalf("expected OP_TRUE first, got %d", chunk.Code[0])
	}
	if code.Opcode(chunk.Code[1]) != code.OpJumpIfFalse {
		t.Fatalf("expected OP_JUMP_IF_FALSE, got %d", chunk.Code[1])
	}
	offset := int(code.ReadUint16(chunk.Code[2:]))
	// Lands just past the then-branch's exit jump, on the else POP.
	target := 4 + offset
	if code.Opcode(chunk.Code[target]) != code.OpPop {
		t.Fatalf("false-jump lands on opcode %d, not OP_POP", chunk.Code[target])
	}
}

func TestWhileLoopsBackward(t *testing.T) {
	fn := compileOK(t, "while (true) print 1;")
	chunk := fn.Chunk

	var loopAt = -1
	for i := 0; i < len(chunk.Code); i++ {
		if code.Opcode(chunk.Code[i]) == code.OpLoop {
			loopAt = i
			break
		}
	}
	if loopAt == -1 {
		t.Fatal("no OP_LOOP emitted")
	}
	back := int(code.ReadUint16(chunk.Code[loopAt+1:]))
	if loopAt+3-back != 0 {
		t.Fatalf("loop should target offset 0, targets %d", loopAt+3-back)
	}
}

func TestForIncrementRewrite(t *testing.T) {
	fn := compileOK(t, "for (var i = 0; i < 3; i = i + 1) print i;")
	got := ops(fn)
	// Two OP_LOOPs: body -> increment, increment -> condition.
	loops := 0
	for _, op := range got {
		if op == code.OpLoop {
			loops++
		}
	}
	if loops != 2 {
		t.Fatalf("expected 2 OP_LOOP instructions, got %d in %v", loops, got)
	}
}

func TestClosureUpvalueDescriptors(t *testing.T) {
	source := `
fun outer() {
  var x = 1;
  fun middle() {
    fun inner() { return x; }
    return inner;
  }
  return middle;
}
`
	fn := compileOK(t, source)

	outer := findFunction(t, fn, "outer")
	middle := findFunction(t, outer, "middle")
	inner := findFunction(t, middle, "inner")

	if outer.UpvalueCount != 0 {
		t.Fatalf("outer should capture nothing, has %d", outer.UpvalueCount)
	}
	// middle forwards x from outer; inner captures middle's upvalue.
	if middle.UpvalueCount != 1 {
		t.Fatalf("middle should have 1 upvalue, has %d", middle.UpvalueCount)
	}
	if inner.UpvalueCount != 1 {
		t.Fatalf("inner should have 1 upvalue, has %d", inner.UpvalueCount)
	}

	// middle's CLOSURE for inner carries (isLocal=0, index=0): it passes
	// its own upvalue down, not a fresh local capture.
	chunk := middle.Chunk
	for offset := 0; offset < len(chunk.Code); offset++ {
		if code.Opcode(chunk.Code[offset]) == code.OpClosure {
			isLocal := chunk.Code[offset+2]
			if isLocal != 0 {
				t.Fatal("inner should capture through an upvalue, not a local")
			}
			return
		}
	}
	t.Fatal("no OP_CLOSURE found in middle")
}

func TestMethodInvokeFastPath(t *testing.T) {
	fn := compileOK(t, `
class A { go() { return 1; } }
var a = A();
a.go();
a.go;
`)
	got := ops(fn)
	invokes, gets := 0, 0
	for _, op := range got {
		switch op {
		case code.OpInvoke:
			invokes++
		case code.OpGetProperty:
			gets++
		}
	}
	if invokes != 1 {
		t.Fatalf("expected exactly one OP_INVOKE, got %d", invokes)
	}
	if gets != 1 {
		t.Fatalf("expected exactly one OP_GET_PROPERTY, got %d", gets)
	}
}

func TestSuperclassEmitsInherit(t *testing.T) {
	fn := compileOK(t, `
class A {}
class B < A {}
`)
	got := ops(fn)
	sawInherit := false
	for _, op := range got {
		if op == code.OpInherit {
			sawInherit = true
		}
	}
	if !sawInherit {
		t.Fatal("subclass declaration did not emit OP_INHERIT")
	}
}

func TestInitializerImplicitReturn(t *testing.T) {
	fn := compileOK(t, `class Box { init(v) { this.v = v; } }`)
	init := findFunction(t, fn, "init")

	c := init.Chunk.Code
	// Implicit return loads slot 0 (the instance), not nil.
	if code.Opcode(c[len(c)-3]) != code.OpGetLocal || c[len(c)-2] != 0 {
		t.Fatal("initializer should implicitly return GET_LOCAL 0")
	}
	if code.Opcode(c[len(c)-1]) != code.OpReturn {
		t.Fatal("initializer should end in OP_RETURN")
	}
}

func findFunction(t *testing.T, in *object.Function, name string) *object.Function {
	t.Helper()
	for _, v := range in.Chunk.Constants {
		if !v.IsObj() {
			continue
		}
		if fn, ok := v.Obj.(*object.Function); ok {
			if fn.Name != nil && fn.Name.Value == name {
				return fn
			}
			if found := findInner(fn, name); found != nil {
				return found
			}
		}
	}
	t.Fatalf("function %q not found", name)
	return nil
}

func findInner(in *object.Function, name string) *object.Function {
	for _, v := range in.Chunk.Constants {
		if !v.IsObj() {
			continue
		}
		if fn, ok := v.Obj.(*object.Function); ok {
			if fn.Name != nil && fn.Name.Value == name {
				return fn
			}
			if found := findInner(fn, name); found != nil {
				return found
			}
		}
	}
	return nil
}
