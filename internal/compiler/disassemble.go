package compiler

import (
	"bytes"
	"fmt"

	"tok/internal/code"
	"tok/internal/object"
)

// DisassembleChunk renders one chunk the way the debug dump mode prints it:
// offset, source line (or | on a repeat), opcode, operands.
func DisassembleChunk(chunk *object.Chunk, name string) string {
	var out bytes.Buffer
	fmt.Fprintf(&out, "== %s ==\n", name)

	for offset := 0; offset < len(chunk.Code); {
		offset = disassembleInstruction(&out, chunk, offset)
	}
	return out.String()
}

// DisassembleFunction renders fn's chunk followed by every function in its
// constant pool, depth-first, so -dis shows the whole compiled program.
func DisassembleFunction(fn *object.Function) string {
	var out bytes.Buffer
	out.WriteString(DisassembleChunk(fn.Chunk, fn.Inspect()))
	for _, v := range fn.Chunk.Constants {
		if inner, ok := v.Obj.(*object.Function); v.IsObj() && ok {
			out.WriteString("\n")
			out.WriteString(DisassembleFunction(inner))
		}
	}
	return out.String()
}

func disassembleInstruction(out *bytes.Buffer, chunk *object.Chunk, offset int) int {
	fmt.Fprintf(out, "%04d ", offset)
	if offset > 0 && chunk.Line(offset) == chunk.Line(offset-1) {
		out.WriteString("   | ")
	} else {
		fmt.Fprintf(out, "%4d ", chunk.Line(offset))
	}

	op := code.Opcode(chunk.Code[offset])
	def, ok := code.Lookup(op)
	if !ok {
		fmt.Fprintf(out, "Unknown opcode %d\n", op)
		return offset + 1
	}

	switch op {
	case code.OpConstant, code.OpGetGlobal, code.OpDefineGlobal, code.OpSetGlobal,
		code.OpGetProperty, code.OpSetProperty, code.OpGetSuper, code.OpClass, code.OpMethod:
		idx := int(chunk.Code[offset+1])
		fmt.Fprintf(out, "%-16s %4d '%s'\n", def.Name, idx, chunk.Constants[idx].Inspect())
		return offset + 2

	case code.OpGetLocal, code.OpSetLocal, code.OpGetUpvalue, code.OpSetUpvalue, code.OpCall:
		fmt.Fprintf(out, "%-16s %4d\n", def.Name, chunk.Code[offset+1])
		return offset + 2

	case code.OpInvoke, code.OpSuperInvoke:
		idx := int(chunk.Code[offset+1])
		argc := chunk.Code[offset+2]
		fmt.Fprintf(out, "%-16s (%d args) %4d '%s'\n", def.Name, argc, idx, chunk.Constants[idx].Inspect())
		return offset + 3

	case code.OpJump, code.OpJumpIfFalse:
		jump := int(code.ReadUint16(chunk.Code[offset+1:]))
		fmt.Fprintf(out, "%-16s %4d -> %d\n", def.Name, offset, offset+3+jump)
		return offset + 3

	case code.OpLoop:
		jump := int(code.ReadUint16(chunk.Code[offset+1:]))
		fmt.Fprintf(out, "%-16s %4d -> %d\n", def.Name, offset, offset+3-jump)
		return offset + 3

	case code.OpClosure:
		idx := int(chunk.Code[offset+1])
		fmt.Fprintf(out, "%-16s %4d %s\n", def.Name, idx, chunk.Constants[idx].Inspect())
		offset += 2

		fn := chunk.Constants[idx].Obj.(*object.Function)
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := chunk.Code[offset]
			index := chunk.Code[offset+1]
			which := "upvalue"
			if isLocal == 1 {
				which = "local"
			}
			fmt.Fprintf(out, "%04d      |                     %s %d\n", offset, which, index)
			offset += 2
		}
		return offset

	default:
		fmt.Fprintf(out, "%s\n", def.Name)
		return offset + 1
	}
}
