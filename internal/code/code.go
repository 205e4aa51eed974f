package code

import "encoding/binary"

type Opcode byte

const (
	OpConstant Opcode = iota // push constants[operand]
	OpNil
	OpTrue
	OpFalse
	OpPop

	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper

	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate

	OpPrint

	OpJump        // operand: forward offset (2 bytes)
	OpJumpIfFalse // operand: forward offset (2 bytes); does not pop
	OpLoop        // operand: backward offset (2 bytes)

	OpCall
	OpInvoke      // operands: nameConst(1), argCount(1)
	OpSuperInvoke // operands: nameConst(1), argCount(1)
	OpClosure     // operand: fnConst(1), then (isLocal, index) pairs

	OpCloseUpvalue
	OpReturn

	OpClass
	OpInherit
	OpMethod
)

type Instructions []byte

type Definition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*Definition{
	OpConstant:     {"OP_CONSTANT", []int{1}},
	OpNil:          {"OP_NIL", nil},
	OpTrue:         {"OP_TRUE", nil},
	OpFalse:        {"OP_FALSE", nil},
	OpPop:          {"OP_POP", nil},
	OpGetLocal:     {"OP_GET_LOCAL", []int{1}},
	OpSetLocal:     {"OP_SET_LOCAL", []int{1}},
	OpGetGlobal:    {"OP_GET_GLOBAL", []int{1}},
	OpDefineGlobal: {"OP_DEFINE_GLOBAL", []int{1}},
	OpSetGlobal:    {"OP_SET_GLOBAL", []int{1}},
	OpGetUpvalue:   {"OP_GET_UPVALUE", []int{1}},
	OpSetUpvalue:   {"OP_SET_UPVALUE", []int{1}},
	OpGetProperty:  {"OP_GET_PROPERTY", []int{1}},
	OpSetProperty:  {"OP_SET_PROPERTY", []int{1}},
	OpGetSuper:     {"OP_GET_SUPER", []int{1}},
	OpEqual:        {"OP_EQUAL", nil},
	OpGreater:      {"OP_GREATER", nil},
	OpLess:         {"OP_LESS", nil},
	OpAdd:          {"OP_ADD", nil},
	OpSubtract:     {"OP_SUBTRACT", nil},
	OpMultiply:     {"OP_MULTIPLY", nil},
	OpDivide:       {"OP_DIVIDE", nil},
	OpNot:          {"OP_NOT", nil},
	OpNegate:       {"OP_NEGATE", nil},
	OpPrint:        {"OP_PRINT", nil},
	OpJump:         {"OP_JUMP", []int{2}},
	OpJumpIfFalse:  {"OP_JUMP_IF_FALSE", []int{2}},
	OpLoop:         {"OP_LOOP", []int{2}},
	OpCall:         {"OP_CALL", []int{1}},
	OpInvoke:       {"OP_INVOKE", []int{1, 1}},
	OpSuperInvoke:  {"OP_SUPER_INVOKE", []int{1, 1}},
	OpClosure:      {"OP_CLOSURE", []int{1}},
	OpCloseUpvalue: {"OP_CLOSE_UPVALUE", nil},
	OpReturn:       {"OP_RETURN", nil},
	OpClass:        {"OP_CLASS", []int{1}},
	OpInherit:      {"OP_INHERIT", nil},
	OpMethod:       {"OP_METHOD", []int{1}},
}

func Lookup(op Opcode) (*Definition, bool) {
	def, ok := definitions[op]
	return def, ok
}

func ReadUint16(ins Instructions) uint16 {
	return binary.BigEndian.Uint16(ins)
}

func PutUint16(ins Instructions, v uint16) {
	binary.BigEndian.PutUint16(ins, v)
}

// ReadOperands decodes the inline operands following an opcode and reports
// how many bytes they occupied. OpClosure's trailing (isLocal, index) pairs
// are not covered here; their count depends on the referenced function.
func ReadOperands(def *Definition, ins Instructions) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	offset := 0

	for i, w := range def.OperandWidths {
		switch w {
		case 1:
			operands[i] = int(ins[offset])
		case 2:
			operands[i] = int(ReadUint16(ins[offset:]))
		default:
			panic("unsupported operand width")
		}
		offset += w
	}
	return operands, offset
}
