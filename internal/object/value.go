package object

import "strconv"

type ValueKind byte

const (
	ValNil ValueKind = iota
	ValBool
	ValNumber
	ValObj
)

// Value is the tagged sum of everything a Tok expression can produce. Numbers
// and booleans are stored inline; everything heap-allocated hangs off Obj.
type Value struct {
	Kind    ValueKind
	boolean bool
	number  float64
	Obj     Object
}

func Nil() Value             { return Value{Kind: ValNil} }
func Bool(b bool) Value      { return Value{Kind: ValBool, boolean: b} }
func Number(n float64) Value { return Value{Kind: ValNumber, number: n} }
func ObjVal(o Object) Value  { return Value{Kind: ValObj, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == ValNil }
func (v Value) IsBool() bool   { return v.Kind == ValBool }
func (v Value) IsNumber() bool { return v.Kind == ValNumber }
func (v Value) IsObj() bool    { return v.Kind == ValObj }

func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }

func (v Value) IsString() bool {
	_, ok := v.Obj.(*String)
	return v.Kind == ValObj && ok
}

func (v Value) AsString() *String { return v.Obj.(*String) }

// IsFalsey follows Tok truthiness: nil and false only.
func (v Value) IsFalsey() bool {
	return v.Kind == ValNil || (v.Kind == ValBool && !v.boolean)
}

// Equals compares by tag and payload. Strings are interned, so object
// identity doubles as content equality. NaN != NaN per IEEE.
func (v Value) Equals(w Value) bool {
	if v.Kind != w.Kind {
		return false
	}
	switch v.Kind {
	case ValNil:
		return true
	case ValBool:
		return v.boolean == w.boolean
	case ValNumber:
		return v.number == w.number
	default:
		return v.Obj == w.Obj
	}
}

func (v Value) Inspect() string {
	switch v.Kind {
	case ValNil:
		return "nil"
	case ValBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case ValNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	default:
		return v.Obj.Inspect()
	}
}
