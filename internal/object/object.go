package object

type Kind byte

const (
	KindString Kind = iota
	KindFunction
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
	KindNative
)

// Header is the bookkeeping every heap object carries: the mark bit and the
// forward link in the heap's all-objects list.
type Header struct {
	Marked bool
	Next   Object
}

func (h *Header) GC() *Header { return h }

// Object is a Tok heap entity. The managed heap links objects through their
// headers; Size reports the bytes charged against the allocation counter,
// including owned table storage.
type Object interface {
	Kind() Kind
	Inspect() string
	GC() *Header
	Size() int64
}

// String is an immutable interned byte sequence with its FNV-1a hash cached.
type String struct {
	Header
	Value string
	Hash  uint32
}

func (*String) Kind() Kind        { return KindString }
func (s *String) Inspect() string { return s.Value }
func (s *String) Size() int64     { return CostString(len(s.Value)) }

// HashString is 32-bit FNV-1a over the raw bytes.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// NewString builds an unregistered String value. Interning and heap
// registration happen in the heap package.
func NewString(s string) *String {
	return &String{Value: s, Hash: HashString(s)}
}

// Function is compiled code: a chunk plus the shape of its frame.
type Function struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *String // nil for the top-level script
}

func (*Function) Kind() Kind { return KindFunction }
func (f *Function) Inspect() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Value + ">"
}
func (f *Function) Size() int64 { return CostFunction() + f.Chunk.cost() }

// Upvalue lets a closure reach a variable from an enclosing frame. While the
// frame is alive the upvalue is open: Slot indexes the VM value stack. Once
// the slot leaves scope the value moves into Closed and Slot becomes -1.
// Open upvalues form the VM's list ordered by descending slot.
type Upvalue struct {
	Header
	Slot   int
	Closed Value
	Next   *Upvalue
}

func (*Upvalue) Kind() Kind      { return KindUpvalue }
func (*Upvalue) Inspect() string { return "upvalue" }
func (*Upvalue) Size() int64     { return CostUpvalue() }
func (u *Upvalue) IsOpen() bool  { return u.Slot >= 0 }

// Closure pairs a function with its captured upvalues. Every callable Tok
// function at runtime is a closure, the top-level script included.
type Closure struct {
	Header
	Fn       *Function
	Upvalues []*Upvalue
}

func (*Closure) Kind() Kind        { return KindClosure }
func (c *Closure) Inspect() string { return c.Fn.Inspect() }
func (c *Closure) Size() int64     { return CostClosure(len(c.Upvalues)) }

// Class holds the method table. Inherited methods are copied in at class
// definition time, so lookup never walks a superclass chain.
type Class struct {
	Header
	Name    *String
	Methods Table
}

func (*Class) Kind() Kind        { return KindClass }
func (c *Class) Inspect() string { return c.Name.Value }
func (c *Class) Size() int64     { return CostClass() + c.Methods.cost() }

type Instance struct {
	Header
	Class  *Class
	Fields Table
}

func (*Instance) Kind() Kind        { return KindInstance }
func (i *Instance) Inspect() string { return i.Class.Name.Value + " instance" }
func (i *Instance) Size() int64     { return CostInstance() + i.Fields.cost() }

// BoundMethod is what a method access evaluates to when it is read as a
// value: the receiver snapshotted together with the method closure.
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

func (*BoundMethod) Kind() Kind        { return KindBoundMethod }
func (b *BoundMethod) Inspect() string { return b.Method.Fn.Inspect() }
func (*BoundMethod) Size() int64       { return CostBoundMethod() }

type NativeFn func(args []Value) (Value, error)

type Native struct {
	Header
	Name string
	Fn   NativeFn
}

func (*Native) Kind() Kind      { return KindNative }
func (*Native) Inspect() string { return "<native fn>" }
func (*Native) Size() int64     { return CostNative() }
