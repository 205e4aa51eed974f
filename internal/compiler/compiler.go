package compiler

import (
	"fmt"

	"tok/internal/code"
	"tok/internal/diag"
	"tok/internal/heap"
	"tok/internal/lexer"
	"tok/internal/object"
	"tok/internal/token"
)

const (
	maxLocals    = 256
	maxUpvalues  = 256
	maxConstants = 256
	maxJump      = 65535
	maxArity     = 255
)

type funcKind byte

const (
	kindScript funcKind = iota
	kindFunction
	kindMethod
	kindInitializer
)

type local struct {
	name       token.Token
	depth      int // -1 while declared but not yet defined
	isCaptured bool
}

type upvalueDesc struct {
	index   byte
	isLocal bool
}

// funcCompiler is the per-function state: the function under construction,
// its locals and upvalue descriptors, and the link to the enclosing one.
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *object.Function
	kind       funcKind
	locals     [maxLocals]local
	localCount int
	upvalues   [maxUpvalues]upvalueDesc
	scopeDepth int
}

type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler is a single-pass Pratt parser that emits bytecode as it goes; no
// AST is ever materialised. It registers itself as a GC root so functions
// and constants under construction survive collections triggered by its own
// allocations.
type Compiler struct {
	lex  *lexer.Lexer
	heap *heap.Heap

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	diags     []diag.Diagnostic

	cur      *funcCompiler
	curClass *classCompiler
}

// Compile turns source into the top-level script function. On any error it
// returns a nil function and the collected diagnostics.
func Compile(source string, h *heap.Heap) (*object.Function, []diag.Diagnostic) {
	c := &Compiler{lex: lexer.New(source), heap: h}
	h.AddRoot(c)
	defer h.RemoveRoot(c)

	c.initFuncCompiler(kindScript)

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	fn := c.endFuncCompiler()

	if c.hadError {
		return nil, c.diags
	}
	return fn, nil
}

// MarkRoots keeps every function in the active compiler chain alive.
func (c *Compiler) MarkRoots(h *heap.Heap) {
	for fc := c.cur; fc != nil; fc = fc.enclosing {
		if fc.function != nil {
			h.MarkObject(fc.function)
		}
	}
}

func (c *Compiler) initFuncCompiler(kind funcKind) {
	fc := &funcCompiler{enclosing: c.cur, kind: kind}
	c.cur = fc
	fc.function = c.heap.NewFunction()
	if kind != kindScript {
		fc.function.Name = c.heap.Intern(c.previous.Literal)
	}

	// Slot 0 is reserved: it names the receiver in methods and stands in
	// for the callee everywhere else.
	slot := &fc.locals[fc.localCount]
	fc.localCount++
	slot.depth = 0
	if kind == kindMethod || kind == kindInitializer {
		slot.name = token.Token{Type: token.THIS, Literal: "this"}
	}
}

func (c *Compiler) endFuncCompiler() *object.Function {
	c.emitReturn()
	fn := c.cur.function
	c.cur = c.cur.enclosing
	return fn
}

func (c *Compiler) currentChunk() *object.Chunk {
	return c.cur.function.Chunk
}

// --- token plumbing ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Literal)
	}
}

func (c *Compiler) consume(t token.Type, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(t token.Type) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t token.Type) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

// --- emission ---

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitOp(op code.Opcode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOps(op code.Opcode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(code.OpLoop)

	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > maxJump {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// emitJump writes op with a placeholder 16-bit operand and returns the
// operand's offset for patchJump.
func (c *Compiler) emitJump(op code.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	// -2 accounts for the jump operand itself.
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > maxJump {
		c.error("Too much code to jump over.")
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitReturn() {
	if c.cur.kind == kindInitializer {
		c.emitOps(code.OpGetLocal, 0)
	} else {
		c.emitOp(code.OpNil)
	}
	c.emitOp(code.OpReturn)
}

func (c *Compiler) makeConstant(v object.Value) byte {
	idx := c.currentChunk().AddConstant(v)
	if idx >= maxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v object.Value) {
	c.emitOps(code.OpConstant, c.makeConstant(v))
}

func (c *Compiler) identifierConstant(name token.Token) byte {
	return c.makeConstant(object.ObjVal(c.heap.Intern(name.Literal)))
}

// --- scope handling ---

func (c *Compiler) beginScope() {
	c.cur.scopeDepth++
}

func (c *Compiler) endScope() {
	fc := c.cur
	fc.scopeDepth--
	for fc.localCount > 0 && fc.locals[fc.localCount-1].depth > fc.scopeDepth {
		if fc.locals[fc.localCount-1].isCaptured {
			c.emitOp(code.OpCloseUpvalue)
		} else {
			c.emitOp(code.OpPop)
		}
		fc.localCount--
	}
}

func (c *Compiler) addLocal(name token.Token) {
	fc := c.cur
	if fc.localCount == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	l := &fc.locals[fc.localCount]
	fc.localCount++
	l.name = name
	l.depth = -1
	l.isCaptured = false
}

func (c *Compiler) declareVariable() {
	fc := c.cur
	if fc.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := fc.localCount - 1; i >= 0; i-- {
		l := &fc.locals[i]
		if l.depth != -1 && l.depth < fc.scopeDepth {
			break
		}
		if l.name.Literal == name.Literal {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(message string) byte {
	c.consume(token.IDENT, message)

	c.declareVariable()
	if c.cur.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	fc := c.cur
	if fc.scopeDepth == 0 {
		return
	}
	fc.locals[fc.localCount-1].depth = fc.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.cur.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOps(code.OpDefineGlobal, global)
}

func (c *Compiler) resolveLocal(fc *funcCompiler, name token.Token) int {
	for i := fc.localCount - 1; i >= 0; i-- {
		l := &fc.locals[i]
		if l.name.Literal == name.Literal && l.name.Literal != "" {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fc *funcCompiler, index byte, isLocal bool) int {
	count := fc.function.UpvalueCount

	// Closing over the same variable twice shares one upvalue.
	for i := 0; i < count; i++ {
		uv := &fc.upvalues[i]
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}

	if count == maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}

	fc.upvalues[count].isLocal = isLocal
	fc.upvalues[count].index = index
	fc.function.UpvalueCount++
	return count
}

// resolveUpvalue looks for name as a local of some enclosing function. On a
// hit the outer local is flagged captured and every function in between
// gains a forwarding upvalue.
func (c *Compiler) resolveUpvalue(fc *funcCompiler, name token.Token) int {
	if fc.enclosing == nil {
		return -1
	}

	if local := c.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(fc, byte(local), true)
	}

	if upvalue := c.resolveUpvalue(fc.enclosing, name); upvalue != -1 {
		return c.addUpvalue(fc, byte(upvalue), false)
	}

	return -1
}

func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp code.Opcode
	arg := c.resolveLocal(c.cur, name)
	switch {
	case arg != -1:
		getOp, setOp = code.OpGetLocal, code.OpSetLocal
	default:
		if uv := c.resolveUpvalue(c.cur, name); uv != -1 {
			arg = uv
			getOp, setOp = code.OpGetUpvalue, code.OpSetUpvalue
		} else {
			arg = int(c.identifierConstant(name))
			getOp, setOp = code.OpGetGlobal, code.OpSetGlobal
		}
	}

	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emitOps(setOp, byte(arg))
	} else {
		c.emitOps(getOp, byte(arg))
	}
}

// --- declarations and statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.ASSIGN) {
		c.expression()
	} else {
		c.emitOp(code.OpNil)
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(kindFunction)
	c.defineVariable(global)
}

// function compiles a parameter list and body in a fresh funcCompiler, then
// emits the CLOSURE instruction with its capture descriptors in the
// enclosing chunk.
func (c *Compiler) function(kind funcKind) {
	c.initFuncCompiler(kind)
	c.beginScope()

	c.consume(token.LPAREN, "Expect '(' after function name.")
	if !c.check(token.RPAREN) {
		for {
			c.cur.function.Arity++
			if c.cur.function.Arity > maxArity {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after parameters.")
	c.consume(token.LBRACE, "Expect '{' before function body.")
	c.block()

	upvalues := c.cur.upvalues
	fn := c.endFuncCompiler()
	c.emitOps(code.OpClosure, c.makeConstant(object.ObjVal(fn)))

	for i := 0; i < fn.UpvalueCount; i++ {
		if upvalues[i].isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(upvalues[i].index)
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENT, "Expect class name.")
	className := c.previous
	nameConstant := c.identifierConstant(c.previous)
	c.declareVariable()

	c.emitOps(code.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cc := &classCompiler{enclosing: c.curClass}
	c.curClass = cc

	if c.match(token.LT) {
		if c.check(token.IDENT) || c.getRule(c.current.Type).prefix == nil {
			c.consume(token.IDENT, "Expect superclass name.")
			c.variable(false)

			if className.Literal == c.previous.Literal {
				c.error("A class can't inherit from itself.")
			}
		} else {
			// Any other operand compiles; INHERIT rejects a non-class at
			// runtime.
			c.parsePrecedence(precPrimary)
		}

		// The superclass lives in a hidden local named "super" wrapped in
		// its own scope so sibling classes get distinct slots.
		c.beginScope()
		c.addLocal(token.Token{Type: token.SUPER, Literal: "super"})
		c.defineVariable(0)

		c.namedVariable(className, false)
		c.emitOp(code.OpInherit)
		cc.hasSuperclass = true
	}

	c.namedVariable(className, false)
	c.consume(token.LBRACE, "Expect '{' before class body.")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "Expect '}' after class body.")
	c.emitOp(code.OpPop)

	if cc.hasSuperclass {
		c.endScope()
	}

	c.curClass = cc.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENT, "Expect method name.")
	constant := c.identifierConstant(c.previous)

	kind := kindMethod
	if c.previous.Literal == "init" {
		kind = kindInitializer
	}
	c.function(kind)
	c.emitOps(code.OpMethod, constant)
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emitOp(code.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emitOp(code.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(code.OpJumpIfFalse)
	c.emitOp(code.OpPop)
	c.statement()

	elseJump := c.emitJump(code.OpJump)

	c.patchJump(thenJump)
	c.emitOp(code.OpPop)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(code.OpJumpIfFalse)
	c.emitOp(code.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(code.OpPop)
}

// forStatement desugars in place: when an increment clause is present the
// body jumps over it, the increment loops back to the condition, and the
// body's loop target is rewritten to the increment.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "Expect '(' after 'for'.")
	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.match(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")

		exitJump = c.emitJump(code.OpJumpIfFalse)
		c.emitOp(code.OpPop)
	}

	if !c.match(token.RPAREN) {
		bodyJump := c.emitJump(code.OpJump)
		incrementStart := len(c.currentChunk().Code)
		c.expression()
		c.emitOp(code.OpPop)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(code.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.cur.kind == kindScript {
		c.error("Can't return from top-level code.")
	}

	if c.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}
	if c.cur.kind == kindInitializer {
		c.error("Can't return a value from an initializer.")
	}
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after return value.")
	c.emitOp(code.OpReturn)
}

// synchronize skips tokens until a statement boundary so one mistake yields
// one diagnostic.
func (c *Compiler) synchronize() {
	c.panicMode = false

	for c.current.Type != token.EOF {
		if c.previous.Type == token.SEMICOLON {
			return
		}
		switch c.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR,
			token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

// --- error reporting ---

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var full string
	switch tok.Type {
	case token.EOF:
		full = fmt.Sprintf("Error at end: %s", message)
	case token.ILLEGAL:
		full = fmt.Sprintf("Error: %s", message)
	default:
		full = fmt.Sprintf("Error at '%s': %s", tok.Literal, message)
	}

	length := len(tok.Literal)
	if length == 0 {
		length = 1
	}
	c.diags = append(c.diags, diag.CompileError("TK0001", full, tok.Line, tok.Col, length))
}
