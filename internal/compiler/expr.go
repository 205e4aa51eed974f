package compiler

import (
	"strconv"

	"tok/internal/code"
	"tok/internal/object"
	"tok/internal/token"
)

// precedence ladder, lowest to highest
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// getRule keys the Pratt table by token type. A switch instead of a map
// keeps the handlers bound to this compiler instance.
func (c *Compiler) getRule(t token.Type) parseRule {
	switch t {
	case token.LPAREN:
		return parseRule{c.grouping, c.call, precCall}
	case token.DOT:
		return parseRule{nil, c.dot, precCall}
	case token.MINUS:
		return parseRule{c.unary, c.binary, precTerm}
	case token.PLUS:
		return parseRule{nil, c.binary, precTerm}
	case token.SLASH, token.STAR:
		return parseRule{nil, c.binary, precFactor}
	case token.BANG:
		return parseRule{c.unary, nil, precNone}
	case token.BANG_EQ, token.EQ:
		return parseRule{nil, c.binary, precEquality}
	case token.GT, token.GE, token.LT, token.LE:
		return parseRule{nil, c.binary, precComparison}
	case token.IDENT:
		return parseRule{c.variable, nil, precNone}
	case token.STRING:
		return parseRule{c.stringLiteral, nil, precNone}
	case token.NUMBER:
		return parseRule{c.number, nil, precNone}
	case token.AND:
		return parseRule{nil, c.and, precAnd}
	case token.OR:
		return parseRule{nil, c.or, precOr}
	case token.FALSE, token.NIL, token.TRUE:
		return parseRule{c.literal, nil, precNone}
	case token.SUPER:
		return parseRule{c.super, nil, precNone}
	case token.THIS:
		return parseRule{c.this, nil, precNone}
	default:
		return parseRule{}
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

// parsePrecedence drives the Pratt loop. Only handlers reached at assignment
// precedence may consume '='; everyone else leaves it so the trailing check
// can flag "a + b = c".
func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := c.getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(canAssign)

	for prec <= c.getRule(c.current.Type).prec {
		c.advance()
		infix := c.getRule(c.previous.Type).infix
		infix(canAssign)
	}

	if canAssign && c.match(token.ASSIGN) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) number(bool) {
	n, _ := strconv.ParseFloat(c.previous.Literal, 64)
	c.emitConstant(object.Number(n))
}

func (c *Compiler) stringLiteral(bool) {
	lexeme := c.previous.Literal
	s := c.heap.Intern(lexeme[1 : len(lexeme)-1])
	c.emitConstant(object.ObjVal(s))
}

func (c *Compiler) literal(bool) {
	switch c.previous.Type {
	case token.FALSE:
		c.emitOp(code.OpFalse)
	case token.NIL:
		c.emitOp(code.OpNil)
	case token.TRUE:
		c.emitOp(code.OpTrue)
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func (c *Compiler) unary(bool) {
	op := c.previous.Type

	c.parsePrecedence(precUnary)

	switch op {
	case token.BANG:
		c.emitOp(code.OpNot)
	case token.MINUS:
		c.emitOp(code.OpNegate)
	}
}

func (c *Compiler) binary(bool) {
	op := c.previous.Type
	c.parsePrecedence(c.getRule(op).prec + 1)

	switch op {
	case token.BANG_EQ:
		c.emitOp(code.OpEqual)
		c.emitOp(code.OpNot)
	case token.EQ:
		c.emitOp(code.OpEqual)
	case token.GT:
		c.emitOp(code.OpGreater)
	case token.GE:
		c.emitOp(code.OpLess)
		c.emitOp(code.OpNot)
	case token.LT:
		c.emitOp(code.OpLess)
	case token.LE:
		c.emitOp(code.OpGreater)
		c.emitOp(code.OpNot)
	case token.PLUS:
		c.emitOp(code.OpAdd)
	case token.MINUS:
		c.emitOp(code.OpSubtract)
	case token.STAR:
		c.emitOp(code.OpMultiply)
	case token.SLASH:
		c.emitOp(code.OpDivide)
	}
}

// and short-circuits by jumping over the right operand; the falsey left
// value stays on the stack as the result.
func (c *Compiler) and(bool) {
	endJump := c.emitJump(code.OpJumpIfFalse)

	c.emitOp(code.OpPop)
	c.parsePrecedence(precAnd)

	c.patchJump(endJump)
}

// or keeps a truthy left operand: a falsey left falls through a tiny jump
// into the right operand, anything else jumps over it.
func (c *Compiler) or(bool) {
	elseJump := c.emitJump(code.OpJumpIfFalse)
	endJump := c.emitJump(code.OpJump)

	c.patchJump(elseJump)
	c.emitOp(code.OpPop)

	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) this(bool) {
	if c.curClass == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *Compiler) super(bool) {
	if c.curClass == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.curClass.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.DOT, "Expect '.' after 'super'.")
	c.consume(token.IDENT, "Expect superclass method name.")
	name := c.identifierConstant(c.previous)

	c.namedVariable(token.Token{Type: token.THIS, Literal: "this"}, false)
	if c.match(token.LPAREN) {
		argCount := c.argumentList()
		c.namedVariable(token.Token{Type: token.SUPER, Literal: "super"}, false)
		c.emitOps(code.OpSuperInvoke, name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(token.Token{Type: token.SUPER, Literal: "super"}, false)
		c.emitOps(code.OpGetSuper, name)
	}
}

func (c *Compiler) call(bool) {
	argCount := c.argumentList()
	c.emitOps(code.OpCall, argCount)
}

// dot handles property reads, writes, and the INVOKE fast path that skips
// allocating a bound method when the access is immediately called.
func (c *Compiler) dot(canAssign bool) {
	c.consume(token.IDENT, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)

	switch {
	case canAssign && c.match(token.ASSIGN):
		c.expression()
		c.emitOps(code.OpSetProperty, name)
	case c.match(token.LPAREN):
		argCount := c.argumentList()
		c.emitOps(code.OpInvoke, name)
		c.emitByte(argCount)
	default:
		c.emitOps(code.OpGetProperty, name)
	}
}

func (c *Compiler) argumentList() byte {
	argCount := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if argCount == maxArity {
				c.error("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "Expect ')' after arguments.")
	return byte(argCount)
}
