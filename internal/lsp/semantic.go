package lsp

import (
	"sort"

	"tok/internal/lexer"
	"tok/internal/token"
)

// Semantic token type indexes; must match the legend the server advertises.
const (
	SemKeyword = iota
	SemString
	SemNumber
	SemOperator
	SemFunction
	SemVariable
)

type SemTok struct {
	Line   int // 1-based
	Col    int // 1-based
	Length int
	Type   int
}

// SemanticTokensForText classifies a document straight off the token
// stream. There is no AST to consult, so identifiers are split by a
// one-token lookahead: called names read as functions, the rest as
// variables.
func SemanticTokensForText(text string) []SemTok {
	lx := lexer.New(text)
	sem := make([]SemTok, 0, 256)

	var pending *token.Token

	flushIdent := func(next token.Token) {
		if pending == nil {
			return
		}
		kind := SemVariable
		if next.Type == token.LPAREN {
			kind = SemFunction
		}
		sem = append(sem, SemTok{Line: pending.Line, Col: pending.Col, Length: len(pending.Literal), Type: kind})
		pending = nil
	}

	for {
		tok := lx.NextToken()
		flushIdent(tok)
		if tok.Type == token.EOF || tok.Type == token.ILLEGAL {
			break
		}

		switch tok.Type {
		case token.AND, token.CLASS, token.ELSE, token.FALSE, token.FOR,
			token.FUN, token.IF, token.NIL, token.OR, token.PRINT,
			token.RETURN, token.SUPER, token.THIS, token.TRUE,
			token.VAR, token.WHILE:
			sem = append(sem, SemTok{Line: tok.Line, Col: tok.Col, Length: len(tok.Literal), Type: SemKeyword})

		case token.STRING:
			sem = append(sem, SemTok{Line: tok.Line, Col: tok.Col, Length: len(tok.Literal), Type: SemString})

		case token.NUMBER:
			sem = append(sem, SemTok{Line: tok.Line, Col: tok.Col, Length: len(tok.Literal), Type: SemNumber})

		case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.BANG,
			token.BANG_EQ, token.ASSIGN, token.EQ, token.GT, token.GE,
			token.LT, token.LE:
			sem = append(sem, SemTok{Line: tok.Line, Col: tok.Col, Length: len(tok.Literal), Type: SemOperator})

		case token.IDENT:
			t := tok
			pending = &t
		}
	}
	return sem
}

// EncodeSemanticTokens renders the LSP delta encoding: five uint32 per
// token, positions relative to the previous one.
func EncodeSemanticTokens(toks []SemTok) []uint32 {
	sort.Slice(toks, func(i, j int) bool {
		if toks[i].Line != toks[j].Line {
			return toks[i].Line < toks[j].Line
		}
		return toks[i].Col < toks[j].Col
	})

	var data []uint32
	prevLine := 1
	prevCol := 1

	for _, t := range toks {
		if t.Length <= 0 {
			continue
		}
		deltaLine := t.Line - prevLine
		deltaStart := t.Col - 1
		if deltaLine == 0 {
			deltaStart = t.Col - prevCol
		}

		data = append(data,
			uint32(deltaLine),
			uint32(deltaStart),
			uint32(t.Length),
			uint32(t.Type),
			0,
		)

		prevLine = t.Line
		prevCol = t.Col
	}
	return data
}
