package formula

import (
	"fmt"
	"strconv"
)

// Binding powers, loosest to tightest. Comparisons bind tighter than boolean
// connectives so `return > 8 and beta < 1` parses as expected without
// parentheses.
const (
	precNone = iota
	precOr
	precAnd
	precCompare
	precAddSub
	precMulDiv
	precUnary
)

func precedence(k tokenKind) int {
	switch k {
	case tokOr:
		return precOr
	case tokAnd:
		return precAnd
	case tokLT, tokLE, tokGT, tokGE, tokEQ, tokNE:
		return precCompare
	case tokPlus, tokMinus:
		return precAddSub
	case tokStar, tokSlash:
		return precMulDiv
	default:
		return precNone
	}
}

type parser struct {
	toks []token
	pos  int
}

// parse builds the expression tree for a formula, or returns *SyntaxError.
func parse(src string) (node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.expression(precNone)
	if err != nil {
		return nil, err
	}
	if tk := p.peek(); tk.kind != tokEOF {
		return nil, &SyntaxError{Msg: fmt.Sprintf("unexpected %q", tk.text), Pos: tk.pos}
	}
	return expr, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tk := p.toks[p.pos]
	if tk.kind != tokEOF {
		p.pos++
	}
	return tk
}

func (p *parser) expression(minPrec int) (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek()
		prec := precedence(op.kind)
		if prec == precNone || prec <= minPrec {
			return left, nil
		}
		p.next()
		right, err := p.expression(prec)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op.kind, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	switch tk := p.peek(); tk.kind {
	case tokMinus:
		p.next()
		expr, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokMinus, expr: expr}, nil
	case tokNot:
		p.next()
		expr, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tokNot, expr: expr}, nil
	default:
		return p.primary()
	}
}

func (p *parser) primary() (node, error) {
	tk := p.next()
	switch tk.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(tk.text, 64)
		if err != nil {
			return nil, &SyntaxError{Msg: fmt.Sprintf("malformed number %q", tk.text), Pos: tk.pos}
		}
		return numberNode{value: v}, nil

	case tokQuoted:
		return identNode{name: tk.text, quoted: true, pos: tk.pos}, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			return p.call(tk)
		}
		return identNode{name: tk.text, pos: tk.pos}, nil

	case tokLParen:
		expr, err := p.expression(precNone)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Msg: "expected ')'", Pos: closing.pos}
		}
		return expr, nil

	case tokEOF:
		return nil, &SyntaxError{Msg: "unexpected end of formula", Pos: tk.pos}

	default:
		return nil, &SyntaxError{Msg: fmt.Sprintf("unexpected %q", tk.text), Pos: tk.pos}
	}
}

func (p *parser) call(name token) (node, error) {
	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.expression(precNone)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if closing := p.next(); closing.kind != tokRParen {
		return nil, &SyntaxError{Msg: "expected ')' after arguments", Pos: closing.pos}
	}
	return callNode{name: name.text, args: args, pos: name.pos}, nil
}
